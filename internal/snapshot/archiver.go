// Package snapshot keeps dated backups of the progress snapshot in object
// storage, one object per user per calendar day.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"

	"github.com/example/progress-sync/internal/clock"
	"github.com/example/progress-sync/internal/progress"
)

const defaultInterval = 15 * time.Minute

// Source yields the snapshot to archive.
type Source interface {
	Snapshot() progress.Snapshot
}

// ObjectWriter is the subset of *minio.Client used for uploads.
type ObjectWriter interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Archiver periodically uploads the snapshot when it changed since the last
// upload.
type Archiver struct {
	source   Source
	object   ObjectWriter
	bucket   string
	owner    func() string
	dates    clock.DateClock
	interval time.Duration
	logger   zerolog.Logger

	mu       sync.Mutex
	last     progress.Snapshot
	archived bool
}

// ArchiverOption configures an Archiver.
type ArchiverOption func(*Archiver)

// WithInterval sets how often the archiver checks for changes.
func WithInterval(d time.Duration) ArchiverOption {
	return func(a *Archiver) {
		if d > 0 {
			a.interval = d
		}
	}
}

// NewArchiver constructs an archiver. owner returns the user the archive is
// filed under; an empty owner skips the run.
func NewArchiver(source Source, object ObjectWriter, bucket string, owner func() string, dates clock.DateClock, logger zerolog.Logger, opts ...ArchiverOption) *Archiver {
	a := &Archiver{
		source:   source,
		object:   object,
		bucket:   bucket,
		owner:    owner,
		dates:    dates,
		interval: defaultInterval,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ObjectPath is where the backup of userID's snapshot for day is stored.
func ObjectPath(userID string, day progress.Date) string {
	return fmt.Sprintf("archive/%s/%s.json", userID, day)
}

// Start begins the periodic archive loop.
func (a *Archiver) Start(ctx context.Context) {
	go a.loop(ctx)
}

func (a *Archiver) loop(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := a.RunOnce(ctx); err != nil {
				a.logger.Error().Err(err).Msg("snapshot archive failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce uploads the current snapshot if it differs from the last upload.
// It reports whether an object was written.
func (a *Archiver) RunOnce(ctx context.Context) (bool, error) {
	if a.object == nil {
		return false, errors.New("object storage client not configured")
	}
	owner := a.owner()
	if owner == "" {
		return false, nil
	}

	snap := a.source.Snapshot()
	a.mu.Lock()
	unchanged := a.archived && a.last.Equal(snap)
	a.mu.Unlock()
	if unchanged {
		return false, nil
	}

	data, err := progress.Encode(snap)
	if err != nil {
		return false, err
	}

	day := a.dates.Today()
	path := ObjectPath(owner, day)
	if _, err := a.object.PutObject(ctx, a.bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: "application/json"}); err != nil {
		return false, fmt.Errorf("upload archive: %w", err)
	}

	a.mu.Lock()
	a.last = snap
	a.archived = true
	a.mu.Unlock()

	a.logger.Info().Str("user", owner).Str("object", path).Int("xp", snap.XP).Msg("snapshot archived")
	return true, nil
}

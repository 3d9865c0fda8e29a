// Package syncstate moves snapshots between the local engine and the remote
// store. Outbound pushes are debounced and never overlap; the inbound merge
// runs once per session, on identity arrival, and gates every push.
package syncstate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/progress-sync/internal/clock"
	"github.com/example/progress-sync/internal/observability"
	"github.com/example/progress-sync/internal/progress"
	"github.com/example/progress-sync/internal/storage"
)

const (
	defaultDebounce    = time.Second
	defaultPushTimeout = 10 * time.Second
)

var tracer = otel.Tracer("github.com/example/progress-sync/sync")

// Source is the local side of the sync: the engine's current snapshot and
// its merge entry point. A nil remote means the remote copy is absent.
type Source interface {
	Snapshot() progress.Snapshot
	MergeRemote(ctx context.Context, remote *progress.Snapshot) progress.Snapshot
}

// Config tunes the scheduler.
type Config struct {
	Debounce    time.Duration
	PushTimeout time.Duration
	DeviceID    string
}

// Scheduler coalesces local mutations into remote pushes.
type Scheduler struct {
	source  Source
	remote  storage.Remote
	timers  clock.Timers
	logger  zerolog.Logger
	cfg     Config
	now     func() time.Time
	metrics schedulerMetrics

	mu         sync.Mutex
	userID     string
	merged     bool
	dirty      bool
	inFlight   bool
	rerun      bool
	stopped    bool
	timer      clock.Timer
	flightDone chan struct{}
}

// New constructs a scheduler. Nothing is pushed until Identify succeeds.
func New(source Source, remote storage.Remote, timers clock.Timers, logger zerolog.Logger, cfg Config) *Scheduler {
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = defaultPushTimeout
	}
	return &Scheduler{
		source:  source,
		remote:  remote,
		timers:  timers,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
		metrics: newSchedulerMetrics(),
	}
}

// Notify records a local mutation and (re)starts the debounce window.
func (s *Scheduler) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dirty = true
	if s.stopped {
		return
	}
	if s.timer != nil && s.timer.Stop() {
		s.metrics.coalesced.Inc()
	}
	s.timer = s.timers.AfterFunc(s.cfg.Debounce, s.fire)
}

// Identify is the one-shot identity arrival. The first call pulls the remote
// snapshot, merges it into the engine and pushes the merged result back.
// Later calls are ignored. A failed pull keeps pushes gated; the pull is
// retried at the start of the next debounce cycle.
func (s *Scheduler) Identify(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", progress.ErrInvalidArgument)
	}

	s.mu.Lock()
	if s.userID != "" {
		current := s.userID
		s.mu.Unlock()
		if current != userID {
			s.logger.Warn().Str("user", userID).Str("current", current).Msg("identity already established; ignoring")
		}
		return nil
	}
	s.userID = userID
	if err := s.awaitIdleLocked(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	s.beginLocked()
	s.mu.Unlock()

	s.logger.Info().Str("user", userID).Msg("identity arrived; running inbound merge")
	err := s.cycle(ctx)
	s.finish()
	return err
}

// WatchIdentity blocks until the source announces a user, then identifies.
func (s *Scheduler) WatchIdentity(ctx context.Context, src IdentitySource) error {
	select {
	case userID, ok := <-src.Arrived():
		if !ok || userID == "" {
			return nil
		}
		return s.Identify(ctx, userID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush cancels the pending debounce and pushes immediately if there is
// anything unsent. It waits for an in-flight push first.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if err := s.awaitIdleLocked(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.userID == "" || !s.dirty {
		s.mu.Unlock()
		return nil
	}
	s.beginLocked()
	s.mu.Unlock()

	err := s.cycle(ctx)
	s.finish()
	return err
}

// Stop cancels the pending debounce. Later mutations are tracked but no
// longer scheduled; Flush still works.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Status reports the scheduler's view of the session.
type Status struct {
	UserID   string `json:"userId,omitempty"`
	Merged   bool   `json:"merged"`
	Pending  bool   `json:"pending"`
	InFlight bool   `json:"inFlight"`
}

// Status returns a point-in-time view of the scheduler.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{UserID: s.userID, Merged: s.merged, Pending: s.dirty, InFlight: s.inFlight}
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	s.timer = nil
	if s.userID == "" || s.stopped {
		s.mu.Unlock()
		return
	}
	if s.inFlight {
		s.rerun = true
		s.mu.Unlock()
		return
	}
	s.beginLocked()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PushTimeout)
	defer cancel()
	if err := s.cycle(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("sync cycle failed; will retry after the next mutation")
	}
	s.finish()
}

// cycle pulls first while the inbound merge is still outstanding, then pushes.
func (s *Scheduler) cycle(ctx context.Context) error {
	s.mu.Lock()
	merged, userID := s.merged, s.userID
	s.mu.Unlock()

	if !merged {
		if err := s.pull(ctx, userID); err != nil {
			return err
		}
	}
	return s.push(ctx, userID)
}

func (s *Scheduler) pull(ctx context.Context, userID string) (err error) {
	ctx, span := tracer.Start(ctx, "sync.pull")
	span.SetAttributes(attribute.String("user", userID))
	defer func() { endSpan(span, err) }()
	logger := observability.UserLogger(ctx, s.logger, userID)

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.PushTimeout)
	defer cancel()

	// remote stays nil when there is nothing usable to merge.
	var remote *progress.Snapshot
	data, err := s.remote.Fetch(fetchCtx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.metrics.pulls.WithLabelValues("absent").Inc()
		logger.Info().Msg("no remote snapshot; local progress seeds the remote")
	case err != nil:
		s.metrics.pulls.WithLabelValues("failed").Inc()
		logger.Warn().Err(err).Msg("remote pull failed; pushes stay gated")
		return fmt.Errorf("%w: pull: %w", progress.ErrSync, err)
	default:
		env, decodeErr := progress.Decode(data)
		if decodeErr != nil {
			s.metrics.pulls.WithLabelValues("corrupt").Inc()
			logger.Warn().Err(decodeErr).Msg("remote snapshot unreadable; treating as absent")
			break
		}
		remote = &env.Snapshot
		s.metrics.pulls.WithLabelValues("merged").Inc()
		logger = logger.With().Str("remote_device", env.DeviceID).Logger()
	}

	merged := s.source.MergeRemote(ctx, remote)
	logger.Info().Bool("remote_present", remote != nil).Int("xp", merged.XP).Msg("inbound merge complete")

	s.mu.Lock()
	s.merged = true
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) push(ctx context.Context, userID string) (err error) {
	ctx, span := tracer.Start(ctx, "sync.push")
	span.SetAttributes(attribute.String("user", userID))
	defer func() { endSpan(span, err) }()

	// Mutations landing after this point set dirty again and get their own push.
	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()

	snap := s.source.Snapshot()
	payload, err := progress.EncodeEnvelope(progress.Envelope{
		Snapshot:  snap,
		DeviceID:  s.cfg.DeviceID,
		UpdatedAt: s.now().UTC(),
	})
	if err == nil {
		pushCtx, cancel := context.WithTimeout(ctx, s.cfg.PushTimeout)
		start := time.Now()
		err = s.remote.Upsert(pushCtx, userID, payload)
		s.metrics.latency.Observe(time.Since(start).Seconds())
		cancel()
	}
	if err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		s.metrics.pushes.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: push: %w", progress.ErrSync, err)
	}

	s.metrics.pushes.WithLabelValues("ok").Inc()
	observability.UserLogger(ctx, s.logger, userID).Debug().
		Int("xp", snap.XP).
		Int("bytes", len(payload)).
		Msg("snapshot pushed")
	return nil
}

func (s *Scheduler) beginLocked() {
	s.inFlight = true
	s.flightDone = make(chan struct{})
}

// finish ends the in-flight cycle. A timer that fired during the cycle is
// replayed as a fresh debounce window so the latest state still goes out.
func (s *Scheduler) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight = false
	close(s.flightDone)
	if s.rerun && s.dirty && s.timer == nil && !s.stopped {
		s.timer = s.timers.AfterFunc(s.cfg.Debounce, s.fire)
	}
	s.rerun = false
}

// awaitIdleLocked waits, releasing the lock meanwhile, until no cycle is in flight.
func (s *Scheduler) awaitIdleLocked(ctx context.Context) error {
	for s.inFlight {
		done := s.flightDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			s.mu.Lock()
			return ctx.Err()
		}
		s.mu.Lock()
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

package snapshot

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/progress-sync/internal/clock"
	"github.com/example/progress-sync/internal/progress"
)

type fakeObjects struct {
	puts map[string][]byte
	err  error
}

func (f *fakeObjects) PutObject(_ context.Context, bucket, object string, reader io.Reader, _ int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if f.puts == nil {
		f.puts = make(map[string][]byte)
	}
	f.puts[bucket+"/"+object] = data
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: int64(len(data))}, nil
}

type staticSource struct{ snap progress.Snapshot }

func (s *staticSource) Snapshot() progress.Snapshot { return s.snap.Clone() }

func TestArchiverUploadsOnlyOnChange(t *testing.T) {
	objects := &fakeObjects{}
	source := &staticSource{snap: progress.New()}
	dates := clock.NewFixed("2024-02-10")
	a := NewArchiver(source, objects, "backups", func() string { return "u1" }, dates, zerolog.New(io.Discard))
	ctx := context.Background()

	wrote, err := a.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = a.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, wrote)

	source.snap.XP = 40
	dates.Advance(1)
	wrote, err = a.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, wrote)

	require.Contains(t, objects.puts, "backups/archive/u1/2024-02-11.json")
	env, err := progress.Decode(objects.puts["backups/archive/u1/2024-02-11.json"])
	require.NoError(t, err)
	assert.Equal(t, 40, env.XP)
	assert.Len(t, objects.puts, 2)
}

func TestArchiverSkipsWithoutOwner(t *testing.T) {
	objects := &fakeObjects{}
	a := NewArchiver(&staticSource{snap: progress.New()}, objects, "b", func() string { return "" }, clock.NewFixed("2024-02-10"), zerolog.New(io.Discard))

	wrote, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, wrote)
	assert.Empty(t, objects.puts)
}

func TestArchiverRetriesAfterUploadFailure(t *testing.T) {
	objects := &fakeObjects{err: errors.New("bucket missing")}
	a := NewArchiver(&staticSource{snap: progress.New()}, objects, "b", func() string { return "u1" }, clock.NewFixed("2024-02-10"), zerolog.New(io.Discard))

	_, err := a.RunOnce(context.Background())
	assert.Error(t, err)

	objects.err = nil
	wrote, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, wrote)
}

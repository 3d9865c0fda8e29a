package storage

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerLocalRoundTrip(t *testing.T) {
	local, err := OpenBadger(BadgerConfig{InMemory: true}, zerolog.New(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	ctx := context.Background()
	_, err = local.Get(ctx, "progress")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, local.Set(ctx, "progress", []byte(`{"xp":5}`)))
	require.NoError(t, local.Set(ctx, "progress", []byte(`{"xp":6}`)))

	got, err := local.Get(ctx, "progress")
	require.NoError(t, err)
	assert.JSONEq(t, `{"xp":6}`, string(got))
	assert.NoError(t, local.Ping())
}

func TestBadgerLocalPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	local, err := OpenBadger(BadgerConfig{Path: dir, SyncWrites: true}, zerolog.New(io.Discard))
	require.NoError(t, err)
	require.NoError(t, local.Set(ctx, "progress", []byte("payload")))
	require.NoError(t, local.Close())

	reopened, err := OpenBadger(BadgerConfig{Path: dir}, zerolog.New(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.Get(ctx, "progress")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestOpenBadgerRequiresPath(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{}, zerolog.New(io.Discard))
	assert.Error(t, err)
}

func TestMemoryRemoteUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryRemote()
	payload := []byte(`{"xp":10}`)

	require.NoError(t, remote.Upsert(ctx, "u1", payload))
	once, err := remote.Fetch(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, remote.Upsert(ctx, "u1", payload))
	twice, err := remote.Fetch(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, 2, remote.Upserts())

	_, err = remote.Fetch(ctx, "u2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryLocalFailWrites(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryLocal()
	boom := errors.New("disk full")

	local.FailWrites(boom)
	assert.ErrorIs(t, local.Set(ctx, "k", []byte("v")), boom)
	_, err := local.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	local.FailWrites(nil)
	require.NoError(t, local.Set(ctx, "k", []byte("v")))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(&pgconn.PgError{Code: "40001"}))
	assert.True(t, isTransient(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, isTransient(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isTransient(context.DeadlineExceeded))
	assert.False(t, isTransient(errors.New("boom")))
}

type fakeRow struct {
	payload []byte
	err     error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.payload
	return nil
}

type fakeQuerier struct {
	execErrs []error
	execs    int
	lastArgs []any
	row      fakeRow
}

func (f *fakeQuerier) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	f.execs++
	f.lastArgs = args
	if len(f.execErrs) > 0 {
		err := f.execErrs[0]
		f.execErrs = f.execErrs[1:]
		return pgconn.CommandTag{}, err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	return f.row
}

func TestPostgresUpsertRetriesTransientErrors(t *testing.T) {
	db := &fakeQuerier{execErrs: []error{&pgconn.PgError{Code: "40001"}, &pgconn.PgError{Code: "40P01"}}}
	remote := NewPostgresRemote(db, WithRetryDelay(time.Millisecond))

	require.NoError(t, remote.Upsert(context.Background(), "u1", []byte(`{}`)))
	assert.Equal(t, 3, db.execs)
	assert.Equal(t, "u1", db.lastArgs[0])
}

func TestPostgresUpsertStopsOnPermanentError(t *testing.T) {
	permanent := &pgconn.PgError{Code: "42P01"}
	db := &fakeQuerier{execErrs: []error{permanent}}
	remote := NewPostgresRemote(db, WithRetryDelay(time.Millisecond), WithMaxRetries(5))

	err := remote.Upsert(context.Background(), "u1", []byte(`{}`))
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, db.execs)
}

func TestPostgresFetch(t *testing.T) {
	remote := NewPostgresRemote(&fakeQuerier{row: fakeRow{err: pgx.ErrNoRows}})
	_, err := remote.Fetch(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	remote = NewPostgresRemote(&fakeQuerier{row: fakeRow{payload: []byte(`{"xp":1}`)}})
	got, err := remote.Fetch(context.Background(), "u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"xp":1}`, string(got))
}

func TestObjectErrorMapping(t *testing.T) {
	assert.ErrorIs(t, mapObjectError(minio.ErrorResponse{Code: "NoSuchKey"}), ErrNotFound)

	denied := minio.ErrorResponse{Code: "AccessDenied"}
	assert.Equal(t, denied, mapObjectError(denied))
	assert.Equal(t, "progress/u1.json", ObjectKey("u1"))
}

func TestRedisKey(t *testing.T) {
	r := NewRedisRemote(nil)
	assert.Equal(t, "progress:snapshot:u1", r.key("u1"))
}

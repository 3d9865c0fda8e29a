package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS progress_snapshots (
	user_id    TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Querier is the subset of pgxpool.Pool used by PostgresRemote.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRemote stores one snapshot row per user.
type PostgresRemote struct {
	db         Querier
	maxRetries int
	retryDelay time.Duration
}

// PostgresOption configures the Postgres store.
type PostgresOption func(*PostgresRemote)

// WithMaxRetries sets the maximum retry count for transient failures.
func WithMaxRetries(n int) PostgresOption {
	return func(p *PostgresRemote) {
		p.maxRetries = n
	}
}

// WithRetryDelay sets the base delay between retries.
func WithRetryDelay(d time.Duration) PostgresOption {
	return func(p *PostgresRemote) {
		p.retryDelay = d
	}
}

// NewPostgresRemote constructs a Remote over the provided pool.
func NewPostgresRemote(db Querier, opts ...PostgresOption) *PostgresRemote {
	p := &PostgresRemote{
		db:         db,
		maxRetries: 3,
		retryDelay: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EnsureSchema creates the snapshot table when it does not exist yet.
func (p *PostgresRemote) EnsureSchema(ctx context.Context) error {
	return p.retry(ctx, func(ctx context.Context) error {
		_, err := p.db.Exec(ctx, postgresSchema)
		return err
	})
}

// Fetch implements Remote.
func (p *PostgresRemote) Fetch(ctx context.Context, userID string) (payload []byte, err error) {
	ctx, span := tracer.Start(ctx, "postgres.fetch")
	span.SetAttributes(attribute.String("user", userID))
	defer func(start time.Time) {
		observe("postgres", "fetch", start, err)
		endSpan(span, err)
	}(time.Now())

	err = p.retry(ctx, func(ctx context.Context) error {
		return p.db.QueryRow(ctx, `SELECT payload FROM progress_snapshots WHERE user_id = $1`, userID).Scan(&payload)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return payload, err
}

// Upsert implements Remote. Repeating the call with the same payload leaves
// the row unchanged apart from its timestamp.
func (p *PostgresRemote) Upsert(ctx context.Context, userID string, payload []byte) (err error) {
	ctx, span := tracer.Start(ctx, "postgres.upsert")
	span.SetAttributes(attribute.String("user", userID), attribute.Int("bytes", len(payload)))
	defer func(start time.Time) {
		observe("postgres", "upsert", start, err)
		endSpan(span, err)
	}(time.Now())

	return p.retry(ctx, func(ctx context.Context) error {
		_, err := p.db.Exec(ctx, `
INSERT INTO progress_snapshots (user_id, payload, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (user_id)
DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`,
			userID, payload,
		)
		return err
	})
}

func (p *PostgresRemote) retry(ctx context.Context, fn func(context.Context) error) error {
	delay := p.retryDelay
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if err := fn(ctx); err != nil {
			if !isTransient(err) || attempt == p.maxRetries {
				return err
			}
			select {
			case <-time.After(delay):
				delay *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		return nil
	}
	return nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01": // deadlock_detected
			return true
		}
	}

	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr)
}

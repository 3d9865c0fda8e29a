package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/example/progress-sync/internal/storage"
)

// Resources bundles the local store and the external connections so that
// their lifecycle can be managed in a single place. Only the clients the
// configuration asks for are opened.
type Resources struct {
	Local    *storage.BadgerLocal
	Postgres *pgxpool.Pool
	Redis    *redis.Client
	Object   *minio.Client
	cfg      Config
}

// NewResources opens the local store and the configured remote clients.
func NewResources(ctx context.Context, cfg Config, logger zerolog.Logger) (*Resources, error) {
	local, err := storage.OpenBadger(storage.BadgerConfig{
		Path:       cfg.LocalStorePath,
		InMemory:   cfg.LocalStoreInMemory,
		SyncWrites: cfg.LocalSyncWrites,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	res := &Resources{Local: local, cfg: cfg}

	switch cfg.RemoteBackend {
	case BackendPostgres:
		pgCfg, err := pgxpool.ParseConfig(cfg.PostgresURL)
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("parse postgres url: %w", err)
		}
		res.Postgres, err = pgxpool.NewWithConfig(ctx, pgCfg)
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("create postgres pool: %w", err)
		}
	case BackendRedis:
		res.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}

	if cfg.ObjectStorageEnabled() {
		res.Object, err = minio.New(cfg.ObjectEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.ObjectAccessKey, cfg.ObjectSecretKey, ""),
			Secure: cfg.ObjectUseSSL,
			Region: cfg.ObjectRegion,
		})
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("create object client: %w", err)
		}
	}

	return res, nil
}

// Remote returns the snapshot backend selected by REMOTE_BACKEND, or nil when
// sync is disabled. The postgres table is created on first use.
func (r *Resources) Remote(ctx context.Context) (storage.Remote, error) {
	switch r.cfg.RemoteBackend {
	case BackendPostgres:
		remote := storage.NewPostgresRemote(r.Postgres)
		if err := remote.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure postgres schema: %w", err)
		}
		return remote, nil
	case BackendRedis:
		return storage.NewRedisRemote(r.Redis), nil
	case BackendObject:
		return storage.NewObjectRemote(r.Object, r.cfg.ObjectBucket), nil
	default:
		return nil, nil
	}
}

// HealthCheck verifies that every opened dependency is healthy.
func (r *Resources) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.Local.Ping(); err != nil {
		return fmt.Errorf("local store healthcheck failed: %w", err)
	}

	if r.Postgres != nil {
		if err := r.Postgres.Ping(ctx); err != nil {
			return fmt.Errorf("postgres healthcheck failed: %w", err)
		}
	}

	if r.Redis != nil {
		if err := r.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis healthcheck failed: %w", err)
		}
	}

	// MinIO/S3 doesn't expose a ping, so we attempt to stat the configured bucket.
	if r.Object != nil {
		if _, err := r.Object.BucketExists(ctx, r.cfg.ObjectBucket); err != nil {
			return fmt.Errorf("object storage healthcheck failed: %w", err)
		}
	}

	return nil
}

// Close disposes all active connections and closes the local store.
func (r *Resources) Close() error {
	if r.Postgres != nil {
		r.Postgres.Close()
	}
	var errs []error
	if r.Redis != nil {
		errs = append(errs, r.Redis.Close())
	}
	if r.Local != nil {
		errs = append(errs, r.Local.Close())
	}
	return errors.Join(errs...)
}

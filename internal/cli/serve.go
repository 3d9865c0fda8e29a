package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/progress-sync/internal/api"
	"github.com/example/progress-sync/internal/clock"
	"github.com/example/progress-sync/internal/observability"
	"github.com/example/progress-sync/internal/progress"
	"github.com/example/progress-sync/internal/readiness"
	"github.com/example/progress-sync/internal/snapshot"
	syncstate "github.com/example/progress-sync/internal/sync"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP API with background sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts, cmd)
		},
	}
}

func runServe(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()
	cfg, logger := a.cfg, a.logger

	observability.RegisterRuntimeCollectors()
	telemetryShutdown, err := observability.Start(ctx, observability.Config{
		ServiceName:  cfg.AppName,
		DeviceID:     cfg.DeviceID,
		MetricsAddr:  cfg.MetricsAddr,
		OTLPEndpoint: cfg.OTLPEndpoint,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = telemetryShutdown(shutdownCtx)
	}()

	remote, err := a.resources.Remote(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	var (
		scheduler *syncstate.Scheduler
		identity  api.Identity
		status    api.SyncStatus
	)
	if remote != nil {
		scheduler = syncstate.New(a.engine, remote, clock.Real{}, logger.With().Str("component", "sync").Logger(), syncstate.Config{
			Debounce:    cfg.SyncDebounce,
			PushTimeout: cfg.SyncPushTimeout,
			DeviceID:    cfg.DeviceID,
		})
		status = scheduler
		unsubscribe := a.engine.Subscribe(func(progress.Snapshot) { scheduler.Notify() })
		defer unsubscribe()

		var source syncstate.IdentitySource
		if cfg.UserID != "" {
			source = syncstate.NewStaticIdentity(cfg.UserID)
		} else {
			manual := syncstate.NewManualIdentity()
			identity = manual
			source = manual
		}
		g.Go(func() error {
			err := scheduler.WatchIdentity(gctx, source)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn().Err(err).Msg("initial sync failed; retrying on the next change")
			}
			return nil
		})
	} else {
		logger.Info().Msg("remote backend disabled; progress stays on this device")
	}

	if a.resources.Object != nil && cfg.ArchiveInterval > 0 {
		owner := func() string { return cfg.UserID }
		if scheduler != nil {
			owner = func() string { return scheduler.Status().UserID }
		}
		archiver := snapshot.NewArchiver(a.engine, a.resources.Object, cfg.ObjectBucket, owner, a.dates,
			logger.With().Str("component", "archiver").Logger(), snapshot.WithInterval(cfg.ArchiveInterval))
		archiver.Start(gctx)
	}

	handlers := api.NewHandlers(api.Deps{
		Engine:   a.engine,
		Scorer:   readiness.NewScorer(a.catalog),
		Identity: identity,
		Sync:     status,
		Health:   a.resources.HealthCheck,
		Logger:   logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPListenAddr,
		Handler:           api.NewRouter(handlers, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("http server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.HealthcheckProbe)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := a.resources.HealthCheck(gctx); err != nil {
					logger.Error().Err(err).Msg("dependency healthcheck failed")
				} else {
					logger.Debug().Msg("dependency healthcheck ok")
				}
			case <-gctx.Done():
				return nil
			}
		}
	})

	err = g.Wait()

	if scheduler != nil {
		scheduler.Stop()
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		if flushErr := scheduler.Flush(flushCtx); flushErr != nil {
			logger.Warn().Err(flushErr).Msg("final sync flush failed; changes remain saved locally")
		}
		cancel()
	}

	if err != nil {
		return err
	}
	logger.Info().Msg("shutdown complete")
	return nil
}

package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/example/progress-sync/internal/catalog"
	"github.com/example/progress-sync/internal/clock"
	"github.com/example/progress-sync/internal/config"
	"github.com/example/progress-sync/internal/engine"
	"github.com/example/progress-sync/internal/observability"
)

// app is the state shared by every command: configuration, the opened
// resources and an engine loaded from the local store.
type app struct {
	cfg       config.Config
	logger    zerolog.Logger
	resources *config.Resources
	catalog   *catalog.Catalog
	dates     clock.Zone
	engine    *engine.Engine
}

func openApp(ctx context.Context, opts *RootOptions, logOut io.Writer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger := observability.NewLogger(logOut, cfg.AppName, cfg.DeviceID, level)

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		if cat, err = catalog.Load(cfg.CatalogPath); err != nil {
			return nil, err
		}
	}

	dates, err := clock.LoadZone(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	resources, err := config.NewResources(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize resources: %w", err)
	}

	eng, err := engine.New(ctx, resources.Local, cat, dates, logger, engine.WithDeviceID(cfg.DeviceID))
	if err != nil {
		_ = resources.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		resources: resources,
		catalog:   cat,
		dates:     dates,
		engine:    eng,
	}, nil
}

func (a *app) close() {
	if err := a.resources.Close(); err != nil {
		a.logger.Error().Err(err).Msg("close resources")
	}
}

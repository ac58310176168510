package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/stakingledger/internal/domain"
	"github.com/alanyoungcy/stakingledger/internal/pipeline"
	"github.com/alanyoungcy/stakingledger/internal/server"
	"github.com/alanyoungcy/stakingledger/internal/server/handler"
	"github.com/alanyoungcy/stakingledger/internal/server/ws"
	"github.com/alanyoungcy/stakingledger/internal/service"
)

// shutdownTimeout bounds how long in-flight requests get on shutdown.
const shutdownTimeout = 15 * time.Second

// ServerMode serves the HTTP API and the WebSocket event feed.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	return g.Wait()
}

// ArchiveMode runs only the scheduled archiver.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	archiver, err := a.newArchiver(deps)
	if err != nil {
		return err
	}
	return archiver.RunCron(ctx, a.cfg.Archive.Cron)
}

// FullMode serves the API and, when archiving is enabled, runs the
// archiver alongside it.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	var archiver *pipeline.Archiver
	if a.cfg.Archive.Enabled {
		var err error
		if archiver, err = a.newArchiver(deps); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	if archiver != nil {
		g.Go(func() error {
			return archiver.RunCron(ctx, a.cfg.Archive.Cron)
		})
	}
	return g.Wait()
}

// startServer launches the hub, the HTTP listener and a goroutine that
// shuts the listener down once ctx ends.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	startedAt := time.Now().UTC()
	svc := deps.Service

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Channel:   service.ChannelLedger,
		Stream:    service.StreamLedgerEvents,
		Mode:      a.cfg.Mode,
		Operator:  svc.Owner().Hex(),
		StartedAt: startedAt,
	})

	serverDeps := server.Deps{Hub: hub, Limiter: deps.RateLimiter, Metrics: deps.Metrics}

	srv := server.NewServer(
		server.Config{
			Port:             a.cfg.Server.Port,
			CORSOrigins:      a.cfg.Server.CORSOrigins,
			APIKey:           a.cfg.Server.APIKey,
			SignatureMaxSkew: a.cfg.Server.SignatureMaxSkew.Duration,
			RateLimit:        a.cfg.Server.RateLimit,
			RateWindow:       a.cfg.Server.RateWindow.Duration,
		},
		server.Handlers{
			Health:    handler.NewHealthHandler(deps.Checks, a.logger),
			Status:    handler.NewStatusHandler(a.cfg.Mode, startedAt, svc, a.logger),
			Tiers:     handler.NewTierHandler(svc, a.logger),
			Positions: handler.NewPositionHandler(svc, a.logger),
			Events:    handler.NewEventHandler(svc, deps.AuditStore, a.logger),
		},
		serverDeps,
		a.logger,
	)

	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("app: ws hub: %w", err)
		}
		return nil
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// newArchiver builds the scheduled archiver over the configured blob
// archive.
func (a *App) newArchiver(deps *Dependencies) (*pipeline.Archiver, error) {
	if deps.Archiver == nil {
		return nil, fmt.Errorf("app: archiving requires archive.enabled with an s3 bucket")
	}
	return pipeline.NewArchiver(deps.Archiver, deps.Ledger, deps.LockManager, pipeline.ArchiverConfig{
		RetentionDays: a.cfg.Archive.RetentionDays,
		Snapshot:      a.cfg.Archive.Snapshot,
		OnRun: func(res pipeline.RunResult, err error) {
			deps.Metrics.ObserveArchiveRun(domain.ErrorCode(err))
			if err == nil {
				a.logger.Debug("archive run observed", slog.Int64("closed_positions", res.Archived))
			}
		},
	}, nil, a.logger), nil
}

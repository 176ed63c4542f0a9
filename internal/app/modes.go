package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/trendslot/internal/pipeline"
	"github.com/alanyoungcy/trendslot/internal/server"
	"github.com/alanyoungcy/trendslot/internal/server/handler"
)

// shutdownTimeout bounds how long in-flight requests may take once the
// context is cancelled.
const shutdownTimeout = 10 * time.Second

// APIMode serves HTTP only. Sweeps are expected to arrive through the cron
// endpoint.
func (a *App) APIMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting api mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// WorkerMode runs the evaluation sweep and the archive job without an HTTP
// listener.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting worker mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startScheduler(ctx, g, deps); err != nil {
		return fmt.Errorf("worker mode: %w", err)
	}
	return g.Wait()
}

// FullMode runs the HTTP server and the scheduler in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startScheduler(ctx, g, deps); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// startScheduler adds the sweep loop and, when archiving is enabled, the
// archive cron to g. With both disabled it logs and adds nothing.
func (a *App) startScheduler(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	var job *pipeline.ArchiveJob
	if deps.Archiver != nil {
		var err error
		job, err = pipeline.NewArchiveJob(
			deps.Archiver,
			deps.Clock.Location(),
			a.cfg.Archive.RetentionDays,
			a.cfg.Archive.Schedule,
			deps.Notifier,
			a.logger,
		)
		if err != nil {
			return err
		}
	}

	var sweeper pipeline.Sweeper
	if a.cfg.Evaluator.Enabled {
		sweeper = deps.Evaluator
	}
	if sweeper == nil && job == nil {
		a.logger.WarnContext(ctx, "app: evaluator and archive both disabled, scheduler idle")
		return nil
	}

	sched := pipeline.NewScheduler(sweeper, a.cfg.Evaluator.Interval.Duration, job, a.logger)
	g.Go(func() error {
		return sched.Run(ctx)
	})
	return nil
}

// startHTTPServer adds the API server and its graceful shutdown to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		a.logger.WarnContext(ctx, "app: server.enabled is false, HTTP server not started")
		return
	}

	// An untyped nil keeps the handler's disabled-archive check working.
	var archive handler.ArchiveBrowser
	if deps.Archiver != nil {
		archive = deps.Archiver
	}

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(deps.Health, a.logger),
		Predictions: handler.NewPredictionHandler(deps.Predictions, deps.ScoreStore, a.logger),
		Slots:       handler.NewSlotHandler(deps.Slots, a.logger),
		Evaluation:  handler.NewEvaluationHandler(deps.Evaluator, a.logger),
		Admin:       handler.NewAdminHandler(deps.Slots, deps.Assets, deps.AuditStore, archive, a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		AdminKey:    a.cfg.Server.AdminKey,
		CronKey:     a.cfg.Server.CronKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, deps.RateLimiter, deps.Metrics, a.logger)

	if a.cfg.Server.AdminKey == "" {
		a.logger.WarnContext(ctx, "app: server.admin_key is empty, admin routes will reject every request")
	}

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	a.logger.InfoContext(ctx, "app: http server configured", slog.Int("port", a.cfg.Server.Port))
}

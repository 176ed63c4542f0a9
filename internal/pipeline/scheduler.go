// Package pipeline runs the periodic background jobs: the evaluation sweep
// and the prediction archive.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/trendslot/internal/service"
)

// Sweeper settles matured predictions.
type Sweeper interface {
	EvaluateExpired(ctx context.Context) (service.SweepReport, error)
}

// Scheduler owns the background loops. It runs them until its context is
// cancelled and returns the first loop failure.
type Scheduler struct {
	sweeper       Sweeper
	sweepInterval time.Duration
	archive       *ArchiveJob
	logger        *slog.Logger
}

// NewScheduler creates a Scheduler. A nil sweeper or archive disables that
// loop.
func NewScheduler(sweeper Sweeper, sweepInterval time.Duration, archive *ArchiveJob, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		sweeper:       sweeper,
		sweepInterval: sweepInterval,
		archive:       archive,
		logger:        logger.With(slog.String("component", "scheduler")),
	}
}

// Run starts the loops and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scheduler: starting",
		slog.Bool("sweep", s.sweeper != nil),
		slog.Duration("sweep_interval", s.sweepInterval),
		slog.Bool("archive", s.archive != nil),
	)

	g, ctx := errgroup.WithContext(ctx)

	if s.sweeper != nil {
		g.Go(func() error {
			err := s.runSweepLoop(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("sweep loop: %w", err)
		})
	}
	if s.archive != nil {
		g.Go(func() error {
			err := s.archive.RunCron(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archive loop: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Error("scheduler: stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("scheduler: stopped")
	return nil
}

// runSweepLoop sweeps once immediately and then on every tick. A failed
// sweep is logged and retried on the next tick.
func (s *Scheduler) runSweepLoop(ctx context.Context) error {
	if s.sweepInterval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	s.sweepOnce(ctx)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Scheduler) sweepOnce(ctx context.Context) {
	report, err := s.sweeper.EvaluateExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "scheduler: sweep failed", slog.String("error", err.Error()))
		}
		return
	}
	if report.Skipped {
		s.logger.DebugContext(ctx, "scheduler: sweep skipped, lock held elsewhere")
	}
}

package usecase

import (
	"context"
	"log/slog"
	"time"

	"TubeArticles/internal/ports"
)

// Reconciler converges running monitors to the stored intent.
type Reconciler interface {
	Reconcile(ctx context.Context) error
}

// Scheduler wires the cron driver with periodic reconciliation.
type Scheduler struct {
	driver     ports.Scheduler
	reconciler Reconciler
	logger     *slog.Logger
}

// NewScheduler returns a helper to start/stop the recurring job.
func NewScheduler(driver ports.Scheduler, reconciler Reconciler, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, reconciler: reconciler, logger: logger.With("component", "scheduler")}
}

// Start registers reconciliation with the provided driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.reconciler == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if err := s.reconciler.Reconcile(ctx); err != nil {
			s.logger.Warn("reconcile failed", "trigger", trigger, "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

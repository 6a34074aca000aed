package scheduler

import (
	"context"
	"log/slog"
	"time"

	"stock_sentiment/internal/domain"
)

// Collector defines the operations a scheduled run performs.
type Collector interface {
	CollectAll(ctx context.Context) (*domain.CollectStats, error)
	CleanupOld(ctx context.Context) (int64, error)
}

type Scheduler struct {
	collector  Collector
	interval   time.Duration
	runTimeout time.Duration
	logger     *slog.Logger
}

func NewScheduler(collector Collector, interval, runTimeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		collector:  collector,
		interval:   interval,
		runTimeout: runTimeout,
		logger:     logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "run_timeout", s.runTimeout)

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	if _, err := s.collector.CollectAll(runCtx); err != nil {
		s.logger.Error("collection run failed", "error", err)
	}

	if _, err := s.collector.CleanupOld(runCtx); err != nil {
		s.logger.Error("cleanup failed", "error", err)
	}
}

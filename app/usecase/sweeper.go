package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// OrphanStore removes request files older than a given age.
type OrphanStore interface {
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)
}

// Sweeper periodically removes request files that survived their request,
// e.g. after a crash. Requests still clean up synchronously.
type Sweeper struct {
	store    OrphanStore
	schedule string
	maxAge   time.Duration
	logger   *slog.Logger

	cron *cron.Cron
}

func NewSweeper(store OrphanStore, schedule string, maxAge time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		schedule: schedule,
		maxAge:   maxAge,
		logger:   logger,
	}
}

func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule sweeper %q: %w", s.schedule, err)
	}

	s.logger.Info("sweeper started", "schedule", s.schedule, "max_age", s.maxAge)
	s.RunOnce(ctx)
	s.cron.Start()
	return nil
}

func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("sweeper stopped")
}

func (s *Sweeper) RunOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	removed, err := s.store.Sweep(ctx, s.maxAge)
	if err != nil {
		s.logger.Warn("sweep failed", "err", err)
	}
	if removed > 0 {
		s.logger.Info("removed orphaned request files", "count", removed)
	}
	return removed
}

package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper permanently deletes terminal jobs older than a retention window on a cron schedule.
type Sweeper struct {
	store  *Store
	ttl    time.Duration
	cron   *cron.Cron
	logger *slog.Logger
	now    func() time.Time
}

// NewSweeper parses a standard five-field cron expression or a descriptor such as @hourly.
func NewSweeper(st *Store, schedule string, ttl time.Duration, logger *slog.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("retention ttl must be positive, got %s", ttl)
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s := &Sweeper{
		store:  st,
		ttl:    ttl,
		cron:   cron.New(cron.WithParser(parser)),
		logger: logger,
		now:    time.Now,
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.Sweep(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.logger.Info("store.sweeper.started", "ttl", s.ttl.String())
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep or ctx.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("store.sweeper.stopped")
	case <-ctx.Done():
		s.logger.Warn("store.sweeper.stop.interrupted")
	}
}

// Sweep runs one retention pass and returns how many jobs were removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	start := time.Now()
	cutoff := s.now().Add(-s.ttl)
	n, err := s.store.PurgeBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("store.sweep.failed", "purged", n, "error", err)
		return n
	}
	s.logger.Info("store.sweep.done", "purged", n, "cutoff", cutoff, "elapsed_ms", time.Since(start).Milliseconds())
	return n
}

// Package sweeper runs the periodic expiry sweep for the in-memory backend.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/artifactstore/internal/storage"
)

// defaultInterval bounds how stale an expired entry may linger before the
// sweep reclaims its bytes. Reads already expire lazily.
const defaultInterval = time.Minute

// Sweeper periodically evicts expired entries from a memory backend and logs
// the per-segment counters.
type Sweeper struct {
	scheduler gocron.Scheduler
	backend   *storage.Memory
	interval  time.Duration
}

// New creates a sweeper for the given memory backend.
func New(backend *storage.Memory, interval time.Duration) (*Sweeper, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Sweeper{
		scheduler: s,
		backend:   backend,
		interval:  interval,
	}, nil
}

// Start schedules the sweep job and begins the scheduler.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.sweep),
		gocron.WithName("memory-sweep"),
	)
	if err != nil {
		return fmt.Errorf("failed to create sweep job: %w", err)
	}
	slog.Info("Starting cache sweeper", slog.Duration("interval", s.interval))
	s.scheduler.Start()
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Sweeper) Stop(ctx context.Context) error {
	slog.Info("Stopping cache sweeper")
	return s.scheduler.Shutdown()
}

// sweep is called by gocron on each tick.
func (s *Sweeper) sweep() {
	evicted := s.backend.Sweep()
	if evicted == 0 {
		return
	}
	slog.Debug("Swept expired cache entries", slog.Int("evicted", evicted))
}

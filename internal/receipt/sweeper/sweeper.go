// Package sweeper runs receipt retention on a cron schedule.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const sweepTimeout = 5 * time.Minute

// Cleaner deletes expired receipts. The receipt service implements it.
type Cleaner interface {
	Sweep(ctx context.Context) (int64, error)
}

// Sweeper schedules retention sweeps. Schedules use the standard five-field
// cron syntax or descriptors like @hourly.
type Sweeper struct {
	cleaner  Cleaner
	schedule string
	logger   *slog.Logger
	cron     *cron.Cron
}

func New(cleaner Cleaner, schedule string, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		cleaner:  cleaner,
		schedule: schedule,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start validates the schedule and begins sweeping. Returns an error when
// the schedule does not parse; sweeps themselves only log failures.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		return fmt.Errorf("parse sweep schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.logger.Info("receipt sweeper started", "schedule", s.schedule)
	return nil
}

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	deleted, err := s.cleaner.Sweep(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "receipt sweep failed", "error", err)
		return
	}
	s.logger.InfoContext(ctx, "receipt sweep complete", "deleted", deleted)
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler fires the daily run from a cron expression evaluated in the
// window zone
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	logger *slog.Logger
}

// NewScheduler creates a stopped scheduler
func NewScheduler(runner *Runner, loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		runner: runner,
		logger: logger,
	}
}

// Start adds the job and starts the cron loop
func (s *Scheduler) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.trigger); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.cron.Start()
	s.logger.Info("cron job started", "schedule", schedule)
	return nil
}

func (s *Scheduler) trigger() {
	s.logger.Info("cron triggered: starting daily run")
	if _, err := s.runner.Run(context.Background(), ""); err != nil {
		if errors.Is(err, ErrBusy) {
			s.logger.Warn("cron skipped: a run is in progress", "state", s.runner.Manager().GetState())
			return
		}
		s.logger.Error("cron run failed", "error", err)
	}
}

// Next returns the next scheduled fire time, or zero if nothing is scheduled
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop stops the cron loop and waits for a running job to finish or ctx to end
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Package scheduler nudges the operator about tickets that have been open
// for a while, on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// RemindFunc builds the reminder text, or "" when there is nothing to say.
type RemindFunc func(ctx context.Context) (string, error)

// NotifyFunc delivers the reminder to the operator.
type NotifyFunc func(ctx context.Context, text string)

// Scheduler runs the open-ticket reminder job.
type Scheduler struct {
	cron   *cron.Cron
	remind RemindFunc
	notify NotifyFunc
	logger *slog.Logger
}

// New creates a scheduler with a single reminder job on the given cron
// schedule (standard 5-field expression or @every syntax).
func New(schedule string, remind RemindFunc, notify NotifyFunc, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cron:   cron.New(),
		remind: remind,
		notify: notify,
		logger: logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.fire); err != nil {
		return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", schedule, err)
	}
	s.logger.Info("reminder scheduled", "schedule", schedule)
	return s, nil
}

// Start begins the cron loop. Blocks until context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("scheduler started")

	<-ctx.Done()
	s.cron.Stop()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) fire() {
	ctx := context.Background()
	text, err := s.remind(ctx)
	if err != nil {
		s.logger.Error("reminder build failed", "error", err)
		return
	}
	if text == "" {
		return
	}
	s.notify(ctx, text)
}

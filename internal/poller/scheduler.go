package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// runTimeout bounds one scheduled poll run.
const runTimeout = 5 * time.Minute

// Scheduler runs poll runs on a cron schedule. The schedule uses the
// six-field form with a seconds column, e.g. "0 */10 * * * *" for every
// ten minutes.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	logger *slog.Logger
}

// NewScheduler creates a Scheduler for the given cron schedule.
func NewScheduler(schedule string, runner *Runner, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC))
	s := &Scheduler{cron: c, runner: runner, logger: logger}

	if _, err := c.AddFunc(schedule, s.run); err != nil {
		return nil, err
	}
	return s, nil
}

// run executes one scheduled poll with a bounded context.
func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if _, err := s.runner.RunOnce(ctx); err != nil {
		s.logger.Error("scheduled poll run failed", "error", err)
	}
}

// Start begins scheduling poll runs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for any in-flight run to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

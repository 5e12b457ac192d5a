// Package jobs runs the periodic work of the ledger on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Scheduler struct {
	c   *cron.Cron
	ctx context.Context
	log *zap.Logger
}

// NewScheduler returns a scheduler whose jobs receive ctx. Cancel ctx and call
// Stop to shut down.
func NewScheduler(ctx context.Context, log *zap.Logger) *Scheduler {
	return &Scheduler{
		c:   cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger))),
		ctx: ctx,
		log: log,
	}
}

// Add registers fn under name with a standard cron expression or a descriptor such
// as @hourly or "@every 10m".
func (s *Scheduler) Add(name, schedule string, fn func(ctx context.Context)) error {
	_, err := s.c.AddFunc(schedule, func() {
		start := time.Now()
		fn(s.ctx)
		s.log.Debug("job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
	})
	if err != nil {
		return fmt.Errorf("register job %s: %w", name, err)
	}
	s.log.Info("job registered", zap.String("job", name), zap.String("schedule", schedule))
	return nil
}

func (s *Scheduler) Start() { s.c.Start() }

// Stop waits for running jobs or until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("jobs still running at shutdown")
	}
}

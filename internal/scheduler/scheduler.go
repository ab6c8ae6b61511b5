// Package scheduler runs the pipeline periodically in daemon mode. The
// cron job chain serializes runs so a slow fetch can never overlap the
// next tick; the one-shot mode stays the default and leaves scheduling to
// an external cron/CI trigger.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"seminarcal/internal/config"
	appLog "seminarcal/internal/log"
	"seminarcal/internal/pipeline"
)

type Scheduler struct {
	cron *cron.Cron
	cfg  *config.Config
	deps pipeline.Deps
}

func New(cfg *config.Config, deps pipeline.Deps) (*Scheduler, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return &Scheduler{cron: c, cfg: cfg, deps: deps}, nil
}

// Start registers the pipeline job and blocks until ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if _, err := pipeline.Run(ctx, s.cfg, s.deps, false); err != nil {
			appLog.Error("scheduled run failed", err, "stage", pipeline.StageOf(err))
		}
	}); err != nil {
		return fmt.Errorf("add pipeline job: %w", err)
	}

	s.cron.Start()
	appLog.Info("scheduler started", "schedule", s.cfg.Schedule, "tz", s.cfg.Timezone)

	<-ctx.Done()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	appLog.Info("scheduler stopped")
	return nil
}

package cmd

import (
	"context"
	"time"

	"github.com/jimezsa/jobscrape/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type ScheduleCmd struct {
	RunOptions
	Cron string `help:"Cron spec (5 fields or a descriptor such as @every 6h)." default:"@every 6h" env:"JOBSCRAPE_CRON"`
	Now  bool   `help:"Also run once right away."`
}

// Run blocks until the context is cancelled. A run still in progress when
// the next tick fires makes that tick a no-op.
func (s *ScheduleCmd) Run(c *Context) error {
	if _, err := resolvePlan(c, s.RunOptions); err != nil {
		return err
	}

	schedule, err := cron.ParseStandard(s.Cron)
	if err != nil {
		return configErrorf("invalid cron spec %q: %v", s.Cron, err)
	}

	ctx := c.runContext()
	logger := cronLogger{logger: c.Logger.With().Str("component", "scheduler").Logger()}
	scheduler := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	id := scheduler.Schedule(schedule, cron.FuncJob(func() {
		s.tick(ctx, c)
	}))

	if s.Now {
		go scheduler.Entry(id).WrappedJob.Run()
	}
	scheduler.Start()
	c.UI.Infof("Scheduled %q, next run at %s", s.Cron, schedule.Next(time.Now()).Format(time.RFC3339))

	<-ctx.Done()
	c.UI.Infof("Stopping scheduler")
	<-scheduler.Stop().Done()
	return nil
}

func (s *ScheduleCmd) tick(ctx context.Context, c *Context) {
	if ctx.Err() != nil {
		return
	}
	stats, err := runOnce(ctx, c, s.RunOptions)
	logScheduledRun(c.Logger, stats, err)
}

func logScheduledRun(logger zerolog.Logger, stats *models.Statistics, err error) {
	event := logger.Info()
	if err != nil {
		event = logger.Error().Err(err)
	}
	if stats != nil {
		event = event.
			Str("run_id", stats.RunID).
			Int("successful_roles", stats.SuccessfulRoles).
			Int("failed_roles", stats.FailedRoles).
			Int("records", stats.TotalRecords)
	}
	event.Msg("scheduled run finished")
}

type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

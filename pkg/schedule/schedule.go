package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// zapCronLogger routes cron's internal logging to zap. Routine scheduling
// messages are demoted to debug.
type zapCronLogger struct {
	l *zap.SugaredLogger
}

func (z zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		z.l.Warnw("previous tick still running, skipping", keysAndValues...)
		return
	}
	z.l.Debugw(msg, keysAndValues...)
}

func (z zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	z.l.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Scheduler runs a job at a fixed interval. A tick that is still running when
// the next one is due causes that next one to be skipped.
type Scheduler struct {
	c        *cron.Cron
	job      cron.Job
	interval time.Duration
	logger   *zap.Logger
}

func New(interval time.Duration, job func(), logger *zap.Logger) (*Scheduler, error) {
	if interval < time.Second {
		return nil, fmt.Errorf("interval %s is below one second", interval)
	}
	cl := zapCronLogger{l: logger.Sugar()}
	chain := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))
	wrapped := chain.Then(cron.FuncJob(job))

	c := cron.New(cron.WithLogger(cl))
	if _, err := c.AddJob(fmt.Sprintf("@every %s", interval), wrapped); err != nil {
		return nil, fmt.Errorf("schedule job: %w", err)
	}
	return &Scheduler{c: c, job: wrapped, interval: interval, logger: logger}, nil
}

// Start runs one tick synchronously, then starts the periodic schedule.
func (s *Scheduler) Start() {
	s.job.Run()
	s.c.Start()
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
}

// Stop halts the schedule and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
	s.logger.Info("scheduler stopped")
}

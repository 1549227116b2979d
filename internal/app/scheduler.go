package app

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper prunes in-memory throttling state that is no longer needed.
type Sweeper interface {
	Sweep() int
}

// Scheduler runs periodic maintenance jobs.
type Scheduler struct {
	cron     *cron.Cron
	sweepers []Sweeper
	schedule string
	logger   *zap.Logger
}

func NewScheduler(schedule string, logger *zap.Logger, sweepers ...Sweeper) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:     c,
		sweepers: sweepers,
		schedule: schedule,
		logger:   logger,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if len(s.sweepers) > 0 {
		if _, err := s.cron.AddFunc(s.schedule, s.SweepAttempts); err != nil {
			s.logger.Error("failed to schedule attempt sweep job", zap.String("schedule", s.schedule), zap.Error(err))
			return err
		}
		s.logger.Info("scheduled attempt sweep job", zap.String("schedule", s.schedule))
	}
	s.cron.Start()
	return nil
}

// SweepAttempts drops expired lockout and idle client entries.
func (s *Scheduler) SweepAttempts() {
	removed := 0
	for _, sweeper := range s.sweepers {
		removed += sweeper.Sweep()
	}
	if removed > 0 {
		s.logger.Info("expired attempt state swept", zap.Int("removed", removed))
	}
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

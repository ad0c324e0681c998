package backup

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/strideworks/stride/pkg/observability"
)

// Scheduler owns the long-lived automatic-backup check. The check runs on a
// coarse hourly cadence plus once shortly after startup, so a backup missed
// while the process was down is caught quickly instead of waiting a full
// interval.
type Scheduler struct {
	manager *Manager
	logger  *observability.Logger

	schedule     string
	initialDelay time.Duration

	mu           sync.Mutex
	cron         *cron.Cron
	initialTimer *time.Timer
}

// NewScheduler creates a scheduler for the given manager.
func NewScheduler(manager *Manager, logger *observability.Logger) *Scheduler {
	return &Scheduler{
		manager:      manager,
		logger:       logger.WithField("component", "backup_scheduler"),
		schedule:     "@every 1h",
		initialDelay: 2 * time.Minute,
	}
}

// Start begins the periodic checks. Calling Start on a running scheduler is
// a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, s.check); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.initialTimer = time.AfterFunc(s.initialDelay, s.check)

	s.logger.WithField("schedule", s.schedule).Info("auto-backup scheduler started")
	return nil
}

// Stop cancels the initial check and stops the cron scheduler, waiting for
// any in-flight check to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	timer := s.initialTimer
	s.cron = nil
	s.initialTimer = nil
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if c != nil {
		<-c.Stop().Done()
	}
	s.logger.Info("auto-backup scheduler stopped")
}

func (s *Scheduler) check() {
	ctx := context.Background()
	if !s.manager.ShouldAutoBackup(ctx) {
		return
	}
	s.logger.Info("automatic backup due")
	if err := s.manager.RunAutoBackup(ctx); err != nil {
		s.logger.WithError(err).Error("automatic backup failed")
		return
	}
	s.logger.Info("automatic backup completed")
}

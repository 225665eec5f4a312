package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronService manages scheduled background jobs: the recurring sweeps, the
// per-booking invoice polls and the one-shot expiry checks. Jobs are keyed by id
// so they can be cancelled once their booking settles.
type CronService struct {
	cron   *cron.Cron
	logger *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	intervals map[string]cron.EntryID
	timers    map[string]*time.Timer
	names     map[cron.EntryID]string
}

// NewCronService creates a new CronService. Overlapping runs of the same job are skipped.
func NewCronService(logger *logrus.Logger) *CronService {
	cronLogger := cron.PrintfLogger(logger)
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))

	ctx, cancel := context.WithCancel(context.Background())
	return &CronService{
		cron:      c,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		intervals: make(map[string]cron.EntryID),
		timers:    make(map[string]*time.Timer),
		names:     make(map[cron.EntryID]string),
	}
}

// Start starts the cron scheduler
func (s *CronService) Start() {
	s.cron.Start()
	s.logger.Info("Cron service started")
}

// Stop stops all jobs and waits for running ones to finish
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	s.cancel()

	s.mu.Lock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("Cron service stopped")
}

// AddSchedule registers a job on a cron spec such as "@every 1m" or "*/5 * * * *"
func (s *CronService) AddSchedule(jobID, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.intervals[jobID]; exists {
		return nil
	}
	entryID, err := s.cron.AddFunc(spec, s.wrap(jobID, job))
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", jobID, err)
	}
	s.intervals[jobID] = entryID
	s.names[entryID] = jobID
	s.logger.WithFields(logrus.Fields{"job_id": jobID, "spec": spec}).Info("Scheduled job")
	return nil
}

// ScheduleInterval runs job every period until cancelled. Scheduling an id that
// is already registered is a no-op.
func (s *CronService) ScheduleInterval(jobID string, period time.Duration, job Job) error {
	if period < time.Second {
		return fmt.Errorf("interval for %s must be at least one second", jobID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.intervals[jobID]; exists {
		return nil
	}
	entryID := s.cron.Schedule(cron.Every(period), cron.FuncJob(s.wrap(jobID, job)))
	s.intervals[jobID] = entryID
	s.names[entryID] = jobID
	s.logger.WithFields(logrus.Fields{"job_id": jobID, "period": period}).Debug("Scheduled interval job")
	return nil
}

// ScheduleOnce runs job once after delay. Scheduling an id that is already pending is a no-op.
func (s *CronService) ScheduleOnce(jobID string, delay time.Duration, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return fmt.Errorf("scheduler stopped")
	}
	if _, exists := s.timers[jobID]; exists {
		return nil
	}
	if delay < 0 {
		delay = 0
	}

	run := s.wrap(jobID, job)
	s.timers[jobID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, jobID)
		s.mu.Unlock()
		run()
	})
	s.logger.WithFields(logrus.Fields{"job_id": jobID, "delay": delay}).Debug("Scheduled one-shot job")
	return nil
}

// Cancel removes a job. Returns false when no job had that id.
func (s *CronService) Cancel(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.intervals[jobID]; ok {
		s.cron.Remove(entryID)
		delete(s.intervals, jobID)
		delete(s.names, entryID)
		s.logger.WithField("job_id", jobID).Debug("Cancelled interval job")
		return true
	}
	if timer, ok := s.timers[jobID]; ok {
		timer.Stop()
		delete(s.timers, jobID)
		s.logger.WithField("job_id", jobID).Debug("Cancelled one-shot job")
		return true
	}
	return false
}

// Has reports whether a job with this id is scheduled
func (s *CronService) Has(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, interval := s.intervals[jobID]
	_, once := s.timers[jobID]
	return interval || once
}

func (s *CronService) wrap(jobID string, job Job) func() {
	return func() {
		if s.ctx.Err() != nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				s.logger.WithFields(logrus.Fields{"job_id": jobID, "panic": r}).Error("Job panicked")
			}
		}()
		job(s.ctx)
	}
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"job_id":   s.names[entry.ID],
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	pending := make([]string, 0, len(s.timers))
	for id := range s.timers {
		pending = append(pending, id)
	}

	return map[string]interface{}{
		"running":       s.ctx.Err() == nil,
		"job_count":     len(entries),
		"jobs":          jobs,
		"pending_once":  pending,
		"pending_count": len(pending),
	}
}

package backup

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SchedulerState is the phase of the scheduling loop
type SchedulerState string

const (
	SchedulerIdle      SchedulerState = "IDLE"
	SchedulerDue       SchedulerState = "DUE"
	SchedulerRunning   SchedulerState = "RUNNING"
	SchedulerCompleted SchedulerState = "COMPLETED"
	SchedulerFailed    SchedulerState = "FAILED"
)

// SchedulerStatus is a snapshot of the scheduler for display
type SchedulerStatus struct {
	State     SchedulerState `json:"state" yaml:"state"`
	Enabled   bool           `json:"enabled" yaml:"enabled"`
	NextRun   time.Time      `json:"next_run,omitempty" yaml:"next_run,omitempty"`
	LastRun   time.Time      `json:"last_run,omitempty" yaml:"last_run,omitempty"`
	LastFile  string         `json:"last_file,omitempty" yaml:"last_file,omitempty"`
	LastError string         `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// Scheduler triggers automatic backups. Settings are re-read on every wake so
// frequency and enablement changes apply without a restart.
type Scheduler struct {
	runner   *BackupRunner
	settings *SettingsService
	logger   *BackupLogger
	location *time.Location
	poll     time.Duration
	now      func() time.Time

	mu     sync.Mutex
	status SchedulerStatus

	stop    chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewScheduler creates a scheduler
func NewScheduler(runner *BackupRunner, settings *SettingsService, config SchedulerConfig, logger *BackupLogger) *Scheduler {
	if logger == nil {
		logger = newDefaultBackupLogger(nil)
	}
	poll := config.PollInterval
	if poll <= 0 {
		poll = time.Minute
	}
	return &Scheduler{
		runner:   runner,
		settings: settings,
		logger:   logger,
		location: config.Location(),
		poll:     poll,
		now:      time.Now,
		status:   SchedulerStatus{State: SchedulerIdle},
	}
}

// Start runs the STARTUP backup when automatic backups are enabled and then
// starts the loop in the background. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.stop = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.startup(ctx)
		s.loop(ctx)
	}()
}

// Stop ends the loop and waits for a running cycle to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
}

// Status returns the current scheduler status
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scheduler) startup(ctx context.Context) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		s.logger.Entry(ctx).WithField("error", err.Error()).Error("Failed to read backup settings at startup")
		return
	}
	if !settings.AutoBackupEnabled {
		return
	}
	s.runCycle(ctx, KindStartup, "Startup backup")
}

func (s *Scheduler) loop(ctx context.Context) {
	base := s.now()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-timer.C:
		}

		var wait time.Duration
		base, wait = s.step(ctx, base)
		timer.Reset(wait)
	}
}

// step performs one wake of the loop. base is the time the next tick is
// computed from; it moves forward only after a cycle ran or while disabled.
func (s *Scheduler) step(ctx context.Context, base time.Time) (time.Time, time.Duration) {
	now := s.now()

	settings, err := s.settings.Get(ctx)
	if err != nil {
		s.logger.Entry(ctx).WithField("error", err.Error()).Error("Failed to read backup settings")
		return base, s.poll
	}
	if !settings.AutoBackupEnabled {
		s.setIdle(false, time.Time{})
		return now, s.poll
	}

	next, err := NextRun(settings, base, s.location)
	if err != nil {
		s.logger.Entry(ctx).WithField("error", err.Error()).Error("Invalid backup schedule")
		return base, s.poll
	}

	if now.Before(next) {
		s.setIdle(true, next)
		wait := next.Sub(now)
		if wait > s.poll {
			wait = s.poll
		}
		return base, wait
	}

	s.setState(SchedulerDue)
	s.runCycle(ctx, KindScheduled, "Scheduled backup")
	return s.now(), 0
}

func (s *Scheduler) runCycle(ctx context.Context, kind Kind, description string) {
	s.setState(SchedulerRunning)
	result, err := s.runner.RunBackup(ctx, kind, description)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastRun = s.now()
	if err != nil {
		s.status.State = SchedulerFailed
		s.status.LastError = err.Error()
		s.status.LastFile = ""
		if IsOperationInProgressError(err) {
			s.logger.Entry(ctx).WithField("kind", string(kind)).Warn("Skipped backup cycle, another operation holds the lock")
		}
		return
	}
	s.status.State = SchedulerCompleted
	s.status.LastError = ""
	s.status.LastFile = result.FileName

	s.logger.Entry(ctx).WithFields(logrus.Fields{
		"kind":      string(kind),
		"file_name": result.FileName,
	}).Debug("Backup cycle finished")
}

func (s *Scheduler) setState(state SchedulerState) {
	s.mu.Lock()
	s.status.State = state
	s.mu.Unlock()
}

func (s *Scheduler) setIdle(enabled bool, next time.Time) {
	s.mu.Lock()
	s.status.State = SchedulerIdle
	s.status.Enabled = enabled
	s.status.NextRun = next
	s.mu.Unlock()
}

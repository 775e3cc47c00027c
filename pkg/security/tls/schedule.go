package tls

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ReloadScheduler reloads credentials on a cron schedule. It complements the
// credential watcher on filesystems that do not deliver change events, such
// as some network mounts.
type ReloadScheduler struct {
	schedule string
	reload   func() error
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
	stop     chan struct{}
}

// NewReloadScheduler creates a scheduler that calls reload on schedule.
func NewReloadScheduler(schedule string, reload func() error, logger *slog.Logger) *ReloadScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReloadScheduler{
		schedule: schedule,
		reload:   reload,
		cron:     cron.New(),
		logger:   logger.With("component", "reload_scheduler"),
	}
}

// Start registers the job and starts the cron runner. Cancelling ctx stops
// the scheduler.
//
// Common cron expressions:
//   - "*/15 * * * *" - Every 15 minutes
//   - "0 * * * *"    - Hourly
//   - "@every 10m"   - Every 10 minutes
func (s *ReloadScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("reload scheduler already running")
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, s.runReload); err != nil {
		return fmt.Errorf("failed to schedule reload: %w", err)
	}

	s.cron.Start()
	s.running = true
	stop := make(chan struct{})
	s.stop = stop

	s.logger.Info("Reload scheduler started", "schedule", s.schedule)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stop:
		}
	}()

	return nil
}

func (s *ReloadScheduler) runReload() {
	s.logger.Debug("Starting scheduled credential reload")

	if err := s.reload(); err != nil {
		s.logger.Warn("Scheduled credential reload failed", "error", err)
		return
	}

	s.logger.Debug("Scheduled credential reload completed")
}

// Stop stops the scheduler and waits for a running reload to complete.
func (s *ReloadScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		close(s.stop)
		s.running = false
		s.logger.Info("Reload scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *ReloadScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the next scheduled reload time.
func (s *ReloadScheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 || !s.running {
		return nil
	}

	next := entries[0].Next
	return &next
}

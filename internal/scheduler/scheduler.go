// Package scheduler provides cron-based scheduling of periodic catch-up
// sync activations for configured connections.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/maildex/maildex/internal/config"
)

// SyncFunc is the callback invoked when a scheduled activation should run.
// It receives the connection id and should trigger a sync pass.
type SyncFunc func(ctx context.Context, connectionID string) error

// ConnectionStatus represents the sync status of a scheduled connection.
type ConnectionStatus struct {
	ConnectionID string    `json:"connection_id"`
	Running      bool      `json:"running"`
	LastRun      time.Time `json:"last_run,omitempty"`
	NextRun      time.Time `json:"next_run"`
	Schedule     string    `json:"schedule"`
	LastError    string    `json:"last_error,omitempty"`
}

// Scheduler manages cron-based sync activation scheduling.
type Scheduler struct {
	cron     *cron.Cron
	syncFunc SyncFunc
	logger   *slog.Logger

	mu        sync.RWMutex
	jobs      map[string]cron.EntryID
	schedules map[string]string
	running   map[string]bool
	lastRun   map[string]time.Time
	lastErr   map[string]error

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// New creates a new Scheduler with the given sync callback.
func New(syncFunc SyncFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
		))),
		syncFunc:  syncFunc,
		logger:    slog.Default(),
		jobs:      make(map[string]cron.EntryID),
		schedules: make(map[string]string),
		running:   make(map[string]bool),
		lastRun:   make(map[string]time.Time),
		lastErr:   make(map[string]error),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// AddConnection schedules activations for a connection using the given cron
// expression. Returns an error if the expression is invalid.
func (s *Scheduler) AddConnection(connectionID, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[connectionID]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, connectionID)
		delete(s.schedules, connectionID)
	}

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		s.mu.Lock()
		if s.stopped || s.running[connectionID] {
			s.mu.Unlock()
			return
		}
		s.running[connectionID] = true
		s.wg.Add(1)
		s.mu.Unlock()
		s.runSync(connectionID)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.jobs[connectionID] = entryID
	s.schedules[connectionID] = cronExpr
	s.logger.Info("scheduled sync",
		"connection", connectionID,
		"schedule", cronExpr,
		"next_run", s.cron.Entry(entryID).Next)

	return nil
}

// AddConnectionsFromConfig adds all enabled connections from the config.
// Returns the number scheduled and any errors encountered.
func (s *Scheduler) AddConnectionsFromConfig(cfg *config.Config) (int, []error) {
	var errs []error
	scheduled := 0

	for _, conn := range cfg.ScheduledConnections() {
		if err := s.AddConnection(conn.ID, conn.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", conn.ID, err))
		} else {
			scheduled++
		}
	}

	return scheduled, errs
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop gracefully stops the scheduler, cancels running activations, and
// waits for them to finish. Returns a context that is done when all work
// completes.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-done
		cancel()
	}()
	return ctx
}

// runSync executes an activation for a connection. The caller must have
// already called wg.Add(1) and set running[connectionID] = true.
func (s *Scheduler) runSync(connectionID string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running[connectionID] = false
		s.mu.Unlock()
	}()

	s.logger.Info("starting scheduled sync", "connection", connectionID)
	start := time.Now()

	err := s.syncFunc(s.ctx, connectionID)

	s.mu.Lock()
	if err != nil {
		s.lastErr[connectionID] = err
		s.logger.Error("scheduled sync failed",
			"connection", connectionID,
			"duration", time.Since(start),
			"error", err)
	} else {
		s.lastRun[connectionID] = time.Now()
		s.lastErr[connectionID] = nil
		s.logger.Info("scheduled sync completed",
			"connection", connectionID,
			"duration", time.Since(start))
	}
	s.mu.Unlock()
}

// TriggerSync manually triggers an activation outside the schedule.
func (s *Scheduler) TriggerSync(connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}
	if _, exists := s.jobs[connectionID]; !exists {
		return fmt.Errorf("connection %s is not scheduled", connectionID)
	}
	if s.running[connectionID] {
		return fmt.Errorf("sync already running for %s", connectionID)
	}

	s.running[connectionID] = true
	s.wg.Add(1)
	go s.runSync(connectionID)
	return nil
}

// Status returns the current status of all scheduled connections.
func (s *Scheduler) Status() []ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var statuses []ConnectionStatus
	for connID, entryID := range s.jobs {
		entry := s.cron.Entry(entryID)
		status := ConnectionStatus{
			ConnectionID: connID,
			Running:      s.running[connID],
			LastRun:      s.lastRun[connID],
			NextRun:      entry.Next,
			Schedule:     s.schedules[connID],
		}
		if err := s.lastErr[connID]; err != nil {
			status.LastError = err.Error()
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// ValidateCronExpr validates a cron expression without scheduling anything.
func ValidateCronExpr(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

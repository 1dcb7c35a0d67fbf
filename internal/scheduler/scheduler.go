// Package scheduler implements the Event Scheduler: durable one-shot
// reminders that fire a caller-supplied callback at (or shortly after) a
// target instant, surviving process restarts.
//
// The callback signature is opaque to this package; the caller (session
// glue) decides what firing a reminder means. The scheduler never calls
// back into the orchestration graph directly.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/discord-agent/orchestrator/pkg/models"
)

// FireFunc is invoked when a reminder's fire_at instant arrives. A non-nil
// error is treated as transient and retried with backoff up to
// Scheduler's MaxRetryAttempts; after that the reminder is dropped and
// logged.
type FireFunc func(ctx context.Context, reminder models.ReminderDetails) error

// SchedulerError wraps a Schedule failure with the taxonomy kind surfaced
// to C10 (session glue), e.g. QuotaExceeded.
type SchedulerError struct {
	Kind  models.ErrorKind
	Cause error
}

func (e *SchedulerError) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Cause.Error()
	}
	return string(e.Kind)
}

func (e *SchedulerError) Unwrap() error { return e.Cause }

type entry struct {
	models.ReminderDetails
	firing      bool
	retryCount  int
	nextAttempt time.Time
}

func (e *entry) due(now time.Time) bool {
	if e.firing {
		return false
	}
	if !e.nextAttempt.IsZero() {
		return !now.Before(e.nextAttempt)
	}
	return !now.Before(e.FireAt)
}

// Scheduler runs a tick loop that fires due reminders at most once each,
// persisting state to Store so a restart does not lose or re-fire them.
type Scheduler struct {
	fire   FireFunc
	store  Store
	logger *log.Logger
	now    func() time.Time

	tickInterval     time.Duration
	maxPerUser       int
	graceWindow      time.Duration
	maxRetryAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	byUser  map[string]int
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Option configures optional Scheduler collaborators.
type Option func(*Scheduler)

// WithLogger overrides the default stderr logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNow overrides the clock, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval overrides the tick loop's poll interval. Default: 1s.
func WithTickInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.tickInterval = interval
		}
	}
}

// WithStore installs a durable Store. Without one, reminders are
// in-memory only and do not survive a restart.
func WithStore(store Store) Option {
	return func(s *Scheduler) {
		if store != nil {
			s.store = store
		}
	}
}

// WithRetryBackoff overrides the exponential-with-cap backoff parameters
// used between failed fire attempts.
func WithRetryBackoff(base, max time.Duration) Option {
	return func(s *Scheduler) {
		if base > 0 {
			s.retryBaseDelay = base
		}
		if max > 0 {
			s.retryMaxDelay = max
		}
	}
}

// Params bundles the reminder-policy knobs (spec §4.6 / config.ReminderConfig).
type Params struct {
	MaxRemindersPerUser int
	GraceWindow         time.Duration
	MaxRetryAttempts    int
}

// NewScheduler constructs a Scheduler and, if opts installs a Store, loads
// and reconciles any previously persisted reminders (spec §6: events whose
// fire_at has passed the grace window are dropped, the rest kept pending).
func NewScheduler(params Params, fire FireFunc, opts ...Option) (*Scheduler, error) {
	if fire == nil {
		return nil, errors.New("scheduler: fire callback is required")
	}
	s := &Scheduler{
		fire:             fire,
		logger:           log.Default(),
		now:              time.Now,
		tickInterval:     time.Second,
		maxPerUser:       params.MaxRemindersPerUser,
		graceWindow:      params.GraceWindow,
		maxRetryAttempts: params.MaxRetryAttempts,
		retryBaseDelay:   5 * time.Second,
		retryMaxDelay:    5 * time.Minute,
		entries:          make(map[string]*entry),
		byUser:           make(map[string]int),
		stopCh:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxPerUser <= 0 {
		s.maxPerUser = 1
	}
	if s.maxRetryAttempts <= 0 {
		s.maxRetryAttempts = 3
	}

	if s.store != nil {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("scheduler: load store: %w", err)
		}
	}
	return s, nil
}

func (s *Scheduler) load() error {
	loaded, err := s.store.Load()
	if err != nil {
		return err
	}
	now := s.now()
	for _, r := range loaded {
		if now.Sub(r.FireAt) > s.graceWindow {
			s.logger.Printf("scheduler: dropping stale reminder %s, fire_at %s past grace window", r.ID, r.FireAt)
			continue
		}
		s.entries[r.ID] = &entry{ReminderDetails: r}
		s.byUser[r.UserRef]++
	}
	return nil
}

// ErrQuotaExceeded classifies a rejected Schedule call for callers that
// want to check the kind without importing models directly.
var ErrQuotaExceeded = errors.New("scheduler: max_reminders_per_user exceeded")

// Schedule registers a new reminder, enforcing the per-user quota. A
// missing ID is assigned. The reminder is persisted (if a Store is
// configured) before returning.
func (s *Scheduler) Schedule(reminder models.ReminderDetails) (models.ReminderDetails, error) {
	if reminder.ID == "" {
		reminder.ID = uuid.NewString()
	}
	if reminder.CreatedAt.IsZero() {
		reminder.CreatedAt = s.now()
	}

	s.mu.Lock()
	if s.byUser[reminder.UserRef] >= s.maxPerUser {
		s.mu.Unlock()
		return models.ReminderDetails{}, &SchedulerError{Kind: models.ErrorKindQuotaExceeded, Cause: ErrQuotaExceeded}
	}
	s.entries[reminder.ID] = &entry{ReminderDetails: reminder}
	s.byUser[reminder.UserRef]++
	s.mu.Unlock()

	if s.store != nil {
		if err := s.persist(); err != nil {
			s.logger.Printf("scheduler: persist after schedule failed: %v", err)
		}
	}
	return reminder, nil
}

// Cancel removes a pending reminder by id. Returns false if it was not
// found (already fired, or never existed).
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
		s.byUser[e.UserRef]--
	}
	s.mu.Unlock()
	if ok && s.store != nil {
		if err := s.persist(); err != nil {
			s.logger.Printf("scheduler: persist after cancel failed: %v", err)
		}
	}
	return ok
}

// Pending returns a snapshot count of reminders awaiting delivery, for
// diagnostics.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Start begins the tick loop in a background goroutine. Safe to call
// once; subsequent calls are no-ops.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.runDue(ctx)
			}
		}
	}()
}

// Stop halts the tick loop and waits for any in-flight fire to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()
	close(s.stopCh)
	s.wg.Wait()
}

// RunOnce fires every currently-due reminder synchronously, returning the
// count fired. Primarily for tests.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	return s.runDue(ctx)
}

func (s *Scheduler) runDue(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		if e.due(now) {
			e.firing = true
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		s.fireOne(ctx, e, now)
	}
	return len(due)
}

func (s *Scheduler) fireOne(ctx context.Context, e *entry, now time.Time) {
	err := s.fire(ctx, e.ReminderDetails)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.entries, e.ID)
		s.byUser[e.UserRef]--
		if s.store != nil {
			if perr := s.persistLocked(); perr != nil {
				s.logger.Printf("scheduler: persist after fire failed: %v", perr)
			}
		}
		return
	}

	e.retryCount++
	if e.retryCount >= s.maxRetryAttempts {
		s.logger.Printf("scheduler: reminder %s abandoned after %d failed attempts: %v", e.ID, e.retryCount, err)
		delete(s.entries, e.ID)
		s.byUser[e.UserRef]--
	} else {
		s.logger.Printf("scheduler: reminder %s fire attempt %d failed, retrying: %v", e.ID, e.retryCount, err)
		e.firing = false
		e.nextAttempt = now.Add(retryDelay(s.retryBaseDelay, s.retryMaxDelay, e.retryCount))
	}
	if s.store != nil {
		if perr := s.persistLocked(); perr != nil {
			s.logger.Printf("scheduler: persist after failed fire: %v", perr)
		}
	}
}

// persist snapshots all pending reminders and writes them via Store.
func (s *Scheduler) persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *Scheduler) persistLocked() error {
	out := make([]models.ReminderDetails, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.ReminderDetails)
	}
	return s.store.Save(out)
}

// retryDelay is exponential backoff with a cap, matching the event
// scheduler's one fire-callback retry policy.
func retryDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	delay := base
	if attempt > 1 {
		factor := 1 << uint(attempt-1)
		delay = time.Duration(factor) * base
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}

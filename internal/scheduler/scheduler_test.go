package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/discord-agent/orchestrator/pkg/models"
)

func TestSchedule_EnforcesPerUserQuota(t *testing.T) {
	s, err := NewScheduler(Params{MaxRemindersPerUser: 1}, func(ctx context.Context, r models.ReminderDetails) error { return nil })
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	if _, err := s.Schedule(models.ReminderDetails{UserRef: "u1", FireAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("first Schedule() error = %v", err)
	}

	_, err = s.Schedule(models.ReminderDetails{UserRef: "u1", FireAt: time.Now().Add(time.Hour)})
	var serr *SchedulerError
	if !errors.As(err, &serr) || serr.Kind != models.ErrorKindQuotaExceeded {
		t.Fatalf("expected QuotaExceeded, got %v", err)
	}

	if _, err := s.Schedule(models.ReminderDetails{UserRef: "u2", FireAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("different user should not be quota-limited: %v", err)
	}
}

func TestRunOnce_FiresDueReminderExactlyOnce(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	var fired int32
	s, err := NewScheduler(Params{MaxRemindersPerUser: 10}, func(ctx context.Context, r models.ReminderDetails) error {
		atomic.AddInt32(&fired, 1)
		return nil
	}, WithNow(clock))
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	if _, err := s.Schedule(models.ReminderDetails{ID: "r1", UserRef: "u1", FireAt: now.Add(-time.Minute)}); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if _, err := s.Schedule(models.ReminderDetails{ID: "r2", UserRef: "u1", FireAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	if n := s.RunOnce(context.Background()); n != 1 {
		t.Fatalf("RunOnce() fired %d reminders, want 1", n)
	}
	if atomic.LoadInt32(&fired) != 1 {
		t.Fatalf("fire callback invoked %d times, want 1", fired)
	}
	if s.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1 (the not-yet-due reminder)", s.Pending())
	}

	if n := s.RunOnce(context.Background()); n != 0 {
		t.Fatalf("second RunOnce() fired %d, want 0 (already delivered)", n)
	}
}

func TestRunOnce_RetriesTransientFailureThenAbandons(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	var attempts int32
	s, err := NewScheduler(Params{MaxRemindersPerUser: 10, MaxRetryAttempts: 2}, func(ctx context.Context, r models.ReminderDetails) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("transient send failure")
	}, WithNow(clock), WithRetryBackoff(time.Minute, time.Hour))
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	if _, err := s.Schedule(models.ReminderDetails{ID: "r1", UserRef: "u1", FireAt: now}); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	if n := s.RunOnce(context.Background()); n != 1 {
		t.Fatalf("RunOnce() fired %d, want 1", n)
	}
	if s.Pending() != 1 {
		t.Fatal("expected reminder to remain pending for retry")
	}
	if n := s.RunOnce(context.Background()); n != 0 {
		t.Fatalf("retry should not be due before backoff elapses, fired %d", n)
	}

	now = now.Add(2 * time.Hour)
	if n := s.RunOnce(context.Background()); n != 1 {
		t.Fatalf("retry should fire once backoff elapsed, fired %d", n)
	}
	if s.Pending() != 0 {
		t.Fatal("expected reminder to be abandoned after exhausting retries")
	}
	if atomic.LoadInt32(&attempts) != 2 {
		t.Fatalf("fire callback invoked %d times, want 2", attempts)
	}
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "reminders.json"))

	want := []models.ReminderDetails{
		{ID: "r1", Content: "check the oven", UserRef: "u1", ChannelRef: "c1", FireAt: time.Now().Add(time.Hour).Truncate(time.Second), CreatedAt: time.Now().Truncate(time.Second)},
	}
	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "r1" || got[0].Content != "check the oven" {
		t.Fatalf("Load() = %+v, want round-tripped %+v", got, want)
	}
}

func TestFileStore_LoadMissingFileIsEmptyNotError(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "does-not-exist.json"))
	events, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("Load() = %+v, want empty", events)
	}
}

func TestNewScheduler_GraceWindowDropsStaleReminder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reminders.json")
	store := NewFileStore(path)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if err := store.Save([]models.ReminderDetails{
		{ID: "stale", UserRef: "u1", FireAt: now.Add(-time.Hour), CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "fresh", UserRef: "u1", FireAt: now.Add(-time.Second), CreatedAt: now.Add(-time.Minute)},
	}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	s, err := NewScheduler(Params{MaxRemindersPerUser: 10, GraceWindow: time.Minute}, func(ctx context.Context, r models.ReminderDetails) error { return nil },
		WithNow(func() time.Time { return now }), WithStore(store))
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if s.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1 (stale one dropped)", s.Pending())
	}
}

func TestCancel_RemovesPendingReminder(t *testing.T) {
	s, err := NewScheduler(Params{MaxRemindersPerUser: 10}, func(ctx context.Context, r models.ReminderDetails) error { return nil })
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if _, err := s.Schedule(models.ReminderDetails{ID: "r1", UserRef: "u1", FireAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if !s.Cancel("r1") {
		t.Fatal("expected Cancel to find the reminder")
	}
	if s.Cancel("r1") {
		t.Fatal("expected second Cancel to report not found")
	}
	if _, err := s.Schedule(models.ReminderDetails{UserRef: "u1", FireAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("quota should be released after cancel: %v", err)
	}
}

func TestValidateRecurrence(t *testing.T) {
	if err := ValidateRecurrence("0 9 * * MON"); err != nil {
		t.Errorf("ValidateRecurrence() error = %v", err)
	}
	if err := ValidateRecurrence("not a cron expression"); err == nil {
		t.Error("expected error for malformed expression")
	}
}

func TestNextOccurrence_AdvancesPastGivenTime(t *testing.T) {
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) // a Thursday
	next, err := NextOccurrence("0 9 * * MON", after)
	if err != nil {
		t.Fatalf("NextOccurrence() error = %v", err)
	}
	if !next.After(after) {
		t.Fatalf("NextOccurrence() = %v, want after %v", next, after)
	}
	if next.Weekday() != time.Monday || next.Hour() != 9 {
		t.Fatalf("NextOccurrence() = %v, want next Monday 09:00", next)
	}
}

func TestStartStop_RunsTickLoopAndStopsCleanly(t *testing.T) {
	now := time.Now()
	var fired int32
	s, err := NewScheduler(Params{MaxRemindersPerUser: 10}, func(ctx context.Context, r models.ReminderDetails) error {
		atomic.AddInt32(&fired, 1)
		return nil
	}, WithTickInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if _, err := s.Schedule(models.ReminderDetails{ID: "r1", UserRef: "u1", FireAt: now}); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&fired) == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("tick loop never fired the due reminder")
}

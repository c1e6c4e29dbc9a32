package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeCleanupStore struct {
	purgeLogsErr error
	resetErr     error
	purgeSleep   int64
	maintained   int

	purgeLogsCutoff time.Time
	resetDay        time.Time
	sleepCutoff     time.Time
	calls           []string
}

func (f *fakeCleanupStore) PurgeReminderLogs(ctx context.Context, cutoff time.Time) (int64, error) {
	f.calls = append(f.calls, "purge_logs")
	f.purgeLogsCutoff = cutoff
	return 3, f.purgeLogsErr
}

func (f *fakeCleanupStore) ResetStaleQuotas(ctx context.Context, today time.Time) (int64, error) {
	f.calls = append(f.calls, "reset_quotas")
	f.resetDay = today
	return 1, f.resetErr
}

func (f *fakeCleanupStore) PurgeAbandonedSleepSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	f.calls = append(f.calls, "purge_sleep")
	f.sleepCutoff = cutoff
	return f.purgeSleep, nil
}

func (f *fakeCleanupStore) Maintain(ctx context.Context) error {
	f.calls = append(f.calls, "maintain")
	f.maintained++
	return nil
}

func TestRunCleanup_RunsEveryStepWithExpectedCutoffs(t *testing.T) {
	now := time.Date(2025, 3, 10, 4, 0, 0, 0, time.UTC)
	store := &fakeCleanupStore{}
	svc := NewCleanupService(store, time.UTC, zap.NewNop())
	svc.now = func() time.Time { return now }

	if err := svc.RunCleanup(context.Background()); err != nil {
		t.Fatalf("RunCleanup: %v", err)
	}

	if len(store.calls) != 4 {
		t.Fatalf("ran %d steps (%v), want 4", len(store.calls), store.calls)
	}
	if want := now.Add(-reminderLogRetention); !store.purgeLogsCutoff.Equal(want) {
		t.Errorf("log purge cutoff = %v, want %v", store.purgeLogsCutoff, want)
	}
	if want := now.Add(-abandonedSessionAge); !store.sleepCutoff.Equal(want) {
		t.Errorf("sleep purge cutoff = %v, want %v", store.sleepCutoff, want)
	}
	if !store.resetDay.Equal(now) {
		t.Errorf("quota reset day = %v, want %v", store.resetDay, now)
	}
}

func TestRunCleanup_FailingStepDoesNotStopTheRest(t *testing.T) {
	store := &fakeCleanupStore{
		purgeLogsErr: errors.New("locked"),
		resetErr:     errors.New("locked"),
	}
	svc := NewCleanupService(store, time.UTC, zap.NewNop())

	if err := svc.RunCleanup(context.Background()); err != nil {
		t.Fatalf("RunCleanup: %v, want nil even when steps fail", err)
	}
	if len(store.calls) != 4 {
		t.Errorf("ran %d steps (%v), want all 4 despite failures", len(store.calls), store.calls)
	}
	if store.maintained != 1 {
		t.Errorf("maintain ran %d times, want 1", store.maintained)
	}
}

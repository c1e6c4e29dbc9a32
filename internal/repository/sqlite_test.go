package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/babylog-bot/internal/model"
	"github.com/example/babylog-bot/internal/pool"
)

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "babylog.db")
	cfg := pool.Config{MinConns: 1, MaxConns: 2, AcquireTimeout: 5 * time.Second, HealthCheckInterval: time.Hour}
	st, _, err := OpenSQLite(context.Background(), path, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLiteStore_DueRemindersOrderedAndFiltered(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	mk := func(name string, due time.Time, active bool) int64 {
		id, err := st.CreateReminder(ctx, &model.Reminder{
			UserID:        "whatsapp:+628111",
			Name:          name,
			IntervalHours: 3,
			StartTime:     "08:00",
			EndTime:       "20:00",
			Active:        active,
			NextDue:       due,
		})
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		return id
	}
	mk("later", now.Add(-1*time.Hour), true)
	mk("oldest", now.Add(-3*time.Hour), true)
	mk("inactive", now.Add(-5*time.Hour), false)
	mk("future", now.Add(2*time.Hour), true)

	due, err := st.DueReminders(ctx, now)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("want 2 due reminders, got %d", len(due))
	}
	if due[0].Name != "oldest" || due[1].Name != "later" {
		t.Fatalf("wrong order: %s, %s", due[0].Name, due[1].Name)
	}
}

func TestSQLiteStore_RescheduleReminder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	id, err := st.CreateReminder(ctx, &model.Reminder{
		UserID: "whatsapp:+628111", Name: "susu", IntervalHours: 4,
		StartTime: "08:00", EndTime: "20:00", Active: true, NextDue: now.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	next := now.Add(4 * time.Hour)
	if err := st.RescheduleReminder(ctx, id, next, &now); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	due, err := st.DueReminders(ctx, now)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 0 {
		t.Fatal("rescheduled reminder still due")
	}

	var lastSent, nextDue int64
	if err := st.db.QueryRow(`SELECT last_sent, next_due FROM milk_reminders WHERE id = ?`, id).Scan(&lastSent, &nextDue); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if lastSent != now.Unix() || nextDue != next.Unix() {
		t.Fatalf("want last_sent=%d next_due=%d, got %d %d", now.Unix(), next.Unix(), lastSent, nextDue)
	}
}

func TestSQLiteStore_QuotaLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	today := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	user := "whatsapp:+628222"

	rec, err := st.GetQuota(ctx, user, today)
	if err != nil {
		t.Fatalf("get quota: %v", err)
	}
	if rec.Tier != model.TierFree || rec.MessagesToday != 0 {
		t.Fatalf("unexpected fresh record: %+v", rec)
	}

	if err := st.IncrementMessageCount(ctx, user); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := st.IncrementMessageCount(ctx, user); err != nil {
		t.Fatalf("increment: %v", err)
	}
	rec, err = st.GetQuota(ctx, user, today)
	if err != nil {
		t.Fatalf("get quota: %v", err)
	}
	if rec.MessagesToday != 2 {
		t.Fatalf("want 2 messages today, got %d", rec.MessagesToday)
	}

	// A read on the next day resets the counter exactly once.
	tomorrow := today.AddDate(0, 0, 1)
	rec, err = st.GetQuota(ctx, user, tomorrow)
	if err != nil {
		t.Fatalf("get quota: %v", err)
	}
	if rec.MessagesToday != 0 {
		t.Fatalf("counter not reset on new day: %d", rec.MessagesToday)
	}

	if err := st.SetTier(ctx, user, model.TierPremium); err != nil {
		t.Fatalf("set tier: %v", err)
	}
	rec, _ = st.GetQuota(ctx, user, tomorrow)
	if rec.Tier != model.TierPremium {
		t.Fatalf("tier not updated: %v", rec.Tier)
	}
	if err := st.SetTier(ctx, "whatsapp:+000", model.TierPremium); err != ErrNotFound {
		t.Fatalf("want ErrNotFound for unknown user, got %v", err)
	}
}

func TestSQLiteStore_ResetStaleQuotasIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	today := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

	seed := func(user, day string, count int) {
		if _, err := st.db.Exec(
			`INSERT INTO user_tiers (user, tier, messages_today, last_reset) VALUES (?, 'free', ?, ?)`,
			user, count, day); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	seed("a", "2025-03-08", 2)
	seed("b", "2025-03-09", 1)
	seed("c", "2025-03-10", 1)

	n, err := st.ResetStaleQuotas(ctx, today)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n != 2 {
		t.Fatalf("want 2 stale rows reset, got %d", n)
	}
	n, err = st.ResetStaleQuotas(ctx, today)
	if err != nil {
		t.Fatalf("second reset: %v", err)
	}
	if n != 0 {
		t.Fatalf("second sweep should reset nothing, got %d", n)
	}
}

func TestSQLiteStore_PurgeReminderLogsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	cutoff := now.AddDate(0, 0, -30)

	log := func(ts time.Time) {
		if err := st.LogReminderOutcome(ctx, &model.ReminderLog{
			UserID: "whatsapp:+628111", ReminderID: 1, Outcome: model.OutcomeSent, Timestamp: ts,
		}); err != nil {
			t.Fatalf("log: %v", err)
		}
	}
	log(now.AddDate(0, 0, -40))
	log(now.AddDate(0, 0, -31))
	log(now.AddDate(0, 0, -5))

	n, err := st.PurgeReminderLogs(ctx, cutoff)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 2 {
		t.Fatalf("want 2 purged, got %d", n)
	}
	n, err = st.PurgeReminderLogs(ctx, cutoff)
	if err != nil {
		t.Fatalf("second purge: %v", err)
	}
	if n != 0 {
		t.Fatalf("second purge should delete nothing, got %d", n)
	}
}

func TestSQLiteStore_PurgeAbandonedSleepSessions(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	seed := func(complete int, created time.Time) {
		if _, err := st.db.Exec(
			`INSERT INTO sleep_log (user, date, start_time, is_complete, created_at) VALUES (?, ?, ?, ?, ?)`,
			"whatsapp:+628111", created.Format("2006-01-02"), "21:00", complete, created.Unix()); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	seed(0, now.Add(-30*time.Hour)) // abandoned
	seed(0, now.Add(-2*time.Hour))  // still open, too recent
	seed(1, now.Add(-30*time.Hour)) // complete, kept

	n, err := st.PurgeAbandonedSleepSessions(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("want 1 abandoned session purged, got %d", n)
	}
}

func TestSQLiteStore_PingAndMaintain(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	if err := st.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := st.Maintain(ctx); err != nil {
		t.Fatalf("maintain: %v", err)
	}
}

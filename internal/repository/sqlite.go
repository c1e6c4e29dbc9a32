package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/example/babylog-bot/internal/model"
	"github.com/example/babylog-bot/internal/pool"
)

// SQLiteStore implements Store against the embedded sqlite backend.
// Timestamps are stored as unix seconds, dates as "YYYY-MM-DD" strings
// and booleans as integers.
type SQLiteStore struct {
	db   *sql.DB
	pool *pool.Pool
}

var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA synchronous=NORMAL;",
	"PRAGMA busy_timeout=5000;",
	"PRAGMA foreign_keys=ON;",
}

// OpenSQLite opens (or creates) the database file, initializes the
// schema and builds the connection pool on top of it.
func OpenSQLite(ctx context.Context, path string, poolCfg pool.Config, log *zap.Logger) (*SQLiteStore, *pool.Pool, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(poolCfg.MaxConns + 1)
	db.SetConnMaxLifetime(0)

	for _, p := range sqlitePragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("apply pragmas: %w", err)
		}
	}
	if err := initSQLiteSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("init schema: %w", err)
	}

	factory := pool.NewSQLFactory(db, pool.KindEmbedded, sqlitePragmas...)
	p := pool.New(ctx, factory, poolCfg, log)
	return &SQLiteStore{db: db, pool: p}, p, nil
}

func initSQLiteSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS milk_reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user TEXT NOT NULL,
			reminder_name TEXT NOT NULL,
			interval_hours INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			last_sent INTEGER,
			next_due INTEGER NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_milk_reminders_next_due ON milk_reminders(next_due)`,
		`CREATE TABLE IF NOT EXISTS user_tiers (
			user TEXT PRIMARY KEY,
			tier TEXT NOT NULL DEFAULT 'free',
			messages_today INTEGER NOT NULL DEFAULT 0,
			last_reset TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reminder_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user TEXT NOT NULL,
			reminder_id INTEGER,
			outcome TEXT NOT NULL,
			timestamp INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reminder_logs_timestamp ON reminder_logs(timestamp)`,
		`CREATE TABLE IF NOT EXISTS sleep_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user TEXT,
			date TEXT,
			start_time TEXT,
			end_time TEXT,
			duration_minutes REAL,
			is_complete INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Kind() pool.Kind { return pool.KindEmbedded }

func (s *SQLiteStore) DueReminders(ctx context.Context, now time.Time) ([]*model.Reminder, error) {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(c)

	rows, err := c.QueryContext(ctx, `
		SELECT id, user, reminder_name, interval_hours, start_time, end_time, is_active, last_sent, next_due
		FROM milk_reminders
		WHERE is_active = 1 AND next_due <= ?
		ORDER BY next_due ASC`,
		now.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Reminder
	for rows.Next() {
		r, err := scanSQLiteReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanSQLiteReminder(rows *sql.Rows) (*model.Reminder, error) {
	var (
		r        model.Reminder
		active   int
		lastSent sql.NullInt64
		nextDue  int64
	)
	if err := rows.Scan(&r.ID, &r.UserID, &r.Name, &r.IntervalHours, &r.StartTime, &r.EndTime, &active, &lastSent, &nextDue); err != nil {
		return nil, err
	}
	r.Active = active != 0
	if lastSent.Valid {
		t := time.Unix(lastSent.Int64, 0)
		r.LastSent = &t
	}
	r.NextDue = time.Unix(nextDue, 0)
	return &r, nil
}

func (s *SQLiteStore) CreateReminder(ctx context.Context, r *model.Reminder) (int64, error) {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Release(c)

	active := 0
	if r.Active {
		active = 1
	}
	res, err := c.ExecContext(ctx, `
		INSERT INTO milk_reminders (user, reminder_name, interval_hours, start_time, end_time, is_active, next_due)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.UserID, r.Name, r.IntervalHours, r.StartTime, r.EndTime, active, r.NextDue.Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) RescheduleReminder(ctx context.Context, id int64, nextDue time.Time, lastSent *time.Time) error {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(c)

	if lastSent != nil {
		_, err = c.ExecContext(ctx,
			`UPDATE milk_reminders SET next_due = ?, last_sent = ? WHERE id = ?`,
			nextDue.Unix(), lastSent.Unix(), id)
		return err
	}
	_, err = c.ExecContext(ctx,
		`UPDATE milk_reminders SET next_due = ? WHERE id = ?`,
		nextDue.Unix(), id)
	return err
}

func (s *SQLiteStore) GetQuota(ctx context.Context, user string, today time.Time) (*model.QuotaRecord, error) {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(c)

	day := today.Format("2006-01-02")
	var (
		tier      string
		messages  int
		lastReset string
	)
	err = c.QueryRowContext(ctx,
		`SELECT tier, messages_today, last_reset FROM user_tiers WHERE user = ?`, user,
	).Scan(&tier, &messages, &lastReset)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := c.ExecContext(ctx,
			`INSERT INTO user_tiers (user, tier, messages_today, last_reset) VALUES (?, 'free', 0, ?)`,
			user, day); err != nil {
			return nil, err
		}
		return &model.QuotaRecord{UserID: user, Tier: model.TierFree, LastReset: today}, nil
	case err != nil:
		return nil, err
	}

	if lastReset != day {
		if _, err := c.ExecContext(ctx,
			`UPDATE user_tiers SET messages_today = 0, last_reset = ? WHERE user = ?`,
			day, user); err != nil {
			return nil, err
		}
		messages = 0
		lastReset = day
	}
	reset, _ := time.ParseInLocation("2006-01-02", lastReset, today.Location())
	return &model.QuotaRecord{UserID: user, Tier: model.Tier(tier), MessagesToday: messages, LastReset: reset}, nil
}

func (s *SQLiteStore) SetTier(ctx context.Context, user string, tier model.Tier) error {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(c)

	res, err := c.ExecContext(ctx, `UPDATE user_tiers SET tier = ? WHERE user = ?`, string(tier), user)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) IncrementMessageCount(ctx context.Context, user string) error {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(c)

	_, err = c.ExecContext(ctx,
		`UPDATE user_tiers SET messages_today = messages_today + 1 WHERE user = ?`, user)
	return err
}

func (s *SQLiteStore) ResetStaleQuotas(ctx context.Context, today time.Time) (int64, error) {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Release(c)

	day := today.Format("2006-01-02")
	res, err := c.ExecContext(ctx,
		`UPDATE user_tiers SET messages_today = 0, last_reset = ? WHERE last_reset < ?`,
		day, day)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) LogReminderOutcome(ctx context.Context, entry *model.ReminderLog) error {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(c)

	_, err = c.ExecContext(ctx,
		`INSERT INTO reminder_logs (user, reminder_id, outcome, timestamp) VALUES (?, ?, ?, ?)`,
		entry.UserID, entry.ReminderID, entry.Outcome, entry.Timestamp.Unix())
	return err
}

func (s *SQLiteStore) PurgeReminderLogs(ctx context.Context, cutoff time.Time) (int64, error) {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Release(c)

	res, err := c.ExecContext(ctx, `DELETE FROM reminder_logs WHERE timestamp < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) PurgeAbandonedSleepSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Release(c)

	res, err := c.ExecContext(ctx,
		`DELETE FROM sleep_log WHERE is_complete = 0 AND created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Maintain reclaims space and refreshes statistics. VACUUM cannot run
// inside a transaction, so both statements go through a plain session.
func (s *SQLiteStore) Maintain(ctx context.Context) error {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(c)

	if _, err := c.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	if _, err := c.ExecContext(ctx, `ANALYZE`); err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(c)

	var one int
	return c.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
}

func (s *SQLiteStore) Close() error {
	s.pool.Close()
	return s.db.Close()
}

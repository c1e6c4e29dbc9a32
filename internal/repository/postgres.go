package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/example/babylog-bot/internal/model"
	"github.com/example/babylog-bot/internal/pool"
)

// PostgresStore implements Store against the networked backend. The
// user column is user_phone here; the embedded schema calls it user.
type PostgresStore struct {
	db   *sql.DB
	pool *pool.Pool
}

// OpenPostgres connects, verifies reachability, initializes the schema
// and builds the connection pool. An unreachable server fails fast so
// Open can fall back to the embedded backend.
func OpenPostgres(ctx context.Context, connStr string, poolCfg pool.Config, log *zap.Logger) (*PostgresStore, *pool.Pool, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(poolCfg.MaxConns + 1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	if err := initPostgresSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("init schema: %w", err)
	}

	factory := pool.NewSQLFactory(db, pool.KindNetworked)
	p := pool.New(ctx, factory, poolCfg, log)
	return &PostgresStore{db: db, pool: p}, p, nil
}

func initPostgresSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS milk_reminders (
			id SERIAL PRIMARY KEY,
			user_phone TEXT NOT NULL,
			reminder_name TEXT NOT NULL,
			interval_hours INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			last_sent TIMESTAMPTZ,
			next_due TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_milk_reminders_next_due ON milk_reminders(next_due) WHERE is_active = TRUE`,
		`CREATE TABLE IF NOT EXISTS user_tiers (
			user_phone TEXT PRIMARY KEY,
			tier TEXT NOT NULL DEFAULT 'free',
			messages_today INTEGER NOT NULL DEFAULT 0,
			last_reset DATE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reminder_logs (
			id SERIAL PRIMARY KEY,
			user_phone TEXT NOT NULL,
			reminder_id BIGINT,
			outcome TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reminder_logs_timestamp ON reminder_logs(timestamp)`,
		`CREATE TABLE IF NOT EXISTS sleep_log (
			id SERIAL PRIMARY KEY,
			user_phone TEXT,
			date DATE,
			start_time TEXT,
			end_time TEXT,
			duration_minutes REAL,
			is_complete BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Kind() pool.Kind { return pool.KindNetworked }

func (s *PostgresStore) DueReminders(ctx context.Context, now time.Time) ([]*model.Reminder, error) {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(c)

	rows, err := c.QueryContext(ctx, `
		SELECT id, user_phone, reminder_name, interval_hours, start_time, end_time, is_active, last_sent, next_due
		FROM milk_reminders
		WHERE is_active = TRUE AND next_due <= $1
		ORDER BY next_due ASC`,
		now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Reminder
	for rows.Next() {
		var (
			r        model.Reminder
			lastSent sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Name, &r.IntervalHours, &r.StartTime, &r.EndTime, &r.Active, &lastSent, &r.NextDue); err != nil {
			return nil, err
		}
		if lastSent.Valid {
			t := lastSent.Time
			r.LastSent = &t
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateReminder(ctx context.Context, r *model.Reminder) (int64, error) {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Release(c)

	var id int64
	err = c.QueryRowContext(ctx, `
		INSERT INTO milk_reminders (user_phone, reminder_name, interval_hours, start_time, end_time, is_active, next_due)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		r.UserID, r.Name, r.IntervalHours, r.StartTime, r.EndTime, r.Active, r.NextDue,
	).Scan(&id)
	return id, err
}

func (s *PostgresStore) RescheduleReminder(ctx context.Context, id int64, nextDue time.Time, lastSent *time.Time) error {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(c)

	if lastSent != nil {
		_, err = c.ExecContext(ctx,
			`UPDATE milk_reminders SET next_due = $1, last_sent = $2 WHERE id = $3`,
			nextDue, *lastSent, id)
		return err
	}
	_, err = c.ExecContext(ctx,
		`UPDATE milk_reminders SET next_due = $1 WHERE id = $2`,
		nextDue, id)
	return err
}

func (s *PostgresStore) GetQuota(ctx context.Context, user string, today time.Time) (*model.QuotaRecord, error) {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(c)

	day := today.Format("2006-01-02")
	var (
		tier      string
		messages  int
		lastReset time.Time
	)
	err = c.QueryRowContext(ctx,
		`SELECT tier, messages_today, last_reset FROM user_tiers WHERE user_phone = $1`, user,
	).Scan(&tier, &messages, &lastReset)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := c.ExecContext(ctx,
			`INSERT INTO user_tiers (user_phone, tier, messages_today, last_reset) VALUES ($1, 'free', 0, $2)`,
			user, day); err != nil {
			return nil, err
		}
		return &model.QuotaRecord{UserID: user, Tier: model.TierFree, LastReset: today}, nil
	case err != nil:
		return nil, err
	}

	if lastReset.Format("2006-01-02") != day {
		if _, err := c.ExecContext(ctx,
			`UPDATE user_tiers SET messages_today = 0, last_reset = $1 WHERE user_phone = $2`,
			day, user); err != nil {
			return nil, err
		}
		messages = 0
		lastReset = today
	}
	return &model.QuotaRecord{UserID: user, Tier: model.Tier(tier), MessagesToday: messages, LastReset: lastReset}, nil
}

func (s *PostgresStore) SetTier(ctx context.Context, user string, tier model.Tier) error {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(c)

	res, err := c.ExecContext(ctx,
		`UPDATE user_tiers SET tier = $1 WHERE user_phone = $2`, string(tier), user)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) IncrementMessageCount(ctx context.Context, user string) error {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(c)

	_, err = c.ExecContext(ctx,
		`UPDATE user_tiers SET messages_today = messages_today + 1 WHERE user_phone = $1`, user)
	return err
}

func (s *PostgresStore) ResetStaleQuotas(ctx context.Context, today time.Time) (int64, error) {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Release(c)

	day := today.Format("2006-01-02")
	res, err := c.ExecContext(ctx,
		`UPDATE user_tiers SET messages_today = 0, last_reset = $1 WHERE last_reset < $2`,
		day, day)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PostgresStore) LogReminderOutcome(ctx context.Context, entry *model.ReminderLog) error {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(c)

	_, err = c.ExecContext(ctx,
		`INSERT INTO reminder_logs (user_phone, reminder_id, outcome, timestamp) VALUES ($1, $2, $3, $4)`,
		entry.UserID, entry.ReminderID, entry.Outcome, entry.Timestamp)
	return err
}

func (s *PostgresStore) PurgeReminderLogs(ctx context.Context, cutoff time.Time) (int64, error) {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Release(c)

	res, err := c.ExecContext(ctx, `DELETE FROM reminder_logs WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PostgresStore) PurgeAbandonedSleepSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Release(c)

	res, err := c.ExecContext(ctx,
		`DELETE FROM sleep_log WHERE is_complete = FALSE AND created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Maintain refreshes planner statistics. Space is reclaimed by the
// server's autovacuum.
func (s *PostgresStore) Maintain(ctx context.Context) error {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(c)

	_, err = c.ExecContext(ctx, `ANALYZE`)
	return err
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(c)

	var one int
	return c.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return s.db.Close()
}

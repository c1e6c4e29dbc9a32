// Package repository exposes one logical schema over two
// interchangeable storage engines: an embedded sqlite database and a
// networked Postgres database. Placeholder syntax, boolean and
// timestamp encodings, and maintenance statements differ per engine
// and never leak past the two adapters.
package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/babylog-bot/internal/model"
	"github.com/example/babylog-bot/internal/pool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("repository: not found")

// Store is the full data-access surface shared by the background loops
// and the request path. Both adapters implement it.
type Store interface {
	// DueReminders returns active reminders with next_due <= now,
	// oldest first.
	DueReminders(ctx context.Context, now time.Time) ([]*model.Reminder, error)
	// CreateReminder inserts a reminder and returns its id.
	CreateReminder(ctx context.Context, r *model.Reminder) (int64, error)
	// RescheduleReminder persists the newly computed next_due and,
	// when a send occurred, last_sent, in one update.
	RescheduleReminder(ctx context.Context, id int64, nextDue time.Time, lastSent *time.Time) error

	// GetQuota returns the user's quota record, creating a free-tier
	// row on first contact and resetting the counter the first time
	// the record is read on a new day.
	GetQuota(ctx context.Context, user string, today time.Time) (*model.QuotaRecord, error)
	// SetTier changes a user's tier.
	SetTier(ctx context.Context, user string, tier model.Tier) error
	// IncrementMessageCount bumps today's counter after a send.
	IncrementMessageCount(ctx context.Context, user string) error
	// ResetStaleQuotas zeroes counters whose last reset precedes
	// today and reports how many rows changed.
	ResetStaleQuotas(ctx context.Context, today time.Time) (int64, error)

	// LogReminderOutcome records one dispatch outcome.
	LogReminderOutcome(ctx context.Context, entry *model.ReminderLog) error
	// PurgeReminderLogs deletes outcome rows older than cutoff.
	PurgeReminderLogs(ctx context.Context, cutoff time.Time) (int64, error)
	// PurgeAbandonedSleepSessions deletes incomplete sleep sessions
	// created before cutoff.
	PurgeAbandonedSleepSessions(ctx context.Context, cutoff time.Time) (int64, error)

	// Maintain runs the backend's statistics/space maintenance.
	Maintain(ctx context.Context) error
	// Ping runs a trivial round-trip through the pool.
	Ping(ctx context.Context) error

	Kind() pool.Kind
	Close() error
}

// Config selects and sizes the backend.
type Config struct {
	// DatabaseURL selects the networked backend when non-empty.
	DatabaseURL string
	// SQLitePath is the embedded database file.
	SQLitePath string
	Pool       pool.Config
}

// Open selects the backend from cfg. When the networked backend is
// configured but unreachable, Open falls back to the embedded backend
// instead of failing startup. The fallback is decided once for the
// life of the process.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (Store, *pool.Pool, error) {
	if cfg.DatabaseURL != "" {
		st, p, err := OpenPostgres(ctx, cfg.DatabaseURL, cfg.Pool, log)
		if err == nil {
			log.Info("repository: using postgres backend")
			return st, p, nil
		}
		log.Warn("repository: postgres unreachable, falling back to embedded sqlite", zap.Error(err))
	}
	st, p, err := OpenSQLite(ctx, cfg.SQLitePath, cfg.Pool, log)
	if err != nil {
		return nil, nil, err
	}
	log.Info("repository: using sqlite backend", zap.String("path", cfg.SQLitePath))
	return st, p, nil
}

package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	// reminderLogRetention bounds the reminder_logs purge.
	reminderLogRetention = 30 * 24 * time.Hour
	// abandonedSessionAge is how long an unterminated sleep session
	// may stay open before it is treated as abandoned.
	abandonedSessionAge = 24 * time.Hour
)

// CleanupStore is the slice of the repository the cleanup loop uses.
type CleanupStore interface {
	PurgeReminderLogs(ctx context.Context, cutoff time.Time) (int64, error)
	ResetStaleQuotas(ctx context.Context, today time.Time) (int64, error)
	PurgeAbandonedSleepSessions(ctx context.Context, cutoff time.Time) (int64, error)
	Maintain(ctx context.Context) error
}

// CleanupService runs the periodic maintenance steps. The steps are
// independent: one failing step is logged and the others still run.
type CleanupService struct {
	store CleanupStore
	loc   *time.Location
	log   *zap.Logger
	now   func() time.Time
}

func NewCleanupService(store CleanupStore, loc *time.Location, log *zap.Logger) *CleanupService {
	return &CleanupService{store: store, loc: loc, log: log, now: time.Now}
}

// RunCleanup executes one maintenance cycle.
func (s *CleanupService) RunCleanup(ctx context.Context) error {
	now := s.now().In(s.loc)

	if n, err := s.store.PurgeReminderLogs(ctx, now.Add(-reminderLogRetention)); err != nil {
		s.log.Error("cleanup: purge reminder logs failed", zap.Error(err))
	} else if n > 0 {
		s.log.Info("cleanup: purged old reminder logs", zap.Int64("deleted", n))
	}

	if n, err := s.store.ResetStaleQuotas(ctx, now); err != nil {
		s.log.Error("cleanup: reset daily counts failed", zap.Error(err))
	} else if n > 0 {
		s.log.Info("cleanup: reset daily counts", zap.Int64("users", n))
	}

	if n, err := s.store.PurgeAbandonedSleepSessions(ctx, now.Add(-abandonedSessionAge)); err != nil {
		s.log.Error("cleanup: purge abandoned sleep sessions failed", zap.Error(err))
	} else if n > 0 {
		s.log.Info("cleanup: purged abandoned sleep sessions", zap.Int64("deleted", n))
	}

	if err := s.store.Maintain(ctx); err != nil {
		s.log.Error("cleanup: database maintenance failed", zap.Error(err))
	} else {
		s.log.Info("cleanup: database maintenance completed")
	}

	return nil
}

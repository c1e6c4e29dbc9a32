package service

import (
	"context"
	"time"

	"github.com/example/babylog-bot/internal/model"
)

// FreeDailyLimit caps how many reminder messages a free-tier user may
// receive per calendar day.
const FreeDailyLimit = 2

// QuotaRepository abstracts persistence of per-user daily counters.
type QuotaRepository interface {
	GetQuota(ctx context.Context, user string, today time.Time) (*model.QuotaRecord, error)
	IncrementMessageCount(ctx context.Context, user string) error
}

// QuotaService is the per-user daily send ledger. All decisions are
// made in the configured local timezone so the counter rolls over at
// local midnight.
type QuotaService struct {
	repo QuotaRepository
	loc  *time.Location
	now  func() time.Time
}

func NewQuotaService(repo QuotaRepository, loc *time.Location) *QuotaService {
	return &QuotaService{repo: repo, loc: loc, now: time.Now}
}

// UserTier returns the user's quota record for today, creating it on
// first contact. The daily counter resets lazily on the first read of
// a new day.
func (s *QuotaService) UserTier(ctx context.Context, user string) (*model.QuotaRecord, error) {
	return s.repo.GetQuota(ctx, user, s.now().In(s.loc))
}

// CanSendReminder decides whether one more reminder may be delivered
// to the user today. Premium users are always permitted; free users
// are permitted while today's counter is below FreeDailyLimit.
func (s *QuotaService) CanSendReminder(ctx context.Context, user string) (bool, *model.QuotaRecord, error) {
	rec, err := s.UserTier(ctx, user)
	if err != nil {
		return false, nil, err
	}
	if rec.Tier == model.TierPremium {
		return true, rec, nil
	}
	return rec.MessagesToday < FreeDailyLimit, rec, nil
}

// RecordSend increments the user's counter after a confirmed delivery.
func (s *QuotaService) RecordSend(ctx context.Context, user string) error {
	return s.repo.IncrementMessageCount(ctx, user)
}

// RemainingToday reports how many sends the record still allows,
// negative meaning unlimited.
func RemainingToday(rec *model.QuotaRecord) int {
	if rec == nil {
		return FreeDailyLimit
	}
	if rec.Tier == model.TierPremium {
		return -1
	}
	if n := FreeDailyLimit - rec.MessagesToday; n > 0 {
		return n
	}
	return 0
}

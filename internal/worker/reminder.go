package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/babylog-bot/internal/model"
	"github.com/example/babylog-bot/internal/schedule"
	"github.com/example/babylog-bot/internal/service"
)

// Sender delivers one message to a destination address. It must be
// treated as unreliable: an error means "not sent", never "retry now".
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// ReminderStore is the slice of the repository the dispatch loop uses.
type ReminderStore interface {
	DueReminders(ctx context.Context, now time.Time) ([]*model.Reminder, error)
	RescheduleReminder(ctx context.Context, id int64, nextDue time.Time, lastSent *time.Time) error
	LogReminderOutcome(ctx context.Context, entry *model.ReminderLog) error
}

// Quota decides and records per-user daily sends.
type Quota interface {
	CanSendReminder(ctx context.Context, user string) (bool, *model.QuotaRecord, error)
	RecordSend(ctx context.Context, user string) error
}

// ReminderService finds due reminders, applies the time-window and
// quota rules, dispatches through the notification gateway and
// advances each reminder's schedule. Every reminder is rescheduled in
// the same cycle that selected it, so it cannot be picked up twice.
type ReminderService struct {
	store  ReminderStore
	quota  Quota
	sender Sender
	loc    *time.Location
	log    *zap.Logger
	now    func() time.Time
}

func NewReminderService(store ReminderStore, quota Quota, sender Sender, loc *time.Location, log *zap.Logger) *ReminderService {
	return &ReminderService{store: store, quota: quota, sender: sender, loc: loc, log: log, now: time.Now}
}

// CheckDueReminders runs one dispatch cycle. A failure fetching the
// due set aborts the cycle; a failure processing one reminder is
// logged and does not stop the rest of the batch.
func (s *ReminderService) CheckDueReminders(ctx context.Context) error {
	now := s.now().In(s.loc)
	due, err := s.store.DueReminders(ctx, now)
	if err != nil {
		return fmt.Errorf("fetch due reminders: %w", err)
	}
	s.log.Info("due reminders", zap.Int("count", len(due)))
	for _, r := range due {
		if err := s.process(ctx, r); err != nil {
			s.log.Error("process reminder failed",
				zap.Int64("reminder_id", r.ID), zap.String("user", r.UserID), zap.Error(err))
		}
	}
	return nil
}

func (s *ReminderService) process(ctx context.Context, r *model.Reminder) error {
	now := s.now().In(s.loc)

	outcome := model.OutcomeSent
	var rec *model.QuotaRecord
	if !schedule.InWindow(now, r.StartTime, r.EndTime) {
		outcome = model.OutcomeOutsideWindow
	} else {
		allowed, qrec, err := s.quota.CanSendReminder(ctx, r.UserID)
		if err != nil {
			// A ledger failure fails open: the reminder is sent as a
			// fresh free-tier record rather than withheld.
			s.log.Warn("quota lookup failed, assuming free tier",
				zap.String("user", r.UserID), zap.Error(err))
			allowed = true
			qrec = &model.QuotaRecord{UserID: r.UserID, Tier: model.TierFree}
		}
		rec = qrec
		if !allowed {
			outcome = model.OutcomeDailyLimit
		}
	}

	var sentAt *time.Time
	if outcome == model.OutcomeSent {
		if err := s.sender.Send(ctx, r.UserID, reminderMessage(r, rec)); err != nil {
			outcome = model.OutcomeSendFailed
			s.log.Warn("reminder send failed",
				zap.Int64("reminder_id", r.ID), zap.String("user", r.UserID), zap.Error(err))
		} else {
			t := now
			sentAt = &t
			if err := s.quota.RecordSend(ctx, r.UserID); err != nil {
				s.log.Warn("quota increment failed",
					zap.String("user", r.UserID), zap.Error(err))
			}
		}
	}

	if err := s.store.LogReminderOutcome(ctx, &model.ReminderLog{
		UserID:     r.UserID,
		ReminderID: r.ID,
		Outcome:    outcome,
		Timestamp:  now,
	}); err != nil {
		s.log.Warn("record reminder outcome failed",
			zap.Int64("reminder_id", r.ID), zap.Error(err))
	}

	// Rescheduling is unconditional: skips and failed sends advance
	// next_due too, so a reminder never re-fires inside one interval.
	next := schedule.NextDue(now, r.IntervalHours, r.StartTime, r.EndTime)
	if err := s.store.RescheduleReminder(ctx, r.ID, next, sentAt); err != nil {
		return fmt.Errorf("reschedule: %w", err)
	}

	s.log.Info("reminder processed",
		zap.Int64("reminder_id", r.ID),
		zap.String("user", r.UserID),
		zap.String("outcome", outcome),
		zap.Time("next_due", next))
	return nil
}

// reminderMessage mirrors the product's WhatsApp reminder template.
func reminderMessage(r *model.Reminder, rec *model.QuotaRecord) string {
	remaining := "unlimited"
	if n := service.RemainingToday(rec); n >= 0 {
		// The footer shows what is left after this send.
		if n > 0 {
			n--
		}
		remaining = fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf(`🍼 *Pengingat: %s*

⏰ Waktunya minum susu!

🚀 *Respons cepat:*
• `+"`done 120`"+` - Catat 120ml
• `+"`snooze 30`"+` - Tunda 30 menit
• `+"`skip reminder`"+` - Lewati

📊 Sisa pengingat hari ini: %s`, r.Name, remaining)
}

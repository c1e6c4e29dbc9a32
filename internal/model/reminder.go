package model

import "time"

// Reminder is a recurring per-user notification with a daily allowed
// time window. Rows are created by the conversational CRUD path; the
// dispatch loop only reads them and advances the schedule.
type Reminder struct {
	ID            int64
	UserID        string // WhatsApp address, e.g. "whatsapp:+628123456789"
	Name          string
	IntervalHours int    // 1..12
	StartTime     string // "HH:MM"
	EndTime       string // "HH:MM"; earlier than StartTime means the window wraps past midnight
	Active        bool
	LastSent      *time.Time
	NextDue       time.Time
}

// Dispatch outcomes recorded per reminder per cycle.
const (
	OutcomeSent          = "sent"
	OutcomeSendFailed    = "send_failed"
	OutcomeOutsideWindow = "outside_time_window"
	OutcomeDailyLimit    = "daily_limit_reached"
)

// ReminderLog is one dispatch outcome row. Old rows are purged by the
// cleanup loop after the retention window.
type ReminderLog struct {
	ID         int64
	UserID     string
	ReminderID int64
	Outcome    string
	Timestamp  time.Time
}

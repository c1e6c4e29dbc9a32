// Package schedule implements the time-window arithmetic shared by the
// reminder dispatch loop: daily allowed windows given as "HH:MM" pairs,
// including windows that wrap past midnight.
package schedule

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ParseHHMM parses "HH:MM" into minutes since midnight.
func ParseHHMM(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, errors.New("expected HH:MM")
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, errors.New("invalid hour")
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, errors.New("invalid minute")
	}
	return h*60 + m, nil
}

// InWindow reports whether t's wall-clock time falls inside the
// [start, end] window, both bounds inclusive. An end earlier than start
// denotes a window that wraps past midnight: the check is then
// satisfied when t >= start or t <= end. A window that cannot be
// parsed counts as always open, so a malformed reminder still fires
// rather than silently starving.
func InWindow(t time.Time, start, end string) bool {
	startM, err := ParseHHMM(start)
	if err != nil {
		return true
	}
	endM, err := ParseHHMM(end)
	if err != nil {
		return true
	}
	m := t.Hour()*60 + t.Minute()
	if startM <= endM {
		return m >= startM && m <= endM
	}
	return m >= startM || m <= endM
}

// NextDue computes the next firing time for a reminder dispatched at
// now. The candidate is now plus the reminder's interval; a candidate
// outside the allowed window rolls to the window's start on the day
// after the candidate. The roll always targets the configured window
// start, not the missed fire time, so a reminder skipped several days
// running inside a short window drifts back to the window start each
// day.
func NextDue(now time.Time, intervalHours int, start, end string) time.Time {
	candidate := now.Add(time.Duration(intervalHours) * time.Hour)
	if InWindow(candidate, start, end) {
		return candidate
	}
	startM, err := ParseHHMM(start)
	if err != nil {
		return candidate
	}
	day := candidate.AddDate(0, 0, 1)
	return time.Date(day.Year(), day.Month(), day.Day(), startM/60, startM%60, 0, 0, candidate.Location())
}

// Package deadline tracks SLA countdowns. Every function takes the current time
// as an argument; nothing here reads the clock.
package deadline

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// Deadline is a reporting moment plus the time allowed to act on it.
type Deadline struct {
	ReportedAt      time.Time     `json:"reported_at"`
	AllowedDuration time.Duration `json:"allowed_duration"`
}

// New returns a deadline starting at reportedAt.
func New(reportedAt time.Time, allowed time.Duration) Deadline {
	return Deadline{ReportedAt: reportedAt, AllowedDuration: allowed}
}

// Due returns the moment the deadline expires.
func (d Deadline) Due() time.Time {
	return d.ReportedAt.Add(d.AllowedDuration)
}

// Status is a deadline evaluated at a given instant.
type Status struct {
	Due       time.Time     `json:"due"`
	Remaining time.Duration `json:"remaining"`
	Overdue   bool          `json:"overdue"`
	Display   string        `json:"display"`
	Relative  string        `json:"relative"`
}

// Evaluate computes the status of d at now. Remaining is signed; a deadline
// with zero remaining time is already overdue.
func Evaluate(d Deadline, now time.Time) Status {
	due := d.Due()
	remaining := due.Sub(now)
	overdue := remaining <= 0

	return Status{
		Due:       due,
		Remaining: remaining,
		Overdue:   overdue,
		Display:   display(remaining, overdue),
		Relative:  humanize.RelTime(due, now, "overdue", "remaining"),
	}
}

// RemainingSeconds returns Remaining in whole seconds, truncated toward zero.
func (s Status) RemainingSeconds() int64 {
	return int64(s.Remaining / time.Second)
}

// display renders the dashboard timer text, e.g. "3h 20m remaining".
func display(remaining time.Duration, overdue bool) string {
	abs := remaining
	if abs < 0 {
		if abs == math.MinInt64 {
			abs = math.MaxInt64
		} else {
			abs = -abs
		}
	}
	hours := int64(abs / time.Hour)
	minutes := int64((abs % time.Hour) / time.Minute)

	suffix := "remaining"
	if overdue {
		suffix = "overdue"
	}
	return fmt.Sprintf("%dh %dm %s", hours, minutes, suffix)
}

// Package timeutil holds calendar-date helpers in the institution's timezone.
// Intervention due dates and report filename dates are calendar dates, so
// they are always interpreted in one configured location.
package timeutil

import (
	"fmt"
	"sync/atomic"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

var location atomic.Pointer[time.Location]

func init() {
	location.Store(time.UTC)
}

// SetLocation sets the institution timezone by IANA name.
func SetLocation(name string) error {
	if name == "" {
		location.Store(time.UTC)
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fmt.Errorf("failed to load timezone %q: %w", name, err)
	}
	location.Store(loc)
	return nil
}

// Location returns the institution timezone.
func Location() *time.Location {
	return location.Load()
}

// Now returns the current time in the institution timezone.
func Now() time.Time {
	return time.Now().In(Location())
}

// StartOfDay returns midnight of t's calendar day in the institution timezone.
func StartOfDay(t time.Time) time.Time {
	l := t.In(Location())
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, Location())
}

// Date creates midnight of the given calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, Location())
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, Location())
}

// FormatDate formats t as YYYY-MM-DD in the institution timezone.
func FormatDate(t time.Time) string {
	return t.In(Location()).Format(DateLayout)
}

// IsPast reports whether the calendar day of t is strictly before today.
func IsPast(t time.Time, now time.Time) bool {
	return StartOfDay(t).Before(StartOfDay(now))
}

// DaysBetween returns the number of whole calendar days from t1 to t2.
func DaysBetween(t1, t2 time.Time) int {
	return int(StartOfDay(t2).Sub(StartOfDay(t1)).Hours() / 24)
}

package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule runs a job every Interval. With Align set, runs land on
// multiples of Interval since the Unix epoch, so an hourly job fires on the
// hour regardless of when the worker started.
type IntervalSchedule struct {
	Interval time.Duration
	Align    bool
}

// Every returns an unaligned IntervalSchedule. Non-positive intervals are
// clamped to one minute.
func Every(interval time.Duration) *IntervalSchedule {
	if interval <= 0 {
		interval = time.Minute
	}
	return &IntervalSchedule{Interval: interval}
}

// EveryAligned returns an IntervalSchedule aligned to interval boundaries.
func EveryAligned(interval time.Duration) *IntervalSchedule {
	s := Every(interval)
	s.Align = true
	return s
}

func (s *IntervalSchedule) Next(t time.Time) time.Time {
	if !s.Align {
		return t.Add(s.Interval)
	}
	return t.Truncate(s.Interval).Add(s.Interval)
}

func (s *IntervalSchedule) String() string {
	if s.Align {
		return fmt.Sprintf("@every %s (aligned)", s.Interval)
	}
	return fmt.Sprintf("@every %s", s.Interval)
}

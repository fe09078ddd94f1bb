package service

import "time"

// SessionCalendar knows which calendar days are trading sessions.
type SessionCalendar interface {
	IsSession(day time.Time) bool
	NextSession(day time.Time) time.Time
}

// Clock abstracts "today" so stages can be replayed deterministically.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return ClockFunc(time.Now) }

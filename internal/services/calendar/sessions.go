package calendar

import (
	"time"
)

// Weekday treats Monday through Friday as sessions, minus an optional
// holiday list keyed by YYYY-MM-DD.
type Weekday struct {
	holidays map[string]struct{}
}

// NewWeekday creates a weekday calendar with the given holiday dates.
func NewWeekday(holidays ...string) *Weekday {
	w := &Weekday{holidays: make(map[string]struct{}, len(holidays))}
	for _, h := range holidays {
		w.holidays[h] = struct{}{}
	}
	return w
}

// IsSession reports whether day is a trading day.
func (w *Weekday) IsSession(day time.Time) bool {
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := w.holidays[day.Format(time.DateOnly)]
	return !holiday
}

// NextSession returns the first session strictly after day, at midnight in day's location.
func (w *Weekday) NextSession(day time.Time) time.Time {
	d := Midnight(day)
	for i := 0; i < 366; i++ {
		d = d.AddDate(0, 0, 1)
		if w.IsSession(d) {
			return d
		}
	}
	return d
}

// Midnight truncates t to its calendar date in t's location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

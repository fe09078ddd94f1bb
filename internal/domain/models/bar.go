package models

import (
	"fmt"
	"math"
	"time"
)

// Bar is one OHLCV observation for a symbol at the configured interval.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Bars is a timestamp-ascending bar series.
type Bars []Bar

// Closes returns the close series.
func (b Bars) Closes() []float64 {
	out := make([]float64, len(b))
	for i, bar := range b {
		out[i] = bar.Close
	}
	return out
}

// Last returns the most recent bar. It panics on an empty series.
func (b Bars) Last() Bar { return b[len(b)-1] }

// Clone returns a copy that callers may not use to mutate the receiver.
func (b Bars) Clone() Bars {
	if b == nil {
		return nil
	}
	out := make(Bars, len(b))
	copy(out, b)
	return out
}

// Tail returns the last n bars (or all of them when n <= 0 or n >= len).
func (b Bars) Tail(n int) Bars {
	if n <= 0 || n >= len(b) {
		return b
	}
	return b[len(b)-n:]
}

// SessionDate maps a daily bar timestamp to midnight UTC of its session's
// calendar date. A timestamp at midnight in its own zone keeps that date;
// any other instant is read in the exchange location loc first.
func SessionDate(t time.Time, loc *time.Location) time.Time {
	if h, m, s := t.Clock(); (h != 0 || m != 0 || s != 0 || t.Nanosecond() != 0) && loc != nil {
		t = t.In(loc)
	}
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

// AsSessions rewrites every timestamp of b in place with SessionDate and
// returns b.
func (b Bars) AsSessions(loc *time.Location) Bars {
	for i := range b {
		b[i].Timestamp = SessionDate(b[i].Timestamp, loc)
	}
	return b
}

// IndexOnDate returns the index of the bar whose calendar date equals day, or -1.
func (b Bars) IndexOnDate(day time.Time) int {
	y, m, d := day.Date()
	for i := len(b) - 1; i >= 0; i-- {
		by, bm, bd := b[i].Timestamp.Date()
		if by == y && bm == m && bd == d {
			return i
		}
		if b[i].Timestamp.Before(day) {
			break
		}
	}
	return -1
}

// Validate checks the series for ordering and price sanity.
func (b Bars) Validate() error {
	for i, bar := range b {
		if bar.Timestamp.IsZero() {
			return fmt.Errorf("%w: bar %d has zero timestamp", ErrCorruptBars, i)
		}
		for _, v := range []float64{bar.Open, bar.High, bar.Low, bar.Close} {
			if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
				return fmt.Errorf("%w: bar %d (%s) has invalid price %v", ErrCorruptBars, i, bar.Timestamp.Format(time.DateOnly), v)
			}
		}
		if bar.High < bar.Low {
			return fmt.Errorf("%w: bar %d high %v below low %v", ErrCorruptBars, i, bar.High, bar.Low)
		}
		if i > 0 && !bar.Timestamp.After(b[i-1].Timestamp) {
			return fmt.Errorf("%w: non-monotonic timestamp at bar %d", ErrCorruptBars, i)
		}
	}
	return nil
}

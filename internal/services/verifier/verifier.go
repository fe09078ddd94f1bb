package verifier

import (
	"context"
	"fmt"
	"math"
	"time"

	"PatternScan/internal/domain/models"
	"PatternScan/internal/domain/repository"
	"PatternScan/internal/domain/service"
	"PatternScan/internal/services/calendar"
)

// maxAdvance bounds how many sessions a single run may roll a target forward.
const maxAdvance = 31

// maxWindow caps the bars requested for a single stale target.
const maxWindow = 5000

// Verifier resolves pending forecasts against the realised close on their
// target session.
type Verifier struct {
	store    repository.BarStore
	cal      service.SessionCalendar
	clock    service.Clock
	metrics  repository.Metrics
	lookback int
	interval repository.Interval
}

// Option configures Verifier.
type Option func(*Verifier)

// WithClock overrides the wall clock.
func WithClock(c service.Clock) Option {
	return func(v *Verifier) {
		if c != nil {
			v.clock = c
		}
	}
}

// WithCalendar overrides the weekday calendar.
func WithCalendar(c service.SessionCalendar) Option {
	return func(v *Verifier) {
		if c != nil {
			v.cal = c
		}
	}
}

// WithMetrics records resolved outcomes.
func WithMetrics(m repository.Metrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

// WithLookback sets how many bars are read per symbol.
func WithLookback(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.lookback = n
		}
	}
}

// New creates a verifier reading bars from store.
func New(store repository.BarStore, opts ...Option) *Verifier {
	v := &Verifier{
		store:    store,
		cal:      calendar.NewWeekday(),
		clock:    service.SystemClock(),
		lookback: 400,
		interval: repository.Interval1d,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// lookbackSlack pads the session count between a target and today.
const lookbackSlack = 10

// Report summarises one verifier pass.
type Report struct {
	Resolved  []models.Forecast // rows resolved in this pass
	Deferred  int               // pending rows whose target has no bar yet
	Uncovered []string          // keys whose history starts after a pending target
	Failed    map[string]error  // symbol -> bar lookup failure
}

// Verify resolves every due PENDING row of rows in place. Rows already
// resolved are never touched, so repeated passes are no-ops.
func (v *Verifier) Verify(ctx context.Context, rows []models.Forecast) (Report, error) {
	rep := Report{Failed: make(map[string]error)}
	now := v.clock.Now()
	today := calendar.Midnight(now)
	cache := make(map[repository.BarKey]models.Bars)
	asked := make(map[repository.BarKey]int)
	uncovered := make(map[string]bool)

	for i := range rows {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		f := &rows[i]
		if !f.IsPending() || f.TargetDate.After(today) {
			continue
		}
		key := repository.BarKey{Exchange: f.Exchange, Symbol: f.Symbol, Interval: v.interval}
		if _, failed := rep.Failed[key.String()]; failed {
			rep.Deferred++
			continue
		}
		bars, ok := cache[key]
		if n := v.window(f.TargetDate, today); !ok || asked[key] < n && !covers(bars, f.TargetDate) {
			var err error
			bars, err = v.store.GetBars(ctx, key, n)
			if err != nil {
				rep.Failed[key.String()] = fmt.Errorf("verify %s: %w", key, err)
				rep.Deferred++
				continue
			}
			cache[key], asked[key] = bars, n
		}
		if !covers(bars, f.TargetDate) {
			if !uncovered[key.String()] {
				uncovered[key.String()] = true
				rep.Uncovered = append(rep.Uncovered, key.String())
			}
			rep.Deferred++
			continue
		}
		if v.resolve(f, bars, today, now) {
			rep.Resolved = append(rep.Resolved, *f)
			if v.metrics != nil {
				v.metrics.RecordVerification(string(f.Actual))
			}
		} else {
			rep.Deferred++
		}
	}
	return rep, nil
}

// resolve looks up the target bar, rolling the target forward over
// non-sessions and over days the data shows were not traded.
func (v *Verifier) resolve(f *models.Forecast, bars models.Bars, today, now time.Time) bool {
	for step := 0; step < maxAdvance && !f.TargetDate.After(today); step++ {
		if idx := bars.IndexOnDate(f.TargetDate); idx >= 0 {
			Resolve(f, bars[idx].Close, now)
			return true
		}
		if v.cal.IsSession(f.TargetDate) && !hasBarAfter(bars, f.TargetDate) {
			return false
		}
		f.TargetDate = v.cal.NextSession(f.TargetDate)
		f.LastUpdate = now
	}
	return false
}

// window is the bar count that reaches back to target: the configured
// lookback, or the sessions since target plus slack when that is larger.
func (v *Verifier) window(target, today time.Time) int {
	n := 0
	for d := calendar.Midnight(target); !d.After(today) && n < maxWindow; d = v.cal.NextSession(d) {
		n++
	}
	return max(v.lookback, n+lookbackSlack)
}

// covers reports whether bars reach back to day's session.
func covers(bars models.Bars, day time.Time) bool {
	if len(bars) == 0 {
		return true
	}
	return !dateOf(bars[0].Timestamp).After(dateOf(day))
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func hasBarAfter(bars models.Bars, day time.Time) bool {
	if len(bars) == 0 {
		return false
	}
	return calendar.Midnight(bars.Last().Timestamp).After(calendar.Midnight(day))
}

// Resolve fills the outcome columns from the realised close. The threshold
// stored at scan time classifies the move.
func Resolve(f *models.Forecast, closePrice float64, now time.Time) {
	change := (closePrice - f.PriceAtScan) / f.PriceAtScan * 100
	band := f.Threshold * 100
	if math.IsNaN(band) {
		band = 0
	}
	actual := models.OutcomeNeutral
	switch {
	case change > band:
		actual = models.OutcomeUp
	case change < -band:
		actual = models.OutcomeDown
	}
	f.PriceActual = closePrice
	f.ChangePct = change
	f.Actual = actual
	f.Correct = models.BoolPtr(actual != models.OutcomeNeutral && string(actual) == string(f.Direction))
	f.LastUpdate = now
}

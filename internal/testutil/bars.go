// Package testutil builds synthetic bar series for package tests.
package testutil

import (
	"math/rand"
	"time"

	"PatternScan/internal/domain/models"
)

// Start is the first session used by synthetic series (a Monday).
var Start = time.Date(2020, 1, 6, 0, 0, 0, 0, time.UTC)

// Sessions returns n consecutive weekday dates starting at from.
func Sessions(from time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	d := from
	for len(out) < n {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			out = append(out, d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return out
}

// FromReturns builds len(rets)+1 bars. Each bar opens at the previous close;
// high/low extend the open-close body by wick (a fraction of price).
func FromReturns(price float64, rets []float64, wick float64) models.Bars {
	days := Sessions(Start, len(rets)+1)
	bars := make(models.Bars, 0, len(rets)+1)
	bars = append(bars, models.Bar{Timestamp: days[0], Open: price, High: price * (1 + wick), Low: price * (1 - wick), Close: price, Volume: 1000})
	for i, r := range rets {
		open := bars[i].Close
		c := open * (1 + r)
		hi, lo := open, c
		if c > open {
			hi, lo = c, open
		}
		bars = append(bars, models.Bar{
			Timestamp: days[i+1],
			Open:      open,
			High:      hi * (1 + wick),
			Low:       lo * (1 - wick),
			Close:     c,
			Volume:    1000,
		})
	}
	return bars
}

// Alternating returns n returns of +step, -step, +step, ...
func Alternating(n int, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = step
		} else {
			out[i] = -step
		}
	}
	return out
}

// Uniform returns n returns drawn uniformly from [-scale, +scale].
func Uniform(n int, scale float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * scale
	}
	return out
}

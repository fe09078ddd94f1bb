package risk

import (
	"math"

	"PatternScan/internal/domain/models"
)

// ATRPeriod is the Wilder smoothing period.
const ATRPeriod = 14

// TrueRange of bar i; the first bar has no previous close and uses high-low.
func TrueRange(bars models.Bars, i int) float64 {
	b := bars[i]
	hl := b.High - b.Low
	if i == 0 {
		return hl
	}
	prev := bars[i-1].Close
	return math.Max(hl, math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
}

// ATRSeries returns Wilder's ATR for every bar. The first value is the simple
// mean of the first period true ranges (bars 1..period); earlier entries are NaN.
func ATRSeries(bars models.Bars, period int) []float64 {
	out := make([]float64, len(bars))
	for i := range out {
		out[i] = math.NaN()
	}
	if period < 1 || len(bars) <= period {
		return out
	}
	var sum float64
	for i := 1; i <= period; i++ {
		sum += TrueRange(bars, i)
	}
	atr := sum / float64(period)
	out[period] = atr
	for i := period + 1; i < len(bars); i++ {
		atr = (atr*float64(period-1) + TrueRange(bars, i)) / float64(period)
		out[i] = atr
	}
	return out
}

// ATR is the Wilder ATR at the last bar, or false when the window is shorter
// than period+1 bars.
func ATR(bars models.Bars, period int) (float64, bool) {
	s := ATRSeries(bars, period)
	if len(s) == 0 || math.IsNaN(s[len(s)-1]) {
		return 0, false
	}
	return s[len(s)-1], true
}

package repository

import (
	"fmt"
	"strings"
	"time"

	"PatternScan/internal/domain/models"
)

// Interval represents the bar resolution requested from a provider.
type Interval string

const (
	Interval1h  Interval = "1h"
	Interval1d  Interval = "1d"
	Interval1wk Interval = "1wk"
)

// IsValidInterval returns true if iv is a supported interval.
func IsValidInterval(iv Interval) bool {
	switch iv {
	case Interval1h, Interval1d, Interval1wk:
		return true
	default:
		return false
	}
}

// DefaultInterval returns the default interval.
func DefaultInterval() Interval { return Interval1d }

// NormalizeInterval converts raw string to a valid interval (or default).
func NormalizeInterval(s string) Interval {
	if s == "" {
		return DefaultInterval()
	}
	iv := Interval(strings.ToLower(s))
	if IsValidInterval(iv) {
		return iv
	}
	return DefaultInterval()
}

// BarKey identifies one cached bar series.
type BarKey struct {
	Exchange string
	Symbol   string
	Interval Interval
}

func (k BarKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Exchange, k.Symbol, k.Interval)
}

// Daily reports whether the key addresses session bars.
func (k BarKey) Daily() bool { return k.Interval == Interval1d || k.Interval == "" }

// Location is the time zone the key's exchange dates sessions in.
func (k BarKey) Location() *time.Location { return models.ExchangeLocation(k.Exchange) }

// Normalize puts provider bars on the series' clock: daily bars become
// session dates, intraday bars keep their instant in the exchange zone.
func (k BarKey) Normalize(bars models.Bars) models.Bars {
	loc := k.Location()
	if k.Daily() {
		return bars.AsSessions(loc)
	}
	for i := range bars {
		bars[i].Timestamp = bars[i].Timestamp.In(loc)
	}
	return bars
}

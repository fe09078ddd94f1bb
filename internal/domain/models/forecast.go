package models

import (
	"fmt"
	"time"
)

// Direction is the predicted (or dominant) next-bar move.
type Direction string

const (
	DirectionUp        Direction = "UP"
	DirectionDown      Direction = "DOWN"
	DirectionUndecided Direction = "UNDECIDED"
)

// Sign is +1 for UP, -1 for DOWN and 0 otherwise.
func (d Direction) Sign() float64 {
	switch d {
	case DirectionUp:
		return 1
	case DirectionDown:
		return -1
	default:
		return 0
	}
}

// Outcome is the realized state of a forecast.
type Outcome string

const (
	OutcomeUp      Outcome = "UP"
	OutcomeDown    Outcome = "DOWN"
	OutcomeNeutral Outcome = "NEUTRAL"
	OutcomePending Outcome = "PENDING"
)

// Forecast is one row of logs/performance_log.csv.
type Forecast struct {
	ScanDate    time.Time `json:"scan_date"`
	TargetDate  time.Time `json:"target_date"`
	Symbol      string    `json:"symbol"`
	Exchange    string    `json:"exchange"`
	Group       string    `json:"group,omitempty"`
	Pattern     string    `json:"pattern"`
	Direction   Direction `json:"forecast"`
	Prob        float64   `json:"prob"`
	UpCount     int       `json:"up_count"`
	DownCount   int       `json:"down_count"`
	FlatCount   int       `json:"flat_count"`
	PriceAtScan float64   `json:"price_at_scan"`
	Threshold   float64   `json:"threshold"`
	AvgReturn   float64   `json:"avg_return"`
	TotalBars   int       `json:"total_bars"`

	Actual      Outcome   `json:"actual"`
	PriceActual float64   `json:"price_actual,omitempty"`
	ChangePct   float64   `json:"change_pct,omitempty"`
	Correct     *bool     `json:"correct,omitempty"`
	LastUpdate  time.Time `json:"last_update"`
}

// NObservations is the bucket sample size the forecast was drawn from.
func (f *Forecast) NObservations() int { return f.UpCount + f.DownCount + f.FlatCount }

// Key is the deduplication key (scan_date, symbol, pattern).
func (f *Forecast) Key() string {
	return fmt.Sprintf("%s|%s|%s", f.ScanDate.Format(time.DateOnly), f.Symbol, f.Pattern)
}

// IsPending reports whether the verifier still has to resolve the row.
func (f *Forecast) IsPending() bool { return f.Actual == OutcomePending || f.Actual == "" }

// Conf buckets the forecast probability into a confidence label.
func (f *Forecast) Conf() string { return ConfidenceLabel(f.Prob) }

// Stats renders the bucket counts as up/down/flat.
func (f *Forecast) Stats() string {
	return fmt.Sprintf("%d/%d/%d", f.UpCount, f.DownCount, f.FlatCount)
}

// ConfidenceLabel maps a probability in percent to HIGH, MEDIUM or LOW.
func ConfidenceLabel(prob float64) string {
	switch {
	case prob >= 70:
		return "HIGH"
	case prob >= EliteProbThreshold:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// Validate checks the ledger invariants of a single row.
func (f *Forecast) Validate() error {
	if !f.TargetDate.After(f.ScanDate) {
		return fmt.Errorf("forecast %s: target_date %s not after scan_date", f.Key(), f.TargetDate.Format(time.DateOnly))
	}
	switch f.Actual {
	case OutcomePending:
		if f.Correct != nil {
			return fmt.Errorf("forecast %s: pending row has correct set", f.Key())
		}
	case OutcomeUp, OutcomeDown, OutcomeNeutral:
		if f.Correct == nil {
			return fmt.Errorf("forecast %s: resolved row missing correct", f.Key())
		}
	default:
		return fmt.Errorf("forecast %s: unknown actual %q", f.Key(), f.Actual)
	}
	return nil
}

// BoolPtr is a small helper for the tri-state correct column.
func BoolPtr(v bool) *bool { return &v }

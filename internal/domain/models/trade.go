package models

import (
	"fmt"
	"time"
)

// ExitReason names the rule that closed a position.
type ExitReason string

const (
	ExitTakeProfit   ExitReason = "TAKE_PROFIT"
	ExitStopLoss     ExitReason = "STOP_LOSS"
	ExitTrailingStop ExitReason = "TRAILING_STOP"
	ExitMaxHold      ExitReason = "MAX_HOLD"
)

// Valid reports whether r is one of the four exit reasons.
func (r ExitReason) Valid() bool {
	switch r {
	case ExitTakeProfit, ExitStopLoss, ExitTrailingStop, ExitMaxHold:
		return true
	}
	return false
}

// Trade is one realized position from a backtest run.
type Trade struct {
	EntryDate    time.Time  `json:"entry_date"`
	ExitDate     time.Time  `json:"exit_date"`
	Symbol       string     `json:"symbol"`
	Exchange     string     `json:"exchange"`
	Group        string     `json:"group"`
	Direction    Direction  `json:"forecast"`
	Actual       Outcome    `json:"actual"`
	EntryPrice   float64    `json:"entry_price"`
	ExitPrice    float64    `json:"exit_price"`
	StopLoss     float64    `json:"stop_loss"`
	TakeProfit   float64    `json:"take_profit"`
	ActualReturn float64    `json:"actual_return"`
	TraderReturn float64    `json:"trader_return"`
	HoldDays     int        `json:"hold_days"`
	Correct      bool       `json:"correct"`
	ExitReason   ExitReason `json:"exit_reason"`
	Prob         float64    `json:"prob"`
}

// ReturnPlaces is the precision trade returns are kept and stored at.
const ReturnPlaces int32 = 4

// IsElite reports whether the originating forecast cleared the elite probability.
func (t *Trade) IsElite() bool { return t.Prob >= EliteProbThreshold }

// Validate enforces the trade atomicity invariants. ExitDate is only
// checked when known (ledgers read back from CSV carry the entry date only).
func (t *Trade) Validate() error {
	if !t.ExitReason.Valid() {
		return fmt.Errorf("%w: %s trade has exit reason %q", ErrInvariantViolation, t.Symbol, t.ExitReason)
	}
	if t.HoldDays < 1 {
		return fmt.Errorf("%w: %s trade hold_days %d", ErrInvariantViolation, t.Symbol, t.HoldDays)
	}
	if !t.ExitDate.IsZero() && !t.EntryDate.Before(t.ExitDate) {
		return fmt.Errorf("%w: %s trade exits %s before entry %s", ErrInvariantViolation, t.Symbol,
			t.ExitDate.Format(time.DateOnly), t.EntryDate.Format(time.DateOnly))
	}
	if t.Correct != (t.TraderReturn > 0) {
		return fmt.Errorf("%w: %s trade correct=%v with trader_return %.4f", ErrInvariantViolation, t.Symbol, t.Correct, t.TraderReturn)
	}
	if t.Direction != DirectionUp && t.Direction != DirectionDown {
		return fmt.Errorf("%w: %s trade direction %q", ErrInvariantViolation, t.Symbol, t.Direction)
	}
	return nil
}

package risk

import (
	"errors"
	"fmt"

	"PatternScan/internal/domain/models"
)

// ErrNoATR is returned when an ATR-family policy has no ATR to scale by.
var ErrNoATR = errors.New("atr unavailable")

// Levels are the absolute exit prices of a position.
type Levels struct {
	StopLoss   float64
	TakeProfit float64
	ATR        float64 // 0 for fixed-percent policies
}

// ExitLevels places stop-loss and take-profit around entry for dir under
// policy. atr is only read for ATR-family policies.
func ExitLevels(policy models.MarketPolicy, dir models.Direction, entry, atr float64) (Levels, error) {
	sign := dir.Sign()
	if sign == 0 {
		return Levels{}, fmt.Errorf("exit levels: %w: direction %q", models.ErrInvariantViolation, dir)
	}
	switch policy.Risk {
	case models.RiskFixedPercent:
		return Levels{
			StopLoss:   entry * (1 - sign*policy.StopPct),
			TakeProfit: entry * (1 + sign*policy.TargetPct),
		}, nil
	case models.RiskATR:
		if atr <= 0 {
			return Levels{}, fmt.Errorf("exit levels %s: %w", policy.Group, ErrNoATR)
		}
		return Levels{
			StopLoss:   entry - sign*policy.ATRStopMult*atr,
			TakeProfit: entry + sign*policy.ATRTargetMult*atr,
			ATR:        atr,
		}, nil
	default:
		return Levels{}, fmt.Errorf("exit levels %s: unknown risk family %q", policy.Group, policy.Risk)
	}
}

// TrailStop is the trailing exit price given the best close since entry.
// It reports false until the favourable move reaches the activation fraction.
func TrailStop(policy models.MarketPolicy, dir models.Direction, entry, best float64) (float64, bool) {
	sign := dir.Sign()
	if sign == 0 || entry <= 0 {
		return 0, false
	}
	gain := sign * (best - entry) / entry
	if gain < policy.TrailActivate || gain <= 0 {
		return 0, false
	}
	return entry + (best-entry)*(1-policy.TrailDistance), true
}

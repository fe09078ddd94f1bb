package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"
)

var exchangeZones = map[string]string{
	"SET":    "Asia/Bangkok",
	"MAI":    "Asia/Bangkok",
	"SSE":    "Asia/Shanghai",
	"SZSE":   "Asia/Shanghai",
	"TWSE":   "Asia/Taipei",
	"TPEX":   "Asia/Taipei",
	"NASDAQ": "America/New_York",
	"NYSE":   "America/New_York",
	"AMEX":   "America/New_York",
}

// ExchangeLocation returns the time zone an exchange's sessions are dated
// in. Unknown exchanges use UTC.
func ExchangeLocation(exchange string) *time.Location {
	name, ok := exchangeZones[strings.ToUpper(exchange)]
	if !ok {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RiskFamily selects how stop-loss and take-profit levels are placed.
type RiskFamily string

const (
	RiskFixedPercent RiskFamily = "FIXED_PERCENT"
	RiskATR          RiskFamily = "ATR"
)

// EntryModel selects the fill price of a new position.
type EntryModel string

const (
	EntryNextOpen EntryModel = "next_open"
	EntryClose    EntryModel = "close"
)

// MarketPolicy carries every per-market parameter used by forecasting,
// gating, simulation and display filtering. Fractions, not percent, unless
// the field name says otherwise.
type MarketPolicy struct {
	Group    string `json:"group"`
	Exchange string `json:"exchange"`

	MinProb         float64 `json:"min_prob"` // percent
	MinCount        int     `json:"min_count"`
	MaxCount        int     `json:"max_count"` // 0 means unbounded
	MinRRR          float64 `json:"min_rrr"`
	MinObservations int     `json:"min_observations"`

	Risk          RiskFamily `json:"rm_family"`
	StopPct       float64    `json:"sl_pct"`
	TargetPct     float64    `json:"tp_pct"`
	ATRStopMult   float64    `json:"k_sl"`
	ATRTargetMult float64    `json:"k_tp"`

	TrailActivate float64 `json:"trail_activate"`
	TrailDistance float64 `json:"trail_distance"`
	MaxHold       int     `json:"max_hold"`
}

// Validate rejects policies the simulator cannot run.
func (p MarketPolicy) Validate() error {
	switch p.Risk {
	case RiskFixedPercent:
		if p.StopPct <= 0 || p.TargetPct <= 0 {
			return fmt.Errorf("policy %s: fixed-percent risk needs positive sl/tp", p.Group)
		}
	case RiskATR:
		if p.ATRStopMult <= 0 || p.ATRTargetMult <= 0 {
			return fmt.Errorf("policy %s: atr risk needs positive k_sl/k_tp", p.Group)
		}
	default:
		return fmt.Errorf("policy %s: unknown risk family %q", p.Group, p.Risk)
	}
	if p.MaxHold < 1 {
		return fmt.Errorf("policy %s: max_hold must be >= 1", p.Group)
	}
	if p.TrailDistance < 0 || p.TrailDistance > 1 {
		return fmt.Errorf("policy %s: trail_distance must be in [0,1]", p.Group)
	}
	if p.MaxCount > 0 && p.MaxCount < p.MinCount {
		return fmt.Errorf("policy %s: max_count below min_count", p.Group)
	}
	return nil
}

// PassesDisplay applies the display filter {min_prob, min_rrr, min_count, max_count}.
func (p MarketPolicy) PassesDisplay(prob, rr float64, count int) bool {
	if prob < p.MinProb || rr < p.MinRRR || count < p.MinCount {
		return false
	}
	return p.MaxCount <= 0 || count <= p.MaxCount
}

// DefaultPolicies returns the built-in market groups.
func DefaultPolicies() map[string]MarketPolicy {
	return map[string]MarketPolicy{
		"THAI": {
			Group: "THAI", Exchange: "SET",
			MinProb: 60, MinRRR: 1.3, MinCount: 30, MinObservations: 10,
			Risk: RiskFixedPercent, StopPct: 0.015, TargetPct: 0.035,
			TrailActivate: 0.015, TrailDistance: 0.5, MaxHold: 5,
		},
		"US": {
			Group: "US", Exchange: "NASDAQ",
			MinProb: 60, MinRRR: 1.5, MinCount: 15, MinObservations: 10,
			Risk: RiskATR, ATRStopMult: 1.0, ATRTargetMult: 5.0,
			TrailActivate: 0.015, TrailDistance: 0.5, MaxHold: 5,
		},
		"CHINA": {
			Group: "CHINA", Exchange: "SSE",
			MinProb: 60, MinRRR: 1.0, MinCount: 20, MinObservations: 10,
			Risk: RiskATR, ATRStopMult: 1.0, ATRTargetMult: 5.0,
			TrailActivate: 0.01, TrailDistance: 0.4, MaxHold: 3,
		},
		"TAIWAN": {
			Group: "TAIWAN", Exchange: "TWSE",
			MinProb: 53, MinRRR: 1.25, MinCount: 25, MaxCount: 150, MinObservations: 10,
			Risk: RiskATR, ATRStopMult: 1.0, ATRTargetMult: 6.5,
			TrailActivate: 0.01, TrailDistance: 0.4, MaxHold: 10,
		},
	}
}

// PolicyFor looks up a group case-insensitively.
func PolicyFor(policies map[string]MarketPolicy, group string) (MarketPolicy, error) {
	p, ok := policies[strings.ToUpper(group)]
	if !ok {
		return MarketPolicy{}, fmt.Errorf("%w: market group %q", ErrNotFound, group)
	}
	return p, nil
}

// SortedGroups returns policy group names in lexical order.
func SortedGroups(policies map[string]MarketPolicy) []string {
	out := make([]string, 0, len(policies))
	for g := range policies {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

package gatekeeper

import (
	"sort"
	"strconv"
	"sync"

	"PatternScan/internal/domain/models"
	"PatternScan/internal/domain/repository"
	"PatternScan/internal/services/performance"
)

// Reason names the threshold a rejected forecast failed.
type Reason string

const (
	ReasonProb  Reason = "min_prob"
	ReasonCount Reason = "min_count"
	ReasonRRR   Reason = "min_rrr"
)

// Decision is the outcome of one evaluation.
type Decision struct {
	Accepted   bool
	Reason     Reason
	RRR        float64
	RRRChecked bool
}

// Gatekeeper accepts a forecast only when it clears the market's probability,
// sample size and risk/reward floors. Rejections are counted, never stored.
type Gatekeeper struct {
	metrics repository.Metrics

	mu       sync.Mutex
	rejected map[Reason]int
	accepted int
}

// New creates a gatekeeper. metrics may be nil.
func New(metrics repository.Metrics) *Gatekeeper {
	return &Gatekeeper{metrics: metrics, rejected: make(map[Reason]int)}
}

// Evaluate checks f against policy. history is the symbol's trailing trade
// ledger; when it is empty the R:R check is skipped.
func (g *Gatekeeper) Evaluate(f *models.Forecast, policy models.MarketPolicy, history []models.Trade) Decision {
	d := Decision{Accepted: true}
	switch {
	case f.Prob < policy.MinProb:
		d = Decision{Reason: ReasonProb}
	case f.NObservations() < policy.MinCount:
		d = Decision{Reason: ReasonCount}
	case len(history) > 0:
		d.RRR = performance.RiskReward(history)
		d.RRRChecked = true
		if d.RRR < policy.MinRRR {
			d.Accepted = false
			d.Reason = ReasonRRR
		}
	}
	g.record(policy.Group, d)
	return d
}

func (g *Gatekeeper) record(group string, d Decision) {
	g.mu.Lock()
	if d.Accepted {
		g.accepted++
	} else {
		g.rejected[d.Reason]++
	}
	g.mu.Unlock()
	if !d.Accepted && g.metrics != nil {
		g.metrics.RecordRejection(group, string(d.Reason))
	}
}

// Counts returns accepted and per-reason rejected totals.
func (g *Gatekeeper) Counts() (int, map[Reason]int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[Reason]int, len(g.rejected))
	for r, n := range g.rejected {
		out[r] = n
	}
	return g.accepted, out
}

// Summary renders rejection counts as sorted "reason=n" strings for logging.
func (g *Gatekeeper) Summary() []string {
	_, rej := g.Counts()
	out := make([]string, 0, len(rej))
	for r, n := range rej {
		out = append(out, string(r)+"="+strconv.Itoa(n))
	}
	sort.Strings(out)
	return out
}

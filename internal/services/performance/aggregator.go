package performance

import (
	"math"
	"sort"

	"PatternScan/internal/domain/models"
)

// Summary holds the raw metrics of one trade set.
type Summary struct {
	Count   int
	Wins    int
	WinRate float64 // percent
	AvgWin  float64 // percent, mean of positive trader returns
	AvgLoss float64 // percent, mean |trader return| over non-positive returns
	RR      float64 // AvgWin / AvgLoss, 0 when undefined
}

// Summarize computes count, win rate, average win/loss and R:R.
func Summarize(trades []models.Trade) Summary {
	var s Summary
	var winSum, lossSum float64
	var losses int
	for i := range trades {
		t := &trades[i]
		s.Count++
		if t.Correct {
			s.Wins++
		}
		if t.TraderReturn > 0 {
			winSum += t.TraderReturn
		} else {
			lossSum += math.Abs(t.TraderReturn)
			losses++
		}
	}
	if s.Count > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Count) * 100
	}
	if wins := s.Count - losses; wins > 0 {
		s.AvgWin = winSum / float64(wins)
	}
	if losses > 0 {
		s.AvgLoss = lossSum / float64(losses)
	}
	if s.AvgLoss > 0 {
		s.RR = s.AvgWin / s.AvgLoss
	}
	return s
}

// RiskReward is the R:R of a trade set (0 when there are no losses).
func RiskReward(trades []models.Trade) float64 { return Summarize(trades).RR }

// SymbolRow computes the raw and elite metrics for one symbol's trades and
// picks the displayed Prob%. Count is always the raw count.
func SymbolRow(symbol, country string, trades []models.Trade) models.SymbolPerformance {
	raw := Summarize(trades)
	elite := make([]models.Trade, 0, len(trades))
	for i := range trades {
		if trades[i].IsElite() {
			elite = append(elite, trades[i])
		}
	}
	el := Summarize(elite)

	row := models.SymbolPerformance{
		Symbol:     symbol,
		Country:    country,
		RawProb:    raw.WinRate,
		RawCount:   raw.Count,
		EliteProb:  el.WinRate,
		EliteCount: el.Count,
		Prob:       raw.WinRate,
		ProbSource: models.ProbSourceRaw,
		Count:      raw.Count,
		RRRatio:    raw.RR,
		AvgWin:     raw.AvgWin,
		AvgLoss:    raw.AvgLoss,
	}
	if el.Count >= models.EliteMinCount {
		row.Prob = el.WinRate
		row.ProbSource = models.ProbSourceElite
	}
	return row
}

// Aggregate groups trades by (group, symbol) and returns one row per pair,
// ordered by country then symbol.
func Aggregate(trades []models.Trade) []models.SymbolPerformance {
	type key struct{ group, symbol string }
	byKey := make(map[key][]models.Trade)
	for _, t := range trades {
		k := key{t.Group, t.Symbol}
		byKey[k] = append(byKey[k], t)
	}
	keys := make([]key, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].group != keys[j].group {
			return keys[i].group < keys[j].group
		}
		return keys[i].symbol < keys[j].symbol
	})
	out := make([]models.SymbolPerformance, 0, len(keys))
	for _, k := range keys {
		out = append(out, SymbolRow(k.symbol, k.group, byKey[k]))
	}
	return out
}

// Rollup applies each market's display filter to the per-symbol rows.
// Groups without a policy are reported with no passing symbols.
func Rollup(rows []models.SymbolPerformance, policies map[string]models.MarketPolicy) ([]models.MarketRollup, []models.TradeableSymbol) {
	byGroup := make(map[string][]models.SymbolPerformance)
	for _, r := range rows {
		byGroup[r.Country] = append(byGroup[r.Country], r)
	}
	groups := make([]string, 0, len(byGroup))
	for g := range byGroup {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	var rollups []models.MarketRollup
	var tradeable []models.TradeableSymbol
	for _, g := range groups {
		policy, hasPolicy := policies[g]
		ru := models.MarketRollup{Group: g, ProbRule: models.ProbRule}
		var wins, rrSum float64
		for _, r := range byGroup[g] {
			ru.Symbols++
			ru.Trades += r.RawCount
			wins += r.RawProb * float64(r.RawCount) / 100
			if !hasPolicy || !policy.PassesDisplay(r.Prob, r.RRRatio, r.Count) {
				continue
			}
			ru.Passed++
			rrSum += r.RRRatio
			tradeable = append(tradeable, models.TradeableSymbol{
				Group:      g,
				Symbol:     r.Symbol,
				Prob:       r.Prob,
				ProbSource: r.ProbSource,
				Count:      r.Count,
				RRRatio:    r.RRRatio,
			})
		}
		if ru.Trades > 0 {
			ru.WinRate = wins / float64(ru.Trades) * 100
		}
		if ru.Passed > 0 {
			ru.AvgRR = rrSum / float64(ru.Passed)
		}
		rollups = append(rollups, ru)
	}
	return rollups, tradeable
}

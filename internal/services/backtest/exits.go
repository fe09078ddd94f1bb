package backtest

import (
	"PatternScan/internal/domain/models"
	"PatternScan/internal/services/risk"
	"PatternScan/pkg/util"
)

// position is an open trade between its entry bar and its exit.
type position struct {
	forecast  *models.Forecast
	dir       models.Direction
	signalBar int
	entryBar  int
	entry     float64
	levels    risk.Levels
	best      float64 // most favourable close since entry
}

func newPosition(f *models.Forecast, signalBar, entryBar int, entry float64, lv risk.Levels) *position {
	return &position{
		forecast:  f,
		dir:       f.Direction,
		signalBar: signalBar,
		entryBar:  entryBar,
		entry:     entry,
		levels:    lv,
		best:      entry,
	}
}

// step evaluates bar j against the exit rules in priority order:
// stop-loss, take-profit, trailing stop, max hold. When stop-loss and
// take-profit are both inside the bar, stop-loss wins.
func (p *position) step(policy models.MarketPolicy, bar models.Bar, j int) (float64, models.ExitReason, bool) {
	long := p.dir == models.DirectionUp

	if long && bar.Low <= p.levels.StopLoss || !long && bar.High >= p.levels.StopLoss {
		return p.levels.StopLoss, models.ExitStopLoss, true
	}
	if long && bar.High >= p.levels.TakeProfit || !long && bar.Low <= p.levels.TakeProfit {
		return p.levels.TakeProfit, models.ExitTakeProfit, true
	}

	if long && bar.Close > p.best || !long && bar.Close < p.best {
		p.best = bar.Close
	}
	if stop, ok := risk.TrailStop(policy, p.dir, p.entry, p.best); ok {
		if long && bar.Close <= stop || !long && bar.Close >= stop {
			return bar.Close, models.ExitTrailingStop, true
		}
	}

	if j-p.entryBar >= policy.MaxHold {
		return bar.Close, models.ExitMaxHold, true
	}
	return 0, "", false
}

// close builds the trade record for an exit at bar j.
func (p *position) close(bars models.Bars, j int, price float64, reason models.ExitReason) models.Trade {
	f := p.forecast
	ref := bars[p.signalBar].Close
	actual := util.Round((bars[j].Close-ref)/ref*100, models.ReturnPlaces)
	trader := util.Round(p.dir.Sign()*(price-p.entry)/p.entry*100, models.ReturnPlaces)

	outcome := models.OutcomeNeutral
	switch {
	case actual > 0:
		outcome = models.OutcomeUp
	case actual < 0:
		outcome = models.OutcomeDown
	}

	return models.Trade{
		EntryDate:    bars[p.entryBar].Timestamp,
		ExitDate:     bars[j].Timestamp,
		Symbol:       f.Symbol,
		Exchange:     f.Exchange,
		Group:        f.Group,
		Direction:    p.dir,
		Actual:       outcome,
		EntryPrice:   p.entry,
		ExitPrice:    price,
		StopLoss:     p.levels.StopLoss,
		TakeProfit:   p.levels.TakeProfit,
		ActualReturn: actual,
		TraderReturn: trader,
		HoldDays:     j - p.entryBar,
		Correct:      trader > 0,
		ExitReason:   reason,
		Prob:         f.Prob,
	}
}

package usecase

import (
	"context"
	"fmt"

	"PatternScan/internal/domain/models"
	domrepo "PatternScan/internal/domain/repository"
	"PatternScan/internal/services/performance"
	applogger "PatternScan/pkg/logger"
)

// AggregateReport summarises the regenerated reports.
type AggregateReport struct {
	Symbols   int
	Trades    int
	Tradeable int
}

// Aggregator rebuilds symbol_performance.csv and the market roll-up from
// every configured group's trade ledger.
type Aggregator struct {
	trades   domrepo.TradeLedger
	reports  domrepo.ReportWriter
	policies map[string]models.MarketPolicy
	l        *applogger.Logger
}

func NewAggregator(trades domrepo.TradeLedger, reports domrepo.ReportWriter, policies map[string]models.MarketPolicy, l *applogger.Logger) *Aggregator {
	if l == nil {
		l = applogger.Nop()
	}
	return &Aggregator{trades: trades, reports: reports, policies: policies, l: l}
}

// Run regenerates the reports. The performance table always covers all
// groups so a --group run never drops other markets from it.
func (a *Aggregator) Run(ctx context.Context) (AggregateReport, error) {
	var all []models.Trade
	for _, g := range models.SortedGroups(a.policies) {
		trades, err := a.trades.Load(ctx, g)
		if err != nil {
			return AggregateReport{}, fmt.Errorf("aggregate: %w", err)
		}
		all = append(all, trades...)
	}

	rows := performance.Aggregate(all)
	if err := a.reports.WritePerformance(ctx, rows); err != nil {
		return AggregateReport{}, fmt.Errorf("aggregate: %w", err)
	}
	rollups, tradeable := performance.Rollup(rows, a.policies)
	if err := a.reports.WriteRollup(ctx, rollups, tradeable); err != nil {
		return AggregateReport{}, fmt.Errorf("aggregate: %w", err)
	}

	rep := AggregateReport{Symbols: len(rows), Trades: len(all), Tradeable: len(tradeable)}
	a.l.Info("aggregate summary",
		applogger.Int("symbols", rep.Symbols),
		applogger.Int("trades", rep.Trades),
		applogger.Int("tradeable", rep.Tradeable),
		applogger.String("prob_rule", models.ProbRule),
	)
	return rep, nil
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"PatternScan/internal/domain/models"
	domrepo "PatternScan/internal/domain/repository"
	"PatternScan/internal/domain/service"
	"PatternScan/internal/services/backtest"
	"PatternScan/internal/services/forecast"
	"PatternScan/internal/services/gatekeeper"
	"PatternScan/internal/services/volatility"
	applogger "PatternScan/pkg/logger"

	"github.com/google/uuid"
)

// BacktestReport summarises a replay run.
type BacktestReport struct {
	Result
	RunID      string
	Trades     map[string]int // group -> ledger size
	Rejections []string
}

// Backtester replays each target and rewrites the per-group trade ledgers.
type Backtester struct {
	store    domrepo.BarStore
	vol      *volatility.Model
	cal      service.SessionCalendar
	trades   domrepo.TradeLedger
	events   domrepo.EventPublisher
	mirror   domrepo.ForecastMirror
	metrics  domrepo.Metrics
	entry    models.EntryModel
	dispatch *Dispatcher
	l        *applogger.Logger
}

// BacktesterDeps groups the collaborators of Backtester. Events, Mirror and
// Metrics are optional.
type BacktesterDeps struct {
	Store   domrepo.BarStore
	Vol     *volatility.Model
	Cal     service.SessionCalendar
	Trades  domrepo.TradeLedger
	Events  domrepo.EventPublisher
	Mirror  domrepo.ForecastMirror
	Metrics domrepo.Metrics
	Entry   models.EntryModel
}

func NewBacktester(d BacktesterDeps, dispatch *Dispatcher, l *applogger.Logger) *Backtester {
	if l == nil {
		l = applogger.Nop()
	}
	return &Backtester{
		store:    d.Store,
		vol:      d.Vol,
		cal:      d.Cal,
		trades:   d.Trades,
		events:   d.Events,
		mirror:   d.Mirror,
		metrics:  d.Metrics,
		entry:    d.Entry,
		dispatch: dispatch,
		l:        l,
	}
}

// Run replays every target. A trade breaking the ledger invariants aborts
// the run before any ledger is written; other per-symbol errors only skip
// the symbol. A group whose every symbol failed keeps its previous ledger.
func (b *Backtester) Run(ctx context.Context, targets []Target, opts RunOptions) (BacktestReport, error) {
	runID := uuid.NewString()
	l := b.l.With(applogger.String("run_id", runID))

	producer := forecast.NewProducer(b.vol, b.cal, forecast.WithMaxPatternLen(opts.K))
	gate := gatekeeper.New(b.metrics)
	sim := backtest.NewSimulator(producer, gate,
		backtest.WithEntryModel(b.entry),
		backtest.WithFast(opts.Fast),
		backtest.WithMetrics(b.metrics),
	)

	var (
		mu       sync.Mutex
		byGroupT = make(map[string][]models.Trade)
		replayed = make(map[string]int)
	)
	res, err := b.dispatch.Run(ctx, "backtest", targets, func(ctx context.Context, t Target) error {
		bars, err := b.store.GetBars(ctx, t.Key, opts.Bars)
		if err != nil {
			return err
		}
		trades, err := sim.Run(ctx, t.Subject, bars, t.Policy)
		if err != nil {
			return err
		}
		mu.Lock()
		byGroupT[t.Group] = append(byGroupT[t.Group], trades...)
		replayed[t.Group]++
		mu.Unlock()
		return nil
	})
	rep := BacktestReport{Result: res, RunID: runID, Trades: make(map[string]int), Rejections: gate.Summary()}
	if err != nil {
		return rep, fmt.Errorf("backtest: %w", err)
	}
	for key, serr := range res.Skipped {
		if errors.Is(serr, models.ErrInvariantViolation) {
			return rep, fmt.Errorf("backtest aborted at %s: %w", key, serr)
		}
	}

	_, groups := byGroup(targets)
	for _, g := range groups {
		if replayed[g] == 0 {
			l.Warn("no symbol replayed, ledger kept", applogger.String("group", g))
			continue
		}
		ledger := byGroupT[g]
		backtest.SortLedger(ledger)
		if err := b.trades.Save(ctx, g, ledger); err != nil {
			return rep, fmt.Errorf("backtest: save %s ledger: %w", g, err)
		}
		rep.Trades[g] = len(ledger)
		b.publish(ctx, l, g, ledger)
		l.Info("trade ledger written",
			applogger.String("group", g),
			applogger.Int("symbols", replayed[g]),
			applogger.Int("trades", len(ledger)),
			applogger.String("path", b.trades.Path(g)),
		)
	}
	l.Info("backtest summary", applogger.Strings("rejections", rep.Rejections), applogger.Bool("fast", opts.Fast))
	return rep, nil
}

func (b *Backtester) publish(ctx context.Context, l *applogger.Logger, group string, ledger []models.Trade) {
	if b.mirror != nil {
		if err := b.mirror.ReplaceTrades(ctx, group, ledger); err != nil {
			l.Warn("trade mirror failed", applogger.String("group", group), applogger.Error(err))
		}
	}
	if b.events == nil {
		return
	}
	for i := range ledger {
		t := &ledger[i]
		ev := models.Event{Type: models.EventTradeClosed, Symbol: t.Symbol, Group: group, Payload: t}
		if err := b.events.Publish(ctx, ev); err != nil {
			l.Warn("event publish failed", applogger.String("symbol", t.Symbol), applogger.Error(err))
			return
		}
	}
}

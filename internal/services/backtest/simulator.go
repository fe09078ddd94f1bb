package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"PatternScan/internal/domain/models"
	"PatternScan/internal/domain/repository"
	"PatternScan/internal/services/forecast"
	"PatternScan/internal/services/gatekeeper"
	"PatternScan/internal/services/patterns"
	"PatternScan/internal/services/risk"
)

// Simulator replays a symbol's history bar by bar, re-running the forecast
// pipeline on bars[0..i] and trading the accepted forecasts.
type Simulator struct {
	producer *forecast.Producer
	gate     *gatekeeper.Gatekeeper
	metrics  repository.Metrics
	entry    models.EntryModel
	fast     bool
}

// Option configures Simulator.
type Option func(*Simulator)

// WithEntryModel selects next-open (default) or same-bar close entries.
func WithEntryModel(m models.EntryModel) Option {
	return func(s *Simulator) {
		if m != "" {
			s.entry = m
		}
	}
}

// WithFast switches to the incremental replay. Ledgers are identical to the
// literal replay; only the cost differs.
func WithFast(fast bool) Option {
	return func(s *Simulator) { s.fast = fast }
}

// WithMetrics records closed trades.
func WithMetrics(m repository.Metrics) Option {
	return func(s *Simulator) { s.metrics = m }
}

// NewSimulator creates a simulator. A nil gatekeeper gets a private one.
func NewSimulator(producer *forecast.Producer, gate *gatekeeper.Gatekeeper, opts ...Option) *Simulator {
	if gate == nil {
		gate = gatekeeper.New(nil)
	}
	s := &Simulator{producer: producer, gate: gate, entry: models.EntryNextOpen}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Gatekeeper exposes the rejection counters of the runs so far.
func (s *Simulator) Gatekeeper() *gatekeeper.Gatekeeper { return s.gate }

// signalFunc returns the forecast and ATR as of bar i, or a nil forecast.
type signalFunc func(i int) (*models.Forecast, float64, error)

// Run replays bars for one symbol. Positions still open at the end of the
// data are dropped. Any trade breaking the ledger invariants aborts the run.
func (s *Simulator) Run(ctx context.Context, sub forecast.Subject, bars models.Bars, policy models.MarketPolicy) ([]models.Trade, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("backtest %s: %w", sub.Symbol, err)
	}
	if err := bars.Validate(); err != nil {
		return nil, fmt.Errorf("backtest %s: %w", sub.Symbol, err)
	}

	signal := s.literalSignals(sub, bars, policy)
	if s.fast {
		signal = s.fastSignals(sub, bars, policy)
	}

	var (
		trades []models.Trade
		pos    *position
	)
	for i := 0; i < len(bars); i++ {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		if pos != nil && i > pos.entryBar {
			if price, reason, ok := pos.step(policy, bars[i], i); ok {
				t := pos.close(bars, i, price, reason)
				if err := t.Validate(); err != nil {
					return nil, fmt.Errorf("backtest %s bar %d: %w", sub.Symbol, i, err)
				}
				trades = append(trades, t)
				if s.metrics != nil {
					s.metrics.RecordTrade(t.Group, t.ExitReason)
				}
				pos = nil
			}
		}
		if pos != nil {
			continue
		}

		entryBar, entryPrice, ok := s.entryAt(bars, i)
		if !ok {
			continue
		}
		f, atr, err := signal(i)
		if err != nil {
			return nil, fmt.Errorf("backtest %s bar %d: %w", sub.Symbol, i, err)
		}
		if f == nil {
			continue
		}
		if d := s.gate.Evaluate(f, policy, trades); !d.Accepted {
			continue
		}
		lv, err := risk.ExitLevels(policy, f.Direction, entryPrice, atr)
		if errors.Is(err, risk.ErrNoATR) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("backtest %s bar %d: %w", sub.Symbol, i, err)
		}
		pos = newPosition(f, i, entryBar, entryPrice, lv)
	}
	return trades, nil
}

func (s *Simulator) entryAt(bars models.Bars, i int) (int, float64, bool) {
	if s.entry == models.EntryClose {
		return i, bars[i].Close, true
	}
	if i+1 >= len(bars) {
		return 0, 0, false
	}
	return i + 1, bars[i+1].Open, true
}

// literalSignals recomputes thresholds, codes, buckets and ATR from the
// window bars[0..i] on every call.
func (s *Simulator) literalSignals(sub forecast.Subject, bars models.Bars, policy models.MarketPolicy) signalFunc {
	return func(i int) (*models.Forecast, float64, error) {
		window := bars[:i+1]
		f, err := s.producer.Produce(sub, window, policy)
		if errors.Is(err, models.ErrInsufficientHistory) {
			return nil, 0, nil
		}
		if err != nil || f == nil {
			return nil, 0, err
		}
		atr, _ := risk.ATR(window, risk.ATRPeriod)
		return f, atr, nil
	}
}

// fastSignals computes the trailing series once and slices them per bar.
// Every series involved is causal, so slice i equals the literal result.
func (s *Simulator) fastSignals(sub forecast.Subject, bars models.Bars, policy models.MarketPolicy) signalFunc {
	a := s.producer.Analyze(bars)
	atrs := risk.ATRSeries(bars, risk.ATRPeriod)
	acc := patterns.NewAccumulator(s.producer.MaxPatternLen())
	minHistory := s.producer.MinHistory()

	return func(i int) (*models.Forecast, float64, error) {
		if i+1 < minHistory {
			return nil, 0, nil
		}
		acc.Advance(a.Stream, a.Returns, i)
		window := forecast.Analysis{Returns: a.Returns[:i+1], Tau: a.Tau[:i+1], Stream: a.Stream[:i+1]}
		f := s.producer.Build(sub, bars[:i+1], window, acc, policy)
		if f == nil {
			return nil, 0, nil
		}
		atr := atrs[i]
		if math.IsNaN(atr) {
			atr = 0
		}
		return f, atr, nil
	}
}

// SortLedger orders a group ledger by symbol, then entry date.
func SortLedger(trades []models.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		if trades[i].Symbol != trades[j].Symbol {
			return trades[i].Symbol < trades[j].Symbol
		}
		return trades[i].EntryDate.Before(trades[j].EntryDate)
	})
}

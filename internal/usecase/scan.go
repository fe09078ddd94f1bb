package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"PatternScan/internal/domain/models"
	domrepo "PatternScan/internal/domain/repository"
	"PatternScan/internal/domain/service"
	"PatternScan/internal/services/encoder"
	"PatternScan/internal/services/forecast"
	"PatternScan/internal/services/gatekeeper"
	"PatternScan/internal/services/patterns"
	"PatternScan/internal/services/volatility"
	applogger "PatternScan/pkg/logger"
)

// PatternStatsReader lets the scan keep pattern rows of symbols it did not
// scan this run.
type PatternStatsReader interface {
	ReadPatternStats() ([]models.PatternStatsRow, error)
}

// ScanReport summarises a forecast run.
type ScanReport struct {
	Result
	Issued     []models.Forecast
	Duplicates int
	Rejections []string
}

// Scanner runs the live forecast pipeline: bars, thresholds, codes, pattern
// buckets, forecast, gate. Accepted forecasts are appended PENDING to the
// forecast ledger.
type Scanner struct {
	store     domrepo.BarStore
	vol       *volatility.Model
	cal       service.SessionCalendar
	forecasts domrepo.ForecastLedger
	trades    domrepo.TradeLedger
	reports   domrepo.ReportWriter
	events    domrepo.EventPublisher
	mirror    domrepo.ForecastMirror
	metrics   domrepo.Metrics
	clock     service.Clock
	dispatch  *Dispatcher
	l         *applogger.Logger
}

// ScannerDeps groups the collaborators of Scanner. Events, Mirror, Metrics
// and Clock are optional.
type ScannerDeps struct {
	Store     domrepo.BarStore
	Vol       *volatility.Model
	Calendar  service.SessionCalendar
	Forecasts domrepo.ForecastLedger
	Trades    domrepo.TradeLedger
	Reports   domrepo.ReportWriter
	Events    domrepo.EventPublisher
	Mirror    domrepo.ForecastMirror
	Metrics   domrepo.Metrics
	Clock     service.Clock
}

func NewScanner(d ScannerDeps, dispatch *Dispatcher, l *applogger.Logger) *Scanner {
	if l == nil {
		l = applogger.Nop()
	}
	if d.Clock == nil {
		d.Clock = service.SystemClock()
	}
	return &Scanner{
		store:     d.Store,
		vol:       d.Vol,
		cal:       d.Calendar,
		forecasts: d.Forecasts,
		trades:    d.Trades,
		reports:   d.Reports,
		events:    d.Events,
		mirror:    d.Mirror,
		metrics:   d.Metrics,
		clock:     d.Clock,
		dispatch:  dispatch,
		l:         l,
	}
}

type scanOutput struct {
	forecast *models.Forecast
	rows     []models.PatternStatsRow
}

// Run scans every target and checkpoints the ledger and pattern table.
func (s *Scanner) Run(ctx context.Context, targets []Target, opts RunOptions) (ScanReport, error) {
	ledger, err := s.forecasts.Load(ctx)
	if err != nil {
		return ScanReport{}, fmt.Errorf("scan: %w", err)
	}
	history, err := s.history(ctx, targets)
	if err != nil {
		return ScanReport{}, fmt.Errorf("scan: %w", err)
	}

	producer := forecast.NewProducer(s.vol, s.cal, forecast.WithMaxPatternLen(opts.K))
	gate := gatekeeper.New(s.metrics)

	var mu sync.Mutex
	outputs := make(map[string]scanOutput, len(targets))
	res, err := s.dispatch.Run(ctx, "forecast", targets, func(ctx context.Context, t Target) error {
		bars, err := s.store.GetBars(ctx, t.Key, opts.Bars)
		if err != nil {
			return err
		}
		out, err := s.scanSymbol(producer, t, bars)
		if err != nil {
			return err
		}
		if out.forecast != nil {
			if d := gate.Evaluate(out.forecast, t.Policy, history[t.Key.String()]); !d.Accepted {
				out.forecast = nil
			}
		}
		mu.Lock()
		outputs[t.Key.String()] = out
		mu.Unlock()
		return nil
	})
	if err != nil {
		return ScanReport{Result: res}, fmt.Errorf("scan: %w", err)
	}

	rep := ScanReport{Result: res, Rejections: gate.Summary()}
	seen := make(map[string]bool, len(ledger))
	for i := range ledger {
		seen[ledger[i].Key()] = true
	}
	now := s.clock.Now().UTC()
	var rows []models.PatternStatsRow
	scanned := make(map[string]bool, len(outputs))
	for _, t := range targets {
		out, ok := outputs[t.Key.String()]
		if !ok {
			continue
		}
		scanned[t.Symbol] = true
		rows = append(rows, out.rows...)
		if out.forecast == nil {
			continue
		}
		if seen[out.forecast.Key()] {
			rep.Duplicates++
			continue
		}
		seen[out.forecast.Key()] = true
		out.forecast.LastUpdate = now
		rep.Issued = append(rep.Issued, *out.forecast)
	}
	sortForecasts(rep.Issued)

	if len(rep.Issued) > 0 {
		if err := s.forecasts.Save(ctx, append(ledger, rep.Issued...)); err != nil {
			return rep, fmt.Errorf("scan: save ledger: %w", err)
		}
	}
	if err := s.reports.WritePatternStats(ctx, s.mergePatternRows(rows, scanned)); err != nil {
		return rep, fmt.Errorf("scan: pattern stats: %w", err)
	}

	s.publish(ctx, rep.Issued)
	s.l.Info("forecast summary",
		applogger.Int("issued", len(rep.Issued)),
		applogger.Int("duplicates", rep.Duplicates),
		applogger.Strings("rejections", rep.Rejections),
	)
	return rep, nil
}

// scanSymbol analyses one window once and derives both the pattern table
// rows and the live forecast from it.
func (s *Scanner) scanSymbol(p *forecast.Producer, t Target, bars models.Bars) (scanOutput, error) {
	if len(bars) < p.MinHistory() {
		return scanOutput{}, fmt.Errorf("%w: %s has %d bars, need %d", models.ErrInsufficientHistory, t.Symbol, len(bars), p.MinHistory())
	}
	a := p.Analyze(bars)
	tau := a.Tau[len(a.Tau)-1]
	if s.metrics != nil {
		s.metrics.RecordThreshold(t.Symbol, tau)
	}
	byK := p.StatsByK(a)
	out := scanOutput{rows: patterns.Rows(t.Symbol, tau, byK)}

	pattern, ok := encoder.LiveStreak(a.Stream, p.MaxPatternLen())
	if !ok {
		return out, nil
	}
	out.forecast = p.Build(t.Subject, bars, a, forecast.StatsMap(byK[len(pattern)]), t.Policy)
	return out, nil
}

// history loads each group's trade ledger once, indexed by symbol key.
func (s *Scanner) history(ctx context.Context, targets []Target) (map[string][]models.Trade, error) {
	out := make(map[string][]models.Trade)
	groups, _ := byGroup(targets)
	for g, ts := range groups {
		trades, err := s.trades.Load(ctx, g)
		if err != nil {
			return nil, err
		}
		bySymbol := make(map[string][]models.Trade)
		for _, tr := range trades {
			bySymbol[tr.Symbol] = append(bySymbol[tr.Symbol], tr)
		}
		for _, t := range ts {
			out[t.Key.String()] = bySymbol[t.Symbol]
		}
	}
	return out, nil
}

func (s *Scanner) mergePatternRows(rows []models.PatternStatsRow, scanned map[string]bool) []models.PatternStatsRow {
	if r, ok := s.reports.(PatternStatsReader); ok {
		prev, err := r.ReadPatternStats()
		if err != nil {
			s.l.Warn("previous pattern table unreadable, rewriting", applogger.Error(err))
		}
		for _, row := range prev {
			if !scanned[row.Symbol] {
				rows = append(rows, row)
			}
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Symbol < rows[j].Symbol })
	return rows
}

func (s *Scanner) publish(ctx context.Context, issued []models.Forecast) {
	for i := range issued {
		f := &issued[i]
		if s.metrics != nil {
			s.metrics.RecordForecast(f.Group, f.Direction)
		}
		if s.events == nil {
			continue
		}
		err := s.events.Publish(ctx, models.Event{Type: models.EventForecastIssued, Symbol: f.Symbol, Group: f.Group, Payload: f})
		if err != nil {
			s.l.Warn("event publish failed", applogger.String("symbol", f.Symbol), applogger.Error(err))
		}
	}
	if s.mirror != nil && len(issued) > 0 {
		if err := s.mirror.UpsertForecasts(ctx, issued); err != nil && !errors.Is(err, context.Canceled) {
			s.l.Warn("forecast mirror failed", applogger.Error(err))
		}
	}
}

func sortForecasts(rows []models.Forecast) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].ScanDate.Equal(rows[j].ScanDate) {
			return rows[i].ScanDate.Before(rows[j].ScanDate)
		}
		if rows[i].Symbol != rows[j].Symbol {
			return rows[i].Symbol < rows[j].Symbol
		}
		return rows[i].Pattern < rows[j].Pattern
	})
}

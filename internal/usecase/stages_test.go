package usecase

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"testing"
	"time"

	"PatternScan/internal/domain/models"
	domrepo "PatternScan/internal/domain/repository"
	"PatternScan/internal/domain/service"
	"PatternScan/internal/repository"
	"PatternScan/internal/services/calendar"
	"PatternScan/internal/services/verifier"
	"PatternScan/internal/services/volatility"
	"PatternScan/internal/testutil"
)

func alternatingBars() models.Bars {
	return testutil.FromReturns(100, testutil.Alternating(299, 0.02), 0.03)
}

func altTarget(policy models.MarketPolicy) Target {
	tg := targetsFor("ALT")[0]
	tg.Policy = policy
	return tg
}

func newTestScanner(store domrepo.BarStore, dir string, events *eventRecorder, mirror *mirrorRecorder) (*Scanner, *repository.CSVForecastLedger, *repository.CSVReportWriter) {
	ledger := repository.NewCSVForecastLedger(dir)
	reports := repository.NewCSVReportWriter(dir)
	sc := NewScanner(ScannerDeps{
		Store:     store,
		Vol:       volatility.New(volatility.WithMultiplier(0.5)),
		Calendar:  calendar.NewWeekday(),
		Forecasts: ledger,
		Trades:    repository.NewCSVTradeLedger(dir),
		Reports:   reports,
		Events:    events,
		Mirror:    mirror,
		Clock:     service.ClockFunc(func() time.Time { return time.Date(2024, 3, 8, 18, 0, 0, 0, time.UTC) }),
	}, NewDispatcher(2, nil, nil), nil)
	return sc, ledger, reports
}

func TestScannerIssuesAndDeduplicates(t *testing.T) {
	store := newMemStore()
	tg := altTarget(models.DefaultPolicies()["THAI"])
	store.put(tg.Key, alternatingBars())
	dir := t.TempDir()
	events := &eventRecorder{}
	mirror := &mirrorRecorder{}
	sc, ledger, reports := newTestScanner(store, dir, events, mirror)
	ctx := context.Background()
	opts := RunOptions{Bars: 1000, K: 4}

	rep, err := sc.Run(ctx, []Target{tg}, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Issued) != 1 {
		t.Fatalf("issued %d forecasts, want 1", len(rep.Issued))
	}
	f := rep.Issued[0]
	if f.Pattern != "+" || f.Direction != models.DirectionDown || f.Prob != 100 || f.LastUpdate.IsZero() {
		t.Fatalf("forecast = %+v", f)
	}

	rows, err := ledger.Load(ctx)
	if err != nil || len(rows) != 1 || !rows[0].IsPending() {
		t.Fatalf("ledger = %+v, %v", rows, err)
	}
	stats, err := reports.ReadPatternStats()
	if err != nil || len(stats) == 0 {
		t.Fatalf("pattern stats = %d rows, %v", len(stats), err)
	}
	before, _ := os.ReadFile(ledger.Path())

	rep, err = sc.Run(ctx, []Target{tg}, opts)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(rep.Issued) != 0 || rep.Duplicates != 1 {
		t.Fatalf("second run issued %d, duplicates %d", len(rep.Issued), rep.Duplicates)
	}
	after, _ := os.ReadFile(ledger.Path())
	if !bytes.Equal(before, after) {
		t.Fatalf("duplicate scan rewrote the ledger")
	}
	if events.count(models.EventForecastIssued) != 1 || mirror.forecasts != 1 {
		t.Fatalf("events %d mirror %d, want 1/1", events.count(models.EventForecastIssued), mirror.forecasts)
	}
}

func TestScannerRejectsAndSkips(t *testing.T) {
	store := newMemStore()
	policy := models.DefaultPolicies()["THAI"]
	policy.MinCount = 100000
	tg := altTarget(policy)
	store.put(tg.Key, alternatingBars())
	short := targetsFor("SHORT")[0]
	short.Policy = policy
	store.put(short.Key, alternatingBars()[:100])
	missing := targetsFor("GONE")[0]
	missing.Policy = policy

	dir := t.TempDir()
	sc, ledger, _ := newTestScanner(store, dir, nil, nil)
	rep, err := sc.Run(context.Background(), []Target{tg, short, missing}, RunOptions{Bars: 1000, K: 4})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Issued) != 0 {
		t.Fatalf("rejected forecast was issued")
	}
	if len(rep.Rejections) != 1 || rep.Rejections[0] != "min_count=1" {
		t.Fatalf("rejections = %v", rep.Rejections)
	}
	if !errors.Is(rep.Skipped[short.Key.String()], models.ErrInsufficientHistory) {
		t.Fatalf("short history not skipped: %v", rep.Skipped)
	}
	if !errors.Is(rep.Skipped[missing.Key.String()], models.ErrNotFound) {
		t.Fatalf("missing bars not skipped: %v", rep.Skipped)
	}
	if _, err := os.Stat(ledger.Path()); !os.IsNotExist(err) {
		t.Fatalf("ledger written without accepted forecasts")
	}
}

func TestVerifyStageResolvesOnce(t *testing.T) {
	store := newMemStore()
	bars := alternatingBars()
	tg := targetsFor("ALT")[0]
	store.put(tg.Key, bars)

	n := len(bars)
	dir := t.TempDir()
	ledger := repository.NewCSVForecastLedger(dir)
	ctx := context.Background()
	row := models.Forecast{
		ScanDate:    bars[n-2].Timestamp,
		TargetDate:  bars[n-1].Timestamp,
		Symbol:      "ALT",
		Exchange:    "SET",
		Pattern:     "-",
		Direction:   models.DirectionUp,
		Prob:        100,
		UpCount:     40,
		PriceAtScan: bars[n-2].Close,
		Threshold:   0.01,
		TotalBars:   n - 1,
		Actual:      models.OutcomePending,
	}
	if err := ledger.Save(ctx, []models.Forecast{row}); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	clock := service.ClockFunc(func() time.Time { return bars[n-1].Timestamp.Add(30 * time.Hour) })
	v := verifier.New(store, verifier.WithClock(clock), verifier.WithCalendar(calendar.NewWeekday()))
	events := &eventRecorder{}
	stage := NewVerifyStage(ledger, v, events, &mirrorRecorder{}, nil)

	rep, err := stage.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Resolved != 1 || rep.Deferred != 0 {
		t.Fatalf("report = %+v", rep)
	}
	rows, _ := ledger.Load(ctx)
	got := rows[0]
	// The last alternating return is +2%, above the 1% band.
	if got.Actual != models.OutcomeUp || got.Correct == nil || !*got.Correct {
		t.Fatalf("resolved row = %+v", got)
	}
	if math.Abs(got.ChangePct-2) > 1e-3 {
		t.Fatalf("change_pct = %v, want 2", got.ChangePct)
	}
	before, _ := os.ReadFile(ledger.Path())

	rep, err = stage.Run(ctx)
	if err != nil || rep.Resolved != 0 {
		t.Fatalf("second run = %+v, %v", rep, err)
	}
	after, _ := os.ReadFile(ledger.Path())
	if !bytes.Equal(before, after) {
		t.Fatalf("second verifier pass changed the ledger")
	}
	if events.count(models.EventForecastResolved) != 1 {
		t.Fatalf("resolved events = %d", events.count(models.EventForecastResolved))
	}
}

func backtestPolicy() models.MarketPolicy {
	return models.MarketPolicy{
		Group: "THAI", Exchange: "SET", MinProb: 60, MinCount: 1, MinObservations: 1,
		Risk: models.RiskFixedPercent, StopPct: 0.01, TargetPct: 0.05,
		TrailActivate: 1, TrailDistance: 0.5, MaxHold: 3,
	}
}

func runBacktest(t *testing.T, fast bool) ([]byte, BacktestReport, *mirrorRecorder, *eventRecorder) {
	t.Helper()
	store := newMemStore()
	tg := altTarget(backtestPolicy())
	store.put(tg.Key, alternatingBars())
	dir := t.TempDir()
	trades := repository.NewCSVTradeLedger(dir)
	mirror := &mirrorRecorder{}
	events := &eventRecorder{}
	bt := NewBacktester(BacktesterDeps{
		Store:  store,
		Vol:    volatility.New(volatility.WithMultiplier(0.5)),
		Cal:    calendar.NewWeekday(),
		Trades: trades,
		Events: events,
		Mirror: mirror,
		Entry:  models.EntryNextOpen,
	}, NewDispatcher(1, nil, nil), nil)

	rep, err := bt.Run(context.Background(), []Target{tg}, RunOptions{Bars: 1000, K: 4, Fast: fast})
	if err != nil {
		t.Fatalf("Run(fast=%v): %v", fast, err)
	}
	b, err := os.ReadFile(trades.Path("THAI"))
	if err != nil {
		t.Fatalf("ledger not written: %v", err)
	}
	return b, rep, mirror, events
}

func TestBacktesterFastMatchesLiteral(t *testing.T) {
	literal, rep, mirror, events := runBacktest(t, false)
	fast, _, _, _ := runBacktest(t, true)
	if !bytes.Equal(literal, fast) {
		t.Fatalf("fast ledger differs from literal ledger")
	}
	n := rep.Trades["THAI"]
	if n == 0 {
		t.Fatalf("no trades replayed")
	}
	if rep.RunID == "" || mirror.trades["THAI"] != n || events.count(models.EventTradeClosed) != n {
		t.Fatalf("run %q mirror %d events %d, want %d", rep.RunID, mirror.trades["THAI"], events.count(models.EventTradeClosed), n)
	}
}

func TestBacktesterKeepsLedgerWhenNothingReplayed(t *testing.T) {
	dir := t.TempDir()
	trades := repository.NewCSVTradeLedger(dir)
	bt := NewBacktester(BacktesterDeps{
		Store:  newMemStore(),
		Vol:    volatility.New(),
		Trades: trades,
	}, NewDispatcher(1, nil, nil), nil)
	rep, err := bt.Run(context.Background(), []Target{altTarget(backtestPolicy())}, RunOptions{Bars: 1000, K: 4})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Skipped) != 1 {
		t.Fatalf("skipped = %v", rep.Skipped)
	}
	if _, err := os.Stat(trades.Path("THAI")); !os.IsNotExist(err) {
		t.Fatalf("ledger written although no symbol was replayed")
	}
}

func TestAggregatorWritesReports(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	trades := repository.NewCSVTradeLedger(dir)
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	ledger := []models.Trade{
		{EntryDate: day, Symbol: "PTT", Exchange: "SET", Group: "THAI", Direction: models.DirectionUp, Actual: models.OutcomeUp,
			EntryPrice: 100, ExitPrice: 103.5, TraderReturn: 3.5, ActualReturn: 3.5, HoldDays: 2, Correct: true, ExitReason: models.ExitTakeProfit, Prob: 65},
		{EntryDate: day.AddDate(0, 0, 7), Symbol: "PTT", Exchange: "SET", Group: "THAI", Direction: models.DirectionUp, Actual: models.OutcomeDown,
			EntryPrice: 100, ExitPrice: 98.5, TraderReturn: -1.5, ActualReturn: -1.5, HoldDays: 1, Correct: false, ExitReason: models.ExitStopLoss, Prob: 55},
	}
	if err := trades.Save(ctx, "THAI", ledger); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	reports := repository.NewCSVReportWriter(dir)

	rep, err := NewAggregator(trades, reports, models.DefaultPolicies(), nil).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Symbols != 1 || rep.Trades != 2 || rep.Tradeable != 0 {
		t.Fatalf("report = %+v", rep)
	}
	rows, err := reports.ReadPerformance()
	if err != nil || len(rows) != 1 {
		t.Fatalf("performance = %+v, %v", rows, err)
	}
	r := rows[0]
	if r.Country != "THAI" || r.RawCount != 2 || r.RawProb != 50 || r.EliteCount != 1 || r.ProbSource != models.ProbSourceRaw {
		t.Fatalf("row = %+v", r)
	}
	if math.Abs(r.RRRatio-3.5/1.5) > 0.01 {
		t.Fatalf("rr = %v", r.RRRatio)
	}
	rollups, _, err := reports.ReadRollup()
	if err != nil || len(rollups) != 1 || rollups[0].Symbols != 1 || rollups[0].Passed != 0 {
		t.Fatalf("rollup = %+v, %v", rollups, err)
	}
}

func TestIngesterClassifiesOutcomes(t *testing.T) {
	store := newMemStore()
	targets := targetsFor("NEW", "SAME", "BUSY", "BAD")
	store.appends[targets[0].Key.String()] = appendResult{n: 5}
	store.appends[targets[1].Key.String()] = appendResult{err: models.ErrEmptyResponse}
	store.appends[targets[2].Key.String()] = appendResult{err: repository.ErrLocked}
	store.appends[targets[3].Key.String()] = appendResult{err: errors.New("provider down")}

	rep, err := NewIngester(store, NewDispatcher(2, nil, nil), nil).Run(context.Background(), targets)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Added != 5 || rep.UpToDate != 1 || rep.Locked != 1 || rep.OK != 3 || len(rep.Skipped) != 1 {
		t.Fatalf("report = %+v", rep)
	}
}

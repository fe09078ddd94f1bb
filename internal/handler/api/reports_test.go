package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"PatternScan/internal/domain/models"
	"PatternScan/internal/repository"
	xhttp "PatternScan/pkg/http"

	"github.com/labstack/echo/v4"
)

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type reportBody struct {
	Artifact models.Artifact `json:"artifact"`
	Rows     json.RawMessage `json:"rows"`
	Total    int             `json:"total"`
}

type fixture struct {
	e       *echo.Echo
	h       *ReportHandler
	reports *repository.CSVReportWriter
	ledger  *repository.CSVForecastLedger
	trades  *repository.CSVTradeLedger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		e:       echo.New(),
		reports: repository.NewCSVReportWriter(filepath.Join(dir, "data")),
		ledger:  repository.NewCSVForecastLedger(filepath.Join(dir, "logs")),
		trades:  repository.NewCSVTradeLedger(filepath.Join(dir, "logs")),
	}
	f.e.HTTPErrorHandler = xhttp.ErrorHandler
	f.h = NewReportHandler(nil, f.reports, f.ledger, f.trades, 24*time.Hour)
	f.h.RegisterRoutes(f.e)
	return f
}

func (f *fixture) get(t *testing.T, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v (%s)", target, err, rec.Body.String())
	}
	return rec, env
}

func (f *fixture) report(t *testing.T, target string) reportBody {
	t.Helper()
	rec, env := f.get(t, target)
	if rec.Code != http.StatusOK {
		t.Fatalf("%s: status %d body %s", target, rec.Code, rec.Body.String())
	}
	var body reportBody
	if err := json.Unmarshal(env.Data, &body); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	return body
}

func TestPerformanceReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	err := f.reports.WritePerformance(ctx, []models.SymbolPerformance{
		{Symbol: "PTT", Country: "THAI", RawProb: 55, RawCount: 40, EliteProb: 62, EliteCount: 31, Prob: 62, Count: 40, RRRatio: 1.4},
		{Symbol: "AAPL", Country: "US", RawProb: 51, RawCount: 20, Prob: 51, Count: 20, RRRatio: 1.1},
	})
	if err != nil {
		t.Fatalf("WritePerformance: %v", err)
	}

	tests := []struct {
		name   string
		target string
		total  int
		rows   int
	}{
		{"all", "/api/performance", 2, 2},
		{"symbol filter is case insensitive", "/api/performance?symbol=ptt", 1, 1},
		{"country filter", "/api/performance?country=US", 1, 1},
		{"limit keeps total", "/api/performance?limit=1", 2, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := f.report(t, tc.target)
			var rows []models.SymbolPerformance
			if err := json.Unmarshal(body.Rows, &rows); err != nil {
				t.Fatalf("rows: %v", err)
			}
			if body.Total != tc.total || len(rows) != tc.rows {
				t.Fatalf("total=%d rows=%d, want %d/%d", body.Total, len(rows), tc.total, tc.rows)
			}
			if body.Artifact.Path != f.reports.Path(repository.PerformanceFile) || body.Artifact.ModifiedAt.IsZero() {
				t.Fatalf("artifact = %+v", body.Artifact)
			}
			if body.Artifact.Stale {
				t.Fatalf("fresh artifact marked stale")
			}
		})
	}

	body := f.report(t, "/api/performance?symbol=PTT")
	var rows []models.SymbolPerformance
	_ = json.Unmarshal(body.Rows, &rows)
	if rows[0].ProbSource != models.ProbSourceElite {
		t.Fatalf("prob source = %s", rows[0].ProbSource)
	}
}

func TestStaleArtifact(t *testing.T) {
	f := newFixture(t)
	if err := f.reports.WritePerformance(context.Background(), nil); err != nil {
		t.Fatalf("WritePerformance: %v", err)
	}
	old := time.Now().Add(-72 * time.Hour)
	if err := os.Chtimes(f.reports.Path(repository.PerformanceFile), old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	rec, env := f.get(t, "/api/performance")
	if rec.Header().Get("X-Artifact-Stale") != "true" {
		t.Fatalf("missing stale header")
	}
	var body reportBody
	_ = json.Unmarshal(env.Data, &body)
	if !body.Artifact.Stale {
		t.Fatalf("artifact not stale: %+v", body.Artifact)
	}

	_, env = f.get(t, "/health")
	var health struct {
		Status    string                      `json:"status"`
		Artifacts map[string]*models.Artifact `json:"artifacts"`
	}
	if err := json.Unmarshal(env.Data, &health); err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Status != "stale" {
		t.Fatalf("health status = %s", health.Status)
	}
	if health.Artifacts["rollup"] != nil || health.Artifacts["performance"] == nil {
		t.Fatalf("artifacts = %+v", health.Artifacts)
	}
}

func TestForecastsReport(t *testing.T) {
	f := newFixture(t)
	scan := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	rows := []models.Forecast{
		{
			ScanDate: scan, TargetDate: scan.AddDate(0, 0, 3), Symbol: "PTT", Exchange: "SET",
			Pattern: "++-", Direction: models.DirectionUp, Prob: 64, UpCount: 18, DownCount: 10,
			PriceAtScan: 34.25, Threshold: 0.0123, TotalBars: 1000, Actual: models.OutcomePending,
		},
		{
			ScanDate: scan.AddDate(0, 0, -1), TargetDate: scan.AddDate(0, 0, 1), Symbol: "AOT", Exchange: "SET",
			Pattern: "--", Direction: models.DirectionDown, Prob: 70, UpCount: 3, DownCount: 7,
			PriceAtScan: 60, Threshold: 0.01, TotalBars: 800,
			Actual: models.OutcomeDown, PriceActual: 58.8, ChangePct: -2, Correct: models.BoolPtr(true),
			LastUpdate: scan,
		},
	}
	if err := f.ledger.Save(context.Background(), rows); err != nil {
		t.Fatalf("Save: %v", err)
	}

	body := f.report(t, "/api/forecasts")
	var got []models.Forecast
	_ = json.Unmarshal(body.Rows, &got)
	if body.Total != 2 || got[0].Symbol != "PTT" {
		t.Fatalf("want newest scan first, got %+v", got)
	}

	body = f.report(t, "/api/forecasts?pending=true")
	got = nil
	_ = json.Unmarshal(body.Rows, &got)
	if body.Total != 1 || got[0].Symbol != "PTT" {
		t.Fatalf("pending = %+v", got)
	}
}

func TestTradesReport(t *testing.T) {
	f := newFixture(t)
	entry := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	trades := []models.Trade{{
		EntryDate: entry, ExitDate: entry.AddDate(0, 0, 2), Symbol: "PTT", Exchange: "SET", Group: "THAI",
		Direction: models.DirectionUp, Actual: models.OutcomeUp, EntryPrice: 34, ExitPrice: 35,
		ActualReturn: 2.94, TraderReturn: 2.94, HoldDays: 2, Correct: true, ExitReason: models.ExitTakeProfit, Prob: 64,
	}}
	if err := f.trades.Save(context.Background(), "THAI", trades); err != nil {
		t.Fatalf("Save: %v", err)
	}

	body := f.report(t, "/api/trades/thai")
	if body.Total != 1 || body.Artifact.Path != f.trades.Path("THAI") {
		t.Fatalf("body = %+v", body)
	}

	tests := []struct {
		target string
		status int
	}{
		{"/api/trades/US", http.StatusNotFound},
		{"/api/trades/th-ai", http.StatusBadRequest},
		{"/api/trades/THAI?limit=99999", http.StatusBadRequest},
		{"/api/rollup", http.StatusNotFound},
		{"/api/patterns", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.target, func(t *testing.T) {
			rec, env := f.get(t, tc.target)
			if rec.Code != tc.status || env.Status != tc.status {
				t.Fatalf("status %d/%d, want %d", rec.Code, env.Status, tc.status)
			}
		})
	}
}

func TestRollupReport(t *testing.T) {
	f := newFixture(t)
	err := f.reports.WriteRollup(context.Background(),
		[]models.MarketRollup{{Group: "THAI", Symbols: 3, Passed: 1, Trades: 40, WinRate: 55, AvgRR: 1.4, ProbRule: models.ProbRule}},
		[]models.TradeableSymbol{{Group: "THAI", Symbol: "PTT", Prob: 62, ProbSource: models.ProbSourceElite, Count: 40, RRRatio: 1.4}},
	)
	if err != nil {
		t.Fatalf("WriteRollup: %v", err)
	}
	rec, env := f.get(t, "/api/rollup")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body models.RollupResponse
	if err := json.Unmarshal(env.Data, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ProbRule != models.ProbRule || len(body.Markets) != 1 || len(body.Tradeable) != 1 {
		t.Fatalf("rollup = %+v", body)
	}
	if body.Tradeable[0].Symbol != "PTT" {
		t.Fatalf("tradeable = %+v", body.Tradeable)
	}
}

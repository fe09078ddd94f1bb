package repository

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"PatternScan/internal/domain/models"
	"PatternScan/pkg/util"
)

var forecastHeader = []string{
	"scan_date", "target_date", "symbol", "exchange", "pattern", "forecast", "prob", "conf",
	"stats", "price_at_scan", "change_pct", "threshold", "avg_return", "total_bars",
	"actual", "price_actual", "correct", "last_update",
}

var tradeHeader = []string{
	"date", "symbol", "exchange", "group", "forecast", "actual", "correct", "actual_return",
	"trader_return", "entry_price", "exit_price", "stop_loss", "take_profit", "hold_days",
	"exit_reason", "prob",
}

// CSVForecastLedger stores logs/performance_log.csv.
type CSVForecastLedger struct {
	path string
}

func NewCSVForecastLedger(logsDir string) *CSVForecastLedger {
	return &CSVForecastLedger{path: filepath.Join(logsDir, "performance_log.csv")}
}

func (l *CSVForecastLedger) Path() string { return l.path }

func (l *CSVForecastLedger) Load(ctx context.Context) ([]models.Forecast, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := readTable(l.path)
	if err != nil {
		return nil, err
	}
	out := make([]models.Forecast, 0, len(t.rows))
	for i, row := range t.rows {
		f, err := decodeForecast(t, row)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", l.path, i+2, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func (l *CSVForecastLedger) Save(ctx context.Context, rows []models.Forecast) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	recs := make([][]string, 0, len(rows))
	for i := range rows {
		recs = append(recs, encodeForecast(&rows[i]))
	}
	return writeTable(l.path, forecastHeader, recs)
}

func encodeForecast(f *models.Forecast) []string {
	correct, change, actualPrice := "", "", ""
	if f.Correct != nil {
		correct = util.FormatBool(*f.Correct)
		change = util.FormatFloat(f.ChangePct, 4)
		actualPrice = util.FormatPrice(f.PriceActual)
	}
	actual := f.Actual
	if actual == "" {
		actual = models.OutcomePending
	}
	return []string{
		util.FormatDate(f.ScanDate),
		util.FormatDate(f.TargetDate),
		f.Symbol,
		f.Exchange,
		f.Pattern,
		string(f.Direction),
		util.FormatFloat(f.Prob, 2),
		f.Conf(),
		f.Stats(),
		util.FormatPrice(f.PriceAtScan),
		change,
		util.FormatFloat(f.Threshold*100, 4),
		util.FormatFloat(f.AvgReturn, 4),
		strconv.Itoa(f.TotalBars),
		string(actual),
		actualPrice,
		correct,
		formatUpdate(f.LastUpdate),
	}
}

func decodeForecast(t *table, row []string) (models.Forecast, error) {
	var f models.Forecast
	var ok bool
	if f.ScanDate, ok = util.ParseTime(t.get(row, "scan_date")); !ok {
		return f, fmt.Errorf("bad scan_date %q", t.get(row, "scan_date"))
	}
	if f.TargetDate, ok = util.ParseTime(t.get(row, "target_date")); !ok {
		return f, fmt.Errorf("bad target_date %q", t.get(row, "target_date"))
	}
	f.Symbol = t.get(row, "symbol")
	f.Exchange = t.get(row, "exchange")
	f.Pattern = t.get(row, "pattern")
	f.Direction = models.Direction(strings.ToUpper(t.get(row, "forecast")))
	f.Actual = models.Outcome(strings.ToUpper(t.get(row, "actual")))
	if f.Actual == "" {
		f.Actual = models.OutcomePending
	}
	f.UpCount, f.DownCount, f.FlatCount = parseStats(t.get(row, "stats"))
	f.TotalBars = util.ParseIntDefault(t.get(row, "total_bars"), 0)
	f.LastUpdate, _ = util.ParseTime(t.get(row, "last_update"))

	nums := []struct {
		col string
		dst *float64
	}{
		{"prob", &f.Prob},
		{"price_at_scan", &f.PriceAtScan},
		{"threshold", &f.Threshold},
		{"avg_return", &f.AvgReturn},
	}
	for _, n := range nums {
		v, err := util.ParseFloat(t.get(row, n.col))
		if err != nil {
			return f, fmt.Errorf("bad %s: %w", n.col, err)
		}
		*n.dst = v
	}
	f.Threshold /= 100

	if c := t.get(row, "correct"); c != "" && f.Actual != models.OutcomePending {
		v, err := util.ParseBool(c)
		if err != nil {
			return f, fmt.Errorf("bad correct: %w", err)
		}
		f.Correct = models.BoolPtr(v)
		f.PriceActual, _ = util.ParseFloat(t.get(row, "price_actual"))
		f.ChangePct, _ = util.ParseFloat(t.get(row, "change_pct"))
	}
	return f, nil
}

func parseStats(s string) (up, down, flat int) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return 0, 0, 0
	}
	return util.ParseIntDefault(parts[0], 0), util.ParseIntDefault(parts[1], 0), util.ParseIntDefault(parts[2], 0)
}

func formatUpdate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateTime)
}

// CSVTradeLedger stores logs/trade_history_{GROUP}.csv.
type CSVTradeLedger struct {
	dir string
}

func NewCSVTradeLedger(logsDir string) *CSVTradeLedger { return &CSVTradeLedger{dir: logsDir} }

func (l *CSVTradeLedger) Path(group string) string {
	return filepath.Join(l.dir, "trade_history_"+strings.ToUpper(group)+".csv")
}

func (l *CSVTradeLedger) Load(ctx context.Context, group string) ([]models.Trade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := l.Path(group)
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	out := make([]models.Trade, 0, len(t.rows))
	for i, row := range t.rows {
		tr, err := decodeTrade(t, row)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		if tr.Group == "" {
			tr.Group = strings.ToUpper(group)
		}
		out = append(out, tr)
	}
	return out, nil
}

// Save replaces the group ledger. Every trade is validated first so a
// broken run never overwrites the previous ledger.
func (l *CSVTradeLedger) Save(ctx context.Context, group string, trades []models.Trade) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	recs := make([][]string, 0, len(trades))
	for i := range trades {
		if err := trades[i].Validate(); err != nil {
			return err
		}
		recs = append(recs, encodeTrade(&trades[i]))
	}
	return writeTable(l.Path(group), tradeHeader, recs)
}

// encodeTrade derives correct from the stored trader_return so a reload
// always satisfies correct == (trader_return > 0).
func encodeTrade(t *models.Trade) []string {
	trader := util.Round(t.TraderReturn, models.ReturnPlaces)
	return []string{
		util.FormatDate(t.EntryDate),
		t.Symbol,
		t.Exchange,
		t.Group,
		string(t.Direction),
		string(t.Actual),
		util.FormatBool(trader > 0),
		util.FormatFloat(t.ActualReturn, models.ReturnPlaces),
		util.FormatFloat(trader, models.ReturnPlaces),
		util.FormatPrice(t.EntryPrice),
		util.FormatPrice(t.ExitPrice),
		util.FormatPrice(t.StopLoss),
		util.FormatPrice(t.TakeProfit),
		strconv.Itoa(t.HoldDays),
		string(t.ExitReason),
		util.FormatFloat(t.Prob, 2),
	}
}

func decodeTrade(t *table, row []string) (models.Trade, error) {
	var tr models.Trade
	var ok bool
	if tr.EntryDate, ok = util.ParseTime(t.get(row, "date")); !ok {
		return tr, fmt.Errorf("bad date %q", t.get(row, "date"))
	}
	tr.Symbol = t.get(row, "symbol")
	tr.Exchange = t.get(row, "exchange")
	tr.Group = strings.ToUpper(t.get(row, "group"))
	tr.Direction = models.Direction(strings.ToUpper(t.get(row, "forecast")))
	tr.Actual = models.Outcome(strings.ToUpper(t.get(row, "actual")))
	tr.ExitReason = models.ExitReason(strings.ToUpper(t.get(row, "exit_reason")))
	tr.HoldDays = util.ParseIntDefault(t.get(row, "hold_days"), 0)

	correct, err := util.ParseBool(t.get(row, "correct"))
	if err != nil {
		return tr, fmt.Errorf("bad correct: %w", err)
	}
	tr.Correct = correct

	nums := []struct {
		col string
		dst *float64
	}{
		{"actual_return", &tr.ActualReturn},
		{"trader_return", &tr.TraderReturn},
		{"entry_price", &tr.EntryPrice},
		{"exit_price", &tr.ExitPrice},
		{"stop_loss", &tr.StopLoss},
		{"take_profit", &tr.TakeProfit},
		{"prob", &tr.Prob},
	}
	for _, n := range nums {
		v, err := util.ParseFloat(t.get(row, n.col))
		if err != nil {
			return tr, fmt.Errorf("bad %s: %w", n.col, err)
		}
		*n.dst = v
	}
	if math.IsNaN(tr.TraderReturn) {
		return tr, fmt.Errorf("missing trader_return")
	}
	return tr, nil
}

package repository

import (
	"context"
	"path/filepath"
	"strconv"

	"PatternScan/internal/domain/models"
	"PatternScan/pkg/util"
)

// Report artifact names under the data directory.
const (
	PerformanceFile  = "symbol_performance.csv"
	PatternStatsFile = "Master_Pattern_Stats.csv"
	RollupFile       = "market_rollup.csv"
	TradeableFile    = "tradeable_symbols.csv"
)

var (
	performanceHeader = []string{"symbol", "Country", "Raw_Prob%", "Raw_Count", "Elite_Prob%", "Elite_Count",
		"Prob%", "Count", "RR_Ratio", "AvgWin%", "AvgLoss%"}
	patternHeader   = []string{"Symbol", "Threshold", "Pattern", "Pattern_Name", "Category", "Chance", "Prob", "Stats"}
	rollupHeader    = []string{"Group", "Symbols", "Passed", "Trades", "Win_Rate%", "Avg_RR", "Prob_Rule"}
	tradeableHeader = []string{"Group", "Symbol", "Prob%", "Prob_Source", "Count", "RR_Ratio"}
)

// CSVReportWriter regenerates the report CSVs in the data directory.
type CSVReportWriter struct {
	dir string
}

func NewCSVReportWriter(dataDir string) *CSVReportWriter { return &CSVReportWriter{dir: dataDir} }

// Path returns the full path of a report artifact.
func (w *CSVReportWriter) Path(name string) string { return filepath.Join(w.dir, name) }

func (w *CSVReportWriter) WritePerformance(ctx context.Context, rows []models.SymbolPerformance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	recs := make([][]string, 0, len(rows))
	for _, r := range rows {
		recs = append(recs, []string{
			r.Symbol,
			r.Country,
			util.FormatFloat(r.RawProb, 2),
			strconv.Itoa(r.RawCount),
			util.FormatFloat(r.EliteProb, 2),
			strconv.Itoa(r.EliteCount),
			util.FormatFloat(r.Prob, 2),
			strconv.Itoa(r.Count),
			util.FormatFloat(r.RRRatio, 2),
			util.FormatFloat(r.AvgWin, 2),
			util.FormatFloat(r.AvgLoss, 2),
		})
	}
	return writeTable(w.Path(PerformanceFile), performanceHeader, recs)
}

func (w *CSVReportWriter) WritePatternStats(ctx context.Context, rows []models.PatternStatsRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	recs := make([][]string, 0, len(rows))
	for _, r := range rows {
		recs = append(recs, []string{
			r.Symbol,
			util.FormatFloat(r.Threshold*100, 4),
			r.Stats.Pattern,
			r.Name,
			r.Category,
			string(r.Stats.Direction()),
			util.FormatFloat(r.Stats.Prob(), 2),
			strconv.Itoa(r.Stats.UpCount) + "/" + strconv.Itoa(r.Stats.DownCount) + "/" + strconv.Itoa(r.Stats.FlatCount),
		})
	}
	return writeTable(w.Path(PatternStatsFile), patternHeader, recs)
}

func (w *CSVReportWriter) WriteRollup(ctx context.Context, rollups []models.MarketRollup, symbols []models.TradeableSymbol) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	recs := make([][]string, 0, len(rollups))
	for _, r := range rollups {
		recs = append(recs, []string{
			r.Group,
			strconv.Itoa(r.Symbols),
			strconv.Itoa(r.Passed),
			strconv.Itoa(r.Trades),
			util.FormatFloat(r.WinRate, 2),
			util.FormatFloat(r.AvgRR, 2),
			r.ProbRule,
		})
	}
	if err := writeTable(w.Path(RollupFile), rollupHeader, recs); err != nil {
		return err
	}

	recs = make([][]string, 0, len(symbols))
	for _, s := range symbols {
		recs = append(recs, []string{
			s.Group,
			s.Symbol,
			util.FormatFloat(s.Prob, 2),
			s.ProbSource,
			strconv.Itoa(s.Count),
			util.FormatFloat(s.RRRatio, 2),
		})
	}
	return writeTable(w.Path(TradeableFile), tradeableHeader, recs)
}

// ReadPerformance loads data/symbol_performance.csv for the report API.
func (w *CSVReportWriter) ReadPerformance() ([]models.SymbolPerformance, error) {
	t, err := readTable(w.Path(PerformanceFile))
	if err != nil {
		return nil, err
	}
	out := make([]models.SymbolPerformance, 0, len(t.rows))
	for _, row := range t.rows {
		f := func(col string) float64 {
			v, _ := util.ParseFloat(t.get(row, col))
			return v
		}
		i := func(col string) int { return util.ParseIntDefault(t.get(row, col), 0) }
		p := models.SymbolPerformance{
			Symbol:     t.get(row, "symbol"),
			Country:    t.get(row, "Country"),
			RawProb:    f("Raw_Prob%"),
			RawCount:   i("Raw_Count"),
			EliteProb:  f("Elite_Prob%"),
			EliteCount: i("Elite_Count"),
			Prob:       f("Prob%"),
			Count:      i("Count"),
			RRRatio:    f("RR_Ratio"),
			AvgWin:     f("AvgWin%"),
			AvgLoss:    f("AvgLoss%"),
			ProbSource: models.ProbSourceRaw,
		}
		if p.EliteCount >= models.EliteMinCount {
			p.ProbSource = models.ProbSourceElite
		}
		out = append(out, p)
	}
	return out, nil
}

// ReadPatternStats loads data/Master_Pattern_Stats.csv.
func (w *CSVReportWriter) ReadPatternStats() ([]models.PatternStatsRow, error) {
	t, err := readTable(w.Path(PatternStatsFile))
	if err != nil {
		return nil, err
	}
	out := make([]models.PatternStatsRow, 0, len(t.rows))
	for _, row := range t.rows {
		tau, _ := util.ParseFloat(t.get(row, "Threshold"))
		up, down, flat := parseStats(t.get(row, "Stats"))
		out = append(out, models.PatternStatsRow{
			Symbol:    t.get(row, "Symbol"),
			Threshold: tau / 100,
			Name:      t.get(row, "Pattern_Name"),
			Category:  t.get(row, "Category"),
			Stats: models.PatternStats{
				Pattern:   t.get(row, "Pattern"),
				UpCount:   up,
				DownCount: down,
				FlatCount: flat,
			},
		})
	}
	return out, nil
}

// ReadRollup loads the market roll-up and tradeable symbol list.
func (w *CSVReportWriter) ReadRollup() ([]models.MarketRollup, []models.TradeableSymbol, error) {
	t, err := readTable(w.Path(RollupFile))
	if err != nil {
		return nil, nil, err
	}
	rollups := make([]models.MarketRollup, 0, len(t.rows))
	for _, row := range t.rows {
		wr, _ := util.ParseFloat(t.get(row, "Win_Rate%"))
		rr, _ := util.ParseFloat(t.get(row, "Avg_RR"))
		rollups = append(rollups, models.MarketRollup{
			Group:    t.get(row, "Group"),
			Symbols:  util.ParseIntDefault(t.get(row, "Symbols"), 0),
			Passed:   util.ParseIntDefault(t.get(row, "Passed"), 0),
			Trades:   util.ParseIntDefault(t.get(row, "Trades"), 0),
			WinRate:  wr,
			AvgRR:    rr,
			ProbRule: t.get(row, "Prob_Rule"),
		})
	}

	t, err = readTable(w.Path(TradeableFile))
	if err != nil {
		return nil, nil, err
	}
	symbols := make([]models.TradeableSymbol, 0, len(t.rows))
	for _, row := range t.rows {
		prob, _ := util.ParseFloat(t.get(row, "Prob%"))
		rr, _ := util.ParseFloat(t.get(row, "RR_Ratio"))
		symbols = append(symbols, models.TradeableSymbol{
			Group:      t.get(row, "Group"),
			Symbol:     t.get(row, "Symbol"),
			Prob:       prob,
			ProbSource: t.get(row, "Prob_Source"),
			Count:      util.ParseIntDefault(t.get(row, "Count"), 0),
			RRRatio:    rr,
		})
	}
	return rollups, symbols, nil
}

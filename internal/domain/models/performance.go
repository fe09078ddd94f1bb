package models

// EliteProbThreshold is the forecast probability (percent) from which a trade counts as elite.
const EliteProbThreshold = 60.0

// EliteMinCount is the elite sample size from which the elite win rate is displayed.
const EliteMinCount = 30

// ProbRule documents which numbers the Prob% and Count columns carry.
const ProbRule = "Prob% = Elite_Prob% when Elite_Count >= 30 else Raw_Prob%; Count = Raw_Count always"

// Prob sources for the displayed Prob% column.
const (
	ProbSourceElite = "elite"
	ProbSourceRaw   = "raw"
)

// SymbolPerformance is one row of data/symbol_performance.csv.
type SymbolPerformance struct {
	Symbol     string  `json:"symbol"`
	Country    string  `json:"country"`
	RawProb    float64 `json:"raw_prob"`
	RawCount   int     `json:"raw_count"`
	EliteProb  float64 `json:"elite_prob"`
	EliteCount int     `json:"elite_count"`
	Prob       float64 `json:"prob"`
	ProbSource string  `json:"prob_source"`
	Count      int     `json:"count"`
	RRRatio    float64 `json:"rr_ratio"`
	AvgWin     float64 `json:"avg_win_pct"`
	AvgLoss    float64 `json:"avg_loss_pct"`
}

// MarketRollup summarises one market group after applying its display filter.
type MarketRollup struct {
	Group    string  `json:"group"`
	Symbols  int     `json:"symbols"`
	Passed   int     `json:"passed"`
	Trades   int     `json:"trades"`
	WinRate  float64 `json:"win_rate"`
	AvgRR    float64 `json:"avg_rr"`
	ProbRule string  `json:"prob_rule"`
}

// TradeableSymbol is a symbol that cleared its market's display filter.
type TradeableSymbol struct {
	Group      string  `json:"group"`
	Symbol     string  `json:"symbol"`
	Prob       float64 `json:"prob"`
	ProbSource string  `json:"prob_source"`
	Count      int     `json:"count"`
	RRRatio    float64 `json:"rr_ratio"`
}

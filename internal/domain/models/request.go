package models

import "time"

// PerformanceRequest filters GET /api/performance.
type PerformanceRequest struct {
	Symbol  string `query:"symbol"`
	Country string `query:"country" validate:"omitempty,alphanum"`
	Limit   int    `query:"limit" default:"500" validate:"gte=1,lte=5000"`
}

// ForecastsRequest filters GET /api/forecasts.
type ForecastsRequest struct {
	Symbol   string `query:"symbol"`
	Exchange string `query:"exchange" validate:"omitempty,alphanum"`
	Pending  bool   `query:"pending"`
	Limit    int    `query:"limit" default:"500" validate:"gte=1,lte=5000"`
}

// PatternsRequest filters GET /api/patterns.
type PatternsRequest struct {
	Symbol   string `query:"symbol"`
	Category string `query:"category"`
	Limit    int    `query:"limit" default:"1000" validate:"gte=1,lte=10000"`
}

// TradesRequest selects one trade ledger for GET /api/trades/:group.
type TradesRequest struct {
	Group  string `param:"group" validate:"required,alphanum"`
	Symbol string `query:"symbol"`
	Limit  int    `query:"limit" default:"500" validate:"gte=1,lte=5000"`
}

// Artifact describes the file a report was read from. Stale is set when the
// file has not been rewritten within the server's staleness window.
type Artifact struct {
	Path       string    `json:"path"`
	ModifiedAt time.Time `json:"modified_at"`
	Stale      bool      `json:"stale"`
}

// ReportResponse wraps report rows with their source artifact.
type ReportResponse struct {
	Artifact Artifact    `json:"artifact"`
	Rows     interface{} `json:"rows"`
	Total    int         `json:"total"`
}

// RollupResponse is the body of GET /api/rollup.
type RollupResponse struct {
	Artifact  Artifact          `json:"artifact"`
	ProbRule  string            `json:"prob_rule"`
	Markets   []MarketRollup    `json:"markets"`
	Tradeable []TradeableSymbol `json:"tradeable"`
}

package repository

import (
	"context"
	"time"

	"PatternScan/internal/domain/models"
)

// BarProvider is the upstream OHLCV source. A zero since requests the latest
// n bars; otherwise only bars strictly newer than since are returned.
type BarProvider interface {
	Name() string
	FetchBars(ctx context.Context, key BarKey, n int, since time.Time) (models.Bars, error)
}

// BarStore serves cached bar windows and keeps them current.
type BarStore interface {
	GetBars(ctx context.Context, key BarKey, n int) (models.Bars, error)
	AppendLatest(ctx context.Context, key BarKey) (int, error)
}

// BarSink receives freshly ingested bars (e.g. a columnar mirror).
type BarSink interface {
	StoreBars(ctx context.Context, key BarKey, bars models.Bars) error
}

// ForecastLedger persists logs/performance_log.csv.
type ForecastLedger interface {
	Load(ctx context.Context) ([]models.Forecast, error)
	Save(ctx context.Context, rows []models.Forecast) error
	Path() string
}

// TradeLedger persists logs/trade_history_{GROUP}.csv.
type TradeLedger interface {
	Load(ctx context.Context, group string) ([]models.Trade, error)
	Save(ctx context.Context, group string, trades []models.Trade) error
	Path(group string) string
}

// ReportWriter materialises the aggregator and pattern outputs.
type ReportWriter interface {
	WritePerformance(ctx context.Context, rows []models.SymbolPerformance) error
	WritePatternStats(ctx context.Context, rows []models.PatternStatsRow) error
	WriteRollup(ctx context.Context, rollups []models.MarketRollup, symbols []models.TradeableSymbol) error
}

// EventPublisher fans domain events out to external consumers.
type EventPublisher interface {
	Publish(ctx context.Context, ev models.Event) error
	Close() error
}

// ForecastMirror copies ledgers into a relational store.
type ForecastMirror interface {
	UpsertForecasts(ctx context.Context, rows []models.Forecast) error
	ReplaceTrades(ctx context.Context, group string, trades []models.Trade) error
	Close() error
}

// Metrics records pipeline counters.
type Metrics interface {
	RecordForecast(group string, dir models.Direction)
	RecordRejection(group, reason string)
	RecordVerification(outcome string)
	RecordTrade(group string, reason models.ExitReason)
	RecordFetch(provider string, attempt int, err error)
	RecordThreshold(symbol string, tau float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"PatternScan/internal/domain/models"
	domrepo "PatternScan/internal/domain/repository"
	pkgch "PatternScan/pkg/clickhouse"
	applogger "PatternScan/pkg/logger"
)

// CHBarStore reads and writes OHLCV bars in a ClickHouse table. It serves as
// a BarProvider and as the ingest BarSink.
type CHBarStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHBarStore(ch *pkgch.Client, database, table string) *CHBarStore {
	if table == "" {
		table = "bars"
	}
	if database != "" && !strings.Contains(table, ".") {
		table = database + "." + table
	}
	return &CHBarStore{db: ch.DB(), table: table, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *CHBarStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

// BarSchema returns the idempotent DDL for the bars table.
func BarSchema(database, table string) []string {
	if table == "" {
		table = "bars"
	}
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            exchange LowCardinality(String),
            symbol   LowCardinality(String),
            bar_interval LowCardinality(String),
            ts       DateTime64(3, 'UTC'),
            open     Float64,
            high     Float64,
            low      Float64,
            close    Float64,
            volume   Float64,
            ingested_at DateTime DEFAULT now()
        ) ENGINE = ReplacingMergeTree(ingested_at)
        ORDER BY (exchange, symbol, bar_interval, ts)`, database, table),
	}
}

func (s *CHBarStore) Name() string { return "clickhouse" }

func (s *CHBarStore) FetchBars(ctx context.Context, key domrepo.BarKey, n int, since time.Time) (models.Bars, error) {
	start := time.Now()
	where := "exchange = ? AND symbol = ? AND bar_interval = ?"
	args := []interface{}{key.Exchange, key.Symbol, string(key.Interval)}
	if !since.IsZero() {
		where += " AND ts > ?"
		args = append(args, since.UTC())
	}
	q := fmt.Sprintf(`
        SELECT ts, open, high, low, close, volume
        FROM %s FINAL
        WHERE %s
        ORDER BY ts DESC`, s.table, where)
	if n > 0 {
		q += "\n        LIMIT ?"
		args = append(args, n)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse fetch_bars query error",
			applogger.String("table", s.table),
			applogger.String("key", key.String()),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	defer rows.Close()

	out := make(models.Bars, 0, max(n, 64))
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("%w: scan bar: %v", models.ErrCorruptBars, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	out = key.Normalize(out)
	// reverse to ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	s.l.Debug("clickhouse fetch_bars ok",
		applogger.String("key", key.String()),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// StoreBars inserts bars; re-inserting a timestamp is collapsed by the engine.
func (s *CHBarStore) StoreBars(ctx context.Context, key domrepo.BarKey, bars models.Bars) error {
	const chunkSize = 2000
	for start := 0; start < len(bars); start += chunkSize {
		end := min(start+chunkSize, len(bars))
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*9)
		for _, b := range bars[start:end] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, key.Exchange, key.Symbol, string(key.Interval),
				b.Timestamp.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume)
		}
		q := fmt.Sprintf("INSERT INTO %s (exchange, symbol, bar_interval, ts, open, high, low, close, volume) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert bars %s: %w", key, err)
		}
	}
	return nil
}

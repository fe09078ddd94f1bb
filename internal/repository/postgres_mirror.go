package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"PatternScan/internal/domain/models"
)

// ForecastRow is the relational copy of one performance_log.csv row.
type ForecastRow struct {
	ScanDate    time.Time `gorm:"type:date;primaryKey"`
	Symbol      string    `gorm:"size:32;primaryKey"`
	Pattern     string    `gorm:"size:16;primaryKey"`
	Exchange    string    `gorm:"size:16;index"`
	TargetDate  time.Time `gorm:"type:date;index"`
	Forecast    string    `gorm:"size:10;not null"`
	Prob        float64   `gorm:"type:decimal(6,2)"`
	UpCount     int
	DownCount   int
	FlatCount   int
	PriceAtScan float64
	Threshold   float64
	AvgReturn   float64
	TotalBars   int
	Actual      string `gorm:"size:10;index"`
	PriceActual *float64
	ChangePct   *float64
	Correct     *bool
	LastUpdate  time.Time
}

func (ForecastRow) TableName() string { return "forecasts" }

// TradeRow is the relational copy of one trade_history row.
type TradeRow struct {
	ID           int64      `gorm:"primaryKey;autoIncrement"`
	Group        string     `gorm:"column:market_group;size:16;index;not null"`
	EntryDate    time.Time  `gorm:"type:date;index"`
	ExitDate     *time.Time `gorm:"type:date"`
	Symbol       string     `gorm:"size:32;index"`
	Exchange     string     `gorm:"size:16"`
	Forecast     string     `gorm:"size:10"`
	Actual       string     `gorm:"size:10"`
	Correct      bool
	ActualReturn float64
	TraderReturn float64
	EntryPrice   float64
	ExitPrice    float64
	StopLoss     float64
	TakeProfit   float64
	HoldDays     int
	ExitReason   string  `gorm:"size:16"`
	Prob         float64 `gorm:"type:decimal(6,2)"`
}

func (TradeRow) TableName() string { return "trades" }

// PostgresMirror copies ledgers into Postgres for ad-hoc SQL. The CSV files
// stay authoritative.
type PostgresMirror struct {
	db *gorm.DB
}

// OpenPostgresMirror connects and migrates the mirror tables.
func OpenPostgresMirror(dsn string, maxOpen, maxIdle int, maxLife time.Duration) (*PostgresMirror, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(maxLife)

	m := NewPostgresMirror(db)
	if err := m.Migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return m, nil
}

// NewPostgresMirror wraps an open gorm handle.
func NewPostgresMirror(db *gorm.DB) *PostgresMirror { return &PostgresMirror{db: db} }

func (m *PostgresMirror) Migrate() error {
	if err := m.db.AutoMigrate(&ForecastRow{}, &TradeRow{}); err != nil {
		return fmt.Errorf("migrate mirror: %w", err)
	}
	return nil
}

// UpsertForecasts inserts new rows and refreshes the outcome columns of
// existing ones.
func (m *PostgresMirror) UpsertForecasts(ctx context.Context, rows []models.Forecast) error {
	if len(rows) == 0 {
		return nil
	}
	recs := make([]ForecastRow, 0, len(rows))
	for i := range rows {
		recs = append(recs, toForecastRow(&rows[i]))
	}
	err := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "scan_date"}, {Name: "symbol"}, {Name: "pattern"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"target_date", "actual", "price_actual", "change_pct", "correct", "last_update",
		}),
	}).CreateInBatches(recs, 500).Error
	if err != nil {
		return fmt.Errorf("upsert forecasts: %w", err)
	}
	return nil
}

// ReplaceTrades swaps a group's trades in one transaction.
func (m *PostgresMirror) ReplaceTrades(ctx context.Context, group string, trades []models.Trade) error {
	group = strings.ToUpper(group)
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("market_group = ?", group).Delete(&TradeRow{}).Error; err != nil {
			return fmt.Errorf("clear trades %s: %w", group, err)
		}
		if len(trades) == 0 {
			return nil
		}
		recs := make([]TradeRow, 0, len(trades))
		for i := range trades {
			recs = append(recs, toTradeRow(group, &trades[i]))
		}
		if err := tx.CreateInBatches(recs, 500).Error; err != nil {
			return fmt.Errorf("insert trades %s: %w", group, err)
		}
		return nil
	})
}

func (m *PostgresMirror) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toForecastRow(f *models.Forecast) ForecastRow {
	r := ForecastRow{
		ScanDate:    f.ScanDate,
		Symbol:      f.Symbol,
		Pattern:     f.Pattern,
		Exchange:    f.Exchange,
		TargetDate:  f.TargetDate,
		Forecast:    string(f.Direction),
		Prob:        f.Prob,
		UpCount:     f.UpCount,
		DownCount:   f.DownCount,
		FlatCount:   f.FlatCount,
		PriceAtScan: f.PriceAtScan,
		Threshold:   f.Threshold,
		AvgReturn:   f.AvgReturn,
		TotalBars:   f.TotalBars,
		Actual:      string(f.Actual),
		Correct:     f.Correct,
		LastUpdate:  f.LastUpdate,
	}
	if f.Correct != nil {
		price, change := f.PriceActual, f.ChangePct
		r.PriceActual, r.ChangePct = &price, &change
	}
	return r
}

func toTradeRow(group string, t *models.Trade) TradeRow {
	r := TradeRow{
		Group:        group,
		EntryDate:    t.EntryDate,
		Symbol:       t.Symbol,
		Exchange:     t.Exchange,
		Forecast:     string(t.Direction),
		Actual:       string(t.Actual),
		Correct:      t.Correct,
		ActualReturn: t.ActualReturn,
		TraderReturn: t.TraderReturn,
		EntryPrice:   t.EntryPrice,
		ExitPrice:    t.ExitPrice,
		StopLoss:     t.StopLoss,
		TakeProfit:   t.TakeProfit,
		HoldDays:     t.HoldDays,
		ExitReason:   string(t.ExitReason),
		Prob:         t.Prob,
	}
	if !t.ExitDate.IsZero() {
		exit := t.ExitDate
		r.ExitDate = &exit
	}
	return r
}

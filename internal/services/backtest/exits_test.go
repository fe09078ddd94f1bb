package backtest

import (
	"math"
	"testing"
	"time"

	"PatternScan/internal/domain/models"
	"PatternScan/internal/services/risk"
)

func ohlc(day int, o, h, l, c float64) models.Bar {
	return models.Bar{Timestamp: time.Date(2024, 3, 1+day, 0, 0, 0, 0, time.UTC), Open: o, High: h, Low: l, Close: c}
}

func testPolicy() models.MarketPolicy {
	return models.MarketPolicy{
		Group: "TEST", Risk: models.RiskFixedPercent, StopPct: 0.01, TargetPct: 0.05,
		TrailActivate: 0.015, TrailDistance: 0.5, MaxHold: 3,
	}
}

// replay feeds bars[1:] to a position entered at bars[0].Open.
func replay(t *testing.T, dir models.Direction, policy models.MarketPolicy, lv risk.Levels, bars models.Bars) (models.Trade, bool) {
	t.Helper()
	f := &models.Forecast{Symbol: "SYM", Group: policy.Group, Direction: dir, Prob: 70}
	p := newPosition(f, 0, 0, bars[0].Open, lv)
	for j := 1; j < len(bars); j++ {
		if price, reason, ok := p.step(policy, bars[j], j); ok {
			tr := p.close(bars, j, price, reason)
			if err := tr.Validate(); err != nil {
				t.Fatalf("trade invalid: %v", err)
			}
			return tr, true
		}
	}
	return models.Trade{}, false
}

func TestTrailingStopActivation(t *testing.T) {
	bars := models.Bars{
		ohlc(0, 100, 100, 100, 100),
		ohlc(1, 100, 101.5, 100, 101.5),
		ohlc(2, 101.5, 103, 101.5, 103),
		ohlc(3, 103, 103, 103*0.985, 103*0.985),
	}
	lv := risk.Levels{StopLoss: 90, TakeProfit: 200}
	tr, ok := replay(t, models.DirectionUp, testPolicy(), lv, bars)
	if !ok {
		t.Fatalf("expected an exit")
	}
	if tr.ExitReason != models.ExitTrailingStop || tr.ExitPrice != bars[3].Close {
		t.Fatalf("exit = %s at %v, want TRAILING_STOP at %v", tr.ExitReason, tr.ExitPrice, bars[3].Close)
	}
	if math.Abs(tr.TraderReturn-1.455) > 1e-6 || tr.HoldDays != 3 || !tr.Correct {
		t.Fatalf("trade = %+v", tr)
	}
}

func TestSubBasisPointGainIsNotCorrect(t *testing.T) {
	bars := models.Bars{
		ohlc(0, 50000, 50000, 50000, 50000),
		ohlc(1, 50000, 50000.01, 50000, 50000.01),
		ohlc(2, 50000.01, 50000.01, 50000.01, 50000.01),
		ohlc(3, 50000.01, 50000.01, 50000.01, 50000.01),
	}
	lv := risk.Levels{StopLoss: 40000, TakeProfit: 60000}
	tr, ok := replay(t, models.DirectionUp, testPolicy(), lv, bars)
	if !ok || tr.ExitReason != models.ExitMaxHold {
		t.Fatalf("trade = %+v, ok = %v", tr, ok)
	}
	if tr.TraderReturn != 0 || tr.Correct {
		t.Fatalf("trader_return = %v correct = %v, want 0 and false", tr.TraderReturn, tr.Correct)
	}
}

func TestMaxHoldExit(t *testing.T) {
	bars := models.Bars{
		ohlc(0, 100, 100.2, 99.8, 100),
		ohlc(1, 100, 100.4, 99.6, 100.3),
		ohlc(2, 100.3, 100.5, 99.7, 99.9),
		ohlc(3, 99.9, 100.4, 99.5, 100.2),
		ohlc(4, 100.2, 100.6, 99.9, 100.1),
	}
	lv, _ := risk.ExitLevels(testPolicy(), models.DirectionUp, 100, 0)
	tr, ok := replay(t, models.DirectionUp, testPolicy(), lv, bars)
	if !ok {
		t.Fatalf("expected an exit")
	}
	if tr.ExitReason != models.ExitMaxHold || tr.ExitPrice != bars[3].Close || tr.HoldDays != 3 {
		t.Fatalf("exit = %s at %v after %d, want MAX_HOLD at %v after 3", tr.ExitReason, tr.ExitPrice, tr.HoldDays, bars[3].Close)
	}
	if !tr.ExitDate.Equal(bars[3].Timestamp) {
		t.Fatalf("exit date = %v", tr.ExitDate)
	}
}

func TestExitPriority(t *testing.T) {
	policy := testPolicy()
	tests := []struct {
		name   string
		dir    models.Direction
		bar    models.Bar
		reason models.ExitReason
		price  float64
	}{
		{"long stop wins inside wide bar", models.DirectionUp, ohlc(1, 100, 106, 98, 101), models.ExitStopLoss, 99},
		{"long take profit", models.DirectionUp, ohlc(1, 100, 105.5, 99.5, 105), models.ExitTakeProfit, 105},
		{"short stop wins inside wide bar", models.DirectionDown, ohlc(1, 100, 102, 94, 99), models.ExitStopLoss, 101},
		{"short take profit", models.DirectionDown, ohlc(1, 100, 100.5, 94.9, 95.5), models.ExitTakeProfit, 95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lv, err := risk.ExitLevels(policy, tt.dir, 100, 0)
			if err != nil {
				t.Fatal(err)
			}
			bars := models.Bars{ohlc(0, 100, 100, 100, 100), tt.bar}
			tr, ok := replay(t, tt.dir, policy, lv, bars)
			if !ok {
				t.Fatalf("expected an exit")
			}
			if tr.ExitReason != tt.reason || math.Abs(tr.ExitPrice-tt.price) > 1e-9 {
				t.Fatalf("exit = %s at %v, want %s at %v", tr.ExitReason, tr.ExitPrice, tt.reason, tt.price)
			}
			wantCorrect := tt.reason == models.ExitTakeProfit
			if tr.Correct != wantCorrect {
				t.Fatalf("correct = %v with trader_return %v", tr.Correct, tr.TraderReturn)
			}
		})
	}
}

func TestShortTrailingStop(t *testing.T) {
	bars := models.Bars{
		ohlc(0, 100, 100, 100, 100),
		ohlc(1, 100, 100, 98, 98),
		ohlc(2, 98, 99.2, 98, 99.1),
	}
	lv := risk.Levels{StopLoss: 110, TakeProfit: 50}
	tr, ok := replay(t, models.DirectionDown, testPolicy(), lv, bars)
	if !ok || tr.ExitReason != models.ExitTrailingStop || tr.ExitPrice != 99.1 {
		t.Fatalf("trade = %+v (%v)", tr, ok)
	}
	if tr.TraderReturn <= 0 || !tr.Correct {
		t.Fatalf("short trail should lock a gain, got %v", tr.TraderReturn)
	}
}

package repository

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"PatternScan/internal/domain/models"
	domrepo "PatternScan/internal/domain/repository"
)

func TestBarFilePath(t *testing.T) {
	tests := []struct {
		key  domrepo.BarKey
		want string
	}{
		{domrepo.BarKey{Exchange: "SET", Symbol: "PTT", Interval: domrepo.Interval1d}, "SET_PTT.csv"},
		{domrepo.BarKey{Exchange: "NASDAQ", Symbol: "AAPL", Interval: domrepo.Interval1h}, "NASDAQ_AAPL_1h.csv"},
		{domrepo.BarKey{Exchange: "TWSE", Symbol: "2330/TW"}, "TWSE_2330-TW.csv"},
	}
	for _, tt := range tests {
		if got := BarFilePath("data/cache", tt.key); got != filepath.Join("data/cache", tt.want) {
			t.Errorf("BarFilePath(%v) = %s, want %s", tt.key, got, tt.want)
		}
	}
}

func TestDecodeBars(t *testing.T) {
	in := "Date,Open,High,Low,Close,Adj Close,Volume\n" +
		"2024-01-02,10,11,9.5,10.5,10.4,1200\n" +
		"2024-01-03,10.5,10.8,10.1,10.2,10.1,900\n"
	bars, err := DecodeBars(strings.NewReader(in))
	if err != nil {
		t.Fatalf("DecodeBars: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("len = %d", len(bars))
	}
	b := bars[1]
	if !b.Timestamp.Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)) ||
		b.Open != 10.5 || b.High != 10.8 || b.Low != 10.1 || b.Close != 10.2 || b.Volume != 900 {
		t.Fatalf("bar = %+v", b)
	}

	_, err = DecodeBars(strings.NewReader("timestamp,open,high,low,close\n"))
	if !errors.Is(err, models.ErrCorruptBars) {
		t.Fatalf("missing volume column: err = %v", err)
	}
	_, err = DecodeBars(strings.NewReader("timestamp,open,high,low,close,volume\nyesterday,1,1,1,1,1\n"))
	if !errors.Is(err, models.ErrCorruptBars) {
		t.Fatalf("bad timestamp: err = %v", err)
	}
}

func TestEncodeBarsRoundTrip(t *testing.T) {
	bars := models.Bars{
		{Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 1.1, High: 1.25, Low: 1.05, Close: 1.2, Volume: 0},
		{Timestamp: time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC), Open: 1.2, High: 1.3, Low: 1.1, Close: 1.123456789, Volume: 5},
	}
	path := filepath.Join(t.TempDir(), "x.csv")
	if err := WriteBarFile(path, bars); err != nil {
		t.Fatalf("WriteBarFile: %v", err)
	}
	got, err := ReadBarFile(path)
	if err != nil {
		t.Fatalf("ReadBarFile: %v", err)
	}
	if len(got) != 2 || !got[1].Timestamp.Equal(bars[1].Timestamp) {
		t.Fatalf("got %+v", got)
	}
	if got[1].Close != 1.123457 {
		t.Fatalf("close = %v, want 6dp rounding", got[1].Close)
	}

	ict := time.FixedZone("ICT", 7*3600)
	local := models.Bars{
		{Timestamp: time.Date(2024, 3, 7, 0, 0, 0, 0, ict), Open: 1, High: 1, Low: 1, Close: 1},
		{Timestamp: time.Date(2024, 3, 8, 10, 0, 0, 0, ict), Open: 2, High: 2, Low: 2, Close: 2},
	}
	if err := WriteBarFile(path, local); err != nil {
		t.Fatalf("WriteBarFile: %v", err)
	}
	got, err = ReadBarFile(path)
	if err != nil {
		t.Fatalf("ReadBarFile: %v", err)
	}
	for i := range local {
		if !got[i].Timestamp.Equal(local[i].Timestamp) || got[i].Timestamp.Day() != local[i].Timestamp.Day() {
			t.Fatalf("bar %d in %v out %v", i, local[i].Timestamp, got[i].Timestamp)
		}
	}

	missing, err := ReadBarFile(filepath.Join(t.TempDir(), "none.csv"))
	if err != nil || missing != nil {
		t.Fatalf("missing file: %v %v", missing, err)
	}
}

func TestMergeBars(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	bar := func(d int, c float64) models.Bar {
		return models.Bar{Timestamp: day(d), Open: c, High: c, Low: c, Close: c}
	}
	base := models.Bars{bar(2, 1), bar(3, 2)}
	fresh := models.Bars{bar(5, 4), bar(3, 2.5), bar(4, 3), bar(5, 4)}

	merged, added := MergeBars(base, fresh)
	if added != 2 {
		t.Fatalf("added = %d, want 2", added)
	}
	if len(merged) != 4 {
		t.Fatalf("len = %d, want 4", len(merged))
	}
	if merged[1].Close != 2.5 {
		t.Fatalf("duplicate timestamp should take the fresh bar, got %v", merged[1].Close)
	}
	if err := merged.Validate(); err != nil {
		t.Fatalf("merged not monotonic: %v", err)
	}
}

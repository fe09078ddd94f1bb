package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	at := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-10-10T10:10:10Z", at, true},
		{"2024-10-10", time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC), true},
		{"2024-10-10 10:10:10", at, true},
		{strconv.FormatInt(at.Unix(), 10), at, true},
		{strconv.FormatInt(at.UnixMilli(), 10), at, true},
		{" ", time.Time{}, false},
		{"10/10/2024", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTime(tt.in)
			if ok != tt.ok || !got.Equal(tt.want) {
				t.Fatalf("ParseTime(%q) = %v %v, want %v %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	if got := ParseTimeDefault("bogus", def); !got.Equal(def) {
		t.Fatalf("got %v", got)
	}
	if got := ParseTimeDefault("2025-03-04", def); got.Day() != 4 {
		t.Fatalf("got %v", got)
	}
}

func TestFormatTimestamp(t *testing.T) {
	if got := FormatTimestamp(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)); got != "2024-01-02" {
		t.Fatalf("daily = %q", got)
	}
	if got := FormatTimestamp(time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)); got != "2024-01-02T14:30:00Z" {
		t.Fatalf("intraday = %q", got)
	}

	ict := time.FixedZone("ICT", 7*3600)
	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2024, 3, 8, 0, 0, 0, 0, ict), "2024-03-08T00:00:00+07:00"},
		{time.Date(2024, 3, 8, 10, 0, 0, 0, ict), "2024-03-08T10:00:00+07:00"},
	}
	for _, tt := range tests {
		got := FormatTimestamp(tt.in)
		if got != tt.want {
			t.Fatalf("FormatTimestamp(%v) = %q, want %q", tt.in, got, tt.want)
		}
		back, ok := ParseTime(got)
		if !ok || !back.Equal(tt.in) || back.Day() != tt.in.Day() {
			t.Fatalf("ParseTime(%q) = %v, want %v", got, back, tt.in)
		}
	}
}

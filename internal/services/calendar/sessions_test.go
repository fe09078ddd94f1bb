package calendar

import (
	"testing"
	"time"
)

func TestNextSession(t *testing.T) {
	cal := NewWeekday("2024-01-01")
	tests := []struct {
		name string
		day  string
		want string
	}{
		{"thursday to friday", "2024-03-07", "2024-03-08"},
		{"friday skips weekend", "2024-03-08", "2024-03-11"},
		{"saturday to monday", "2024-03-09", "2024-03-11"},
		{"holiday skipped", "2023-12-29", "2024-01-02"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			day, _ := time.Parse(time.DateOnly, tt.day)
			got := cal.NextSession(day).Format(time.DateOnly)
			if got != tt.want {
				t.Fatalf("NextSession(%s) = %s, want %s", tt.day, got, tt.want)
			}
		})
	}
}

func TestIsSession(t *testing.T) {
	cal := NewWeekday()
	sat := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	if cal.IsSession(sat) {
		t.Fatalf("saturday must not be a session")
	}
	if !cal.IsSession(sat.AddDate(0, 0, 2)) {
		t.Fatalf("monday must be a session")
	}
}

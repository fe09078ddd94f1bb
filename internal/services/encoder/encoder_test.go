package encoder

import (
	"math"
	"testing"
)

func TestClassify(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name   string
		r, tau float64
		want   Code
		ok     bool
	}{
		{"above", 0.02, 0.01, Up, true},
		{"below", -0.02, 0.01, Down, true},
		{"inside", 0.005, 0.01, Flat, true},
		{"on upper edge is flat", 0.01, 0.01, Flat, true},
		{"on lower edge is flat", -0.01, 0.01, Flat, true},
		{"nan return", nan, 0.01, None, false},
		{"nan threshold", 0.02, nan, None, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify(tt.r, tt.tau)
			if got != tt.want || ok != tt.ok {
				t.Fatalf("Classify(%v,%v) = %q,%v want %q,%v", tt.r, tt.tau, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestEncodePreservesSign(t *testing.T) {
	rets := []float64{math.NaN(), 0.03, -0.04, 0.001, -0.02, 0.05}
	tau := []float64{math.NaN(), 0.01, 0.01, 0.01, 0.01, 0.01}
	s := Encode(rets, tau)
	for i, c := range s {
		if c == None || c == Flat {
			continue
		}
		if c.Sign() != int(math.Copysign(1, rets[i])) {
			t.Fatalf("code %q at %d disagrees with return %v", c, i, rets[i])
		}
	}
	if got := s.String(); got != "+-·-+" {
		t.Fatalf("stream = %q", got)
	}
}

func TestLiveStreak(t *testing.T) {
	tests := []struct {
		name   string
		s      Stream
		maxLen int
		want   string
		ok     bool
	}{
		{"down run", Stream{Up, Flat, Down, Down, Down}, 0, "---", true},
		{"capped", Stream{Up, Up, Up, Up, Up, Up}, 4, "++++", true},
		{"single after reversal", Stream{Down, Down, Up}, 4, "+", true},
		{"flat last", Stream{Up, Up, Flat}, 4, "", false},
		{"undefined last", Stream{Up, None}, 4, "", false},
		{"empty", nil, 4, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LiveStreak(tt.s, tt.maxLen)
			if got != tt.want || ok != tt.ok {
				t.Fatalf("LiveStreak = %q,%v want %q,%v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestWindow(t *testing.T) {
	s := Stream{Up, Up, Down, Flat, Down}
	if w, ok := Window(s, 2, 3); !ok || w != "++-" {
		t.Fatalf("Window = %q,%v", w, ok)
	}
	if _, ok := Window(s, 3, 2); ok {
		t.Fatalf("window containing flat must be rejected")
	}
	if _, ok := Window(s, 1, 3); ok {
		t.Fatalf("window before start must be rejected")
	}
}

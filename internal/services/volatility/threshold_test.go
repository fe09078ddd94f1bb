package volatility

import (
	"math"
	"math/rand"
	"testing"
)

func closesFromReturns(start float64, rets []float64) []float64 {
	out := make([]float64, len(rets)+1)
	out[0] = start
	for i, r := range rets {
		out[i+1] = out[i] * (1 + r)
	}
	return out
}

func randomReturns(n int, scale float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * scale
	}
	return out
}

func TestThresholdsWarmup(t *testing.T) {
	m := New()
	closes := closesFromReturns(100, randomReturns(40, 0.02, 1))
	tau := m.Thresholds(closes)
	for i := 0; i < m.Warmup(); i++ {
		if !math.IsNaN(tau[i]) {
			t.Fatalf("tau[%d] = %v, want NaN before warmup", i, tau[i])
		}
	}
	for i := m.Warmup(); i < len(tau); i++ {
		if math.IsNaN(tau[i]) || tau[i] <= 0 {
			t.Fatalf("tau[%d] = %v, want positive", i, tau[i])
		}
	}
}

func TestThresholdScalesWithDispersion(t *testing.T) {
	base := randomReturns(400, 0.01, 2)
	scaled := make([]float64, len(base))
	const c = 2.5
	for i, r := range base {
		scaled[i] = r * c
	}
	m := New(WithMinThreshold(0))
	_, tau1 := m.Series(closesFromReturns(50, base))
	_, tau2 := m.Series(closesFromReturns(50, scaled))
	for i := m.Warmup(); i < len(tau1); i++ {
		if math.Abs(tau2[i]-c*tau1[i]) > 1e-9 {
			t.Fatalf("tau[%d]: %v, want %v", i, tau2[i], c*tau1[i])
		}
	}
}

func TestLongWindowFloor(t *testing.T) {
	// 300 volatile bars followed by a quiet stretch: the long window keeps tau up.
	rets := append(randomReturns(300, 0.03, 3), randomReturns(30, 0.0005, 4)...)
	m := New(WithMinThreshold(0))
	r, tau := m.Series(closesFromReturns(100, rets))
	last := len(tau) - 1
	short := windowStdDev(r, last, 20)
	long := windowStdDev(r, last, 252)
	if short >= 0.5*long {
		t.Fatalf("test setup: short %v should be below half of long %v", short, long)
	}
	want := 0.5 * long * 1.25
	if math.Abs(tau[last]-want) > 1e-12 {
		t.Fatalf("tau = %v, want floor %v", tau[last], want)
	}
}

func TestMinThresholdFloor(t *testing.T) {
	m := New()
	closes := closesFromReturns(100, randomReturns(300, 0.001, 5))
	tau := m.Thresholds(closes)
	for i := m.Warmup(); i < len(tau); i++ {
		if tau[i] < 0.0025 {
			t.Fatalf("tau[%d] = %v below absolute floor", i, tau[i])
		}
	}
}

func TestThresholdsNoLookAhead(t *testing.T) {
	closes := closesFromReturns(100, randomReturns(320, 0.02, 6))
	m := New()
	full := m.Thresholds(closes)
	for _, cut := range []int{25, 100, 253, 300} {
		mutated := append([]float64(nil), closes[:cut+1]...)
		mutated = append(mutated, closes[cut+1]*3, closes[cut+1]*0.2)
		prefix := m.Thresholds(mutated)
		for i := 0; i <= cut; i++ {
			if math.IsNaN(full[i]) && math.IsNaN(prefix[i]) {
				continue
			}
			if full[i] != prefix[i] {
				t.Fatalf("cut %d: tau[%d] changed from %v to %v", cut, i, full[i], prefix[i])
			}
		}
	}
}

func TestReturnsEmpty(t *testing.T) {
	if got := Returns(nil); len(got) != 0 {
		t.Fatalf("expected empty returns")
	}
	if got := New().Thresholds(nil); len(got) != 0 {
		t.Fatalf("expected empty thresholds")
	}
}

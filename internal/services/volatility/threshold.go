package volatility

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Config holds the adaptive threshold parameters.
type Config struct {
	ShortWindow  int     // bars in the short dispersion window
	LongWindow   int     // bars in the trailing long window
	LongFloor    float64 // share of the long dispersion used as a floor
	Multiplier   float64 // M in tau = sigma* x M
	MinThreshold float64 // absolute floor on tau, as a fractional return
}

// Option configures Model.
type Option func(*Config)

// WithMultiplier sets the threshold multiplier.
func WithMultiplier(m float64) Option {
	return func(c *Config) {
		if m > 0 {
			c.Multiplier = m
		}
	}
}

// WithWindows sets the short and long dispersion windows.
func WithWindows(short, long int) Option {
	return func(c *Config) {
		if short > 1 {
			c.ShortWindow = short
		}
		if long > 1 {
			c.LongWindow = long
		}
	}
}

// WithMinThreshold sets the absolute floor on tau. Zero disables it.
func WithMinThreshold(v float64) Option {
	return func(c *Config) {
		if v >= 0 {
			c.MinThreshold = v
		}
	}
}

// Model turns a close series into a per-bar significance threshold.
type Model struct {
	cfg Config
}

// New creates a Model with the default 20/252 windows and M = 1.25.
func New(opts ...Option) *Model {
	cfg := Config{
		ShortWindow:  20,
		LongWindow:   252,
		LongFloor:    0.5,
		Multiplier:   1.25,
		MinThreshold: 0.0025,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Model{cfg: cfg}
}

// Config returns the effective configuration.
func (m *Model) Config() Config { return m.cfg }

// Warmup is the first bar index with a defined threshold.
func (m *Model) Warmup() int { return m.cfg.ShortWindow }

// Returns computes simple returns r_i = close_i/close_{i-1} - 1 aligned with
// closes; r_0 is NaN.
func Returns(closes []float64) []float64 {
	out := make([]float64, len(closes))
	if len(closes) == 0 {
		return out
	}
	out[0] = math.NaN()
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		if prev <= 0 || math.IsNaN(prev) || math.IsNaN(closes[i]) {
			out[i] = math.NaN()
			continue
		}
		out[i] = closes[i]/prev - 1
	}
	return out
}

// Thresholds returns tau aligned with closes. Entries before the short
// window fills are NaN. tau_i depends only on closes[0..i].
func (m *Model) Thresholds(closes []float64) []float64 {
	_, tau := m.Series(closes)
	return tau
}

// Series returns both the return series and the threshold series.
func (m *Model) Series(closes []float64) ([]float64, []float64) {
	r := Returns(closes)
	tau := make([]float64, len(closes))
	for i := range tau {
		tau[i] = m.thresholdAt(r, i)
	}
	return r, tau
}

func (m *Model) thresholdAt(r []float64, i int) float64 {
	short := windowStdDev(r, i, m.cfg.ShortWindow)
	if math.IsNaN(short) {
		return math.NaN()
	}
	eff := short
	if long := windowStdDev(r, i, m.cfg.LongWindow); !math.IsNaN(long) {
		eff = math.Max(short, m.cfg.LongFloor*long)
	}
	return math.Max(eff*m.cfg.Multiplier, m.cfg.MinThreshold)
}

// windowStdDev is the sample standard deviation of r[i-w+1..i]; r[0] is
// undefined so the window must start at index 1 or later.
func windowStdDev(r []float64, i, w int) float64 {
	start := i - w + 1
	if start < 1 {
		return math.NaN()
	}
	return stat.StdDev(r[start:i+1], nil)
}

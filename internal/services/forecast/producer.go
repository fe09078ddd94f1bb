package forecast

import (
	"fmt"
	"math"

	"PatternScan/internal/domain/models"
	"PatternScan/internal/domain/service"
	"PatternScan/internal/services/calendar"
	"PatternScan/internal/services/encoder"
	"PatternScan/internal/services/patterns"
	"PatternScan/internal/services/volatility"
)

// StatsSource resolves a pattern to its bucket statistics.
type StatsSource interface {
	Stats(pattern string) (models.PatternStats, bool)
}

// Analysis is the symbolic view of a bar window.
type Analysis struct {
	Returns []float64
	Tau     []float64
	Stream  encoder.Stream
}

// Subject identifies the symbol a window belongs to.
type Subject struct {
	Symbol   string
	Exchange string
	Group    string
}

// Producer turns a bar window into at most one next-bar forecast.
type Producer struct {
	vol    *volatility.Model
	cal    service.SessionCalendar
	maxLen int
}

// Option configures Producer.
type Option func(*Producer)

// WithMaxPatternLen caps the live streak length.
func WithMaxPatternLen(n int) Option {
	return func(p *Producer) {
		if n > 0 {
			p.maxLen = n
		}
	}
}

// NewProducer creates a producer. A nil calendar falls back to weekdays.
func NewProducer(vol *volatility.Model, cal service.SessionCalendar, opts ...Option) *Producer {
	if cal == nil {
		cal = calendar.NewWeekday()
	}
	p := &Producer{vol: vol, cal: cal, maxLen: 4}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxPatternLen is the streak cap.
func (p *Producer) MaxPatternLen() int { return p.maxLen }

// MinHistory is the bar count below which no forecast is produced.
func (p *Producer) MinHistory() int {
	long := p.vol.Config().LongWindow
	if need := p.maxLen + p.vol.Config().ShortWindow; need > long {
		return need
	}
	return long
}

// Analyze runs the volatility model and encoder over bars.
func (p *Producer) Analyze(bars models.Bars) Analysis {
	r, tau := p.vol.Series(bars.Closes())
	return Analysis{Returns: r, Tau: tau, Stream: encoder.Encode(r, tau)}
}

// Produce recomputes everything from bars and returns the forecast for the
// bar after the last one, or nil when no forecast applies. It fails with
// ErrInsufficientHistory on short windows.
func (p *Producer) Produce(sub Subject, bars models.Bars, policy models.MarketPolicy) (*models.Forecast, error) {
	if len(bars) < p.MinHistory() {
		return nil, fmt.Errorf("%w: %s has %d bars, need %d", models.ErrInsufficientHistory, sub.Symbol, len(bars), p.MinHistory())
	}
	a := p.Analyze(bars)
	pattern, ok := encoder.LiveStreak(a.Stream, p.maxLen)
	if !ok {
		return nil, nil
	}
	stats := patterns.ComputeStats(a.Stream, a.Returns, len(pattern))
	return p.Build(sub, bars, a, StatsMap(stats), policy), nil
}

// Build assembles the forecast from an existing analysis of bars and a
// stats source covering the same window.
func (p *Producer) Build(sub Subject, bars models.Bars, a Analysis, src StatsSource, policy models.MarketPolicy) *models.Forecast {
	if len(bars) == 0 || len(a.Stream) != len(bars) {
		return nil
	}
	pattern, ok := encoder.LiveStreak(a.Stream, p.maxLen)
	if !ok {
		return nil
	}
	st, ok := src.Stats(pattern)
	if !ok || st.N() < policy.MinObservations {
		return nil
	}
	dir := st.Direction()
	if dir == models.DirectionUndecided {
		return nil
	}
	last := bars.Last()
	tau := a.Tau[len(a.Tau)-1]
	if math.IsNaN(tau) {
		return nil
	}
	scan := calendar.Midnight(last.Timestamp)
	return &models.Forecast{
		ScanDate:    scan,
		TargetDate:  p.cal.NextSession(scan),
		Symbol:      sub.Symbol,
		Exchange:    sub.Exchange,
		Group:       sub.Group,
		Pattern:     pattern,
		Direction:   dir,
		Prob:        st.Prob(),
		UpCount:     st.UpCount,
		DownCount:   st.DownCount,
		FlatCount:   st.FlatCount,
		PriceAtScan: last.Close,
		Threshold:   tau,
		AvgReturn:   st.MeanReturn * 100,
		TotalBars:   len(bars),
		Actual:      models.OutcomePending,
	}
}

// StatsMap adapts a ComputeStats result to StatsSource.
type StatsMap map[string]models.PatternStats

func (m StatsMap) Stats(pattern string) (models.PatternStats, bool) {
	s, ok := m[pattern]
	return s, ok
}

// StatsByK computes the buckets for every pattern length up to the cap,
// as written to the master pattern table.
func (p *Producer) StatsByK(a Analysis) map[int]map[string]models.PatternStats {
	out := make(map[int]map[string]models.PatternStats, p.maxLen)
	for k := 1; k <= p.maxLen; k++ {
		out[k] = patterns.ComputeStats(a.Stream, a.Returns, k)
	}
	return out
}

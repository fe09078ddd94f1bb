package patterns

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"PatternScan/internal/domain/models"
	"PatternScan/internal/services/encoder"
)

// bucket collects next-bar outcomes for one pattern in occurrence order.
type bucket struct {
	up, down, flat int
	returns        []float64
}

func (b *bucket) add(next encoder.Code, r float64) {
	switch next {
	case encoder.Up:
		b.up++
	case encoder.Down:
		b.down++
	default:
		b.flat++
	}
	b.returns = append(b.returns, r)
}

func (b *bucket) stats(pattern string) models.PatternStats {
	s := models.PatternStats{
		Pattern:   pattern,
		UpCount:   b.up,
		DownCount: b.down,
		FlatCount: b.flat,
	}
	switch len(b.returns) {
	case 0:
	case 1:
		s.MeanReturn = b.returns[0]
	default:
		s.MeanReturn, s.StdReturn = stat.MeanStdDev(b.returns, nil)
	}
	return s
}

// ComputeStats scans the stream for every flat-free K-window that has a
// defined successor and tallies the successor's code and return.
func ComputeStats(s encoder.Stream, returns []float64, k int) map[string]models.PatternStats {
	buckets := make(map[string]*bucket)
	for i := k - 1; i+1 < len(s) && i+1 < len(returns); i++ {
		observe(buckets, s, returns, i, k)
	}
	out := make(map[string]models.PatternStats, len(buckets))
	for p, b := range buckets {
		out[p] = b.stats(p)
	}
	return out
}

// observe records the outcome at i+1 for the K-window ending at i.
func observe(buckets map[string]*bucket, s encoder.Stream, returns []float64, i, k int) {
	pattern, ok := encoder.Window(s, i, k)
	if !ok {
		return
	}
	next := s[i+1]
	if next == encoder.None {
		return
	}
	b, exists := buckets[pattern]
	if !exists {
		b = &bucket{}
		buckets[pattern] = b
	}
	b.add(next, returns[i+1])
}

// Sorted returns the buckets ordered by pattern string.
func Sorted(stats map[string]models.PatternStats) []models.PatternStats {
	out := make([]models.PatternStats, 0, len(stats))
	for _, s := range stats {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pattern < out[j].Pattern })
	return out
}

// Accumulator maintains the same buckets as ComputeStats for every K up to
// MaxK, advanced one bar at a time. After Advance(s, r, i) its buckets equal
// ComputeStats(s[:i+1], r[:i+1], k).
type Accumulator struct {
	maxK    int
	buckets []map[string]*bucket
	next    int // next outcome index to absorb
}

// NewAccumulator creates an accumulator for pattern lengths 1..maxK.
func NewAccumulator(maxK int) *Accumulator {
	if maxK < 1 {
		maxK = 1
	}
	b := make([]map[string]*bucket, maxK+1)
	for k := 1; k <= maxK; k++ {
		b[k] = make(map[string]*bucket)
	}
	return &Accumulator{maxK: maxK, buckets: b, next: 1}
}

// Advance absorbs every outcome index up to and including i.
func (a *Accumulator) Advance(s encoder.Stream, returns []float64, i int) {
	for ; a.next <= i && a.next < len(s); a.next++ {
		for k := 1; k <= a.maxK; k++ {
			observe(a.buckets[k], s, returns, a.next-1, k)
		}
	}
}

// Stats returns the bucket for pattern, whose length selects K.
func (a *Accumulator) Stats(pattern string) (models.PatternStats, bool) {
	k := len(pattern)
	if k < 1 || k > a.maxK {
		return models.PatternStats{}, false
	}
	b, ok := a.buckets[k][pattern]
	if !ok {
		return models.PatternStats{}, false
	}
	return b.stats(pattern), true
}

package patterns

import (
	"sort"
	"strings"

	"PatternScan/internal/domain/models"
)

// Categories written to the master pattern table.
const (
	CategoryStreak   = "STREAK"
	CategoryReversal = "REVERSAL"
	CategoryMixed    = "MIXED"
)

// Name spells a pattern out, e.g. "++-" becomes "UP-UP-DOWN".
func Name(pattern string) string {
	parts := make([]string, 0, len(pattern))
	for _, c := range pattern {
		switch c {
		case '+':
			parts = append(parts, "UP")
		case '-':
			parts = append(parts, "DOWN")
		}
	}
	return strings.Join(parts, "-")
}

// Category classifies a pattern by its shape.
func Category(pattern string) string {
	if pattern == "" {
		return CategoryMixed
	}
	if strings.Count(pattern, pattern[:1]) == len(pattern) {
		return CategoryStreak
	}
	n := len(pattern)
	if n >= 2 && strings.Count(pattern[:n-1], pattern[:1]) == n-1 {
		return CategoryReversal
	}
	return CategoryMixed
}

// Rows turns per-K bucket maps for one symbol into master table rows,
// ordered by pattern length and then pattern.
func Rows(symbol string, threshold float64, byK map[int]map[string]models.PatternStats) []models.PatternStatsRow {
	ks := make([]int, 0, len(byK))
	for k := range byK {
		ks = append(ks, k)
	}
	sort.Ints(ks)
	var out []models.PatternStatsRow
	for _, k := range ks {
		for _, s := range Sorted(byK[k]) {
			out = append(out, models.PatternStatsRow{
				Symbol:    symbol,
				Threshold: threshold,
				Name:      Name(s.Pattern),
				Category:  Category(s.Pattern),
				Stats:     s,
			})
		}
	}
	return out
}

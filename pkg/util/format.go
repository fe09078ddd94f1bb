package util

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatFloat renders v rounded half-away-from-zero to places decimals,
// with trailing zeros kept. NaN and infinities render empty.
func FormatFloat(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}

// Round rounds v half-away-from-zero to places decimals. NaN and infinities
// pass through.
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// FormatPrice renders a price with up to 6 decimals and no trailing zeros.
func FormatPrice(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return decimal.NewFromFloat(v).Round(6).String()
}

// ParseFloat parses a CSV number; empty and "nan" read as NaN.
func ParseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// FormatBool renders the 0/1 convention used by the ledgers.
func FormatBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// ParseBool accepts 0/1 and true/false.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true":
		return true, nil
	case "0", "false":
		return false, nil
	}
	return strconv.ParseBool(s)
}

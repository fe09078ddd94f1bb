package encoder

import (
	"math"
	"strings"
)

// Code is one symbol of the stream.
type Code rune

const (
	None Code = 0   // undefined return or threshold
	Up   Code = '+' // r > tau
	Down Code = '-' // r < -tau
	Flat Code = '·' // |r| <= tau
)

// Sign is the return sign implied by the code.
func (c Code) Sign() int {
	switch c {
	case Up:
		return 1
	case Down:
		return -1
	}
	return 0
}

// Decisive reports whether c is + or -.
func (c Code) Decisive() bool { return c == Up || c == Down }

// Classify maps a return against its threshold. ok is false when either input is NaN.
func Classify(r, tau float64) (Code, bool) {
	if math.IsNaN(r) || math.IsNaN(tau) {
		return None, false
	}
	switch {
	case r > tau:
		return Up, true
	case r < -tau:
		return Down, true
	default:
		return Flat, true
	}
}

// Stream is the symbolic series aligned 1:1 with bars.
type Stream []Code

// Encode builds the stream for aligned return and threshold series.
func Encode(returns, tau []float64) Stream {
	n := len(returns)
	if len(tau) < n {
		n = len(tau)
	}
	out := make(Stream, n)
	for i := 0; i < n; i++ {
		c, _ := Classify(returns[i], tau[i])
		out[i] = c
	}
	return out
}

// String renders defined codes; undefined positions are skipped.
func (s Stream) String() string {
	var b strings.Builder
	for _, c := range s {
		if c != None {
			b.WriteRune(rune(c))
		}
	}
	return b.String()
}

// LiveStreak returns the pattern formed by the current streak ending at the
// last position, truncated to maxLen codes (maxLen <= 0 means unbounded).
// ok is false when the last code is flat or undefined.
func LiveStreak(s Stream, maxLen int) (string, bool) {
	if len(s) == 0 {
		return "", false
	}
	last := s[len(s)-1]
	if !last.Decisive() {
		return "", false
	}
	n := 1
	for i := len(s) - 2; i >= 0 && s[i] == last; i-- {
		if maxLen > 0 && n >= maxLen {
			break
		}
		n++
	}
	return strings.Repeat(string(rune(last)), n), true
}

// Window renders s[i-k+1..i] as a pattern. ok is false when the window is
// out of range or contains a non-decisive code.
func Window(s Stream, i, k int) (string, bool) {
	if k <= 0 || i-k+1 < 0 || i >= len(s) {
		return "", false
	}
	buf := make([]byte, k)
	for j := 0; j < k; j++ {
		c := s[i-k+1+j]
		if !c.Decisive() {
			return "", false
		}
		buf[j] = byte(c)
	}
	return string(buf), true
}

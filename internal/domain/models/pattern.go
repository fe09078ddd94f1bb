package models

// PatternStats is the next-bar outcome distribution for one pattern bucket.
type PatternStats struct {
	Pattern    string  `json:"pattern"`
	UpCount    int     `json:"up_count"`
	DownCount  int     `json:"down_count"`
	FlatCount  int     `json:"flat_count"`
	MeanReturn float64 `json:"avg_return"`
	StdReturn  float64 `json:"std_return"`
}

// N is the total number of occurrences, flat outcomes included.
func (s PatternStats) N() int { return s.UpCount + s.DownCount + s.FlatCount }

// Decisive is up_count + down_count.
func (s PatternStats) Decisive() int { return s.UpCount + s.DownCount }

// Direction returns the dominant next-bar direction. Equal counts resolve to UP.
func (s PatternStats) Direction() Direction {
	if s.Decisive() == 0 {
		return DirectionUndecided
	}
	if s.UpCount >= s.DownCount {
		return DirectionUp
	}
	return DirectionDown
}

// Prob is the dominant share of decisive outcomes in percent.
func (s PatternStats) Prob() float64 {
	total := s.Decisive()
	if total == 0 {
		return 0
	}
	if s.UpCount >= s.DownCount {
		return float64(s.UpCount) / float64(total) * 100
	}
	return float64(s.DownCount) / float64(total) * 100
}

// PatternStatsRow is one row of data/Master_Pattern_Stats.csv.
type PatternStatsRow struct {
	Symbol    string       `json:"symbol"`
	Threshold float64      `json:"threshold"`
	Name      string       `json:"pattern_name"`
	Category  string       `json:"category"`
	Stats     PatternStats `json:"stats"`
}

package repository

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"PatternScan/internal/domain/models"
	domrepo "PatternScan/internal/domain/repository"
	"PatternScan/pkg/util"
)

var barHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// BarFilePath is data/cache/{exchange}_{symbol}.csv for daily bars and
// data/cache/{exchange}_{symbol}_{interval}.csv otherwise.
func BarFilePath(dir string, key domrepo.BarKey) string {
	name := sanitize(key.Exchange) + "_" + sanitize(key.Symbol)
	if !key.Daily() {
		name += "_" + string(key.Interval)
	}
	return filepath.Join(dir, name+".csv")
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '-'
		}
		return r
	}, s)
}

// ReadBarFile loads a cached bar file. A missing file yields (nil, nil).
func ReadBarFile(path string) (models.Bars, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	bars, err := DecodeBars(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return bars, nil
}

// DecodeBars parses the bar CSV layout. Column order follows the header, so
// files with extra columns (e.g. adjusted close) are accepted.
func DecodeBars(r io.Reader) (models.Bars, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := idx["date"]; ok {
		if _, ok := idx["timestamp"]; !ok {
			idx["timestamp"] = idx["date"]
		}
	}
	for _, col := range barHeader {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", models.ErrCorruptBars, col)
		}
	}

	var out models.Bars
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		ts, ok := util.ParseTime(strings.TrimSpace(rec[idx["timestamp"]]))
		if !ok {
			return nil, fmt.Errorf("%w: line %d: bad timestamp %q", models.ErrCorruptBars, line, rec[idx["timestamp"]])
		}
		var vals [5]float64
		for i, col := range barHeader[1:] {
			v, err := util.ParseFloat(rec[idx[col]])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %s: %v", models.ErrCorruptBars, line, col, err)
			}
			vals[i] = v
		}
		out = append(out, models.Bar{
			Timestamp: ts,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	return out, nil
}

// EncodeBars writes bars in the cache layout.
func EncodeBars(w io.Writer, bars models.Bars) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(barHeader); err != nil {
		return err
	}
	for _, b := range bars {
		vol := util.FormatPrice(b.Volume)
		if vol == "" {
			vol = "0"
		}
		if err := cw.Write([]string{
			util.FormatTimestamp(b.Timestamp),
			util.FormatPrice(b.Open),
			util.FormatPrice(b.High),
			util.FormatPrice(b.Low),
			util.FormatPrice(b.Close),
			vol,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteBarFile persists bars atomically.
func WriteBarFile(path string, bars models.Bars) error {
	return util.WriteFileAtomic(path, func(w io.Writer) error { return EncodeBars(w, bars) })
}

// MergeBars merges fresh bars into base in timestamp order. On a duplicate
// timestamp the fresh bar wins. It returns the merged series and how many
// bars are newer than the last bar of base.
func MergeBars(base, fresh models.Bars) (models.Bars, int) {
	var last int64
	if len(base) > 0 {
		last = base.Last().Timestamp.UnixNano()
	}
	byTS := make(map[int64]models.Bar, len(base)+len(fresh))
	for _, b := range base {
		byTS[b.Timestamp.UnixNano()] = b
	}
	added := 0
	for _, b := range fresh {
		ts := b.Timestamp.UnixNano()
		if _, dup := byTS[ts]; !dup && (len(base) == 0 || ts > last) {
			added++
		}
		byTS[ts] = b
	}
	out := make(models.Bars, 0, len(byTS))
	for _, b := range byTS {
		out = append(out, b)
	}
	sortBars(out)
	return out, added
}

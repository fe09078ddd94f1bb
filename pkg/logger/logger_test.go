package logger

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileOutputJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "scan.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Debug("dropped")
	l.With(String("group", "THAI")).Warn("stale cache",
		Int("bars", 500),
		Float("prob", 61.5),
		Bool("fast", true),
		Duration("took", 1500*time.Millisecond),
		Date("scan_date", time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)),
		Error(errors.New("fetch failed")),
	)
	l.Info("no error", Error(nil))

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	var lines []map[string]interface{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]interface{}
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2 (debug filtered)", len(lines))
	}
	w := lines[0]
	if w["level"] != "warn" || w["group"] != "THAI" || w["bars"] != float64(500) ||
		w["took"] != float64(1500) || w["scan_date"] != "2025-03-14" || w["error"] != "fetch failed" {
		t.Fatalf("warn line = %v", w)
	}
	if _, ok := lines[1]["error"]; ok {
		t.Fatalf("nil error logged: %v", lines[1])
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(&Config{Level: "loud"}); err == nil {
		t.Fatal("want error for unknown level")
	}
}

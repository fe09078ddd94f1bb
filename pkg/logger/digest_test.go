package logger

import (
	"context"
	"sync"
	"testing"
	"time"
)

type capture struct {
	mu      sync.Mutex
	batches [][]DigestEntry
}

func (c *capture) PublishDigest(_ context.Context, entries []DigestEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, entries)
	return nil
}

func TestDigestCollapsesRepeats(t *testing.T) {
	pub := &capture{}
	d := NewDigest(&DigestConfig{Interval: time.Hour, CountThreshold: 10, Publisher: pub})
	for i := 0; i < 5; i++ {
		d.Add("error", "fetch failed", map[string]interface{}{"symbol": "PTT"}, "bar_store.go:10")
	}
	d.Add("error", "fetch failed", map[string]interface{}{"symbol": "AOT"}, "bar_store.go:10")
	if got := d.Pending(); got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}
	d.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.batches) != 1 || len(pub.batches[0]) != 2 {
		t.Fatalf("batches = %+v", pub.batches)
	}
	if pub.batches[0][0].Count != 5 {
		t.Fatalf("first entry count = %d, want 5", pub.batches[0][0].Count)
	}
}

func TestLoggerFeedsDigest(t *testing.T) {
	pub := &capture{}
	l := Nop()
	l.AttachDigest(&DigestConfig{Interval: time.Hour, Publisher: pub})
	child := l.With(String("routine", "scan"))
	child.Info("ignored")
	child.Warn("slow provider", String("provider", "http"))
	child.Error("boom", Error(nil))
	if got := l.digest.Pending(); got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}
	l.Close()
}

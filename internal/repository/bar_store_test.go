package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"PatternScan/internal/domain/models"
	domrepo "PatternScan/internal/domain/repository"
	"PatternScan/internal/testutil"
	"PatternScan/pkg/cache"
	"PatternScan/pkg/retry"
)

type fakeProvider struct {
	mu    sync.Mutex
	bars  models.Bars
	errs  []error // returned (and consumed) before serving bars
	calls []time.Time
	empty bool
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) FetchBars(_ context.Context, _ domrepo.BarKey, n int, since time.Time) (models.Bars, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, since)
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return nil, err
	}
	if p.empty {
		return nil, nil
	}
	return filterBars(p.bars, n, since), nil
}

type sinkRecorder struct {
	stored int
}

func (s *sinkRecorder) StoreBars(_ context.Context, _ domrepo.BarKey, bars models.Bars) error {
	s.stored += len(bars)
	return nil
}

var testKey = domrepo.BarKey{Exchange: "SET", Symbol: "PTT", Interval: domrepo.Interval1d}

func fastRetry() BarStoreOption {
	return WithRetry(retry.Policy{Attempts: 3, Min: time.Millisecond, Max: time.Millisecond})
}

func TestGetBarsMissThenHit(t *testing.T) {
	all := testutil.FromReturns(100, testutil.Uniform(59, 0.02, 1), 0.01)
	prov := &fakeProvider{bars: all}
	dir := t.TempDir()
	store := NewBarStore(prov, dir, fastRetry())
	ctx := context.Background()

	got, err := store.GetBars(ctx, testKey, 30)
	if err != nil {
		t.Fatalf("GetBars: %v", err)
	}
	if len(got) != 30 || !got.Last().Timestamp.Equal(all.Last().Timestamp) {
		t.Fatalf("got %d bars ending %v", len(got), got.Last().Timestamp)
	}
	if len(prov.calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(prov.calls))
	}
	if _, err := os.Stat(BarFilePath(dir, testKey)); err != nil {
		t.Fatalf("cache file not written: %v", err)
	}

	got[0].Close = -1
	again, err := store.GetBars(ctx, testKey, 20)
	if err != nil {
		t.Fatalf("GetBars (hit): %v", err)
	}
	if len(prov.calls) != 1 {
		t.Fatalf("hit must not call the provider, calls = %d", len(prov.calls))
	}
	if len(again) != 20 || again[0].Close <= 0 {
		t.Fatalf("cached view was mutated or truncated: %+v", again[0])
	}
}

func TestLocalSessionBarsSurviveTheCache(t *testing.T) {
	ict := time.FixedZone("ICT", 7*3600)
	prov := &fakeProvider{bars: models.Bars{
		{Timestamp: time.Date(2024, 3, 7, 0, 0, 0, 0, ict), Open: 10, High: 10, Low: 10, Close: 10},
		{Timestamp: time.Date(2024, 3, 8, 0, 0, 0, 0, ict), Open: 11, High: 11, Low: 11, Close: 11},
	}}
	dir := t.TempDir()
	ctx := context.Background()

	fresh, err := NewBarStore(prov, dir, fastRetry()).GetBars(ctx, testKey, 2)
	if err != nil {
		t.Fatalf("GetBars: %v", err)
	}
	cached, err := NewBarStore(prov, dir, fastRetry()).GetBars(ctx, testKey, 2)
	if err != nil {
		t.Fatalf("GetBars (file): %v", err)
	}
	if len(prov.calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(prov.calls))
	}
	for i, d := range []int{7, 8} {
		want := time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
		if !fresh[i].Timestamp.Equal(want) || !cached[i].Timestamp.Equal(want) {
			t.Fatalf("bar %d fresh %v cached %v, want %v", i, fresh[i].Timestamp, cached[i].Timestamp, want)
		}
		if got := cached.IndexOnDate(want); got != i {
			t.Fatalf("IndexOnDate(%s) = %d, want %d", want.Format(time.DateOnly), got, i)
		}
	}
}

func TestLegacyShiftedCacheIsRedated(t *testing.T) {
	dir := t.TempDir()
	shifted := models.Bars{
		{Timestamp: time.Date(2024, 3, 6, 17, 0, 0, 0, time.UTC), Open: 10, High: 10, Low: 10, Close: 10},
		{Timestamp: time.Date(2024, 3, 7, 17, 0, 0, 0, time.UTC), Open: 11, High: 11, Low: 11, Close: 11},
	}
	if err := WriteBarFile(BarFilePath(dir, testKey), shifted); err != nil {
		t.Fatalf("seed: %v", err)
	}
	got, err := NewBarStore(&fakeProvider{}, dir, fastRetry()).GetBars(context.Background(), testKey, 2)
	if err != nil {
		t.Fatalf("GetBars: %v", err)
	}
	if idx := got.IndexOnDate(time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)); idx != 1 || got[idx].Close != 11 {
		t.Fatalf("03-08 session at %d in %+v", idx, got)
	}
}

func TestAppendLatestIncremental(t *testing.T) {
	all := testutil.FromReturns(100, testutil.Uniform(39, 0.02, 2), 0.01)
	dir := t.TempDir()
	if err := WriteBarFile(BarFilePath(dir, testKey), all[:30]); err != nil {
		t.Fatalf("seed: %v", err)
	}
	prov := &fakeProvider{bars: all}
	sink := &sinkRecorder{}
	store := NewBarStore(prov, dir, fastRetry(), WithBarSink(sink))

	added, err := store.AppendLatest(context.Background(), testKey)
	if err != nil {
		t.Fatalf("AppendLatest: %v", err)
	}
	if added != 10 {
		t.Fatalf("added = %d, want 10", added)
	}
	if !prov.calls[0].Equal(all[29].Timestamp) {
		t.Fatalf("requested since %v, want last cached %v", prov.calls[0], all[29].Timestamp)
	}
	if sink.stored != 10 {
		t.Fatalf("sink stored %d, want 10", sink.stored)
	}
	onDisk, err := ReadBarFile(BarFilePath(dir, testKey))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(onDisk) != 40 {
		t.Fatalf("on disk = %d bars, want 40", len(onDisk))
	}
	if err := onDisk.Validate(); err != nil {
		t.Fatalf("merged series invalid: %v", err)
	}
}

func TestAppendLatestLeavesCacheOnBadResponse(t *testing.T) {
	base := testutil.FromReturns(100, testutil.Uniform(9, 0.02, 3), 0.01)
	corrupt := models.Bars{{Timestamp: base.Last().Timestamp.AddDate(0, 0, 3), Open: 1, High: 0.5, Low: 1, Close: 1}}

	tests := []struct {
		name string
		prov *fakeProvider
		want error
	}{
		{"empty", &fakeProvider{empty: true}, models.ErrEmptyResponse},
		{"corrupt", &fakeProvider{bars: corrupt}, models.ErrCorruptBars},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := BarFilePath(dir, testKey)
			if err := WriteBarFile(path, base); err != nil {
				t.Fatalf("seed: %v", err)
			}
			before, _ := os.ReadFile(path)

			store := NewBarStore(tt.prov, dir, fastRetry())
			_, err := store.AppendLatest(context.Background(), testKey)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if len(tt.prov.calls) != 1 {
				t.Fatalf("permanent errors must not be retried, calls = %d", len(tt.prov.calls))
			}
			after, _ := os.ReadFile(path)
			if string(before) != string(after) {
				t.Fatalf("cache file changed after a failed update")
			}
		})
	}
}

func TestFetchRetriesTransientErrors(t *testing.T) {
	all := testutil.FromReturns(100, testutil.Uniform(19, 0.02, 4), 0.01)
	boom := errors.New("connection reset")

	prov := &fakeProvider{bars: all, errs: []error{boom, boom}}
	store := NewBarStore(prov, t.TempDir(), fastRetry())
	if _, err := store.GetBars(context.Background(), testKey, 10); err != nil {
		t.Fatalf("third attempt should succeed: %v", err)
	}

	prov = &fakeProvider{bars: all, errs: []error{boom, boom, boom}}
	store = NewBarStore(prov, t.TempDir(), fastRetry())
	if _, err := store.GetBars(context.Background(), testKey, 10); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v after 3 tries", err, boom)
	}
	if len(prov.calls) != 3 {
		t.Fatalf("calls = %d, want 3", len(prov.calls))
	}
}

func TestHotCacheAndLock(t *testing.T) {
	all := testutil.FromReturns(100, testutil.Uniform(19, 0.02, 5), 0.01)
	hot := cache.NewMemoryCache()
	defer hot.Close()
	prov := &fakeProvider{bars: all}
	dir := t.TempDir()
	store := NewBarStore(prov, dir, fastRetry(), WithHotCache(hot, time.Minute))
	ctx := context.Background()

	if _, err := store.GetBars(ctx, testKey, 20); err != nil {
		t.Fatalf("GetBars: %v", err)
	}
	if err := os.Remove(BarFilePath(dir, testKey)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got, err := store.GetBars(ctx, testKey, 20)
	if err != nil || len(got) != 20 || len(prov.calls) != 1 {
		t.Fatalf("hot cache should serve the window: n=%d calls=%d err=%v", len(got), len(prov.calls), err)
	}

	ok, err := hot.TryLock(ctx, lockKey(testKey), time.Minute)
	if err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	if _, err := store.AppendLatest(ctx, testKey); !errors.Is(err, ErrLocked) {
		t.Fatalf("err = %v, want ErrLocked", err)
	}
}

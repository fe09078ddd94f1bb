package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"PatternScan/internal/domain/models"
	domrepo "PatternScan/internal/domain/repository"
	"PatternScan/pkg/cache"
	applogger "PatternScan/pkg/logger"
	"PatternScan/pkg/retry"
)

// ErrLocked is returned when another process is refreshing the same series.
var ErrLocked = errors.New("bar series locked by another ingester")

// BarStore implements domrepo.BarStore over per-symbol CSV files, with an
// optional hot cache in front and an optional sink behind.
type BarStore struct {
	provider domrepo.BarProvider
	dir      string
	hot      cache.Service
	hotTTL   time.Duration
	sink     domrepo.BarSink
	metrics  domrepo.Metrics
	retry    retry.Policy
	seed     int
	lockTTL  time.Duration
	l        *applogger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// BarStoreOption configures BarStore.
type BarStoreOption func(*BarStore)

func WithHotCache(c cache.Service, ttl time.Duration) BarStoreOption {
	return func(s *BarStore) {
		s.hot = c
		if ttl > 0 {
			s.hotTTL = ttl
		}
	}
}

func WithBarSink(sink domrepo.BarSink) BarStoreOption {
	return func(s *BarStore) { s.sink = sink }
}

func WithStoreMetrics(m domrepo.Metrics) BarStoreOption {
	return func(s *BarStore) { s.metrics = m }
}

func WithRetry(p retry.Policy) BarStoreOption {
	return func(s *BarStore) { s.retry = p }
}

// WithSeedBars sets how many bars AppendLatest fetches for an empty series.
func WithSeedBars(n int) BarStoreOption {
	return func(s *BarStore) {
		if n > 0 {
			s.seed = n
		}
	}
}

func WithStoreLogger(l *applogger.Logger) BarStoreOption {
	return func(s *BarStore) {
		if l != nil {
			s.l = l
		}
	}
}

// NewBarStore creates a store rooted at dir (normally data/cache).
func NewBarStore(provider domrepo.BarProvider, dir string, opts ...BarStoreOption) *BarStore {
	s := &BarStore{
		provider: provider,
		dir:      dir,
		hotTTL:   10 * time.Minute,
		retry:    retry.Default(),
		seed:     1000,
		lockTTL:  2 * time.Minute,
		l:        applogger.Nop(),
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the cache file for key.
func (s *BarStore) Path(key domrepo.BarKey) string { return BarFilePath(s.dir, key) }

// GetBars returns the last n bars for key (all cached bars when n <= 0). The
// returned slice is a private copy. A cache holding fewer than n bars is
// refilled from the provider.
func (s *BarStore) GetBars(ctx context.Context, key domrepo.BarKey, n int) (models.Bars, error) {
	unlock := s.lock(key)
	defer unlock()

	bars, err := s.cached(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(bars) > 0 && (n <= 0 || len(bars) >= n) {
		return bars.Tail(n).Clone(), nil
	}

	want := n
	if want <= 0 {
		want = s.seed
	}
	fresh, err := s.fetch(ctx, key, want, time.Time{})
	if err != nil {
		return nil, err
	}
	merged, _ := MergeBars(bars, fresh)
	if err := s.persist(ctx, key, merged, fresh); err != nil {
		return nil, err
	}
	return merged.Tail(n).Clone(), nil
}

// AppendLatest requests bars strictly newer than the last cached bar and
// merges them in. It returns the number of bars added.
func (s *BarStore) AppendLatest(ctx context.Context, key domrepo.BarKey) (int, error) {
	unlock := s.lock(key)
	defer unlock()

	if s.hot != nil {
		ok, err := s.hot.TryLock(ctx, lockKey(key), s.lockTTL)
		if err != nil {
			return 0, fmt.Errorf("lock %s: %w", key, err)
		}
		if !ok {
			return 0, fmt.Errorf("%s: %w", key, ErrLocked)
		}
		defer func() { _ = s.hot.Unlock(context.WithoutCancel(ctx), lockKey(key)) }()
	}

	bars, err := ReadBarFile(s.Path(key))
	if err != nil {
		return 0, err
	}
	bars = key.Normalize(bars)

	var since time.Time
	n := s.seed
	if len(bars) > 0 {
		since = bars.Last().Timestamp
		n = 0
	}
	fresh, err := s.fetch(ctx, key, n, since)
	if err != nil {
		return 0, err
	}
	newer := fresh[:0:0]
	for _, b := range fresh {
		if since.IsZero() || b.Timestamp.After(since) {
			newer = append(newer, b)
		}
	}
	merged, added := MergeBars(bars, newer)
	if added == 0 {
		return 0, nil
	}
	if err := s.persist(ctx, key, merged, newer); err != nil {
		return 0, err
	}
	s.l.Debug("bars appended",
		applogger.String("key", key.String()),
		applogger.Int("added", added),
		applogger.Date("last", merged.Last().Timestamp),
	)
	return added, nil
}

func (s *BarStore) cached(ctx context.Context, key domrepo.BarKey) (models.Bars, error) {
	if s.hot != nil {
		var bars models.Bars
		err := s.hot.Get(ctx, hotKey(key), &bars)
		switch {
		case err == nil:
			return bars, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			s.l.Warn("hot cache read failed", applogger.String("key", key.String()), applogger.Error(err))
		}
	}
	bars, err := ReadBarFile(s.Path(key))
	if err != nil {
		return nil, err
	}
	bars = key.Normalize(bars)
	if err := bars.Validate(); err != nil {
		return nil, fmt.Errorf("cached %s: %w", key, err)
	}
	if len(bars) > 0 {
		s.warm(ctx, key, bars)
	}
	return bars, nil
}

func (s *BarStore) fetch(ctx context.Context, key domrepo.BarKey, n int, since time.Time) (models.Bars, error) {
	var out models.Bars
	start := time.Now()
	err := retry.Do(ctx, s.retry, func(attempt int) error {
		bars, err := s.provider.FetchBars(ctx, key, n, since)
		if err == nil && len(bars) == 0 {
			err = models.ErrEmptyResponse
		}
		if err == nil {
			bars = key.Normalize(bars)
			sortBars(bars)
			err = bars.Validate()
		}
		if s.metrics != nil {
			s.metrics.RecordFetch(s.provider.Name(), attempt, err)
		}
		switch {
		case err == nil:
			out = bars
			return nil
		case errors.Is(err, models.ErrEmptyResponse), errors.Is(err, models.ErrCorruptBars), errors.Is(err, models.ErrNotFound):
			return retry.Permanent(err)
		default:
			s.l.Debug("fetch attempt failed",
				applogger.String("key", key.String()),
				applogger.Int("attempt", attempt),
				applogger.Error(err),
			)
			return err
		}
	})
	if s.metrics != nil {
		s.metrics.RecordLatency("fetch", time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s from %s: %w", key, s.provider.Name(), err)
	}
	return out, nil
}

func (s *BarStore) persist(ctx context.Context, key domrepo.BarKey, merged, fresh models.Bars) error {
	if err := WriteBarFile(s.Path(key), merged); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	s.warm(ctx, key, merged)
	if s.sink != nil && len(fresh) > 0 {
		if err := s.sink.StoreBars(ctx, key, fresh); err != nil {
			s.l.Warn("bar sink failed", applogger.String("key", key.String()), applogger.Error(err))
		}
	}
	return nil
}

func (s *BarStore) warm(ctx context.Context, key domrepo.BarKey, bars models.Bars) {
	if s.hot == nil {
		return
	}
	if err := s.hot.Set(ctx, hotKey(key), bars, s.hotTTL); err != nil {
		s.l.Warn("hot cache write failed", applogger.String("key", key.String()), applogger.Error(err))
	}
}

func (s *BarStore) lock(key domrepo.BarKey) func() {
	s.mu.Lock()
	m, ok := s.locks[key.String()]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key.String()] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func hotKey(key domrepo.BarKey) string { return cache.GenerateKey(cache.NamespaceBars, key.String()) }
func lockKey(key domrepo.BarKey) string {
	return cache.GenerateKey(cache.NamespaceIngest, key.String())
}

func sortBars(b models.Bars) {
	sort.SliceStable(b, func(i, j int) bool { return b[i].Timestamp.Before(b[j].Timestamp) })
}

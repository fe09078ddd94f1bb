package usecase

import (
	"context"
	"fmt"
	"sync"

	"PatternScan/internal/domain/models"
	domrepo "PatternScan/internal/domain/repository"
)

type appendResult struct {
	n   int
	err error
}

type memStore struct {
	mu      sync.Mutex
	bars    map[string]models.Bars
	appends map[string]appendResult
}

func newMemStore() *memStore {
	return &memStore{bars: make(map[string]models.Bars), appends: make(map[string]appendResult)}
}

func (s *memStore) put(key domrepo.BarKey, bars models.Bars) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars[key.String()] = bars
}

func (s *memStore) GetBars(_ context.Context, key domrepo.BarKey, n int) (models.Bars, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bars[key.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, key)
	}
	return b.Tail(n).Clone(), nil
}

func (s *memStore) AppendLatest(_ context.Context, key domrepo.BarKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.appends[key.String()]
	return r.n, r.err
}

type eventRecorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *eventRecorder) Publish(_ context.Context, ev models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *eventRecorder) Close() error { return nil }

func (r *eventRecorder) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type mirrorRecorder struct {
	mu        sync.Mutex
	forecasts int
	trades    map[string]int
}

func (m *mirrorRecorder) UpsertForecasts(_ context.Context, rows []models.Forecast) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forecasts += len(rows)
	return nil
}

func (m *mirrorRecorder) ReplaceTrades(_ context.Context, group string, trades []models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.trades == nil {
		m.trades = make(map[string]int)
	}
	m.trades[group] = len(trades)
	return nil
}

func (m *mirrorRecorder) Close() error { return nil }

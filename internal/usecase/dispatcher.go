package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"PatternScan/internal/domain/models"
	domrepo "PatternScan/internal/domain/repository"
	applogger "PatternScan/pkg/logger"
)

// Result tallies one dispatched stage.
type Result struct {
	Total   int
	OK      int
	Skipped map[string]error // symbol key -> contained error
}

// Dispatcher fans a stage out over symbols with bounded parallelism. Each
// symbol is processed serially by exactly one worker.
type Dispatcher struct {
	workers int
	l       *applogger.Logger
	metrics domrepo.Metrics
}

// NewDispatcher creates a dispatcher. metrics may be nil.
func NewDispatcher(workers int, l *applogger.Logger, metrics domrepo.Metrics) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Dispatcher{workers: workers, l: l, metrics: metrics}
}

// Run calls fn once per target. Errors returned by fn are contained: logged
// with the symbol, counted and reported in Result. Only cancellation of ctx
// fails the whole run.
func (d *Dispatcher) Run(ctx context.Context, stage string, targets []Target, fn func(context.Context, Target) error) (Result, error) {
	res := Result{Total: len(targets), Skipped: make(map[string]error)}
	start := time.Now()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, d.workers)
	)
	for _, t := range targets {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(t Target) {
			defer wg.Done()
			defer func() { <-sem }()

			err := fn(ctx, t)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				res.OK++
				return
			}
			res.Skipped[t.Key.String()] = err
			d.report(stage, t, err)
		}(t)
	}
	wg.Wait()

	if d.metrics != nil {
		d.metrics.RecordLatency(stage, time.Since(start).Seconds())
	}
	d.l.Info("stage finished",
		applogger.String("stage", stage),
		applogger.Int("symbols", res.Total),
		applogger.Int("ok", res.OK),
		applogger.Int("skipped", len(res.Skipped)),
		applogger.Duration("elapsed", time.Since(start)),
	)
	return res, ctx.Err()
}

func (d *Dispatcher) report(stage string, t Target, err error) {
	fields := []applogger.Field{
		applogger.String("symbol", t.Symbol),
		applogger.String("exchange", t.Exchange),
		applogger.String("stage", stage),
		applogger.Error(err),
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return
	case errors.Is(err, models.ErrInsufficientHistory):
		d.l.Info("insufficient history", fields...)
		d.recordError("insufficient_history")
	case errors.Is(err, models.ErrCorruptBars), errors.Is(err, models.ErrEmptyResponse), errors.Is(err, models.ErrNotFound):
		d.l.Error("data error, symbol skipped", fields...)
		d.recordError("data")
	default:
		d.l.Error("symbol failed", fields...)
		d.recordError(stage)
	}
}

func (d *Dispatcher) recordError(kind string) {
	if d.metrics != nil {
		d.metrics.RecordError(kind)
	}
}

package usecase

import (
	"context"
	"errors"
	"sync/atomic"

	domrepo "PatternScan/internal/domain/repository"
	"PatternScan/internal/repository"
	applogger "PatternScan/pkg/logger"
)

// IngestReport summarises an ingest run.
type IngestReport struct {
	Result
	Added    int
	UpToDate int
	Locked   int
}

// Ingester refreshes every target's cached bars from the provider.
type Ingester struct {
	store    domrepo.BarStore
	dispatch *Dispatcher
	l        *applogger.Logger
}

func NewIngester(store domrepo.BarStore, dispatch *Dispatcher, l *applogger.Logger) *Ingester {
	if l == nil {
		l = applogger.Nop()
	}
	return &Ingester{store: store, dispatch: dispatch, l: l}
}

// Run appends the latest bars for each target. A provider with nothing newer
// and a series locked by another process are not failures.
func (in *Ingester) Run(ctx context.Context, targets []Target) (IngestReport, error) {
	var added, upToDate, locked int64
	res, err := in.dispatch.Run(ctx, "ingest", targets, func(ctx context.Context, t Target) error {
		n, err := in.store.AppendLatest(ctx, t.Key)
		switch {
		case err == nil:
			atomic.AddInt64(&added, int64(n))
			if n == 0 {
				atomic.AddInt64(&upToDate, 1)
			}
			return nil
		case repository.IsUpToDate(err):
			atomic.AddInt64(&upToDate, 1)
			return nil
		case errors.Is(err, repository.ErrLocked):
			atomic.AddInt64(&locked, 1)
			in.l.Warn("series locked, skipped", applogger.String("symbol", t.Symbol), applogger.String("exchange", t.Exchange))
			return nil
		default:
			return err
		}
	})
	rep := IngestReport{Result: res, Added: int(added), UpToDate: int(upToDate), Locked: int(locked)}
	in.l.Info("ingest summary",
		applogger.Int("bars_added", rep.Added),
		applogger.Int("up_to_date", rep.UpToDate),
		applogger.Int("locked", rep.Locked),
	)
	return rep, err
}

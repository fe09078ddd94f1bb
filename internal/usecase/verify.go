package usecase

import (
	"context"
	"fmt"
	"sort"

	"PatternScan/internal/domain/models"
	domrepo "PatternScan/internal/domain/repository"
	"PatternScan/internal/services/verifier"
	applogger "PatternScan/pkg/logger"
)

// VerifyReport summarises a verifier pass.
type VerifyReport struct {
	Resolved  int
	Deferred  int
	Failed    []string
	Uncovered []string
}

// VerifyStage reconciles the forecast ledger against realised bars.
type VerifyStage struct {
	forecasts domrepo.ForecastLedger
	verifier  *verifier.Verifier
	events    domrepo.EventPublisher
	mirror    domrepo.ForecastMirror
	l         *applogger.Logger
}

// NewVerifyStage creates the stage. events and mirror may be nil.
func NewVerifyStage(forecasts domrepo.ForecastLedger, v *verifier.Verifier, events domrepo.EventPublisher, mirror domrepo.ForecastMirror, l *applogger.Logger) *VerifyStage {
	if l == nil {
		l = applogger.Nop()
	}
	return &VerifyStage{forecasts: forecasts, verifier: v, events: events, mirror: mirror, l: l}
}

// Run resolves due PENDING rows and rewrites the ledger. The group filter of
// a run does not apply: every due row is checked.
func (s *VerifyStage) Run(ctx context.Context) (VerifyReport, error) {
	rows, err := s.forecasts.Load(ctx)
	if err != nil {
		return VerifyReport{}, fmt.Errorf("verify: %w", err)
	}
	if len(rows) == 0 {
		return VerifyReport{}, nil
	}
	before := make([]models.Forecast, len(rows))
	copy(before, rows)

	rep, err := s.verifier.Verify(ctx, rows)
	if err != nil {
		return VerifyReport{}, fmt.Errorf("verify: %w", err)
	}
	out := VerifyReport{Resolved: len(rep.Resolved), Deferred: rep.Deferred}
	for key, ferr := range rep.Failed {
		out.Failed = append(out.Failed, key)
		s.l.Warn("bars unavailable, rows deferred", applogger.String("key", key), applogger.String("stage", "verify"), applogger.Error(ferr))
	}
	sort.Strings(out.Failed)
	for _, key := range rep.Uncovered {
		out.Uncovered = append(out.Uncovered, key)
		s.l.Warn("pending target precedes cached history, rows deferred", applogger.String("key", key), applogger.String("stage", "verify"))
	}

	changed := changedRows(before, rows)
	if len(changed) > 0 {
		if err := s.forecasts.Save(ctx, rows); err != nil {
			return out, fmt.Errorf("verify: save ledger: %w", err)
		}
		s.publish(ctx, rep.Resolved, changed)
	}
	s.l.Info("verify summary",
		applogger.Int("resolved", out.Resolved),
		applogger.Int("deferred", out.Deferred),
		applogger.Int("failed_symbols", len(out.Failed)),
	)
	return out, nil
}

func (s *VerifyStage) publish(ctx context.Context, resolved, changed []models.Forecast) {
	if s.events != nil {
		for i := range resolved {
			f := &resolved[i]
			ev := models.Event{Type: models.EventForecastResolved, Symbol: f.Symbol, Group: f.Group, Payload: f}
			if err := s.events.Publish(ctx, ev); err != nil {
				s.l.Warn("event publish failed", applogger.String("symbol", f.Symbol), applogger.Error(err))
			}
		}
	}
	if s.mirror != nil {
		if err := s.mirror.UpsertForecasts(ctx, changed); err != nil {
			s.l.Warn("forecast mirror failed", applogger.Error(err))
		}
	}
}

// changedRows returns the rows whose target date or outcome moved.
func changedRows(before, after []models.Forecast) []models.Forecast {
	var out []models.Forecast
	for i := range after {
		if !after[i].TargetDate.Equal(before[i].TargetDate) || after[i].Actual != before[i].Actual {
			out = append(out, after[i])
		}
	}
	return out
}

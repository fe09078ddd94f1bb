package usecase

import (
	"context"
	"fmt"
	"time"

	applogger "PatternScan/pkg/logger"
)

// Routine names accepted by Pipeline.Run.
const (
	RoutineIngest    = "ingest"
	RoutineForecast  = "forecast"
	RoutineVerify    = "verify"
	RoutineBacktest  = "backtest"
	RoutineAggregate = "aggregate"
	RoutineDaily     = "daily"
)

// Pipeline runs the batch routines as a sequence of stages. A failing stage
// stops the sequence; artifacts stay at the last completed checkpoint.
type Pipeline struct {
	universe   Universe
	ingester   *Ingester
	scanner    *Scanner
	verify     *VerifyStage
	backtester *Backtester
	aggregator *Aggregator
	l          *applogger.Logger
}

func NewPipeline(u Universe, in *Ingester, sc *Scanner, v *VerifyStage, bt *Backtester, ag *Aggregator, l *applogger.Logger) *Pipeline {
	if l == nil {
		l = applogger.Nop()
	}
	return &Pipeline{universe: u, ingester: in, scanner: sc, verify: v, backtester: bt, aggregator: ag, l: l}
}

// Run executes a named routine.
func (p *Pipeline) Run(ctx context.Context, routine string, opts RunOptions) error {
	if err := opts.Normalize(); err != nil {
		return err
	}
	var stages []string
	switch routine {
	case RoutineDaily:
		stages = []string{RoutineIngest, RoutineForecast, RoutineVerify, RoutineAggregate}
	case RoutineIngest, RoutineForecast, RoutineVerify, RoutineBacktest, RoutineAggregate:
		stages = []string{routine}
	default:
		return fmt.Errorf("unknown routine %q", routine)
	}

	targets, err := p.universe.Targets(opts)
	if err != nil {
		return err
	}
	for _, stage := range stages {
		start := time.Now()
		if err := p.stage(ctx, stage, targets, opts); err != nil {
			p.l.Error("stage aborted", applogger.String("stage", stage), applogger.Error(err))
			return err
		}
		p.l.Info("stage complete", applogger.String("stage", stage), applogger.Duration("elapsed", time.Since(start)))
	}
	return nil
}

func (p *Pipeline) stage(ctx context.Context, stage string, targets []Target, opts RunOptions) error {
	switch stage {
	case RoutineIngest:
		_, err := p.ingester.Run(ctx, targets)
		return err
	case RoutineForecast:
		_, err := p.scanner.Run(ctx, targets, opts)
		return err
	case RoutineVerify:
		_, err := p.verify.Run(ctx)
		return err
	case RoutineBacktest:
		_, err := p.backtester.Run(ctx, targets, opts)
		return err
	default:
		_, err := p.aggregator.Run(ctx)
		return err
	}
}

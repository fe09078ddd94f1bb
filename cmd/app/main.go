package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"PatternScan/internal/di"
	"PatternScan/internal/usecase"
	"PatternScan/pkg/config"
	applogger "PatternScan/pkg/logger"
	"PatternScan/pkg/server"
)

type cliFlags struct {
	config        string
	bars          int
	group         string
	minProb       float64
	atrTPMult     float64
	trailActivate float64
	maxHold       int
	fast          bool
	k             int
}

func newFlagSet(f *cliFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("patternscan", flag.ContinueOnError)
	fs.StringVar(&f.config, "config", "config/config.yaml", "config file path")
	fs.IntVar(&f.bars, "bars", 0, "bars of history per symbol (default engine.bars)")
	fs.StringVar(&f.group, "group", "", "restrict to one market group")
	fs.Float64Var(&f.minProb, "min_prob", 0, "override the group's minimum probability (percent)")
	fs.Float64Var(&f.atrTPMult, "atr_tp_mult", 0, "override the ATR take-profit multiple")
	fs.Float64Var(&f.trailActivate, "trail_activate", 0, "override the trailing-stop activation (percent gain)")
	fs.IntVar(&f.maxHold, "max_hold", 0, "override the maximum holding period in bars")
	fs.BoolVar(&f.fast, "fast", false, "backtest with prefix-count statistics")
	fs.IntVar(&f.k, "k", 0, "maximum pattern length (default engine.max_pattern_len)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: patternscan [flags] <%s> [flags]\n", strings.Join(server.Routines, "|"))
		fs.PrintDefaults()
	}
	return fs
}

// parseArgs accepts flags before and after the routine name.
func parseArgs(args []string) (string, cliFlags, error) {
	var f cliFlags
	fs := newFlagSet(&f)
	if err := fs.Parse(args); err != nil {
		return "", f, err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return "", f, fmt.Errorf("routine is required")
	}
	routine := strings.ToLower(fs.Arg(0))
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		return "", f, err
	}
	if fs.NArg() > 0 {
		return "", f, fmt.Errorf("unexpected arguments %v", fs.Args())
	}
	if !slices.Contains(server.Routines, routine) {
		return "", f, fmt.Errorf("unknown routine %q", routine)
	}
	return routine, f, nil
}

func (f cliFlags) runOptions(cfg *config.Config) usecase.RunOptions {
	opts := usecase.RunOptions{
		Bars:          cfg.Engine.Bars,
		Group:         f.group,
		MinProb:       f.minProb,
		ATRTPMult:     f.atrTPMult,
		TrailActivate: f.trailActivate,
		MaxHold:       f.maxHold,
		Fast:          f.fast,
		K:             cfg.Engine.MaxPatternLen,
	}
	if f.bars > 0 {
		opts.Bars = f.bars
	}
	if f.k > 0 {
		opts.K = f.k
	}
	return opts
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	routine, flags, err := parseArgs(args)
	if err != nil {
		if err != flag.ErrHelp {
			log.Printf("patternscan: %v", err)
		}
		return 2
	}

	cfg, err := config.LoadWithEnv(flags.config)
	if err != nil {
		log.Printf("config load failed: %v", err)
		return 1
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Printf("app initialization failed: %v", err)
		return 1
	}
	l := app.Logger()
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l.Info("patternscan starting",
		applogger.String("routine", routine),
		applogger.String("provider", cfg.Provider.Type),
		applogger.Bool("kafka", cfg.Kafka.Enabled),
		applogger.Bool("clickhouse", cfg.ClickHouse.Enabled),
		applogger.Bool("postgres", cfg.Postgres.Enabled),
	)
	if err := app.Run(ctx, routine, flags.runOptions(cfg)); err != nil {
		l.Error("routine failed", applogger.String("routine", routine), applogger.Error(err))
		return 1
	}
	return 0
}

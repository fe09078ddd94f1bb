package server

import (
	"context"
	"errors"
	"fmt"

	domrepo "PatternScan/internal/domain/repository"
	"PatternScan/internal/handler/api"
	"PatternScan/internal/usecase"
	"PatternScan/pkg/cache"
	pkgch "PatternScan/pkg/clickhouse"
	"PatternScan/pkg/config"
	xhttp "PatternScan/pkg/http"
	pkgkafka "PatternScan/pkg/kafka"
	applogger "PatternScan/pkg/logger"
)

// RoutineServe runs the report API and live event feed until interrupted.
const RoutineServe = "serve"

// Routines lists every routine accepted by Run.
var Routines = []string{
	usecase.RoutineIngest,
	usecase.RoutineForecast,
	usecase.RoutineVerify,
	usecase.RoutineBacktest,
	usecase.RoutineAggregate,
	usecase.RoutineDaily,
	RoutineServe,
}

// App owns the process lifecycle: it runs one routine and releases every
// infrastructure client afterwards.
type App struct {
	cfg      *config.Config
	l        *applogger.Logger
	pipeline *usecase.Pipeline

	httpServer *xhttp.Server
	hub        *api.EventHub
	consumer   *pkgkafka.Consumer

	events domrepo.EventPublisher
	mirror domrepo.ForecastMirror
	hot    cache.Service
	ch     *pkgch.Client
}

// Infra groups the clients App closes on shutdown. Any field may be nil.
type Infra struct {
	Events     domrepo.EventPublisher
	Mirror     domrepo.ForecastMirror
	Cache      cache.Service
	ClickHouse *pkgch.Client
	Consumer   *pkgkafka.Consumer
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	pipeline *usecase.Pipeline,
	httpServer *xhttp.Server,
	hub *api.EventHub,
	infra Infra,
) *App {
	return &App{
		cfg:        cfg,
		l:          l,
		pipeline:   pipeline,
		httpServer: httpServer,
		hub:        hub,
		consumer:   infra.Consumer,
		events:     infra.Events,
		mirror:     infra.Mirror,
		hot:        infra.Cache,
		ch:         infra.ClickHouse,
	}
}

// Logger returns the application logger.
func (a *App) Logger() *applogger.Logger { return a.l }

// Run executes routine and blocks until it completes or ctx is cancelled.
func (a *App) Run(ctx context.Context, routine string, opts usecase.RunOptions) error {
	if routine == RoutineServe {
		return a.serve(ctx)
	}
	a.l.Info("routine starting",
		applogger.String("routine", routine),
		applogger.String("group", opts.Group),
		applogger.Bool("fast", opts.Fast),
	)
	if err := a.pipeline.Run(ctx, routine, opts); err != nil {
		return fmt.Errorf("%s: %w", routine, err)
	}
	a.l.Info("routine complete", applogger.String("routine", routine))
	return nil
}

func (a *App) serve(ctx context.Context) error {
	if a.consumer != nil {
		a.consumer.Start(ctx, a.hub.HandleMessage)
		a.l.Info("event feed consuming", applogger.String("topic", a.cfg.Kafka.Topic))
	}
	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.l.Info("shutdown signal received")
	case runErr = <-a.httpServer.Err():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}
	a.hub.Close()
	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	return runErr
}

// Close releases the infrastructure clients and flushes the logger.
func (a *App) Close() error {
	var errs []error
	closeOne := func(name string, fn func() error) {
		if err := fn(); err != nil {
			a.l.Warn("close failed", applogger.String("client", name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	// flush the digest while the publisher is still open
	a.l.Close()
	if a.events != nil {
		closeOne("events", a.events.Close)
	}
	if a.mirror != nil {
		closeOne("postgres", a.mirror.Close)
	}
	if a.hot != nil {
		closeOne("cache", a.hot.Close)
	}
	if a.ch != nil {
		closeOne("clickhouse", a.ch.Close)
	}
	return errors.Join(errs...)
}

package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"PatternScan/internal/domain/models"
	domrepo "PatternScan/internal/domain/repository"
	"PatternScan/internal/domain/service"
	"PatternScan/internal/handler/api"
	internalrepo "PatternScan/internal/repository"
	"PatternScan/internal/service/ratelimit"
	"PatternScan/internal/services/calendar"
	"PatternScan/internal/services/verifier"
	"PatternScan/internal/services/volatility"
	"PatternScan/internal/usecase"
	"PatternScan/pkg/cache"
	pkgch "PatternScan/pkg/clickhouse"
	"PatternScan/pkg/config"
	xhttp "PatternScan/pkg/http"
	pkgkafka "PatternScan/pkg/kafka"
	applogger "PatternScan/pkg/logger"
	"PatternScan/pkg/metrics"
	"PatternScan/pkg/retry"
	"PatternScan/pkg/server"
)

// ProvideLogger creates the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideRegistry creates the Prometheus registry served at /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// ProvideMetrics creates the pipeline metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) *metrics.Recorder {
	return metrics.New(reg)
}

// ProvideCache creates the hot bar cache: process memory, or memory in front
// of Redis when Redis is enabled. A zero memory size without Redis disables it.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, error) {
	rc := cfg.Cache.Redis
	if rc.Enabled {
		redisCache, err := cache.NewRedisCache(
			cache.WithRedisAddr(rc.Addr),
			cache.WithRedisPassword(rc.Password),
			cache.WithRedisDB(rc.DB),
			cache.WithRedisPrefix(rc.Prefix),
		)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		l.Info("hot cache: redis", applogger.String("addr", rc.Addr))
		return cache.NewLayeredCache(redisCache,
			cache.WithLayeredMemorySize(max(cfg.Cache.MemorySize, 1)),
			cache.WithLayeredMemoryTTL(time.Minute),
		), nil
	}
	if cfg.Cache.MemorySize == 0 {
		return nil, nil
	}
	return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemorySize)), nil
}

// ProvideClickHouseClient connects to ClickHouse and prepares the bars
// table. It returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	c := cfg.ClickHouse
	if !c.Enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithAddress(c.Host, c.Port),
		pkgch.WithDatabase(c.Database),
		pkgch.WithCredentials(c.User, c.Password),
		pkgch.WithPool(10, 5, 0),
		pkgch.WithHTTP(c.UseHTTP),
		pkgch.WithAsyncInsert(c.AsyncInsert, c.WaitForAsync),
		pkgch.WithTimeouts(c.DialTimeout, c.ReadTimeout, c.WriteTimeout),
		pkgch.WithMaxExecutionTime(c.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := client.InitSchema(ctx, internalrepo.BarSchema(c.Database, cfg.Provider.Table)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideBarProvider selects the upstream bar source by provider.type.
func ProvideBarProvider(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (domrepo.BarProvider, error) {
	p := cfg.Provider
	switch p.Type {
	case "http":
		client := xhttp.NewClient(xhttp.WithTimeout(p.Timeout), xhttp.WithHeader("User-Agent", "patternscan"))
		return internalrepo.NewHTTPBarProvider(client, ratelimit.New(p.Burst, p.Rate), p.BaseURL, p.APIKey)
	case "clickhouse":
		if ch == nil {
			return nil, fmt.Errorf("clickhouse provider requires clickhouse.enabled")
		}
		store := internalrepo.NewCHBarStore(ch, cfg.ClickHouse.Database, p.Table)
		store.SetLogger(l)
		return store, nil
	case "file":
		return internalrepo.NewFileBarProvider(p.Dir), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", p.Type)
	}
}

// ProvideBarStore creates the CSV bar cache. Fresh bars are mirrored to
// ClickHouse unless ClickHouse is itself the provider.
func ProvideBarStore(
	cfg *config.Config,
	provider domrepo.BarProvider,
	hot cache.Service,
	ch *pkgch.Client,
	m domrepo.Metrics,
	l *applogger.Logger,
) domrepo.BarStore {
	opts := []internalrepo.BarStoreOption{
		internalrepo.WithStoreMetrics(m),
		internalrepo.WithStoreLogger(l),
		internalrepo.WithSeedBars(cfg.Engine.Bars),
		internalrepo.WithRetry(retry.Policy{
			Attempts: cfg.Provider.Retry.Attempts,
			Min:      cfg.Provider.Retry.BackoffMin,
			Max:      cfg.Provider.Retry.BackoffMax,
		}),
	}
	if hot != nil {
		opts = append(opts, internalrepo.WithHotCache(hot, cfg.Cache.TTL))
	}
	if ch != nil && cfg.Provider.Type != "clickhouse" {
		sink := internalrepo.NewCHBarStore(ch, cfg.ClickHouse.Database, cfg.Provider.Table)
		sink.SetLogger(l)
		opts = append(opts, internalrepo.WithBarSink(sink))
	}
	return internalrepo.NewBarStore(provider, cfg.Paths.CacheDir(), opts...)
}

func ProvideForecastLedger(cfg *config.Config) *internalrepo.CSVForecastLedger {
	return internalrepo.NewCSVForecastLedger(cfg.Paths.LogsDir)
}

func ProvideTradeLedger(cfg *config.Config) *internalrepo.CSVTradeLedger {
	return internalrepo.NewCSVTradeLedger(cfg.Paths.LogsDir)
}

func ProvideReportWriter(cfg *config.Config) *internalrepo.CSVReportWriter {
	return internalrepo.NewCSVReportWriter(cfg.Paths.DataDir)
}

// ProvideEventPublisher publishes domain events to Kafka and attaches the
// error digest to the logger. Without Kafka events are dropped.
func ProvideEventPublisher(cfg *config.Config, l *applogger.Logger, reg *prometheus.Registry) (domrepo.EventPublisher, error) {
	k := cfg.Kafka
	if !k.Enabled {
		return internalrepo.NopEventPublisher{}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(k.Brokers),
		pkgkafka.WithCompression(k.Compression),
		pkgkafka.WithRequiredAcks(k.RequiredAcks),
		pkgkafka.WithDelivery(k.Producer.MaxAttempts, k.Producer.BatchTimeout),
		pkgkafka.WithTimeouts(k.Producer.WriteTimeout, k.Producer.ReadTimeout),
		pkgkafka.WithAsync(k.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	pub := internalrepo.NewKafkaEventPublisher(producer, k.Topic, k.LogsTopic())
	l.AttachDigest(&applogger.DigestConfig{Interval: k.DigestInterval, Publisher: pub})
	return pub, nil
}

// ProvideKafkaConsumer creates the consumer feeding the websocket hub. It
// returns nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	k := cfg.Kafka
	if !k.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(k.Brokers),
		pkgkafka.WithConsumerGroupID(k.Consumer.GroupID),
		pkgkafka.WithConsumerTopics(k.Topic),
		pkgkafka.WithConsumerRetry(k.Consumer.RetryMax, k.Consumer.BackoffMin, k.Consumer.BackoffMax),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideMirror opens the Postgres ledger mirror. It returns nil when
// Postgres is disabled.
func ProvideMirror(cfg *config.Config) (domrepo.ForecastMirror, error) {
	p := cfg.Postgres
	if !p.Enabled {
		return nil, nil
	}
	m, err := internalrepo.OpenPostgresMirror(p.DSN, p.MaxOpenConns, p.MaxIdleConns, p.ConnMaxLife)
	if err != nil {
		return nil, err
	}
	if err := m.Migrate(); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

func ProvideVolatility(cfg *config.Config) *volatility.Model {
	e := cfg.Engine
	return volatility.New(
		volatility.WithMultiplier(e.Multiplier),
		volatility.WithWindows(e.ShortWindow, e.LongWindow),
		volatility.WithMinThreshold(e.MinThreshold),
	)
}

func ProvideCalendar(cfg *config.Config) service.SessionCalendar {
	return calendar.NewWeekday(cfg.Engine.Holidays...)
}

func ProvideDispatcher(cfg *config.Config, l *applogger.Logger, m domrepo.Metrics) *usecase.Dispatcher {
	return usecase.NewDispatcher(cfg.Engine.Workers, l, m)
}

// ProvideUniverse builds the market groups and their symbols.
func ProvideUniverse(cfg *config.Config) (usecase.Universe, error) {
	policies, err := cfg.Policies()
	if err != nil {
		return usecase.Universe{}, err
	}
	symbols := make(map[string][]string, len(cfg.Markets))
	for name, m := range cfg.Markets {
		group := strings.ToUpper(name)
		for _, s := range m.Symbols {
			symbols[group] = append(symbols[group], strings.ToUpper(strings.TrimSpace(s)))
		}
	}
	return usecase.Universe{
		Policies: policies,
		Symbols:  symbols,
		Interval: domrepo.NormalizeInterval(cfg.Engine.Interval),
	}, nil
}

func ProvideIngester(store domrepo.BarStore, d *usecase.Dispatcher, l *applogger.Logger) *usecase.Ingester {
	return usecase.NewIngester(store, d, l)
}

func ProvideScanner(
	store domrepo.BarStore,
	vol *volatility.Model,
	cal service.SessionCalendar,
	forecasts domrepo.ForecastLedger,
	trades domrepo.TradeLedger,
	reports domrepo.ReportWriter,
	events domrepo.EventPublisher,
	mirror domrepo.ForecastMirror,
	m domrepo.Metrics,
	d *usecase.Dispatcher,
	l *applogger.Logger,
) *usecase.Scanner {
	return usecase.NewScanner(usecase.ScannerDeps{
		Store:     store,
		Vol:       vol,
		Calendar:  cal,
		Forecasts: forecasts,
		Trades:    trades,
		Reports:   reports,
		Events:    events,
		Mirror:    mirror,
		Metrics:   m,
		Clock:     service.SystemClock(),
	}, d, l)
}

func ProvideVerifyStage(
	cfg *config.Config,
	store domrepo.BarStore,
	cal service.SessionCalendar,
	forecasts domrepo.ForecastLedger,
	events domrepo.EventPublisher,
	mirror domrepo.ForecastMirror,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.VerifyStage {
	v := verifier.New(store,
		verifier.WithCalendar(cal),
		verifier.WithMetrics(m),
		verifier.WithLookback(cfg.Engine.Bars),
	)
	return usecase.NewVerifyStage(forecasts, v, events, mirror, l)
}

func ProvideBacktester(
	cfg *config.Config,
	store domrepo.BarStore,
	vol *volatility.Model,
	cal service.SessionCalendar,
	trades domrepo.TradeLedger,
	events domrepo.EventPublisher,
	mirror domrepo.ForecastMirror,
	m domrepo.Metrics,
	d *usecase.Dispatcher,
	l *applogger.Logger,
) *usecase.Backtester {
	return usecase.NewBacktester(usecase.BacktesterDeps{
		Store:   store,
		Vol:     vol,
		Cal:     cal,
		Trades:  trades,
		Events:  events,
		Mirror:  mirror,
		Metrics: m,
		Entry:   models.EntryModel(cfg.Engine.EntryModel),
	}, d, l)
}

func ProvideAggregator(u usecase.Universe, trades domrepo.TradeLedger, reports domrepo.ReportWriter, l *applogger.Logger) *usecase.Aggregator {
	return usecase.NewAggregator(trades, reports, u.Policies, l)
}

func ProvidePipeline(
	u usecase.Universe,
	in *usecase.Ingester,
	sc *usecase.Scanner,
	v *usecase.VerifyStage,
	bt *usecase.Backtester,
	ag *usecase.Aggregator,
	l *applogger.Logger,
) *usecase.Pipeline {
	return usecase.NewPipeline(u, in, sc, v, bt, ag, l)
}

func ProvideEventHub(cfg *config.Config, l *applogger.Logger) *api.EventHub {
	return api.NewEventHub(l, cfg.Server.AllowedOrigins)
}

func ProvideReportHandler(
	cfg *config.Config,
	l *applogger.Logger,
	reports api.ReportReader,
	forecasts domrepo.ForecastLedger,
	trades domrepo.TradeLedger,
) *api.ReportHandler {
	return api.NewReportHandler(l, reports, forecasts, trades, cfg.Server.StaleAfter)
}

// ProvideHTTPServer builds the echo server with the report API, the event
// feed and the metrics endpoint.
func ProvideHTTPServer(
	cfg *config.Config,
	l *applogger.Logger,
	reg *prometheus.Registry,
	reports *api.ReportHandler,
	hub *api.EventHub,
) *xhttp.Server {
	s := cfg.Server
	return xhttp.NewServer(l, []xhttp.Handler{reports, hub},
		xhttp.WithHost(s.Host),
		xhttp.WithPort(s.Port),
		xhttp.WithTimeouts(s.ReadTimeout, s.WriteTimeout, s.ShutdownTimeout),
		xhttp.WithCORS(s.CORS, s.AllowedOrigins...),
		xhttp.WithMetrics(s.MetricsPath, reg),
		xhttp.WithSlowThreshold(s.SlowRequest),
	)
}

func ProvideInfra(
	events domrepo.EventPublisher,
	mirror domrepo.ForecastMirror,
	hot cache.Service,
	ch *pkgch.Client,
	consumer *pkgkafka.Consumer,
) server.Infra {
	return server.Infra{Events: events, Mirror: mirror, Cache: hot, ClickHouse: ch, Consumer: consumer}
}

func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	pipeline *usecase.Pipeline,
	httpServer *xhttp.Server,
	hub *api.EventHub,
	infra server.Infra,
) *server.App {
	return server.New(cfg, l, pipeline, httpServer, hub, infra)
}

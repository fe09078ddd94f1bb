//go:build wireinject
// +build wireinject

package di

import (
	domrepo "PatternScan/internal/domain/repository"
	"PatternScan/internal/handler/api"
	internalrepo "PatternScan/internal/repository"
	"PatternScan/pkg/config"
	"PatternScan/pkg/metrics"
	"PatternScan/pkg/server"

	"github.com/google/wire"
)

var repositorySet = wire.NewSet(
	ProvideForecastLedger,
	ProvideTradeLedger,
	ProvideReportWriter,
	wire.Bind(new(domrepo.ForecastLedger), new(*internalrepo.CSVForecastLedger)),
	wire.Bind(new(domrepo.TradeLedger), new(*internalrepo.CSVTradeLedger)),
	wire.Bind(new(domrepo.ReportWriter), new(*internalrepo.CSVReportWriter)),
	wire.Bind(new(api.ReportReader), new(*internalrepo.CSVReportWriter)),
)

var stageSet = wire.NewSet(
	ProvideVolatility,
	ProvideCalendar,
	ProvideDispatcher,
	ProvideUniverse,
	ProvideIngester,
	ProvideScanner,
	ProvideVerifyStage,
	ProvideBacktester,
	ProvideAggregator,
	ProvidePipeline,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,
		wire.Bind(new(domrepo.Metrics), new(*metrics.Recorder)),

		// Infrastructure clients
		ProvideCache,
		ProvideClickHouseClient,
		ProvideEventPublisher,
		ProvideKafkaConsumer,
		ProvideMirror,

		// Bars and ledgers
		ProvideBarProvider,
		ProvideBarStore,
		repositorySet,

		// Use cases
		stageSet,

		// HTTP
		ProvideEventHub,
		ProvideReportHandler,
		ProvideHTTPServer,

		// Application
		ProvideInfra,
		ProvideApp,
	)
	return &server.App{}, nil
}

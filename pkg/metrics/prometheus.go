package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"PatternScan/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	forecasts     *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	verifications *prometheus.CounterVec
	trades        *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	threshold     *prometheus.GaugeVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New registers the collectors with reg. A nil reg uses the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		forecasts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patternscan_forecasts_total",
				Help: "Forecasts accepted by the gatekeeper",
			},
			[]string{"group", "direction"},
		),
		rejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patternscan_gate_rejections_total",
				Help: "Forecasts rejected by the gatekeeper",
			},
			[]string{"group", "reason"},
		),
		verifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patternscan_verifications_total",
				Help: "Forecasts resolved by the verifier",
			},
			[]string{"outcome"},
		),
		trades: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patternscan_trades_total",
				Help: "Simulated trades closed",
			},
			[]string{"group", "exit_reason"},
		),
		fetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patternscan_provider_fetches_total",
				Help: "Bar provider fetch attempts",
			},
			[]string{"provider", "attempt", "result"},
		),
		threshold: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "patternscan_threshold",
				Help: "Latest adaptive threshold per symbol, as a fractional return",
			},
			[]string{"symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patternscan_errors_total",
				Help: "Errors by kind",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "patternscan_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordForecast(group string, dir models.Direction) {
	r.forecasts.WithLabelValues(group, string(dir)).Inc()
}

func (r *Recorder) RecordRejection(group, reason string) {
	r.rejections.WithLabelValues(group, reason).Inc()
}

func (r *Recorder) RecordVerification(outcome string) {
	r.verifications.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordTrade(group string, reason models.ExitReason) {
	r.trades.WithLabelValues(group, string(reason)).Inc()
}

func (r *Recorder) RecordFetch(provider string, attempt int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.fetches.WithLabelValues(provider, strconv.Itoa(attempt), result).Inc()
}

func (r *Recorder) RecordThreshold(symbol string, tau float64) {
	r.threshold.WithLabelValues(symbol).Set(tau)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

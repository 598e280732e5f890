package infrastructure

import (
	"errors"
	"portfolio-backtester/internal/engine"
	"portfolio-backtester/types"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var _ engine.RunObserver = (*Metrics)(nil)

// Metrics collects batch-level run statistics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
	FillsTotal  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "backtester_runs_total",
			Help: "Total number of backtest runs by outcome",
		}, []string{"strategy", "outcome"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backtester_run_duration_seconds",
			Help:    "Wall time of a single backtest run",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"strategy"}),
		FillsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "backtester_fills_total",
			Help: "Total number of filled trades",
		}, []string{"strategy"}),
	}
}

// ObserveRun records one finished run. Safe for concurrent use.
func (m *Metrics) ObserveRun(strategy types.StrategyType, duration time.Duration, fills int, err error) {
	s := string(strategy)
	m.RunsTotal.WithLabelValues(s, outcome(err)).Inc()
	m.RunDuration.WithLabelValues(s).Observe(duration.Seconds())
	m.FillsTotal.WithLabelValues(s).Add(float64(fills))
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile dumps the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, engine.ErrConfiguration):
		return "configuration_error"
	case errors.Is(err, engine.ErrDataInsufficient):
		return "data_insufficient"
	case errors.Is(err, engine.ErrLookahead):
		return "lookahead"
	case errors.Is(err, engine.ErrStrategy):
		return "strategy_error"
	default:
		return "error"
	}
}

package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buckets for seconds resolutions of histograms
var buckets = []float64{.005, .025, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds the engine's prometheus collectors. It satisfies
// store.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	PartitionLoads    *prometheus.CounterVec
	PartitionFailures *prometheus.CounterVec
	PartitionDuration *prometheus.HistogramVec
	PartitionRows     *prometheus.CounterVec
	ResidentRows      *prometheus.GaugeVec
	RecomputeDuration *prometheus.HistogramVec
	ExpressionErrors  prometheus.Counter
}

// NewMetrics creates the collectors on a private registry that also
// carries the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		PartitionLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drilldown",
			Name:      "partition_loads_total",
			Help:      "Partitions fetched into a record store.",
		}, []string{"kind"}),
		PartitionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drilldown",
			Name:      "partition_load_failures_total",
			Help:      "Partition fetches that failed.",
		}, []string{"kind"}),
		PartitionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "drilldown",
			Name:      "partition_load_duration_seconds",
			Help:      "Time taken to fetch and decode a partition batch.",
			Buckets:   buckets,
		}, []string{"kind"}),
		PartitionRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drilldown",
			Name:      "partition_rows_total",
			Help:      "Rows added to record stores by partition loads.",
		}, []string{"kind"}),
		ResidentRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "drilldown",
			Name:      "resident_rows",
			Help:      "Rows held in memory per record store.",
		}, []string{"store"}),
		RecomputeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "drilldown",
			Name:      "recompute_duration_seconds",
			Help:      "Time taken to recompute a report from the resident rows.",
			Buckets:   buckets,
		}, []string{"report"}),
		ExpressionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "drilldown",
			Name:      "expression_errors_total",
			Help:      "Derived column cells that evaluated to the error sentinel.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.PartitionLoads,
		m.PartitionFailures,
		m.PartitionDuration,
		m.PartitionRows,
		m.ResidentRows,
		m.RecomputeDuration,
		m.ExpressionErrors,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePartitionLoad records one partition fetch.
func (m *Metrics) ObservePartitionLoad(kind string, rows int, took time.Duration, err error) {
	m.PartitionLoads.WithLabelValues(kind).Inc()
	m.PartitionDuration.WithLabelValues(kind).Observe(took.Seconds())
	if err != nil {
		m.PartitionFailures.WithLabelValues(kind).Inc()
		return
	}
	m.PartitionRows.WithLabelValues(kind).Add(float64(rows))
}

// SetResidentRows records the size of a store after a load.
func (m *Metrics) SetResidentRows(store string, rows int) {
	m.ResidentRows.WithLabelValues(store).Set(float64(rows))
}

// ObserveRecompute records the duration of one report computation.
func (m *Metrics) ObserveRecompute(report string, took time.Duration) {
	m.RecomputeDuration.WithLabelValues(report).Observe(took.Seconds())
}

// AddExpressionErrors counts error cells of a derived column.
func (m *Metrics) AddExpressionErrors(n int) {
	if n > 0 {
		m.ExpressionErrors.Add(float64(n))
	}
}

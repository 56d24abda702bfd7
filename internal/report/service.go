// Package report answers the dashboard's questions over the resident
// record stores: which partitions are loaded, ad rollups and drill-down
// series, event summaries, row expansion and derived columns. Every
// computation reads one immutable snapshot and recomputes from scratch.
package report

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arkilian/drilldown/internal/payload"
	"github.com/arkilian/drilldown/internal/query/expr"
	"github.com/arkilian/drilldown/internal/query/filter"
	"github.com/arkilian/drilldown/internal/store"
	"github.com/arkilian/drilldown/pkg/types"
)

// Catalog lists the available ads months. *partition.Catalog satisfies it.
type Catalog interface {
	Metadata(ctx context.Context) (types.PartitionMetadata, error)
}

// Recorder observes report computations. *observability.Metrics
// satisfies it.
type Recorder interface {
	ObserveRecompute(report string, took time.Duration)
	AddExpressionErrors(n int)
}

// Service is safe for concurrent use.
type Service struct {
	ads       *store.Store[types.FactRow]
	events    *store.Store[types.EventRow]
	catalog   Catalog
	eventsKey types.PartitionKey

	eval     *expr.Evaluator
	payloads *payload.Cache
	observer filter.Observer
	recorder Recorder
	log      logrus.FieldLogger
}

// Config wires a Service.
type Config struct {
	Ads     *store.Store[types.FactRow]
	Events  *store.Store[types.EventRow]
	Catalog Catalog
	// EventsKey is the partition holding the event log.
	EventsKey types.PartitionKey

	Evaluator *expr.Evaluator
	Payloads  *payload.Cache
	// Observer receives every compiled filter. Optional.
	Observer filter.Observer
	// Recorder receives timings. Optional.
	Recorder Recorder
	Logger   logrus.FieldLogger
}

// New creates a Service. A nil Evaluator, Payloads or Logger gets a
// default.
func New(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	eval := cfg.Evaluator
	if eval == nil {
		eval = expr.NewEvaluator(expr.WithLogger(log))
	}
	payloads := cfg.Payloads
	if payloads == nil {
		payloads = payload.NewCache(nil)
	}
	return &Service{
		ads:       cfg.Ads,
		events:    cfg.Events,
		catalog:   cfg.Catalog,
		eventsKey: cfg.EventsKey,
		eval:      eval,
		payloads:  payloads,
		observer:  cfg.Observer,
		recorder:  cfg.Recorder,
		log:       log.WithField("component", "report"),
	}
}

// timed reports the duration of one computation named report.
func (s *Service) timed(report string) func() {
	if s.recorder == nil {
		return func() {}
	}
	start := time.Now()
	return func() { s.recorder.ObserveRecompute(report, time.Since(start)) }
}

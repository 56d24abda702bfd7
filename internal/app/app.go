// Package app wires the drilldown service: storage, partition stores,
// report service, saved views and the HTTP API.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	httpapi "github.com/arkilian/drilldown/internal/api/http"
	"github.com/arkilian/drilldown/internal/config"
	"github.com/arkilian/drilldown/internal/observability"
	"github.com/arkilian/drilldown/internal/partition"
	"github.com/arkilian/drilldown/internal/payload"
	"github.com/arkilian/drilldown/internal/query/expr"
	"github.com/arkilian/drilldown/internal/report"
	"github.com/arkilian/drilldown/internal/server"
	"github.com/arkilian/drilldown/internal/storage"
	"github.com/arkilian/drilldown/internal/store"
	"github.com/arkilian/drilldown/internal/viewstore"
	"github.com/arkilian/drilldown/pkg/types"
)

// App owns every long-lived component of the service.
type App struct {
	cfg *config.Config
	log logrus.FieldLogger

	storage storage.ObjectStorage
	layout  partition.Layout
	catalog *partition.Catalog
	metrics *observability.Metrics
	usage   *observability.QueryStats
	reports *report.Service
	kv      viewstore.KV
	views   *viewstore.Store

	shutdown *server.ShutdownManager
	handler  http.Handler

	mu      sync.Mutex
	started bool
}

// New validates cfg and creates the local directories it names.
func New(cfg *config.Config, log logrus.FieldLogger) (*App, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	return &App{
		cfg:    cfg,
		log:    log.WithField("component", "app"),
		layout: LayoutFor(cfg),
	}, nil
}

// LayoutFor returns the dataset layout configured in cfg.
func LayoutFor(cfg *config.Config) partition.Layout {
	return partition.Layout{AdsPrefix: cfg.Partitions.AdsPrefix, EventsObject: cfg.Events.Object}
}

// OpenStorage opens the object storage configured in cfg.
func OpenStorage(ctx context.Context, cfg *config.Config) (storage.ObjectStorage, error) {
	switch cfg.Storage.Type {
	case "local":
		return storage.NewLocalStorage(cfg.Storage.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		s3Cfg.Bucket = cfg.Storage.S3.Bucket
		s3Cfg.Prefix = cfg.Storage.S3.Prefix
		s3Cfg.Endpoint = cfg.Storage.S3.Endpoint
		s3Cfg.UsePathStyle = cfg.Storage.S3.UsePathStyle
		if cfg.Storage.S3.Region != "" {
			s3Cfg.Region = cfg.Storage.S3.Region
		}
		if cfg.Storage.S3.MaxRetries > 0 {
			s3Cfg.MaxRetries = cfg.Storage.S3.MaxRetries
		}
		return storage.NewS3Storage(ctx, s3Cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}

// OpenViews opens the saved view backend configured in cfg.
func OpenViews(cfg *config.Config) (viewstore.KV, error) {
	switch cfg.Views.Backend {
	case config.ViewsSQLite:
		return viewstore.OpenSQLite(cfg.Views.Path)
	case config.ViewsBadger:
		return viewstore.OpenBadger(cfg.Views.Path)
	case config.ViewsMemory:
		return viewstore.NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("unsupported views backend: %s", cfg.Views.Backend)
	}
}

// Init builds every component and makes the initial partitions resident.
// A failed initial load is logged and leaves the service usable; the
// failure stays visible as the store's last error.
func (a *App) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.handler != nil {
		return fmt.Errorf("app is already initialized")
	}

	objects, err := OpenStorage(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	a.storage = objects
	a.catalog = partition.NewCatalog(objects, a.layout)
	a.metrics = observability.NewMetrics()
	a.usage = observability.NewQueryStats(a.cfg.HTTP.UsageWindow)

	downloader := storage.NewBatchDownloader(objects, a.cfg.Partitions.Concurrency, a.cfg.Partitions.CacheDir)
	ads := store.New[types.FactRow]("ads",
		partition.NewFactSource(downloader, a.layout, a.log),
		store.WithLogger(a.log), store.WithMetrics(a.metrics))
	events := store.New[types.EventRow]("events",
		partition.NewEventSource(downloader, a.layout, a.cfg.Events.RowLimit, a.log),
		store.WithLogger(a.log), store.WithMetrics(a.metrics))

	evaluator := expr.NewEvaluator(expr.WithLogger(a.log))
	a.reports = report.New(report.Config{
		Ads:       ads,
		Events:    events,
		Catalog:   a.catalog,
		EventsKey: partition.EventsKey(a.cfg.Events.Object),
		Evaluator: evaluator,
		Payloads:  payload.NewCache(a.usage),
		Observer:  a.usage,
		Recorder:  a.metrics,
		Logger:    a.log,
	})

	kv, err := OpenViews(a.cfg)
	if err != nil {
		return fmt.Errorf("failed to open views: %w", err)
	}
	a.kv = kv
	a.views = viewstore.NewStore(kv, viewstore.WithLogger(a.log))

	a.shutdown = server.NewShutdownManager(server.ShutdownConfig{
		ShutdownTimeout: a.cfg.HTTP.ShutdownTimeout,
		Logger:          a.log,
	})
	a.shutdown.RegisterCloser(evaluator)
	a.shutdown.RegisterCloser(kv)

	deps := httpapi.Dependencies{
		Reports:    a.reports,
		Views:      a.views,
		Usage:      a.usage,
		Middleware: []func(http.Handler) http.Handler{server.ShutdownMiddleware(a.shutdown)},
		Logger:     a.log,
	}
	if a.cfg.HTTP.Metrics {
		deps.Metrics = a.metrics.Handler()
	}
	a.handler = httpapi.NewRouter(deps)

	a.initialLoad(ctx)
	return nil
}

func (a *App) initialLoad(ctx context.Context) {
	if n := a.cfg.Partitions.InitialMonths; n > 0 {
		meta, err := a.catalog.Metadata(ctx)
		if err != nil {
			a.log.WithError(err).Warn("partition metadata unavailable at startup")
		} else if months := latestMonths(meta, n); len(months) > 0 {
			sum, err := a.reports.LoadMonths(ctx, months)
			entry := a.log.WithField("months", months)
			if sum != nil && sum.LoadResult != nil {
				entry = entry.WithField("rows", sum.Rows)
			}
			if err != nil {
				entry.WithError(err).Warn("initial partition load failed")
			} else {
				entry.Info("initial partitions loaded")
			}
		}
	}
	if a.cfg.Events.LoadOnStart {
		if res, err := a.reports.LoadEvents(ctx); err != nil {
			a.log.WithError(err).Warn("initial event load failed")
		} else {
			a.log.WithField("rows", res.Rows).Info("event log loaded")
		}
	}
}

// latestMonths returns the n most recent listed months, oldest first.
func latestMonths(meta types.PartitionMetadata, n int) []string {
	months := append([]string(nil), meta.Months...)
	sort.Strings(months)
	if len(months) > n {
		months = months[len(months)-n:]
	}
	return months
}

// Handler returns the HTTP API. It is nil before Init.
func (a *App) Handler() http.Handler {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handler
}

// Reports returns the report service. It is nil before Init.
func (a *App) Reports() *report.Service {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reports
}

// Run serves the HTTP API until ctx is cancelled, a termination signal
// arrives or the listener fails, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.handler == nil {
		a.mu.Unlock()
		return fmt.Errorf("app is not initialized")
	}
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.started = true
	a.mu.Unlock()

	srv := &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      a.handler,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}
	gs := server.NewGracefulHTTPServer(srv, a.shutdown)

	serveErr := make(chan error, 1)
	go func() { serveErr <- gs.ListenAndServe() }()

	signalErr := make(chan error, 1)
	go func() { signalErr <- a.shutdown.ListenForSignals(ctx) }()

	select {
	case err := <-serveErr:
		if err != nil {
			a.log.WithError(err).Error("http server failed")
			if shutErr := a.shutdown.Shutdown(context.Background(), "server error"); shutErr != nil {
				a.log.WithError(shutErr).Warn("shutdown after server error")
			}
			return err
		}
		return <-signalErr
	case err := <-signalErr:
		<-serveErr
		return err
	}
}

// Close releases resources when Run was never called.
func (a *App) Close() error {
	a.mu.Lock()
	sm := a.shutdown
	a.mu.Unlock()
	if sm == nil {
		return nil
	}
	return sm.Shutdown(context.Background(), "closed")
}

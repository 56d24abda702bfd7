// Package store holds the resident rows of one row family as a sequence of
// immutable snapshots. Partition loads build a new snapshot and publish it
// atomically, so readers never observe a partially merged load.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	dderrors "github.com/arkilian/drilldown/internal/errors"
	"github.com/arkilian/drilldown/pkg/types"
)

// Batch is the outcome of fetching several partitions. A key appears in
// exactly one of Rows or Errors.
type Batch[R any] struct {
	Rows   map[types.PartitionKey][]R
	Errors map[types.PartitionKey]error
}

// Source fetches partitions. The returned error reports a failure of the
// whole batch; per-partition failures go in Batch.Errors.
type Source[R any] interface {
	Fetch(ctx context.Context, keys []types.PartitionKey) (*Batch[R], error)
}

// Metrics observes partition loads. *observability.Metrics satisfies it.
type Metrics interface {
	ObservePartitionLoad(kind string, rows int, took time.Duration, err error)
	SetResidentRows(kind string, rows int)
}

// Snapshot is an immutable view of the resident rows. Callers must not
// modify Rows.
type Snapshot[R any] struct {
	Rows       []R
	Partitions []types.PartitionKey
	Version    uint64
	UpdatedAt  time.Time

	resident map[types.PartitionKey]struct{}
}

// Has reports whether key is resident in this snapshot.
func (s *Snapshot[R]) Has(key types.PartitionKey) bool {
	_, ok := s.resident[key]
	return ok
}

// LoadResult describes what one Load call did.
type LoadResult struct {
	Loaded  []types.PartitionKey          `json:"loaded"`
	Skipped []types.PartitionKey          `json:"skipped"`
	Failed  map[types.PartitionKey]string `json:"failed,omitempty"`
	Rows    int                           `json:"rows"`
	Version uint64                        `json:"version"`
}

// Store is safe for concurrent use. Reads never block; loads are
// serialized so overlapping requests merge each partition exactly once.
type Store[R any] struct {
	name    string
	source  Source[R]
	log     logrus.FieldLogger
	metrics Metrics

	current atomic.Pointer[Snapshot[R]]

	loadMu sync.Mutex

	errMu   sync.RWMutex
	lastErr error
}

// Option configures a Store.
type Option func(*options)

type options struct {
	log     logrus.FieldLogger
	metrics Metrics
}

// WithLogger sets the store logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) { o.log = log }
}

// WithMetrics sets the load observer.
func WithMetrics(m Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New creates an empty store named name (used in logs and metrics) that
// loads partitions from source.
func New[R any](name string, source Source[R], opts ...Option) *Store[R] {
	o := &options{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(o)
	}
	s := &Store[R]{
		name:    name,
		source:  source,
		log:     o.log.WithFields(logrus.Fields{"component": "store", "store": name}),
		metrics: o.metrics,
	}
	s.current.Store(&Snapshot[R]{
		Rows:     []R{},
		resident: map[types.PartitionKey]struct{}{},
	})
	return s
}

// Snapshot returns the current snapshot. It is never nil.
func (s *Store[R]) Snapshot() *Snapshot[R] {
	return s.current.Load()
}

// LastError returns the error of the most recent load that had failures,
// or nil once a later load completes cleanly.
func (s *Store[R]) LastError() error {
	s.errMu.RLock()
	defer s.errMu.RUnlock()
	return s.lastErr
}

func (s *Store[R]) setLastError(err error) {
	s.errMu.Lock()
	s.lastErr = err
	s.errMu.Unlock()
}

// Load makes keys resident. Keys already resident are skipped, so loading
// the same partition twice never duplicates rows. Partitions that fail to
// fetch are left out of the new snapshot while successful ones in the same
// call are kept; the failure is recorded as LastError and returned.
func (s *Store[R]) Load(ctx context.Context, keys ...types.PartitionKey) (*LoadResult, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	cur := s.current.Load()
	result := &LoadResult{
		Loaded:  []types.PartitionKey{},
		Skipped: []types.PartitionKey{},
		Version: cur.Version,
		Rows:    len(cur.Rows),
	}

	missing := make([]types.PartitionKey, 0, len(keys))
	seen := make(map[types.PartitionKey]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if cur.Has(k) {
			result.Skipped = append(result.Skipped, k)
			continue
		}
		missing = append(missing, k)
	}
	if len(missing) == 0 {
		return result, nil
	}
	sortKeys(missing)

	start := time.Now()
	batch, err := s.source.Fetch(ctx, missing)
	if err != nil {
		loadErr := dderrors.NewPartitionError(dderrors.CodePartitionLoadFailed,
			fmt.Sprintf("%s: fetch %d partitions", s.name, len(missing)), err)
		s.setLastError(loadErr)
		s.log.WithError(err).WithField("partitions", len(missing)).Error("partition fetch failed")
		return result, loadErr
	}
	took := time.Since(start)

	var (
		added    int
		loaded   []types.PartitionKey
		failures []error
	)
	for _, k := range missing {
		if ferr, failed := batch.Errors[k]; failed && ferr != nil {
			failures = append(failures, fmt.Errorf("%s: %w", k, ferr))
			if result.Failed == nil {
				result.Failed = make(map[types.PartitionKey]string)
			}
			result.Failed[k] = ferr.Error()
			s.observe(k, 0, took, ferr)
			s.log.WithError(ferr).WithField("partition", k.String()).Warn("partition load failed")
			continue
		}
		rows, ok := batch.Rows[k]
		if !ok {
			ferr := fmt.Errorf("source returned no result")
			failures = append(failures, fmt.Errorf("%s: %w", k, ferr))
			if result.Failed == nil {
				result.Failed = make(map[types.PartitionKey]string)
			}
			result.Failed[k] = ferr.Error()
			s.observe(k, 0, took, ferr)
			continue
		}
		loaded = append(loaded, k)
		added += len(rows)
		s.observe(k, len(rows), took, nil)
	}

	if len(loaded) > 0 {
		next := s.merge(cur, batch, loaded, added)
		s.current.Store(next)
		result.Version = next.Version
		result.Rows = len(next.Rows)
		result.Loaded = loaded
		if s.metrics != nil {
			s.metrics.SetResidentRows(s.name, len(next.Rows))
		}
		s.log.WithFields(logrus.Fields{
			"partitions": len(loaded),
			"rows_added": added,
			"rows":       len(next.Rows),
			"version":    next.Version,
			"took":       took,
		}).Info("snapshot published")
	}

	if len(failures) > 0 {
		loadErr := dderrors.NewPartitionError(dderrors.CodePartitionLoadFailed,
			fmt.Sprintf("%s: %d of %d partitions failed", s.name, len(failures), len(missing)),
			errors.Join(failures...))
		s.setLastError(loadErr)
		return result, loadErr
	}
	s.setLastError(nil)
	return result, nil
}

// merge builds the next snapshot: the previous rows followed by each newly
// loaded partition in key order. The previous snapshot is not modified.
func (s *Store[R]) merge(cur *Snapshot[R], batch *Batch[R], loaded []types.PartitionKey, added int) *Snapshot[R] {
	rows := make([]R, 0, len(cur.Rows)+added)
	rows = append(rows, cur.Rows...)
	for _, k := range loaded {
		rows = append(rows, batch.Rows[k]...)
	}

	resident := make(map[types.PartitionKey]struct{}, len(cur.resident)+len(loaded))
	for k := range cur.resident {
		resident[k] = struct{}{}
	}
	partitions := append([]types.PartitionKey(nil), cur.Partitions...)
	for _, k := range loaded {
		resident[k] = struct{}{}
		partitions = append(partitions, k)
	}
	sortKeys(partitions)

	return &Snapshot[R]{
		Rows:       rows,
		Partitions: partitions,
		Version:    cur.Version + 1,
		UpdatedAt:  time.Now(),
		resident:   resident,
	}
}

func (s *Store[R]) observe(k types.PartitionKey, rows int, took time.Duration, err error) {
	if s.metrics != nil {
		s.metrics.ObservePartitionLoad(string(k.Kind), rows, took, err)
	}
}

func sortKeys(keys []types.PartitionKey) {
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
}

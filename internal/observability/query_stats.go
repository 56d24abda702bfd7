// Package observability tracks which filter fields and attrs paths users
// query, and exposes engine metrics to prometheus.
package observability

import (
	"sort"
	"sync"
	"time"
)

// QueryStats counts filter predicates per field and JSONPath lookups per
// path. It satisfies filter.Observer and payload.PathRecorder.
type QueryStats struct {
	mu            sync.RWMutex
	predicateFreq map[string]*ColumnStats
	jsonPathFreq  map[string]*ColumnStats
	window        time.Duration
	now           func() time.Time
}

// ColumnStats is the usage of one field or attrs path.
type ColumnStats struct {
	Column    string         `json:"column"`
	Frequency int64          `json:"frequency"`
	LastSeen  time.Time      `json:"last_seen"`
	Operators map[string]int `json:"operators,omitempty"` // operator → count, e.g. "between" → 3
}

// Usage is a point-in-time copy of the most used fields and paths.
type Usage struct {
	Predicates []ColumnStats `json:"predicates"`
	JSONPaths  []ColumnStats `json:"json_paths"`
}

// NewQueryStats creates a tracker whose entries expire window after they
// were last seen.
func NewQueryStats(window time.Duration) *QueryStats {
	return &QueryStats{
		predicateFreq: make(map[string]*ColumnStats),
		jsonPathFreq:  make(map[string]*ColumnStats),
		window:        window,
		now:           time.Now,
	}
}

// RecordPredicate counts one condition on column with operator.
func (q *QueryStats) RecordPredicate(column, operator string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	stats := touch(q.predicateFreq, column, q.now())
	stats.Operators[operator]++
}

// RecordJSONPath counts one attrs lookup of path.
func (q *QueryStats) RecordJSONPath(path string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	touch(q.jsonPathFreq, path, q.now())
}

func touch(m map[string]*ColumnStats, key string, now time.Time) *ColumnStats {
	stats, exists := m[key]
	if !exists {
		stats = &ColumnStats{Column: key, Operators: make(map[string]int)}
		m[key] = stats
	}
	stats.Frequency++
	stats.LastSeen = now
	return stats
}

// TopPredicates returns the n most filtered fields, most frequent first.
func (q *QueryStats) TopPredicates(n int) []ColumnStats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return top(q.predicateFreq, n)
}

// TopJSONPaths returns the n most looked-up attrs paths.
func (q *QueryStats) TopJSONPaths(n int) []ColumnStats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return top(q.jsonPathFreq, n)
}

// Usage returns the top n of both kinds.
func (q *QueryStats) Usage(n int) Usage {
	return Usage{Predicates: q.TopPredicates(n), JSONPaths: q.TopJSONPaths(n)}
}

// top copies the entries so callers cannot modify tracked state. Ties are
// broken by name for a stable result.
func top(m map[string]*ColumnStats, n int) []ColumnStats {
	if n <= 0 || len(m) == 0 {
		return []ColumnStats{}
	}
	stats := make([]ColumnStats, 0, len(m))
	for _, s := range m {
		c := *s
		c.Operators = make(map[string]int, len(s.Operators))
		for op, count := range s.Operators {
			c.Operators[op] = count
		}
		stats = append(stats, c)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		return stats[i].Column < stats[j].Column
	})
	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune drops entries not seen within the window.
func (q *QueryStats) Prune() {
	q.mu.Lock()
	defer q.mu.Unlock()

	threshold := q.now().Add(-q.window)
	for col, stats := range q.predicateFreq {
		if stats.LastSeen.Before(threshold) {
			delete(q.predicateFreq, col)
		}
	}
	for path, stats := range q.jsonPathFreq {
		if stats.LastSeen.Before(threshold) {
			delete(q.jsonPathFreq, path)
		}
	}
}

package aggregator

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/arkilian/drilldown/pkg/types"
)

// OrderBy is one sort key over aggregate rows.
type OrderBy struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}

// SortAggregates sorts rows in place by the given keys. The sort is stable,
// so rows with equal keys keep their rollup order. Non-finite ratios sort
// after every finite value in either direction.
func SortAggregates(rows []types.AggregateRow, keys ...OrderBy) error {
	if len(keys) == 0 || len(rows) <= 1 {
		return nil
	}

	getters := make([]func(*types.AggregateRow) interface{}, len(keys))
	for i, k := range keys {
		get, ok := aggregateGetter(k.Field)
		if !ok {
			return fmt.Errorf("orderby: column %q not found in aggregate columns", k.Field)
		}
		getters[i] = get
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for k, key := range keys {
			a, b := getters[k](&rows[i]), getters[k](&rows[j])
			cmp, decided := compareNonFinite(a, b)
			if decided {
				if cmp == 0 {
					continue
				}
				return cmp < 0
			}
			cmp = compareAggValues(a, b)
			if cmp == 0 {
				continue
			}
			if key.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return nil
}

// Paginate returns the window [offset, offset+limit) of rows. A non-positive
// limit returns everything after offset.
func Paginate(rows []types.AggregateRow, offset, limit int) []types.AggregateRow {
	if offset > 0 {
		if offset >= len(rows) {
			return []types.AggregateRow{}
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func aggregateGetter(field string) (func(*types.AggregateRow) interface{}, bool) {
	switch strings.ToLower(field) {
	case "id":
		return func(r *types.AggregateRow) interface{} { return r.ID }, true
	case "name":
		return func(r *types.AggregateRow) interface{} { return r.Name }, true
	case "ctr":
		return func(r *types.AggregateRow) interface{} { return r.CTR }, true
	case "cvr":
		return func(r *types.AggregateRow) interface{} { return r.CVR }, true
	case "roi":
		return func(r *types.AggregateRow) interface{} { return r.ROI }, true
	}
	var probe types.Measures
	if _, ok := probe.Get(field); ok {
		return func(r *types.AggregateRow) interface{} {
			v, _ := r.Measures.Get(field)
			return v
		}, true
	}
	return nil, false
}

// compareNonFinite orders NaN and ±Inf after finite numbers. It reports
// decided=false when both values are finite numbers or not numbers at all.
func compareNonFinite(a, b interface{}) (int, bool) {
	fa, aok := a.(float64)
	fb, bok := b.(float64)
	if !aok || !bok {
		return 0, false
	}
	na := math.IsNaN(fa) || math.IsInf(fa, 0)
	nb := math.IsNaN(fb) || math.IsInf(fb, 0)
	switch {
	case na && nb:
		return 0, true
	case na:
		return 1, true
	case nb:
		return -1, true
	}
	return 0, false
}

// compareAggValues compares two key values of the same kind.
func compareAggValues(a, b interface{}) int {
	switch va := a.(type) {
	case float64:
		vb, _ := b.(float64)
		switch {
		case va < vb:
			return -1
		case va > vb:
			return 1
		}
		return 0
	case int64:
		vb, _ := b.(int64)
		switch {
		case va < vb:
			return -1
		case va > vb:
			return 1
		}
		return 0
	case string:
		vb, _ := b.(string)
		return strings.Compare(va, vb)
	}
	return 0
}

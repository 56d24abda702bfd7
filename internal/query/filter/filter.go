package filter

import (
	"strings"
	"time"

	"github.com/arkilian/drilldown/pkg/types"
)

// Predicate reports whether a row survives a compiled filter.
type Predicate[R types.Fielder] func(R) bool

// Observer receives the field and operator of every condition that is
// compiled. *observability.QueryStats satisfies it.
type Observer interface {
	RecordPredicate(column, operator string)
}

// Observe reports the base filter and conditions to obs.
func Observe(obs Observer, base BaseFilter, conds []Condition) {
	if obs == nil {
		return
	}
	if base.Category != "" {
		obs.RecordPredicate(base.CategoryField, string(OpEquals))
	}
	if base.Range != nil {
		obs.RecordPredicate(base.DateField, string(OpBetween))
	}
	for _, c := range conds {
		obs.RecordPredicate(c.Field, string(c.Operator))
	}
}

// Apply returns the rows that satisfy base and every condition, in input
// order. The input slice is never modified and the result is a new slice.
func Apply[R types.Fielder](rows []R, base BaseFilter, conds []Condition) []R {
	pred := Compile[R](base, conds)
	out := make([]R, 0, len(rows))
	for _, r := range rows {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// Compile builds a reusable predicate from a base filter and conditions.
func Compile[R types.Fielder](base BaseFilter, conds []Condition) Predicate[R] {
	tests := make([]func(types.Fielder) bool, 0, len(conds)+2)

	if base.Category != "" {
		field, want := base.CategoryField, base.Category
		tests = append(tests, func(r types.Fielder) bool {
			v, ok := r.Field(field)
			return ok && coerceString(v) == want
		})
	}
	if base.Range != nil {
		tests = append(tests, rangeTest(base.DateField, *base.Range))
	}
	for _, c := range conds {
		tests = append(tests, conditionTest(c))
	}

	if len(tests) == 0 {
		return func(R) bool { return true }
	}
	return func(r R) bool {
		for _, test := range tests {
			if !test(r) {
				return false
			}
		}
		return true
	}
}

// Match reports whether a single row satisfies one condition.
func Match(r types.Fielder, c Condition) bool {
	return conditionTest(c)(r)
}

// rangeTest compares at day granularity, inclusive on both ends.
func rangeTest(field string, rng DateRange) func(types.Fielder) bool {
	var start, end time.Time
	if !rng.Start.IsZero() {
		start = day(rng.Start)
	}
	if !rng.End.IsZero() {
		end = day(rng.End)
	}
	return func(r types.Fielder) bool {
		v, ok := r.Field(field)
		if !ok {
			return false
		}
		d, ok := parseDay(v)
		if !ok {
			return false
		}
		if !start.IsZero() && d.Before(start) {
			return false
		}
		if !end.IsZero() && d.After(end) {
			return false
		}
		return true
	}
}

func never(types.Fielder) bool { return false }

// conditionTest compiles one condition. Malformed conditions compile to a
// test that never matches.
func conditionTest(c Condition) func(types.Fielder) bool {
	field := c.Field
	switch c.Operator {
	case OpEquals:
		return func(r types.Fielder) bool {
			v, ok := r.Field(field)
			return ok && compare(v, c.Value) == 0
		}

	case OpContains:
		needle := strings.ToLower(c.Value)
		return func(r types.Fielder) bool {
			v, ok := r.Field(field)
			return ok && strings.Contains(strings.ToLower(coerceString(v)), needle)
		}

	case OpGreaterThan:
		return func(r types.Fielder) bool {
			v, ok := r.Field(field)
			return ok && compare(v, c.Value) > 0
		}

	case OpLessThan:
		return func(r types.Fielder) bool {
			v, ok := r.Field(field)
			return ok && compare(v, c.Value) < 0
		}

	case OpBetween:
		if c.Value2 == nil {
			return never
		}
		low, high := c.Value, *c.Value2
		return func(r types.Fielder) bool {
			v, ok := r.Field(field)
			return ok && compare(v, low) >= 0 && compare(v, high) <= 0
		}
	}
	return never
}

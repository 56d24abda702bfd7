// Package filter composes base predicates (category, date range) with
// user-defined field conditions into a row predicate.
package filter

import (
	"encoding/json"
	"fmt"
	"time"
)

// Operator is a field condition operator.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
	OpBetween     Operator = "between"
)

// Condition is one user-defined field test. Conditions combine with AND.
type Condition struct {
	ID       string   `json:"id"`
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
	// Value2 is the upper bound of a between test.
	Value2 *string `json:"value2,omitempty"`
}

// DateRange is an inclusive day range. Either bound may be zero (open).
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// UnmarshalJSON accepts each bound as a day ("2024-05-01"), an RFC 3339
// timestamp, or null.
func (r *DateRange) UnmarshalJSON(data []byte) error {
	var raw struct {
		Start *string `json:"start"`
		End   *string `json:"end"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var out DateRange
	for _, b := range []struct {
		src *string
		dst *time.Time
	}{{raw.Start, &out.Start}, {raw.End, &out.End}} {
		if b.src == nil || *b.src == "" {
			continue
		}
		t, ok := parseDay(*b.src)
		if !ok {
			return fmt.Errorf("filter: invalid date %q", *b.src)
		}
		*b.dst = t
	}
	*r = out
	return nil
}

// BaseFilter holds the optional category equality and date range applied
// before any field condition.
type BaseFilter struct {
	// Category is compared for equality against CategoryField. Empty disables it.
	Category      string `json:"category,omitempty"`
	CategoryField string `json:"category_field,omitempty"`

	Range     *DateRange `json:"range,omitempty"`
	DateField string     `json:"date_field,omitempty"`
}

// IsZero reports whether the base filter restricts nothing.
func (b BaseFilter) IsZero() bool {
	return b.Category == "" && b.Range == nil
}

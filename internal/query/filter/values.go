package filter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	dayLayout       = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"
)

// coerceString renders a field value the way a user sees it in a table cell.
func coerceString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		u := val.UTC()
		if u.Hour() == 0 && u.Minute() == 0 && u.Second() == 0 && u.Nanosecond() == 0 {
			return u.Format(dayLayout)
		}
		return u.Format(timestampLayout)
	}
	return fmt.Sprintf("%v", v)
}

// toFloat64 converts a field value or condition operand to a number.
func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, !math.IsNaN(val)
	case float32:
		return float64(val), true
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// compare orders a field value against an operand. Both sides are compared
// numerically when both parse as numbers, otherwise as strings.
func compare(field interface{}, operand string) int {
	if a, ok := toFloat64(field); ok {
		if b, ok := toFloat64(operand); ok {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(coerceString(field), operand)
}

// parseDay parses an operand or field value into a UTC day.
func parseDay(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		if val.IsZero() {
			return time.Time{}, false
		}
		return day(val), true
	case string:
		for _, layout := range []string{dayLayout, time.RFC3339Nano, timestampLayout} {
			if t, err := time.Parse(layout, strings.TrimSpace(val)); err == nil {
				return day(t), true
			}
		}
	}
	return time.Time{}, false
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

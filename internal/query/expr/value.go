package expr

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Value is a runtime value: nil (null), float64, string, bool,
// map[string]interface{}, []interface{}, or a builtin.
type Value = interface{}

// Sentinel marks a cell whose expression failed to evaluate.
type Sentinel string

// ErrorValue is returned in place of a result whenever evaluation fails.
const ErrorValue Sentinel = "#ERROR"

// IsError reports whether v is the error sentinel.
func IsError(v Value) bool {
	s, ok := v.(Sentinel)
	return ok && s == ErrorValue
}

// builtinFunc is a whitelisted callable.
type builtinFunc struct {
	name string
	fn   func(args []Value) (Value, error)
}

// namespace is a whitelisted object of constants and builtins.
type namespace struct {
	name    string
	members map[string]Value
}

// normalize converts host values into runtime values.
func normalize(v interface{}) Value {
	switch val := v.(type) {
	case nil, float64, string, bool, map[string]interface{}, []interface{}, *builtinFunc, *namespace:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case uint64:
		return float64(val)
	case float32:
		return float64(val)
	case time.Time:
		u := val.UTC()
		if u.Hour() == 0 && u.Minute() == 0 && u.Second() == 0 && u.Nanosecond() == 0 {
			return u.Format("2006-01-02")
		}
		return u.Format(time.RFC3339)
	}
	return fmt.Sprintf("%v", v)
}

func typeName(v Value) string {
	switch v.(type) {
	case nil:
		return "null"
	case float64:
		return "number"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	case *builtinFunc:
		return "function"
	case *namespace:
		return "namespace"
	}
	return fmt.Sprintf("%T", v)
}

// truthy follows the usual scripting truthiness rules.
func truthy(v Value) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0 && !math.IsNaN(val)
	case string:
		return val != ""
	}
	return true
}

// toDisplayString renders v for string concatenation.
func toDisplayString(v Value) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case float64:
		return formatNumber(val)
	case bool:
		return strconv.FormatBool(val)
	case *builtinFunc:
		return "function " + val.name
	case *namespace:
		return val.name
	}
	return fmt.Sprintf("%v", v)
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

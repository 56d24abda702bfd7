package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const msPerDay = 24 * 60 * 60 * 1000

// dateLayouts are accepted when a Date function receives a string.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// newNamespaces builds the Math and Date namespaces. now is the clock used by
// Date.now.
func newNamespaces(now func() time.Time) map[string]*namespace {
	return map[string]*namespace{
		"Math": mathNamespace(),
		"Date": dateNamespace(now),
	}
}

func fn(name string, f func(args []Value) (Value, error)) *builtinFunc {
	return &builtinFunc{name: name, fn: f}
}

// unary wraps a float function of one argument.
func unary(name string, f func(float64) float64) *builtinFunc {
	return fn(name, func(args []Value) (Value, error) {
		x, err := numberArg(name, args, 0)
		if err != nil {
			return nil, err
		}
		return f(x), nil
	})
}

func mathNamespace() *namespace {
	return &namespace{
		name: "Math",
		members: map[string]Value{
			"PI":    math.Pi,
			"E":     math.E,
			"abs":   unary("Math.abs", math.Abs),
			"ceil":  unary("Math.ceil", math.Ceil),
			"floor": unary("Math.floor", math.Floor),
			"trunc": unary("Math.trunc", math.Trunc),
			"sqrt":  unary("Math.sqrt", math.Sqrt),
			"log":   unary("Math.log", math.Log),
			"exp":   unary("Math.exp", math.Exp),
			"round": unary("Math.round", func(x float64) float64 {
				// half-way values round toward +Inf
				return math.Floor(x + 0.5)
			}),
			"sign": unary("Math.sign", func(x float64) float64 {
				switch {
				case x > 0:
					return 1
				case x < 0:
					return -1
				}
				return x
			}),
			"pow": fn("Math.pow", func(args []Value) (Value, error) {
				x, err := numberArg("Math.pow", args, 0)
				if err != nil {
					return nil, err
				}
				y, err := numberArg("Math.pow", args, 1)
				if err != nil {
					return nil, err
				}
				return math.Pow(x, y), nil
			}),
			"min": fn("Math.min", func(args []Value) (Value, error) {
				return fold("Math.min", args, math.Inf(1), math.Min)
			}),
			"max": fn("Math.max", func(args []Value) (Value, error) {
				return fold("Math.max", args, math.Inf(-1), math.Max)
			}),
		},
	}
}

func fold(name string, args []Value, init float64, f func(a, b float64) float64) (Value, error) {
	acc := init
	for i := range args {
		x, err := numberArg(name, args, i)
		if err != nil {
			return nil, err
		}
		acc = f(acc, x)
	}
	return acc, nil
}

func dateNamespace(now func() time.Time) *namespace {
	part := func(name string, f func(time.Time) int) *builtinFunc {
		return fn(name, func(args []Value) (Value, error) {
			t, err := timeArg(name, args, 0)
			if err != nil {
				return nil, err
			}
			return float64(f(t)), nil
		})
	}
	return &namespace{
		name: "Date",
		members: map[string]Value{
			"now": fn("Date.now", func(args []Value) (Value, error) {
				return float64(now().UnixMilli()), nil
			}),
			"parse": fn("Date.parse", func(args []Value) (Value, error) {
				t, err := timeArg("Date.parse", args, 0)
				if err != nil {
					return nil, err
				}
				return float64(t.UnixMilli()), nil
			}),
			"year":    part("Date.year", func(t time.Time) int { return t.Year() }),
			"month":   part("Date.month", func(t time.Time) int { return int(t.Month()) }),
			"day":     part("Date.day", func(t time.Time) int { return t.Day() }),
			"hour":    part("Date.hour", func(t time.Time) int { return t.Hour() }),
			"weekday": part("Date.weekday", func(t time.Time) int { return int(t.Weekday()) }),
			"diffDays": fn("Date.diffDays", func(args []Value) (Value, error) {
				a, err := timeArg("Date.diffDays", args, 0)
				if err != nil {
					return nil, err
				}
				b, err := timeArg("Date.diffDays", args, 1)
				if err != nil {
					return nil, err
				}
				return float64(b.UnixMilli()-a.UnixMilli()) / msPerDay, nil
			}),
		},
	}
}

func numberArg(name string, args []Value, i int) (float64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%s: missing argument %d", name, i+1)
	}
	switch v := args[i].(type) {
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%s: argument %d is not numeric: %q", name, i+1, v)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%s: argument %d must be a number, got %s", name, i+1, typeName(args[i]))
}

// timeArg accepts epoch milliseconds or a date/time string.
func timeArg(name string, args []Value, i int) (time.Time, error) {
	if i >= len(args) {
		return time.Time{}, fmt.Errorf("%s: missing argument %d", name, i+1)
	}
	switch v := args[i].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return time.Time{}, fmt.Errorf("%s: invalid time value", name)
		}
		return time.UnixMilli(int64(v)).UTC(), nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("%s: unrecognized date %q", name, v)
	}
	return time.Time{}, fmt.Errorf("%s: argument %d must be a date, got %s", name, i+1, typeName(args[i]))
}

package expr

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// AttrsVar is the variable bound to a row's lazily parsed side payload.
const AttrsVar = "attrs"

// ErrUndefined is returned when an identifier is neither bound nor a namespace.
var ErrUndefined = errors.New("undefined variable")

// Env resolves bound variables for one row.
type Env interface {
	Lookup(name string) (interface{}, bool)
}

// MapEnv is an Env backed by a map.
type MapEnv map[string]interface{}

// Lookup implements Env.
func (m MapEnv) Lookup(name string) (interface{}, bool) {
	v, ok := m[name]
	return v, ok
}

// Program is a compiled expression.
type Program struct {
	source    string
	root      Node
	usesAttrs bool

	// entry is the Evaluator cache entry the program was compiled into
	entry *compiled
}

// Compile parses source into a Program.
func Compile(source string) (*Program, error) {
	root, err := Parse(source)
	if err != nil {
		return nil, err
	}
	prog := &Program{source: source, root: root}
	Walk(root, func(n Node) {
		if id, ok := n.(*Ident); ok && id.Name == AttrsVar {
			prog.usesAttrs = true
		}
	})
	return prog, nil
}

// Source returns the expression text.
func (p *Program) Source() string { return p.source }

// UsesAttrs reports whether the expression reads the side payload. Callers
// skip payload parsing entirely when it does not.
func (p *Program) UsesAttrs() bool { return p.usesAttrs }

// interpreter evaluates one program against one environment.
type interpreter struct {
	env        Env
	namespaces map[string]*namespace
}

func (in *interpreter) eval(n Node) (Value, error) {
	switch v := n.(type) {
	case *NumberLit:
		return v.Value, nil
	case *StringLit:
		return v.Value, nil
	case *BoolLit:
		return v.Value, nil
	case *NullLit:
		return nil, nil
	case *Ident:
		return in.lookup(v)
	case *MemberExpr:
		obj, err := in.eval(v.Object)
		if err != nil {
			return nil, err
		}
		return member(obj, v.Property)
	case *IndexExpr:
		return in.evalIndex(v)
	case *CallExpr:
		return in.evalCall(v)
	case *UnaryExpr:
		return in.evalUnary(v)
	case *BinaryExpr:
		return in.evalBinary(v)
	case *ConditionalExpr:
		test, err := in.eval(v.Test)
		if err != nil {
			return nil, err
		}
		if truthy(test) {
			return in.eval(v.Consequent)
		}
		return in.eval(v.Alternate)
	}
	return nil, fmt.Errorf("unsupported expression node %T", n)
}

// lookup resolves namespaces first so row fields cannot shadow them.
func (in *interpreter) lookup(id *Ident) (Value, error) {
	if ns, ok := in.namespaces[id.Name]; ok {
		return ns, nil
	}
	if in.env != nil {
		if v, ok := in.env.Lookup(id.Name); ok {
			return normalize(v), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUndefined, id.Name)
}

func member(obj Value, prop string) (Value, error) {
	switch o := obj.(type) {
	case nil:
		return nil, fmt.Errorf("cannot read property %q of null", prop)
	case map[string]interface{}:
		return normalize(o[prop]), nil
	case *namespace:
		v, ok := o.members[prop]
		if !ok {
			return nil, fmt.Errorf("%s.%s is not available", o.name, prop)
		}
		return v, nil
	case string:
		if prop == "length" {
			return float64(len([]rune(o))), nil
		}
	case []interface{}:
		if prop == "length" {
			return float64(len(o)), nil
		}
	}
	return nil, fmt.Errorf("cannot read property %q of %s", prop, typeName(obj))
}

func (in *interpreter) evalIndex(n *IndexExpr) (Value, error) {
	obj, err := in.eval(n.Object)
	if err != nil {
		return nil, err
	}
	idx, err := in.eval(n.Index)
	if err != nil {
		return nil, err
	}
	switch o := obj.(type) {
	case []interface{}:
		f, ok := idx.(float64)
		if !ok || f != math.Trunc(f) {
			return nil, fmt.Errorf("array index must be an integer, got %s", typeName(idx))
		}
		i := int(f)
		if i < 0 || i >= len(o) {
			return nil, nil
		}
		return normalize(o[i]), nil
	case string:
		f, ok := idx.(float64)
		if !ok || f != math.Trunc(f) {
			return nil, fmt.Errorf("string index must be an integer, got %s", typeName(idx))
		}
		runes := []rune(o)
		i := int(f)
		if i < 0 || i >= len(runes) {
			return nil, nil
		}
		return string(runes[i]), nil
	}
	key, ok := idx.(string)
	if !ok {
		if f, isNum := idx.(float64); isNum {
			key, ok = formatNumber(f), true
		}
	}
	if !ok {
		return nil, fmt.Errorf("property key must be a string, got %s", typeName(idx))
	}
	return member(obj, key)
}

func (in *interpreter) evalCall(n *CallExpr) (Value, error) {
	callee, err := in.eval(n.Callee)
	if err != nil {
		return nil, err
	}
	f, ok := callee.(*builtinFunc)
	if !ok {
		return nil, fmt.Errorf("%s is not a function", n.Callee.String())
	}
	args := make([]Value, len(n.Args))
	for i, a := range n.Args {
		if args[i], err = in.eval(a); err != nil {
			return nil, err
		}
	}
	return f.fn(args)
}

func (in *interpreter) evalUnary(n *UnaryExpr) (Value, error) {
	v, err := in.eval(n.Operand)
	if err != nil {
		return nil, err
	}
	switch n.Operator {
	case "!":
		return !truthy(v), nil
	case "-":
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("cannot negate %s", typeName(v))
		}
		return -f, nil
	case "+":
		switch x := v.(type) {
		case float64:
			return x, nil
		case string:
			f, err := strconv.ParseFloat(x, 64)
			if err != nil {
				return math.NaN(), nil
			}
			return f, nil
		}
		return nil, fmt.Errorf("cannot convert %s to number", typeName(v))
	}
	return nil, fmt.Errorf("unknown unary operator %q", n.Operator)
}

func (in *interpreter) evalBinary(n *BinaryExpr) (Value, error) {
	left, err := in.eval(n.Left)
	if err != nil {
		return nil, err
	}

	// Logical operators short-circuit and yield an operand.
	switch n.Operator {
	case "&&":
		if !truthy(left) {
			return left, nil
		}
		return in.eval(n.Right)
	case "||":
		if truthy(left) {
			return left, nil
		}
		return in.eval(n.Right)
	}

	right, err := in.eval(n.Right)
	if err != nil {
		return nil, err
	}

	switch n.Operator {
	case "===":
		return strictEqual(left, right), nil
	case "!==":
		return !strictEqual(left, right), nil
	case "==":
		return looseEqual(left, right), nil
	case "!=":
		return !looseEqual(left, right), nil
	case "<", "<=", ">", ">=":
		return compareOp(n.Operator, left, right)
	case "+":
		if ls, ok := left.(string); ok {
			return ls + toDisplayString(right), nil
		}
		if rs, ok := right.(string); ok {
			return toDisplayString(left) + rs, nil
		}
		fallthrough
	case "-", "*", "/", "%":
		return arithmetic(n.Operator, left, right)
	}
	return nil, fmt.Errorf("unknown operator %q", n.Operator)
}

func arithmetic(op string, left, right Value) (Value, error) {
	a, aok := left.(float64)
	b, bok := right.(float64)
	if !aok || !bok {
		return nil, fmt.Errorf("operator %s needs numbers, got %s and %s", op, typeName(left), typeName(right))
	}
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		return a / b, nil
	case "%":
		return math.Mod(a, b), nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

func compareOp(op string, left, right Value) (Value, error) {
	var cmp int
	switch a := left.(type) {
	case float64:
		b, ok := right.(float64)
		if !ok {
			return nil, fmt.Errorf("cannot compare number with %s", typeName(right))
		}
		if math.IsNaN(a) || math.IsNaN(b) {
			return false, nil
		}
		switch {
		case a < b:
			cmp = -1
		case a > b:
			cmp = 1
		}
	case string:
		b, ok := right.(string)
		if !ok {
			return nil, fmt.Errorf("cannot compare string with %s", typeName(right))
		}
		switch {
		case a < b:
			cmp = -1
		case a > b:
			cmp = 1
		}
	default:
		return nil, fmt.Errorf("cannot compare %s values", typeName(left))
	}
	switch op {
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	}
	return cmp >= 0, nil
}

func strictEqual(a, b Value) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case *builtinFunc:
		y, ok := b.(*builtinFunc)
		return ok && x == y
	case *namespace:
		y, ok := b.(*namespace)
		return ok && x == y
	}
	// objects and arrays have no identity across lookups
	return false
}

// looseEqual compares numbers with numeric strings and booleans numerically.
func looseEqual(a, b Value) bool {
	if strictEqual(a, b) {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	x, xok := looseNumber(a)
	y, yok := looseNumber(b)
	return xok && yok && x == y
}

func looseNumber(v Value) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}

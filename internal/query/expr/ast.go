package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is an expression AST node.
type Node interface {
	exprNode()
	String() string
}

// NumberLit is a numeric literal.
type NumberLit struct {
	Value float64
}

func (*NumberLit) exprNode() {}
func (n *NumberLit) String() string {
	return strconv.FormatFloat(n.Value, 'g', -1, 64)
}

// StringLit is a string literal.
type StringLit struct {
	Value string
}

func (*StringLit) exprNode()        {}
func (s *StringLit) String() string { return strconv.Quote(s.Value) }

// BoolLit is true or false.
type BoolLit struct {
	Value bool
}

func (*BoolLit) exprNode()        {}
func (b *BoolLit) String() string { return strconv.FormatBool(b.Value) }

// NullLit is null.
type NullLit struct{}

func (*NullLit) exprNode()      {}
func (*NullLit) String() string { return "null" }

// Ident is a variable or namespace reference.
type Ident struct {
	Name string
	Pos  int
}

func (*Ident) exprNode()        {}
func (i *Ident) String() string { return i.Name }

// MemberExpr is object.property.
type MemberExpr struct {
	Object   Node
	Property string
}

func (*MemberExpr) exprNode() {}
func (m *MemberExpr) String() string {
	return m.Object.String() + "." + m.Property
}

// IndexExpr is object[index].
type IndexExpr struct {
	Object Node
	Index  Node
}

func (*IndexExpr) exprNode() {}
func (i *IndexExpr) String() string {
	return fmt.Sprintf("%s[%s]", i.Object.String(), i.Index.String())
}

// CallExpr is callee(args...). Only builtin functions are callable.
type CallExpr struct {
	Callee Node
	Args   []Node
}

func (*CallExpr) exprNode() {}
func (c *CallExpr) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", c.Callee.String(), strings.Join(args, ", "))
}

// UnaryExpr is a prefix operator applied to an operand.
type UnaryExpr struct {
	Operator string // !, -, +
	Operand  Node
}

func (*UnaryExpr) exprNode() {}
func (u *UnaryExpr) String() string {
	return fmt.Sprintf("(%s%s)", u.Operator, u.Operand.String())
}

// BinaryExpr is left op right, including the short-circuit && and ||.
type BinaryExpr struct {
	Left     Node
	Operator string
	Right    Node
}

func (*BinaryExpr) exprNode() {}
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left.String(), b.Operator, b.Right.String())
}

// ConditionalExpr is test ? consequent : alternate.
type ConditionalExpr struct {
	Test       Node
	Consequent Node
	Alternate  Node
}

func (*ConditionalExpr) exprNode() {}
func (c *ConditionalExpr) String() string {
	return fmt.Sprintf("(%s ? %s : %s)", c.Test.String(), c.Consequent.String(), c.Alternate.String())
}

// Walk visits n and every descendant in depth-first order.
func Walk(n Node, fn func(Node)) {
	if n == nil {
		return
	}
	stack := []Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(cur)
		kids := children(cur)
		for i := len(kids) - 1; i >= 0; i-- {
			if kids[i] != nil {
				stack = append(stack, kids[i])
			}
		}
	}
}

// Height returns the number of nodes on the longest root-to-leaf path of n.
// It does not recurse, so it is safe on trees of any shape.
func Height(n Node) int {
	if n == nil {
		return 0
	}
	type frame struct {
		node  Node
		depth int
	}
	height := 0
	stack := []frame{{n, 1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.depth > height {
			height = f.depth
		}
		for _, c := range children(f.node) {
			if c != nil {
				stack = append(stack, frame{c, f.depth + 1})
			}
		}
	}
	return height
}

func children(n Node) []Node {
	switch v := n.(type) {
	case *MemberExpr:
		return []Node{v.Object}
	case *IndexExpr:
		return []Node{v.Object, v.Index}
	case *CallExpr:
		return append([]Node{v.Callee}, v.Args...)
	case *UnaryExpr:
		return []Node{v.Operand}
	case *BinaryExpr:
		return []Node{v.Left, v.Right}
	case *ConditionalExpr:
		return []Node{v.Test, v.Consequent, v.Alternate}
	}
	return nil
}

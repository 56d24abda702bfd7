package expr

import (
	"fmt"
	"strconv"
)

// maxDepth bounds the height of the syntax tree, which is also the
// evaluator's recursion depth.
const maxDepth = 256

// MaxSourceLength is the longest expression text accepted, in bytes.
const MaxSourceLength = 4096

// ParseError represents a parsing error with location information.
type ParseError struct {
	Message  string
	Position int
	Token    Token
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s (got %q)", e.Position, e.Message, e.Token.Literal)
}

// Parser parses an expression into an AST.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	depth     int
}

// NewParser creates a new Parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a complete expression. Input longer than MaxSourceLength or
// producing a tree taller than maxDepth is rejected.
func Parse(input string) (Node, error) {
	if len(input) > MaxSourceLength {
		return nil, &ParseError{
			Message:  fmt.Sprintf("expression longer than %d bytes", MaxSourceLength),
			Position: MaxSourceLength,
		}
	}
	p := NewParser(input)
	n, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}
	// Left-associative chains grow the tree without nesting parse calls.
	if Height(n) > maxDepth {
		return nil, &ParseError{Message: "expression nested too deeply", Position: len(input)}
	}
	return n, nil
}

// ParseExpression parses one expression and requires the input to end after it.
func (p *Parser) ParseExpression() (Node, error) {
	if p.curTokenIs(TokenEOF) {
		return nil, p.errorf("empty expression")
	}
	n, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	if !p.curTokenIs(TokenEOF) {
		return nil, p.errorf("unexpected token after expression")
	}
	return n, nil
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if p.curTokenIs(TokenError) {
		msg = "invalid token"
	}
	return &ParseError{
		Message:  msg,
		Position: p.curToken.Pos,
		Token:    p.curToken,
	}
}

// expect consumes the current token if it matches t.
func (p *Parser) expect(t TokenType) error {
	if !p.curTokenIs(t) {
		return p.errorf("expected %s", t.String())
	}
	p.nextToken()
	return nil
}

// Operator precedence levels.
const (
	precLowest = iota
	precTernary
	precOr
	precAnd
	precEquality
	precCompare
	precAdd
	precMul
	precUnary
	precPostfix
)

// getPrecedence returns the binding power of the current token as an infix
// operator.
func (p *Parser) getPrecedence() int {
	switch p.curToken.Type {
	case TokenQuestion:
		return precTernary
	case TokenOr:
		return precOr
	case TokenAnd:
		return precAnd
	case TokenEq, TokenNe, TokenStrictEq, TokenStrictNe:
		return precEquality
	case TokenLt, TokenGt, TokenLe, TokenGe:
		return precCompare
	case TokenPlus, TokenMinus:
		return precAdd
	case TokenStar, TokenSlash, TokenPercent:
		return precMul
	case TokenDot, TokenLBracket, TokenLParen:
		return precPostfix
	default:
		return precLowest
	}
}

// parseExpression parses an expression with operator precedence.
func (p *Parser) parseExpression(precedence int) (Node, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxDepth {
		return nil, p.errorf("expression nested too deeply")
	}

	left, err := p.parsePrefixExpression()
	if err != nil {
		return nil, err
	}

	for !p.curTokenIs(TokenEOF) && precedence < p.getPrecedence() {
		left, err = p.parseInfixExpression(left)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *Parser) parsePrefixExpression() (Node, error) {
	switch p.curToken.Type {
	case TokenIdent:
		id := &Ident{Name: p.curToken.Literal, Pos: p.curToken.Pos}
		p.nextToken()
		return id, nil
	case TokenNumber:
		return p.parseNumber()
	case TokenString:
		s := &StringLit{Value: p.curToken.Literal}
		p.nextToken()
		return s, nil
	case TokenTrue, TokenFalse:
		b := &BoolLit{Value: p.curTokenIs(TokenTrue)}
		p.nextToken()
		return b, nil
	case TokenNull:
		p.nextToken()
		return &NullLit{}, nil
	case TokenLParen:
		return p.parseGroupedExpression()
	case TokenNot, TokenMinus, TokenPlus:
		op := p.curToken.Literal
		p.nextToken()
		operand, err := p.parseExpression(precUnary)
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Operator: op, Operand: operand}, nil
	default:
		return nil, p.errorf("unexpected token in expression")
	}
}

func (p *Parser) parseNumber() (Node, error) {
	tok := p.curToken
	val, err := strconv.ParseFloat(tok.Literal, 64)
	if err != nil {
		return nil, p.errorf("invalid number")
	}
	p.nextToken()
	return &NumberLit{Value: val}, nil
}

func (p *Parser) parseGroupedExpression() (Node, error) {
	p.nextToken() // Skip (
	n, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Parser) parseInfixExpression(left Node) (Node, error) {
	switch p.curToken.Type {
	case TokenDot:
		p.nextToken()
		// keywords are valid property names
		switch p.curToken.Type {
		case TokenIdent, TokenTrue, TokenFalse, TokenNull:
		default:
			return nil, p.errorf("expected property name after dot")
		}
		m := &MemberExpr{Object: left, Property: p.curToken.Literal}
		p.nextToken()
		return m, nil

	case TokenLBracket:
		p.nextToken()
		idx, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokenRBracket); err != nil {
			return nil, err
		}
		return &IndexExpr{Object: left, Index: idx}, nil

	case TokenLParen:
		return p.parseCall(left)

	case TokenQuestion:
		return p.parseConditional(left)

	default:
		return p.parseBinaryExpression(left)
	}
}

func (p *Parser) parseCall(callee Node) (Node, error) {
	p.nextToken() // Skip (
	call := &CallExpr{Callee: callee}
	if p.curTokenIs(TokenRParen) {
		p.nextToken()
		return call, nil
	}
	for {
		arg, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		if p.curTokenIs(TokenComma) {
			p.nextToken()
			continue
		}
		if err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return call, nil
	}
}

// parseConditional parses the right-associative ternary operator.
func (p *Parser) parseConditional(test Node) (Node, error) {
	p.nextToken() // Skip ?
	consequent, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenColon); err != nil {
		return nil, err
	}
	alternate, err := p.parseExpression(precTernary - 1)
	if err != nil {
		return nil, err
	}
	return &ConditionalExpr{Test: test, Consequent: consequent, Alternate: alternate}, nil
}

func (p *Parser) parseBinaryExpression(left Node) (Node, error) {
	op := p.curToken.Literal
	precedence := p.getPrecedence()
	p.nextToken()

	right, err := p.parseExpression(precedence)
	if err != nil {
		return nil, err
	}
	return &BinaryExpr{Left: left, Operator: op, Right: right}, nil
}

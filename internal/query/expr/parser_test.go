package expr

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexer_Tokenize(t *testing.T) {
	tokens := NewLexer(`a.b === 'x' && c["k"] !== 1.5e2 || !d ? -2 : null`).Tokenize()
	var types []TokenType
	for _, tok := range tokens {
		types = append(types, tok.Type)
	}
	assert.Equal(t, []TokenType{
		TokenIdent, TokenDot, TokenIdent, TokenStrictEq, TokenString, TokenAnd,
		TokenIdent, TokenLBracket, TokenString, TokenRBracket, TokenStrictNe, TokenNumber,
		TokenOr, TokenNot, TokenIdent, TokenQuestion, TokenMinus, TokenNumber, TokenColon,
		TokenNull, TokenEOF,
	}, types)
	assert.Equal(t, "1.5e2", tokens[11].Literal)
}

func TestLexer_Strings(t *testing.T) {
	tok := NewLexer(`"it\'s \"quoted\"\n"`).NextToken()
	require.Equal(t, TokenString, tok.Type)
	assert.Equal(t, "it's \"quoted\"\n", tok.Literal)

	tok = NewLexer(`'unterminated`).NextToken()
	assert.Equal(t, TokenError, tok.Type)
}

func TestLexer_RejectsAssignmentAndBitwise(t *testing.T) {
	for _, input := range []string{"a = 1", "a & b", "a | b", "a ; b", "a @ b"} {
		tokens := NewLexer(input).Tokenize()
		assert.Equal(t, TokenError, tokens[len(tokens)-1].Type, input)
	}
}

func TestParse_Precedence(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1 + 2 * 3", "(1 + (2 * 3))"},
		{"(1 + 2) * 3", "((1 + 2) * 3)"},
		{"-a.b", "(-a.b)"},
		{"!a && b || c", "(((!a) && b) || c)"},
		{"a == b < c", "(a == (b < c))"},
		{"a ? b : c ? d : e", "(a ? b : (c ? d : e))"},
		{"a || b ? 1 : 0", "((a || b) ? 1 : 0)"},
		{"Math.max(1, x[0], 'y')", `Math.max(1, x[0], "y")`},
		{"attrs.price * 2 % 3", "((attrs.price * 2) % 3)"},
		{"obj.null", "obj.null"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			n, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.String())
		})
	}
}

func TestParse_Errors(t *testing.T) {
	for _, input := range []string{
		"",
		"1 +",
		"(1 + 2",
		"a ? b",
		"a.",
		"f(1,",
		"1 2",
		"a = 1",
		"x[1",
	} {
		_, err := Parse(input)
		var pe *ParseError
		require.Error(t, err, input)
		assert.True(t, errors.As(err, &pe), "expected ParseError for %q", input)
	}
}

func TestParse_DepthLimit(t *testing.T) {
	input := ""
	for i := 0; i < maxDepth+10; i++ {
		input += "("
	}
	input += "1"
	for i := 0; i < maxDepth+10; i++ {
		input += ")"
	}
	_, err := Parse(input)
	assert.Error(t, err)
}

func TestParse_HeightLimit(t *testing.T) {
	chain := func(n int) string { return "a" + strings.Repeat(" + a", n) }

	n, err := Parse(chain(maxDepth - 1))
	require.NoError(t, err)
	assert.Equal(t, maxDepth, Height(n))

	_, err = Parse(chain(maxDepth))
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Message, "nested too deeply")

	_, err = Parse(strings.Repeat("1", MaxSourceLength+1))
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Message, "longer than")
}

func TestHeightAndWalk(t *testing.T) {
	n, err := Parse("a ? b.c : f(d, -e)")
	require.NoError(t, err)
	assert.Equal(t, 4, Height(n))
	assert.Zero(t, Height(nil))

	var idents []string
	Walk(n, func(node Node) {
		if id, ok := node.(*Ident); ok {
			idents = append(idents, id.Name)
		}
	})
	assert.Equal(t, []string{"a", "b", "f", "d", "e"}, idents)
}

func TestCompile_UsesAttrs(t *testing.T) {
	p, err := Compile("attrs.price > 10 ? 'hi' : 'lo'")
	require.NoError(t, err)
	assert.True(t, p.UsesAttrs())

	p, err = Compile("event_type === 'purchase' ? 1 : 0")
	require.NoError(t, err)
	assert.False(t, p.UsesAttrs())

	// A property named attrs is not the variable.
	p, err = Compile("Math.attrs")
	require.NoError(t, err)
	assert.False(t, p.UsesAttrs())
}

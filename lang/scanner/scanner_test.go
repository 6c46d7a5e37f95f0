package scanner_test

import (
	"testing"

	"github.com/mna/loxvm/lang/scanner"
	"github.com/mna/loxvm/lang/token"
	"github.com/stretchr/testify/require"
)

func TestScanPunctuation(t *testing.T) {
	var s scanner.Scanner
	s.Init("(){},.-+;*/")

	want := []token.Token{
		token.LPAREN, token.RPAREN, token.LBRACE, token.RBRACE,
		token.COMMA, token.DOT, token.MINUS, token.PLUS, token.SEMI,
		token.STAR, token.SLASH, token.EOF,
	}
	for _, w := range want {
		tok := s.Next()
		require.Equal(t, w, tok.Kind)
	}
}

func TestScanTwoCharOperators(t *testing.T) {
	var s scanner.Scanner
	s.Init("! != = == < <= > >=")

	want := []token.Token{
		token.BANG, token.BANGEQ, token.EQ, token.EQEQ,
		token.LT, token.LE, token.GT, token.GE, token.EOF,
	}
	for _, w := range want {
		tok := s.Next()
		require.Equal(t, w, tok.Kind)
	}
}

func TestScanKeywordsAndIdentifiers(t *testing.T) {
	var s scanner.Scanner
	s.Init("class fork and1 x_2")

	tok := s.Next()
	require.Equal(t, token.CLASS, tok.Kind)

	tok = s.Next()
	require.Equal(t, token.IDENT, tok.Kind)
	require.Equal(t, "fork", tok.Lexeme)

	tok = s.Next()
	require.Equal(t, token.IDENT, tok.Kind)
	require.Equal(t, "and1", tok.Lexeme)

	tok = s.Next()
	require.Equal(t, token.IDENT, tok.Kind)
	require.Equal(t, "x_2", tok.Lexeme)
}

func TestScanNumber(t *testing.T) {
	var s scanner.Scanner
	s.Init("123 3.14 0.5")

	tok := s.Next()
	require.Equal(t, token.NUMBER, tok.Kind)
	require.Equal(t, 123.0, tok.Number)

	tok = s.Next()
	require.Equal(t, token.NUMBER, tok.Kind)
	require.Equal(t, 3.14, tok.Number)

	tok = s.Next()
	require.Equal(t, token.NUMBER, tok.Kind)
	require.Equal(t, 0.5, tok.Number)
}

func TestScanString(t *testing.T) {
	var s scanner.Scanner
	s.Init(`"hello, world" "unterminated`)

	tok := s.Next()
	require.Equal(t, token.STRING, tok.Kind)
	require.Equal(t, `"hello, world"`, tok.Lexeme)

	tok = s.Next()
	require.Equal(t, token.ILLEGAL, tok.Kind)
	require.Equal(t, "Unterminated string.", tok.Lexeme)
}

func TestScanComments(t *testing.T) {
	var s scanner.Scanner
	s.Init("1 // a comment\n2")

	tok := s.Next()
	require.Equal(t, 1.0, tok.Number)
	require.Equal(t, 1, tok.Line)

	tok = s.Next()
	require.Equal(t, 2.0, tok.Number)
	require.Equal(t, 2, tok.Line)
}

func TestScanUnexpectedCharacter(t *testing.T) {
	var s scanner.Scanner
	s.Init("@")

	tok := s.Next()
	require.Equal(t, token.ILLEGAL, tok.Kind)
	require.Equal(t, "Unexpected character.", tok.Lexeme)
}

func TestScanEOFRepeats(t *testing.T) {
	var s scanner.Scanner
	s.Init("")

	require.Equal(t, token.EOF, s.Next().Kind)
	require.Equal(t, token.EOF, s.Next().Kind)
}

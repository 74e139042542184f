// Package query implements the issue selection language used by
// `tl list --where` and the bulk commands.
//
// The language supports:
//   - Field comparisons: status=Resolved, priority>=High, due<+1w
//   - Boolean operators: AND, OR, NOT
//   - Parentheses for grouping: (tracker=Bug OR tracker=Feature) AND status=open
//   - Relative times: updated>7d means "updated in the last 7 days"
//
// Example queries:
//   - project=ecookbook AND status=open
//   - assignee=me AND due<=2026-06-30
//   - NOT status=closed AND "cf.Database"=PostgreSQL
//   - subject="print preview" OR description=crash
package query

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents the type of a lexer token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdent       // field names, values
	TokenString      // quoted strings
	TokenNumber      // integers and decimals
	TokenDuration    // relative offsets like 7d, +2w
	TokenDate        // YYYY-MM-DD
	TokenEquals      // =
	TokenNotEquals   // !=
	TokenLess        // <
	TokenLessEq      // <=
	TokenGreater     // >
	TokenGreaterEq   // >=
	TokenAnd         // AND
	TokenOr          // OR
	TokenNot         // NOT
	TokenLParen      // (
	TokenRParen      // )
)

var tokenNames = map[TokenType]string{
	TokenEOF:       "EOF",
	TokenIdent:     "IDENT",
	TokenString:    "STRING",
	TokenNumber:    "NUMBER",
	TokenDuration:  "DURATION",
	TokenDate:      "DATE",
	TokenEquals:    "=",
	TokenNotEquals: "!=",
	TokenLess:      "<",
	TokenLessEq:    "<=",
	TokenGreater:   ">",
	TokenGreaterEq: ">=",
	TokenAnd:       "AND",
	TokenOr:        "OR",
	TokenNot:       "NOT",
	TokenLParen:    "(",
	TokenRParen:    ")",
}

// String returns the string representation of a TokenType.
func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN(%d)", t)
}

// Token represents a single token from the lexer.
type Token struct {
	Type  TokenType
	Value string
	Pos   int // rune offset in the input
}

// Lexer tokenizes a query string.
type Lexer struct {
	input []rune
	pos   int
}

// NewLexer creates a new Lexer for the given input string.
func NewLexer(input string) *Lexer {
	return &Lexer{input: []rune(input)}
}

func (l *Lexer) peekAt(offset int) rune {
	if l.pos+offset >= len(l.input) {
		return 0
	}
	return l.input[l.pos+offset]
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() (Token, error) {
	for l.pos < len(l.input) && unicode.IsSpace(l.input[l.pos]) {
		l.pos++
	}
	start := l.pos
	r := l.peekAt(0)
	if r == 0 {
		return Token{Type: TokenEOF, Pos: start}, nil
	}

	op := func(t TokenType, width int) (Token, error) {
		l.pos += width
		return Token{Type: t, Value: string(l.input[start:l.pos]), Pos: start}, nil
	}
	switch r {
	case '(':
		return op(TokenLParen, 1)
	case ')':
		return op(TokenRParen, 1)
	case '=':
		return op(TokenEquals, 1)
	case '!':
		if l.peekAt(1) == '=' {
			return op(TokenNotEquals, 2)
		}
		return Token{}, fmt.Errorf("unexpected character '!' at position %d (did you mean '!=' or 'NOT'?)", start)
	case '<':
		if l.peekAt(1) == '=' {
			return op(TokenLessEq, 2)
		}
		return op(TokenLess, 1)
	case '>':
		if l.peekAt(1) == '=' {
			return op(TokenGreaterEq, 2)
		}
		return op(TokenGreater, 1)
	case '"', '\'':
		return l.readString(r, start)
	}
	if unicode.IsDigit(r) || ((r == '-' || r == '+') && unicode.IsDigit(l.peekAt(1))) {
		return l.readNumeric(start)
	}
	if isIdentStart(r) {
		return l.readIdent(start)
	}
	return Token{}, fmt.Errorf("unexpected character %q at position %d", r, start)
}

// readString reads a quoted string. Backslash escapes the next rune.
func (l *Lexer) readString(quote rune, start int) (Token, error) {
	var sb strings.Builder
	l.pos++
	for {
		r := l.peekAt(0)
		if r == 0 {
			return Token{}, fmt.Errorf("unterminated string starting at position %d", start)
		}
		l.pos++
		if r == quote {
			return Token{Type: TokenString, Value: sb.String(), Pos: start}, nil
		}
		if r == '\\' {
			escaped := l.peekAt(0)
			if escaped == 0 {
				return Token{}, fmt.Errorf("unterminated escape sequence at position %d", l.pos-1)
			}
			l.pos++
			r = escaped
		}
		sb.WriteRune(r)
	}
}

// readNumeric reads a number (42, 2.5), a date (2026-03-01) or a relative
// offset (7d, +2w, -1m).
func (l *Lexer) readNumeric(start int) (Token, error) {
	signed := l.input[l.pos] == '-' || l.input[l.pos] == '+'
	if signed {
		l.pos++
	}
	l.digits()

	// A date: 4 digits, then -MM-DD.
	if !signed && l.pos-start == 4 && l.peekAt(0) == '-' && unicode.IsDigit(l.peekAt(1)) {
		l.pos++
		l.digits()
		if l.peekAt(0) != '-' {
			return Token{}, fmt.Errorf("invalid date at position %d: expected YYYY-MM-DD", start)
		}
		l.pos++
		l.digits()
		return Token{Type: TokenDate, Value: string(l.input[start:l.pos]), Pos: start}, nil
	}

	if isDurationSuffix(l.peekAt(0)) && !isIdentChar(l.peekAt(1)) {
		l.pos++
		return Token{Type: TokenDuration, Value: strings.ToLower(string(l.input[start:l.pos])), Pos: start}, nil
	}
	if l.peekAt(0) == '.' && unicode.IsDigit(l.peekAt(1)) {
		l.pos++
		l.digits()
	}
	if isIdentChar(l.peekAt(0)) {
		return Token{}, fmt.Errorf("unexpected character %q at position %d", l.peekAt(0), l.pos)
	}
	return Token{Type: TokenNumber, Value: string(l.input[start:l.pos]), Pos: start}, nil
}

func (l *Lexer) digits() {
	for unicode.IsDigit(l.peekAt(0)) {
		l.pos++
	}
}

// readIdent reads an identifier or keyword.
func (l *Lexer) readIdent(start int) (Token, error) {
	for isIdentChar(l.peekAt(0)) {
		l.pos++
	}
	value := string(l.input[start:l.pos])
	switch strings.ToUpper(value) {
	case "AND":
		return Token{Type: TokenAnd, Value: value, Pos: start}, nil
	case "OR":
		return Token{Type: TokenOr, Value: value, Pos: start}, nil
	case "NOT":
		return Token{Type: TokenNot, Value: value, Pos: start}, nil
	default:
		return Token{Type: TokenIdent, Value: value, Pos: start}, nil
	}
}

// Tokenize returns all tokens from the input.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == '#'
}

func isIdentChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.' || r == '#'
}

// Offsets use the date units of timeparsing: days, weeks, months, years.
func isDurationSuffix(r rune) bool {
	switch unicode.ToLower(r) {
	case 'd', 'w', 'm', 'y':
		return true
	default:
		return false
	}
}

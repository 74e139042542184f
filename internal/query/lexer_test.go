package query

import (
	"testing"
)

func TestLexer(t *testing.T) {
	tests := []struct {
		input string
		want  []TokenType
		vals  []string
	}{
		{"status=Resolved", []TokenType{TokenIdent, TokenEquals, TokenIdent}, []string{"status", "=", "Resolved"}},
		{"priority >= High", []TokenType{TokenIdent, TokenGreaterEq, TokenIdent}, nil},
		{"due<2026-03-31", []TokenType{TokenIdent, TokenLess, TokenDate}, []string{"due", "<", "2026-03-31"}},
		{"updated>7d", []TokenType{TokenIdent, TokenGreater, TokenDuration}, []string{"updated", ">", "7d"}},
		{"due<=+2W", []TokenType{TokenIdent, TokenLessEq, TokenDuration}, []string{"due", "<=", "+2w"}},
		{"estimated>2.5", []TokenType{TokenIdent, TokenGreater, TokenNumber}, []string{"estimated", ">", "2.5"}},
		{"parent=#12", []TokenType{TokenIdent, TokenEquals, TokenIdent}, []string{"parent", "=", "#12"}},
		{`tracker!="Feature request"`, []TokenType{TokenIdent, TokenNotEquals, TokenString}, []string{"tracker", "!=", "Feature request"}},
		{`subject='it\'s'`, []TokenType{TokenIdent, TokenEquals, TokenString}, []string{"subject", "=", "it's"}},
		{"NOT (a=1 or b=2) And c=3", []TokenType{
			TokenNot, TokenLParen, TokenIdent, TokenEquals, TokenNumber, TokenOr,
			TokenIdent, TokenEquals, TokenNumber, TokenRParen, TokenAnd, TokenIdent, TokenEquals, TokenNumber,
		}, nil},
		{"cf.Database=MySQL", []TokenType{TokenIdent, TokenEquals, TokenIdent}, []string{"cf.Database", "=", "MySQL"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens, err := NewLexer(tt.input).Tokenize()
			if err != nil {
				t.Fatalf("Tokenize: %v", err)
			}
			if last := tokens[len(tokens)-1]; last.Type != TokenEOF {
				t.Fatalf("last token = %s, want EOF", last.Type)
			}
			tokens = tokens[:len(tokens)-1]
			if len(tokens) != len(tt.want) {
				t.Fatalf("got %d tokens %v, want %d", len(tokens), tokens, len(tt.want))
			}
			for i, tok := range tokens {
				if tok.Type != tt.want[i] {
					t.Errorf("token %d type = %s, want %s", i, tok.Type, tt.want[i])
				}
				if tt.vals != nil && tok.Value != tt.vals[i] {
					t.Errorf("token %d value = %q, want %q", i, tok.Value, tt.vals[i])
				}
			}
		})
	}
}

func TestLexerErrors(t *testing.T) {
	for _, input := range []string{
		"status!Resolved",
		`subject="open`,
		"due<2026-03",
		"estimated>12abc",
		"status=@",
	} {
		if _, err := NewLexer(input).Tokenize(); err == nil {
			t.Errorf("Tokenize(%q) should fail", input)
		}
	}
}

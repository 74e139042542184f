package query

import (
	"fmt"
	"strings"
)

// Node represents a node in the query AST.
type Node interface {
	node() // marker method
	String() string
}

// ComparisonOp represents a comparison operator.
type ComparisonOp int

const (
	OpEquals ComparisonOp = iota
	OpNotEquals
	OpLess
	OpLessEq
	OpGreater
	OpGreaterEq
)

var opTokens = map[TokenType]ComparisonOp{
	TokenEquals:    OpEquals,
	TokenNotEquals: OpNotEquals,
	TokenLess:      OpLess,
	TokenLessEq:    OpLessEq,
	TokenGreater:   OpGreater,
	TokenGreaterEq: OpGreaterEq,
}

// String returns the string representation of a ComparisonOp.
func (op ComparisonOp) String() string {
	switch op {
	case OpEquals:
		return "="
	case OpNotEquals:
		return "!="
	case OpLess:
		return "<"
	case OpLessEq:
		return "<="
	case OpGreater:
		return ">"
	case OpGreaterEq:
		return ">="
	default:
		return "?"
	}
}

// ComparisonNode represents a field comparison (e.g., status=Resolved).
type ComparisonNode struct {
	Field     string
	Op        ComparisonOp
	Value     string
	ValueType TokenType
	Pos       int
}

func (n *ComparisonNode) node() {}
func (n *ComparisonNode) String() string {
	if n.ValueType == TokenString {
		return fmt.Sprintf("%s%s%q", n.Field, n.Op, n.Value)
	}
	return fmt.Sprintf("%s%s%s", n.Field, n.Op, n.Value)
}

// AndNode represents a logical AND operation.
type AndNode struct {
	Left  Node
	Right Node
}

func (n *AndNode) node() {}
func (n *AndNode) String() string {
	return fmt.Sprintf("(%s AND %s)", n.Left, n.Right)
}

// OrNode represents a logical OR operation.
type OrNode struct {
	Left  Node
	Right Node
}

func (n *OrNode) node() {}
func (n *OrNode) String() string {
	return fmt.Sprintf("(%s OR %s)", n.Left, n.Right)
}

// NotNode represents a logical NOT operation.
type NotNode struct {
	Operand Node
}

func (n *NotNode) node() {}
func (n *NotNode) String() string {
	return fmt.Sprintf("NOT %s", n.Operand)
}

// Parser is a recursive descent parser. Precedence, lowest first:
// OR, AND, NOT, comparison.
type Parser struct {
	lexer   *Lexer
	current Token
}

// NewParser creates a new Parser for the given input.
func NewParser(input string) *Parser {
	return &Parser{lexer: NewLexer(input)}
}

// Parse parses the query string and returns the root AST node.
func (p *Parser) Parse() (Node, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.current.Type == TokenEOF {
		return nil, fmt.Errorf("empty query")
	}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.current.Type != TokenEOF {
		return nil, fmt.Errorf("unexpected token %q at position %d (expected end of query)", p.current.Value, p.current.Pos)
	}
	return node, nil
}

func (p *Parser) advance() error {
	tok, err := p.lexer.NextToken()
	if err != nil {
		return err
	}
	p.current = tok
	return nil
}

func (p *Parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.current.Type == TokenOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &OrNode{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.current.Type == TokenAnd {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &AndNode{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Node, error) {
	if p.current.Type != TokenNot {
		return p.parsePrimary()
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	operand, err := p.parseNot() // NOT is right-associative
	if err != nil {
		return nil, err
	}
	return &NotNode{Operand: operand}, nil
}

func (p *Parser) parsePrimary() (Node, error) {
	if p.current.Type != TokenLParen {
		return p.parseComparison()
	}
	open := p.current.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.current.Type != TokenRParen {
		return nil, fmt.Errorf("expected ')' for '(' at position %d, got %s", open, p.current.Type)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return node, nil
}

// parseComparison parses field OP value. Quoted field names allow custom
// fields with spaces: "cf.Billing code">100.
func (p *Parser) parseComparison() (Node, error) {
	if p.current.Type != TokenIdent && p.current.Type != TokenString {
		return nil, fmt.Errorf("expected field name at position %d, got %s", p.current.Pos, p.current.Type)
	}
	field, pos := normalizeField(p.current.Value), p.current.Pos
	if !IsKnownField(field) {
		return nil, fmt.Errorf("unknown field %q at position %d", p.current.Value, pos)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	op, ok := opTokens[p.current.Type]
	if !ok {
		return nil, fmt.Errorf("expected comparison operator at position %d, got %s", p.current.Pos, p.current.Type)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	switch p.current.Type {
	case TokenIdent, TokenString, TokenNumber, TokenDuration, TokenDate:
	default:
		return nil, fmt.Errorf("expected value at position %d, got %s", p.current.Pos, p.current.Type)
	}
	node := &ComparisonNode{
		Field:     field,
		Op:        op,
		Value:     p.current.Value,
		ValueType: p.current.Type,
		Pos:       pos,
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return node, nil
}

// Parse is a convenience function that parses a query string.
func Parse(input string) (Node, error) {
	return NewParser(input).Parse()
}

// KnownFields lists the fields that can be queried and their aliases.
var KnownFields = map[string]string{
	"id":          "id",
	"subject":     "subject",
	"title":       "subject",
	"description": "description",
	"desc":        "description",
	"project":     "project",
	"tracker":     "tracker",
	"status":      "status",
	"priority":    "priority",
	"assignee":    "assignee",
	"assigned_to": "assignee",
	"author":      "author",
	"watcher":     "watcher",
	"category":    "category",
	"version":     "version",
	"parent":      "parent",
	"start":       "start",
	"start_date":  "start",
	"due":         "due",
	"due_date":    "due",
	"estimated":   "estimated",
	"spent":       "spent",
	"created":     "created",
	"updated":     "updated",
	"closed":      "closed",
	"billable":    "billable",
}

// customFieldPrefix selects a custom field by name or id: cf.Database, cf.3.
const customFieldPrefix = "cf."

func normalizeField(name string) string {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, customFieldPrefix) {
		return customFieldPrefix + name[len(customFieldPrefix):]
	}
	if canonical, ok := KnownFields[lower]; ok {
		return canonical
	}
	return lower
}

// IsKnownField reports whether field (already normalized) can be queried.
func IsKnownField(field string) bool {
	if strings.HasPrefix(field, customFieldPrefix) {
		return len(field) > len(customFieldPrefix)
	}
	_, ok := KnownFields[field]
	return ok
}

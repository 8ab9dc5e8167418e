// Package filterexpr compiles and evaluates the row filter expressions a
// planner may attach to a filter transform.
//
// The grammar is deliberately small and closed:
//
//	expr    = or
//	or      = and { ("or" | "|") and }
//	and     = not { ("and" | "&") not }
//	not     = ("not" | "~") not | compare
//	compare = operand [ ("==" | "!=" | "<" | "<=" | ">" | ">=") operand
//	                  | ["not"] "in" list ]
//	operand = column | literal | list | "(" expr ")"
//	list    = "[" [ literal { "," literal } ] "]"
//	column  = identifier | "`" any text "`"
//	literal = number | 'string' | "string" | True | False | None
//
// There are no function calls, attribute lookups or arithmetic, so an
// expression can only read the current row's cells.
package filterexpr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownColumn is returned by Eval when an expression names a column the
// row does not have.
var ErrUnknownColumn = errors.New("filterexpr: unknown column")

// Row exposes the cells of one table row by column name.
type Row interface {
	Value(column string) (any, bool)
}

// Expr is a compiled filter expression. It is immutable and safe for
// concurrent use.
type Expr struct {
	src     string
	root    node
	columns []string
}

// Compile parses src.
func Compile(src string) (*Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("filterexpr: empty expression")
	}
	toks, err := lex(src)
	if err != nil {
		return nil, fmt.Errorf("filterexpr: %w", err)
	}
	p := &parser{toks: toks, seen: map[string]struct{}{}}
	root, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("filterexpr: %w", err)
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("filterexpr: unexpected %s", t)
	}
	return &Expr{src: src, root: root, columns: p.columns}, nil
}

// String returns the source text.
func (e *Expr) String() string { return e.src }

// Columns lists the column names the expression references, in order of
// first use.
func (e *Expr) Columns() []string {
	out := make([]string, len(e.columns))
	copy(out, e.columns)
	return out
}

// Eval reports whether row satisfies the expression. A result that is not a
// boolean is an error.
func (e *Expr) Eval(row Row) (bool, error) {
	v, err := e.root.eval(row)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("filterexpr: %q does not evaluate to a boolean", e.src)
	}
	return b, nil
}

type parser struct {
	toks    []token
	i       int
	columns []string
	seen    map[string]struct{}
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) isKeyword(word string) bool {
	t := p.peek()
	return t.kind == tokIdent && strings.EqualFold(t.text, word)
}

func (p *parser) isOp(op string) bool {
	t := p.peek()
	return t.kind == tokOp && t.text == op
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("or") || p.isOp("|") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = logicNode{or: true, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("and") || p.isOp("&") {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = logicNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if p.isKeyword("not") || p.isOp("~") {
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return notNode{inner}, nil
	}
	return p.parseCompare()
}

func (p *parser) parseCompare() (node, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	switch {
	case t.kind == tokOp && isCompareOp(t.text):
		p.next()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return compareNode{op: t.text, left: left, right: right}, nil
	case p.isKeyword("in"):
		p.next()
		list, err := p.parseList()
		if err != nil {
			return nil, err
		}
		return inNode{item: left, list: list}, nil
	case p.isKeyword("not") && p.i+1 < len(p.toks) &&
		p.toks[p.i+1].kind == tokIdent && strings.EqualFold(p.toks[p.i+1].text, "in"):
		p.next()
		p.next()
		list, err := p.parseList()
		if err != nil {
			return nil, err
		}
		return notNode{inNode{item: left, list: list}}, nil
	}
	return left, nil
}

func isCompareOp(s string) bool {
	switch s {
	case "==", "!=", "<", "<=", ">", ">=":
		return true
	}
	return false
}

func (p *parser) parseOperand() (node, error) {
	t := p.peek()
	switch t.kind {
	case tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("expected ')' but found %s", p.peek())
		}
		p.next()
		return inner, nil
	case tokLBrack:
		list, err := p.parseList()
		if err != nil {
			return nil, err
		}
		return literalNode{list}, nil
	case tokQuotedIdent:
		p.next()
		return p.column(t.text), nil
	case tokIdent:
		if v, ok := keywordLiteral(t.text); ok {
			p.next()
			return literalNode{v}, nil
		}
		switch strings.ToLower(t.text) {
		case "and", "or", "not", "in":
			return nil, fmt.Errorf("unexpected %s", t)
		}
		p.next()
		if p.peek().kind == tokLParen {
			return nil, fmt.Errorf("function calls are not allowed (%s)", t)
		}
		return p.column(t.text), nil
	case tokNumber, tokString:
		return p.parseLiteral()
	}
	return nil, fmt.Errorf("unexpected %s", t)
}

func (p *parser) column(name string) node {
	if _, ok := p.seen[name]; !ok {
		p.seen[name] = struct{}{}
		p.columns = append(p.columns, name)
	}
	return columnNode{name}
}

func (p *parser) parseList() ([]any, error) {
	if p.peek().kind != tokLBrack {
		return nil, fmt.Errorf("expected '[' but found %s", p.peek())
	}
	p.next()
	var out []any
	for p.peek().kind != tokRBrack {
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		out = append(out, lit.(literalNode).v)
		if p.peek().kind == tokComma {
			p.next()
			continue
		}
		if p.peek().kind != tokRBrack {
			return nil, fmt.Errorf("expected ',' or ']' but found %s", p.peek())
		}
	}
	p.next()
	return out, nil
}

func (p *parser) parseLiteral() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %s", t)
		}
		return literalNode{f}, nil
	case tokString:
		return literalNode{t.text}, nil
	case tokIdent:
		if v, ok := keywordLiteral(t.text); ok {
			return literalNode{v}, nil
		}
	}
	return nil, fmt.Errorf("expected a literal but found %s", t)
}

func keywordLiteral(word string) (any, bool) {
	switch word {
	case "True", "true":
		return true, true
	case "False", "false":
		return false, true
	case "None", "null", "NaN", "nan":
		return nil, true
	}
	return nil, false
}

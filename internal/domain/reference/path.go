package reference

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Path is a compiled field-path expression.
//
// Grammar:
//
//	path      = step { "." step }
//	step      = name { "[" ( index | predicate ) "]" }
//	name      = identifier | "`" any-text "`"
//	index     = [ "-" ] digits
//	predicate = operand ( "=" | "!=" ) operand
//	operand   = path | 'text' | "text" | number | true | false | null
//
// A field step applied to an array maps over its elements, and arrays met
// along the way are flattened into the result sequence. Predicate operand
// paths are evaluated relative to the element being filtered.
type Path struct {
	expr  string
	steps []step
}

type step struct {
	field   string
	filters []filter
}

// filter is an index when pred is nil.
type filter struct {
	index int
	pred  *predicate
}

type predicate struct {
	left   operand
	right  operand
	negate bool
}

type operand struct {
	path    *Path
	literal any
}

// ParsePath compiles a single expression.
func ParsePath(expr string) (*Path, error) {
	p := &parser{src: expr}
	p.skipSpace()
	if strings.HasPrefix(p.src[p.pos:], "$.") {
		p.pos += 2
	}
	steps, err := p.steps()
	if err == nil {
		p.skipSpace()
		if !p.done() {
			err = fmt.Errorf("unexpected %q at offset %d", p.peek(), p.pos)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSpec, expr, err)
	}
	return &Path{expr: expr, steps: steps}, nil
}

// String returns the source expression.
func (p *Path) String() string { return p.expr }

// Evaluate resolves the path against doc. Unresolved paths yield nil; a single
// result is returned as is and several results are returned as []any.
func (p *Path) Evaluate(doc any) any {
	seq := []any{doc}
	for _, st := range p.steps {
		var next []any
		for _, item := range seq {
			next = append(next, st.apply(item)...)
		}
		if len(next) == 0 {
			return nil
		}
		seq = next
	}
	if len(seq) == 1 {
		return seq[0]
	}
	return seq
}

func (st step) apply(item any) []any {
	group := children(item, st.field)
	for _, f := range st.filters {
		if len(group) == 0 {
			return nil
		}
		group = f.apply(group)
	}
	return group
}

func children(item any, field string) []any {
	switch v := item.(type) {
	case map[string]any:
		child, ok := v[field]
		if !ok {
			return nil
		}
		if arr, ok := child.([]any); ok {
			return arr
		}
		return []any{child}
	case []any:
		var out []any
		for _, elem := range v {
			out = append(out, children(elem, field)...)
		}
		return out
	default:
		return nil
	}
}

func (f filter) apply(group []any) []any {
	if f.pred == nil {
		i := f.index
		if i < 0 {
			i += len(group)
		}
		if i < 0 || i >= len(group) {
			return nil
		}
		return group[i : i+1]
	}
	var kept []any
	for _, item := range group {
		if f.pred.holds(item) {
			kept = append(kept, item)
		}
	}
	return kept
}

func (pr *predicate) holds(item any) bool {
	eq := LooseEqual(pr.left.eval(item), pr.right.eval(item))
	if pr.negate {
		return !eq
	}
	return eq
}

func (o operand) eval(item any) any {
	if o.path != nil {
		return o.path.Evaluate(item)
	}
	return o.literal
}

// ---------------------------------------------------------------------------
// parser
// ---------------------------------------------------------------------------

type parser struct {
	src string
	pos int
}

var keywords = []struct {
	word  string
	value any
}{
	{"true", true},
	{"false", false},
	{"null", nil},
}

func (p *parser) done() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.done() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) skipSpace() {
	for !p.done() && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) steps() ([]step, error) {
	var steps []step
	for {
		p.skipSpace()
		name, err := p.name()
		if err != nil {
			return nil, err
		}
		st := step{field: name}
		for p.skipSpace(); p.peek() == '['; p.skipSpace() {
			p.pos++
			f, err := p.filter()
			if err != nil {
				return nil, err
			}
			p.skipSpace()
			if p.peek() != ']' {
				return nil, fmt.Errorf("missing ] at offset %d", p.pos)
			}
			p.pos++
			st.filters = append(st.filters, f)
		}
		steps = append(steps, st)
		if p.peek() != '.' {
			return steps, nil
		}
		p.pos++
	}
}

func (p *parser) name() (string, error) {
	if p.peek() == '`' {
		end := strings.IndexByte(p.src[p.pos+1:], '`')
		if end < 0 {
			return "", errors.New("unterminated quoted field name")
		}
		name := p.src[p.pos+1 : p.pos+1+end]
		p.pos += end + 2
		return name, nil
	}
	start := p.pos
	for !p.done() && !isDelimiter(p.src[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return "", fmt.Errorf("expected field name at offset %d", start)
	}
	return p.src[start:p.pos], nil
}

func (p *parser) filter() (filter, error) {
	p.skipSpace()
	if idx, ok := p.index(); ok {
		return filter{index: idx}, nil
	}
	left, err := p.operand()
	if err != nil {
		return filter{}, err
	}
	p.skipSpace()
	negate := false
	switch {
	case strings.HasPrefix(p.src[p.pos:], "!="):
		negate = true
		p.pos += 2
	case p.peek() == '=':
		p.pos++
	default:
		return filter{}, fmt.Errorf("expected = or != at offset %d", p.pos)
	}
	right, err := p.operand()
	if err != nil {
		return filter{}, err
	}
	return filter{pred: &predicate{left: left, right: right, negate: negate}}, nil
}

// index consumes an integer only when it is the whole bracket content.
func (p *parser) index() (int, bool) {
	i := p.pos
	if i < len(p.src) && p.src[i] == '-' {
		i++
	}
	digits := i
	for i < len(p.src) && isDigit(p.src[i]) {
		i++
	}
	if i == digits {
		return 0, false
	}
	j := i
	for j < len(p.src) && p.src[j] == ' ' {
		j++
	}
	if j >= len(p.src) || p.src[j] != ']' {
		return 0, false
	}
	n, err := strconv.Atoi(p.src[p.pos:i])
	if err != nil {
		return 0, false
	}
	p.pos = i
	return n, true
}

func (p *parser) operand() (operand, error) {
	p.skipSpace()
	c := p.peek()
	switch {
	case c == '\'' || c == '"':
		s, err := p.quoted(c)
		return operand{literal: s}, err
	case c == '-' || isDigit(c):
		start := p.pos
		p.pos++
		for !p.done() && strings.IndexByte("0123456789.eE+-", p.src[p.pos]) >= 0 {
			p.pos++
		}
		lit := p.src[start:p.pos]
		if _, err := decimal.NewFromString(lit); err != nil {
			return operand{}, fmt.Errorf("invalid number %q", lit)
		}
		return operand{literal: json.Number(lit)}, nil
	}
	for _, kw := range keywords {
		end := p.pos + len(kw.word)
		if strings.HasPrefix(p.src[p.pos:], kw.word) && (end == len(p.src) || isDelimiter(p.src[end])) {
			p.pos = end
			return operand{literal: kw.value}, nil
		}
	}
	start := p.pos
	steps, err := p.steps()
	if err != nil {
		return operand{}, err
	}
	return operand{path: &Path{expr: strings.TrimSpace(p.src[start:p.pos]), steps: steps}}, nil
}

func (p *parser) quoted(q byte) (string, error) {
	var b strings.Builder
	for p.pos++; !p.done(); p.pos++ {
		c := p.src[p.pos]
		switch {
		case c == q:
			p.pos++
			return b.String(), nil
		case c == '\\' && p.pos+1 < len(p.src):
			p.pos++
			switch esc := p.src[p.pos]; esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(esc)
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", errors.New("unterminated string literal")
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isDelimiter(c byte) bool {
	return strings.IndexByte(".[]=!'\"` \t", c) >= 0
}

// Package reference derives business references: channel-configured composite
// identity keys evaluated from arbitrary nested documents.
package reference

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultSeparator joins key components when no separator is requested.
const DefaultSeparator = "."

var (
	ErrInvalidSpec     = errors.New("reference: invalid business reference spec")
	ErrInvalidDocument = errors.New("reference: document must be an object")
)

// Extractor evaluates a compiled business reference spec.
// It is immutable and safe for concurrent use.
type Extractor struct {
	spec  []string
	paths []*Path
}

// Compile parses every expression of spec.
func Compile(spec []string) (*Extractor, error) {
	if len(spec) == 0 {
		return nil, fmt.Errorf("%w: no expressions", ErrInvalidSpec)
	}
	paths := make([]*Path, len(spec))
	for i, expr := range spec {
		p, err := ParsePath(expr)
		if err != nil {
			return nil, err
		}
		paths[i] = p
	}
	return &Extractor{spec: append([]string(nil), spec...), paths: paths}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(spec ...string) *Extractor {
	ex, err := Compile(spec)
	if err != nil {
		panic(err)
	}
	return ex
}

// Spec returns the source expressions.
func (e *Extractor) Spec() []string {
	return append([]string(nil), e.spec...)
}

// Values evaluates each expression against doc, in spec order.
// Unresolved expressions contribute nil.
func (e *Extractor) Values(doc any) ([]any, error) {
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrInvalidDocument, doc)
	}
	values := make([]any, len(e.paths))
	for i, p := range e.paths {
		values[i] = p.Evaluate(obj)
	}
	return values, nil
}

// Join evaluates doc and joins the formatted values with sep.
func (e *Extractor) Join(doc any, sep string) (string, error) {
	values, err := e.Values(doc)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = Format(v)
	}
	return strings.Join(parts, sep), nil
}

// Key is the equality key used for matching: Join with DefaultSeparator.
func (e *Extractor) Key(doc any) (string, error) {
	return e.Join(doc, DefaultSeparator)
}

// Extract compiles spec and evaluates it against doc in one call. A nil sep
// returns the raw values ([]any); otherwise the joined string is returned.
// spec may be []string or a decoded JSON array of strings.
func Extract(spec any, doc any, sep *string) (any, error) {
	exprs, err := ToSpec(spec)
	if err != nil {
		return nil, err
	}
	ex, err := Compile(exprs)
	if err != nil {
		return nil, err
	}
	if sep == nil {
		return ex.Values(doc)
	}
	return ex.Join(doc, *sep)
}

// ToSpec converts a decoded JSON value into a list of expressions.
func ToSpec(v any) ([]string, error) {
	switch s := v.(type) {
	case []string:
		return s, nil
	case []any:
		exprs := make([]string, len(s))
		for i, elem := range s {
			expr, ok := elem.(string)
			if !ok {
				return nil, fmt.Errorf("%w: element %d is %T, not a string", ErrInvalidSpec, i, elem)
			}
			exprs[i] = expr
		}
		return exprs, nil
	default:
		return nil, fmt.Errorf("%w: got %T, not a sequence", ErrInvalidSpec, v)
	}
}

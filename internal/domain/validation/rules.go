// Package validation implements the pre-flight checks run on every connector
// call before any network I/O. Checks are pure: they only produce a list of
// human-readable defect messages, and an empty list means the call is valid.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the structural shape a field must have.
type Kind int

const (
	// Object is a JSON object (not an array and not null).
	Object Kind = iota
	// String is any string, including the empty string.
	String
	// NonEmptyString is a string with at least one non-space character.
	NonEmptyString
	// NonEmptyArray is an array with at least one element.
	NonEmptyArray
	// Integer is a number without a fractional part.
	Integer
	// Identifier is a non-empty string or an integer.
	Identifier
)

func (k Kind) noun() string {
	switch k {
	case Object:
		return "object"
	case String, NonEmptyString:
		return "string"
	case NonEmptyArray:
		return "array"
	case Integer:
		return "integer"
	default:
		return "identifier"
	}
}

// Accepts reports whether v has the shape k requires.
func (k Kind) Accepts(v any) bool {
	switch k {
	case Object:
		m, ok := v.(map[string]any)
		return ok && m != nil
	case String:
		_, ok := v.(string)
		return ok
	case NonEmptyString:
		s, ok := v.(string)
		return ok && strings.TrimSpace(s) != ""
	case NonEmptyArray:
		arr, ok := v.([]any)
		return ok && len(arr) > 0
	case Integer:
		return isInteger(v)
	case Identifier:
		return NonEmptyString.Accepts(v) || isInteger(v)
	default:
		return false
	}
}

func isInteger(v any) bool {
	switch n := v.(type) {
	case int, int32, int64, uint, uint32, uint64:
		return true
	case float64:
		return !math.IsNaN(n) && !math.IsInf(n, 0) && n == math.Trunc(n)
	case json.Number:
		if _, err := n.Int64(); err == nil {
			return true
		}
		f, err := strconv.ParseFloat(n.String(), 64)
		return err == nil && !math.IsInf(f, 0) && f == math.Trunc(f)
	default:
		return false
	}
}

// Rule names a field and the shape it must have. Children are checked only
// when the field itself is valid: against the field for objects, and against
// every element for arrays.
type Rule struct {
	Field    string
	Kind     Kind
	Children []Rule
}

// Field builds a Rule.
func Field(name string, kind Kind, children ...Rule) Rule {
	return Rule{Field: name, Kind: kind, Children: children}
}

// Validate checks that value is an object named root and that it satisfies rules.
func Validate(root string, value any, rules []Rule) []string {
	return check(root, value, Rule{Field: root, Kind: Object, Children: rules})
}

func check(path string, value any, rule Rule) []string {
	if !rule.Kind.Accepts(value) {
		state := "invalid"
		if value == nil {
			state = "missing"
		}
		return []string{fmt.Sprintf("The %s %s is %s.", path, rule.Kind.noun(), state)}
	}
	if len(rule.Children) == 0 {
		return nil
	}

	var messages []string
	switch v := value.(type) {
	case map[string]any:
		for _, child := range rule.Children {
			messages = append(messages, check(path+"."+child.Field, v[child.Field], child)...)
		}
	case []any:
		elem := Rule{Kind: Object, Children: rule.Children}
		for i, item := range v {
			messages = append(messages, check(fmt.Sprintf("%s[%d]", path, i), item, elem)...)
		}
	}
	return messages
}

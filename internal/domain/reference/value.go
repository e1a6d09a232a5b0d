package reference

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// LooseEqual compares two decoded JSON values. Numbers compare by value across
// representations (json.Number, floats, integers), and a number equals a string
// holding the same number, so ids sent as "14146" match remote ids 14146.
func LooseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	da, aNum := toDecimal(a)
	db, bNum := toDecimal(b)
	switch {
	case aNum && bNum:
		return da.Equal(db)
	case aNum:
		return numericString(da, b)
	case bNum:
		return numericString(db, a)
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return reflect.DeepEqual(a, b)
}

func numericString(n decimal.Decimal, v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	return err == nil && n.Equal(d)
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(n), true
	case float32:
		return toDecimal(float64(n))
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint:
		return decimal.NewFromUint64(uint64(n)), true
	case uint32:
		return decimal.NewFromUint64(uint64(n)), true
	case uint64:
		return decimal.NewFromUint64(n), true
	default:
		return decimal.Decimal{}, false
	}
}

// Format renders an evaluated value as a key component: nil is empty, numbers
// use their shortest decimal form, arrays are comma-joined and objects are
// JSON with sorted keys.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		if d, err := decimal.NewFromString(x.String()); err == nil {
			return d.String()
		}
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []any:
		parts := make([]string, len(x))
		for i, elem := range x {
			parts[i] = Format(elem)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		if d, ok := toDecimal(v); ok {
			return d.String()
		}
		return fmt.Sprint(v)
	}
}

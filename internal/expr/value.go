package expr

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

type undefined struct{}

func (undefined) String() string { return "undefined" }

// Undefined is the runtime value of undefined; nil is null.
var Undefined any = undefined{}

// IsNullish reports whether v is null or undefined.
func IsNullish(v any) bool {
	return v == nil || v == Undefined
}

// Changed compares a previous and a new result the way the runtime decides
// whether to propagate: null and undefined are equal to each other and
// distinct from everything else; reference values compare by identity.
func Changed(old, cur any) bool {
	on, cn := IsNullish(old), IsNullish(cur)
	if on || cn {
		return on != cn
	}
	ot, ct := reflect.TypeOf(old), reflect.TypeOf(cur)
	if ot != ct {
		return true
	}
	switch ot.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer:
		return reflect.ValueOf(old).Pointer() != reflect.ValueOf(cur).Pointer() ||
			(ot.Kind() == reflect.Slice && reflect.ValueOf(old).Len() != reflect.ValueOf(cur).Len())
	case reflect.Func:
		return true
	}
	if !ot.Comparable() {
		return true
	}
	return old != cur
}

// Truthy applies JS truthiness.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case int:
		return t != 0
	case string:
		return t != ""
	}
	return v != Undefined
}

// ToString converts v the way JS string conversion does.
func ToString(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return formatNumber(t)
	case int:
		return strconv.Itoa(t)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			if !IsNullish(e) {
				parts[i] = ToString(e)
			}
		}
		return strings.Join(parts, ",")
	case map[string]any:
		return "[object Object]"
	case Callable:
		return "function"
	}
	if v == Undefined {
		return "undefined"
	}
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return "[object Object]"
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ToNumber converts v the way JS numeric conversion does.
func ToNumber(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return t
	case int:
		return float64(t)
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}

// TypeOf returns the JS typeof name of v.
func TypeOf(v any) string {
	switch v.(type) {
	case nil:
		return "object"
	case string:
		return "string"
	case float64, int:
		return "number"
	case bool:
		return "boolean"
	case Callable:
		return "function"
	}
	if v == Undefined {
		return "undefined"
	}
	return "object"
}

// StrictEquals implements ===.
func StrictEquals(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a == Undefined || b == Undefined {
		return a == b
	}
	if na, ok := asNumber(a); ok {
		nb, ok := asNumber(b)
		return ok && na == nb
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	switch ta.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer:
		return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
	case reflect.Func:
		return false
	}
	if !ta.Comparable() {
		return false
	}
	return a == b
}

// LooseEquals implements ==.
func LooseEquals(a, b any) bool {
	if IsNullish(a) || IsNullish(b) {
		return IsNullish(a) && IsNullish(b)
	}
	_, as := a.(string)
	_, bs := b.(string)
	_, an := asNumber(a)
	_, bn := asNumber(b)
	_, ab := a.(bool)
	_, bb := b.(bool)
	if (as && (bn || bb)) || (bs && (an || ab)) || (ab != bb) {
		return ToNumber(a) == ToNumber(b)
	}
	return StrictEquals(a, b)
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	}
	return 0, false
}

// Normalize converts Go values from outside the evaluator (JSON, scripts)
// into the evaluator's value space: numbers become float64, slices []any,
// string-keyed maps map[string]any.
func Normalize(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Normalize(e)
		}
		return out
	}
	return v
}

// sortedKeys returns the keys of m in a stable order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

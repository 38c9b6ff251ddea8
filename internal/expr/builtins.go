package expr

import (
	"encoding/json"
	"log"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
)

// Builtins returns the default global bindings: a small standard library
// covering Math, JSON, console and the conversion functions. console output
// goes to logf, or log.Printf when logf is nil.
func Builtins(logf func(format string, args ...any)) map[string]any {
	if logf == nil {
		logf = log.Printf
	}
	console := func(level string) Func {
		return func(args ...any) (any, error) {
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = ToString(a)
			}
			logf("console.%s: %s", level, strings.Join(parts, " "))
			return Undefined, nil
		}
	}
	return map[string]any{
		"Math":    mathObject(),
		"JSON":    jsonObject(),
		"Object":  objectObject(),
		"Array":   map[string]any{"isArray": Func(func(args ...any) (any, error) { _, ok := arg(args, 0).([]any); return ok, nil })},
		"console": map[string]any{"log": console("log"), "warn": console("warn"), "error": console("error")},
		"String":  Func(func(args ...any) (any, error) { return ToString(argOr(args, "")), nil }),
		"Number":  Func(func(args ...any) (any, error) { return ToNumber(argOr(args, 0.0)), nil }),
		"Boolean": Func(func(args ...any) (any, error) { return Truthy(arg(args, 0)), nil }),
		"isNaN":   Func(func(args ...any) (any, error) { return math.IsNaN(ToNumber(arg(args, 0))), nil }),
		"parseFloat": Func(func(args ...any) (any, error) {
			return parseFloatPrefix(strings.TrimSpace(ToString(arg(args, 0)))), nil
		}),
		"parseInt": Func(func(args ...any) (any, error) {
			radix := 10
			if r := arg(args, 1); r != Undefined {
				radix = int(ToNumber(r))
			}
			return parseIntPrefix(strings.TrimSpace(ToString(arg(args, 0))), radix), nil
		}),
	}
}

// GlobalNames returns the sorted names bound in globals.
func GlobalNames(globals map[string]any) []string {
	names := make([]string, 0, len(globals))
	for k := range globals {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func argOr(args []any, def any) any {
	if len(args) == 0 {
		return def
	}
	return args[0]
}

func mathObject() map[string]any {
	unary := func(f func(float64) float64) Func {
		return func(args ...any) (any, error) { return f(ToNumber(arg(args, 0))), nil }
	}
	fold := func(init float64, f func(a, b float64) float64) Func {
		return func(args ...any) (any, error) {
			acc := init
			for _, a := range args {
				n := ToNumber(a)
				if math.IsNaN(n) {
					return math.NaN(), nil
				}
				acc = f(acc, n)
			}
			return acc, nil
		}
	}
	return map[string]any{
		"PI":    math.Pi,
		"E":     math.E,
		"floor": unary(math.Floor),
		"ceil":  unary(math.Ceil),
		"round": unary(func(f float64) float64 { return math.Floor(f + 0.5) }),
		"trunc": unary(math.Trunc),
		"abs":   unary(math.Abs),
		"sqrt":  unary(math.Sqrt),
		"sign": unary(func(f float64) float64 {
			switch {
			case f > 0:
				return 1
			case f < 0:
				return -1
			}
			return f
		}),
		"min": fold(math.Inf(1), math.Min),
		"max": fold(math.Inf(-1), math.Max),
		"pow": Func(func(args ...any) (any, error) {
			return math.Pow(ToNumber(arg(args, 0)), ToNumber(arg(args, 1))), nil
		}),
		"random": Func(func(...any) (any, error) { return rand.Float64(), nil }),
	}
}

func jsonObject() map[string]any {
	return map[string]any{
		"stringify": Func(func(args ...any) (any, error) {
			v := arg(args, 0)
			if v == Undefined {
				return Undefined, nil
			}
			var (
				b   []byte
				err error
			)
			if ind := arg(args, 2); ind != Undefined {
				b, err = json.MarshalIndent(jsonValue(v), "", strings.Repeat(" ", int(ToNumber(ind))))
			} else {
				b, err = json.Marshal(jsonValue(v))
			}
			if err != nil {
				return nil, throwf("TypeError", "%v", err)
			}
			return string(b), nil
		}),
		"parse": Func(func(args ...any) (any, error) {
			var v any
			if err := json.Unmarshal([]byte(ToString(arg(args, 0))), &v); err != nil {
				return nil, throwf("SyntaxError", "%v", err)
			}
			return Normalize(v), nil
		}),
	}
}

func objectObject() map[string]any {
	entries := func(pick func(k string, v any) any) Func {
		return func(args ...any) (any, error) {
			m, ok := arg(args, 0).(map[string]any)
			if !ok {
				return []any{}, nil
			}
			out := make([]any, 0, len(m))
			for _, k := range sortedKeys(m) {
				out = append(out, pick(k, m[k]))
			}
			return out, nil
		}
	}
	return map[string]any{
		"keys":    entries(func(k string, _ any) any { return k }),
		"values":  entries(func(_ string, v any) any { return v }),
		"entries": entries(func(k string, v any) any { return []any{k, v} }),
		"assign": Func(func(args ...any) (any, error) {
			dst, ok := arg(args, 0).(map[string]any)
			if !ok {
				return nil, throwf("TypeError", "cannot convert %s to object", ToString(arg(args, 0)))
			}
			for _, src := range args[1:] {
				if m, ok := src.(map[string]any); ok {
					for k, v := range m {
						dst[k] = v
					}
				}
			}
			return dst, nil
		}),
	}
}

// jsonValue drops values JSON.stringify omits.
func jsonValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			if e == Undefined {
				continue
			}
			if _, fn := e.(Callable); fn {
				continue
			}
			out[k] = jsonValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			if _, fn := e.(Callable); fn || e == Undefined {
				continue
			}
			out[i] = jsonValue(e)
		}
		return out
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
	}
	return v
}

func parseFloatPrefix(s string) float64 {
	end := 0
	seenDot, seenExp := false, false
scan:
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case (r == '+' || r == '-') && (i == 0 || s[i-1] == 'e' || s[i-1] == 'E'):
		case r == '.' && !seenDot && !seenExp:
			seenDot = true
		case (r == 'e' || r == 'E') && !seenExp && i > 0:
			seenExp = true
		default:
			break scan
		}
		end = i + 1
	}
	for end > 0 {
		if f, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return f
		}
		end--
	}
	if strings.HasPrefix(s, "Infinity") {
		return math.Inf(1)
	}
	return math.NaN()
}

func parseIntPrefix(s string, radix int) float64 {
	neg := false
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		neg = s[0] == '-'
		s = s[1:]
	}
	if (radix == 16 || radix == 0) && (strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		s, radix = s[2:], 16
	}
	if radix == 0 {
		radix = 10
	}
	if radix < 2 || radix > 36 {
		return math.NaN()
	}
	end := 0
	for end < len(s) {
		d := digitValue(s[end])
		if d < 0 || d >= radix {
			break
		}
		end++
	}
	if end == 0 {
		return math.NaN()
	}
	n, err := strconv.ParseInt(s[:end], radix, 64)
	if err != nil {
		return math.NaN()
	}
	if neg {
		n = -n
	}
	return float64(n)
}

func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	}
	return -1
}

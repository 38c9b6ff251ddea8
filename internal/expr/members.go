package expr

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// GetMember reads property key of obj. Arrays, strings and numbers expose a
// subset of their JS methods.
func GetMember(obj any, key any) (any, error) {
	switch o := obj.(type) {
	case nil, undefined:
		return nil, throwf("TypeError", "cannot read properties of %s (reading '%s')", ToString(obj), ToString(key))
	case HostObject:
		return o.GetMember(ToString(key))
	case map[string]any:
		if v, ok := o[ToString(key)]; ok {
			return v, nil
		}
		return Undefined, nil
	case []any:
		if i, ok := toIndex(key); ok {
			if i < len(o) {
				return o[i], nil
			}
			return Undefined, nil
		}
		name := ToString(key)
		if name == "length" {
			return float64(len(o)), nil
		}
		if m := arrayMethod(o, name); m != nil {
			return m, nil
		}
	case string:
		if i, ok := toIndex(key); ok {
			rs := []rune(o)
			if i < len(rs) {
				return string(rs[i]), nil
			}
			return Undefined, nil
		}
		name := ToString(key)
		if name == "length" {
			return float64(utf8.RuneCountInString(o)), nil
		}
		if m := stringMethod(o, name); m != nil {
			return m, nil
		}
	case float64:
		if m := numberMethod(o, ToString(key)); m != nil {
			return m, nil
		}
	}
	return Undefined, nil
}

// SetMember writes property key of obj.
func SetMember(obj any, key any, v any) error {
	switch o := obj.(type) {
	case HostObject:
		return o.SetMember(ToString(key), v)
	case map[string]any:
		o[ToString(key)] = v
		return nil
	case []any:
		i, ok := toIndex(key)
		if ok && i < len(o) {
			o[i] = v
			return nil
		}
		return throwf("TypeError", "cannot set index %s of array of length %d", ToString(key), len(o))
	}
	return throwf("TypeError", "cannot set properties of %s (setting '%s')", ToString(obj), ToString(key))
}

func toIndex(key any) (int, bool) {
	switch k := key.(type) {
	case float64:
		if k >= 0 && k == math.Trunc(k) && k < math.MaxInt32 {
			return int(k), true
		}
	case int:
		return k, k >= 0
	case string:
		if k == "" || (len(k) > 1 && k[0] == '0') {
			return 0, false
		}
		i, err := strconv.Atoi(k)
		return i, err == nil && i >= 0
	}
	return 0, false
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return Undefined
}

// relIndex resolves a possibly negative slice index against length n.
func relIndex(v any, n, def int) int {
	if v == Undefined {
		return def
	}
	i := int(ToNumber(v))
	if i < 0 {
		i += n
	}
	return max(0, min(i, n))
}

func arrayMethod(a []any, name string) Callable {
	each := func(fn any, visit func(i int, r any) bool) error {
		for i, el := range a {
			r, err := CallValue(fn, Undefined, el, float64(i), a)
			if err != nil {
				return err
			}
			if !visit(i, r) {
				break
			}
		}
		return nil
	}
	switch name {
	case "map":
		return Func(func(args ...any) (any, error) {
			out := make([]any, len(a))
			err := each(arg(args, 0), func(i int, r any) bool { out[i] = r; return true })
			return out, err
		})
	case "filter":
		return Func(func(args ...any) (any, error) {
			out := []any{}
			err := each(arg(args, 0), func(i int, r any) bool {
				if Truthy(r) {
					out = append(out, a[i])
				}
				return true
			})
			return out, err
		})
	case "forEach":
		return Func(func(args ...any) (any, error) {
			return Undefined, each(arg(args, 0), func(int, any) bool { return true })
		})
	case "find", "findIndex":
		return Func(func(args ...any) (any, error) {
			found := -1
			err := each(arg(args, 0), func(i int, r any) bool {
				if Truthy(r) {
					found = i
					return false
				}
				return true
			})
			if name == "findIndex" {
				return float64(found), err
			}
			if found < 0 {
				return Undefined, err
			}
			return a[found], err
		})
	case "some", "every":
		return Func(func(args ...any) (any, error) {
			res := name == "every"
			err := each(arg(args, 0), func(_ int, r any) bool {
				if Truthy(r) != res {
					res = !res
					return false
				}
				return true
			})
			return res, err
		})
	case "reduce":
		return Func(func(args ...any) (any, error) {
			start := 0
			acc := arg(args, 1)
			if len(args) < 2 {
				if len(a) == 0 {
					return nil, throwf("TypeError", "reduce of empty array with no initial value")
				}
				acc, start = a[0], 1
			}
			for i := start; i < len(a); i++ {
				var err error
				if acc, err = CallValue(arg(args, 0), Undefined, acc, a[i], float64(i), a); err != nil {
					return nil, err
				}
			}
			return acc, nil
		})
	case "join":
		return Func(func(args ...any) (any, error) {
			sep := ","
			if s := arg(args, 0); s != Undefined {
				sep = ToString(s)
			}
			parts := make([]string, len(a))
			for i, el := range a {
				if !IsNullish(el) {
					parts[i] = ToString(el)
				}
			}
			return strings.Join(parts, sep), nil
		})
	case "slice":
		return Func(func(args ...any) (any, error) {
			from := relIndex(arg(args, 0), len(a), 0)
			to := relIndex(arg(args, 1), len(a), len(a))
			if to < from {
				to = from
			}
			return append([]any{}, a[from:to]...), nil
		})
	case "concat":
		return Func(func(args ...any) (any, error) {
			out := append([]any{}, a...)
			for _, x := range args {
				if xs, ok := x.([]any); ok {
					out = append(out, xs...)
				} else {
					out = append(out, x)
				}
			}
			return out, nil
		})
	case "indexOf", "includes":
		return Func(func(args ...any) (any, error) {
			for i, el := range a {
				if StrictEquals(el, arg(args, 0)) {
					if name == "includes" {
						return true, nil
					}
					return float64(i), nil
				}
			}
			if name == "includes" {
				return false, nil
			}
			return float64(-1), nil
		})
	case "reverse":
		return Func(func(args ...any) (any, error) {
			out := make([]any, len(a))
			for i, el := range a {
				out[len(a)-1-i] = el
			}
			return out, nil
		})
	case "sort":
		return Func(func(args ...any) (any, error) {
			out := append([]any{}, a...)
			var err error
			cmp := arg(args, 0)
			sort.SliceStable(out, func(i, j int) bool {
				if cmp == Undefined {
					return ToString(out[i]) < ToString(out[j])
				}
				r, cerr := CallValue(cmp, Undefined, out[i], out[j])
				if cerr != nil && err == nil {
					err = cerr
				}
				return ToNumber(r) < 0
			})
			return out, err
		})
	}
	return nil
}

func stringMethod(s, name string) Callable {
	str := func(args []any, i int) string { return ToString(arg(args, i)) }
	switch name {
	case "toUpperCase":
		return Func(func(...any) (any, error) { return strings.ToUpper(s), nil })
	case "toLowerCase":
		return Func(func(...any) (any, error) { return strings.ToLower(s), nil })
	case "trim":
		return Func(func(...any) (any, error) { return strings.TrimSpace(s), nil })
	case "trimStart":
		return Func(func(...any) (any, error) { return strings.TrimLeft(s, " \t\n\r"), nil })
	case "trimEnd":
		return Func(func(...any) (any, error) { return strings.TrimRight(s, " \t\n\r"), nil })
	case "includes":
		return Func(func(args ...any) (any, error) { return strings.Contains(s, str(args, 0)), nil })
	case "startsWith":
		return Func(func(args ...any) (any, error) { return strings.HasPrefix(s, str(args, 0)), nil })
	case "endsWith":
		return Func(func(args ...any) (any, error) { return strings.HasSuffix(s, str(args, 0)), nil })
	case "indexOf":
		return Func(func(args ...any) (any, error) {
			i := strings.Index(s, str(args, 0))
			if i < 0 {
				return float64(-1), nil
			}
			return float64(utf8.RuneCountInString(s[:i])), nil
		})
	case "split":
		return Func(func(args ...any) (any, error) {
			if arg(args, 0) == Undefined {
				return []any{s}, nil
			}
			parts := strings.Split(s, str(args, 0))
			out := make([]any, len(parts))
			for i, p := range parts {
				out[i] = p
			}
			return out, nil
		})
	case "slice", "substring":
		return Func(func(args ...any) (any, error) {
			rs := []rune(s)
			from := relIndex(arg(args, 0), len(rs), 0)
			to := relIndex(arg(args, 1), len(rs), len(rs))
			if to < from {
				if name == "substring" {
					from, to = to, from
				} else {
					to = from
				}
			}
			return string(rs[from:to]), nil
		})
	case "charAt":
		return Func(func(args ...any) (any, error) {
			rs := []rune(s)
			i := int(ToNumber(arg(args, 0)))
			if i < 0 || i >= len(rs) {
				return "", nil
			}
			return string(rs[i]), nil
		})
	case "replace":
		return Func(func(args ...any) (any, error) { return strings.Replace(s, str(args, 0), str(args, 1), 1), nil })
	case "replaceAll":
		return Func(func(args ...any) (any, error) { return strings.ReplaceAll(s, str(args, 0), str(args, 1)), nil })
	case "repeat":
		return Func(func(args ...any) (any, error) {
			n := int(ToNumber(arg(args, 0)))
			if n < 0 {
				return nil, throwf("RangeError", "invalid count value: %d", n)
			}
			return strings.Repeat(s, n), nil
		})
	case "padStart", "padEnd":
		return Func(func(args ...any) (any, error) {
			width := int(ToNumber(arg(args, 0)))
			pad := " "
			if p := arg(args, 1); p != Undefined {
				pad = ToString(p)
			}
			n := width - utf8.RuneCountInString(s)
			if n <= 0 || pad == "" {
				return s, nil
			}
			fill := []rune(strings.Repeat(pad, n))[:n]
			if name == "padStart" {
				return string(fill) + s, nil
			}
			return s + string(fill), nil
		})
	}
	return nil
}

func numberMethod(f float64, name string) Callable {
	switch name {
	case "toFixed":
		return Func(func(args ...any) (any, error) {
			digits := int(ToNumber(arg(args, 0)))
			if arg(args, 0) == Undefined {
				digits = 0
			}
			if digits < 0 || digits > 100 {
				return nil, throwf("RangeError", "toFixed() digits argument must be between 0 and 100")
			}
			return strconv.FormatFloat(f, 'f', digits, 64), nil
		})
	case "toString":
		return Func(func(...any) (any, error) { return formatNumber(f), nil })
	}
	return nil
}

package transformations

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/expr-lang/expr"
)

type function struct {
	name  string
	arity [2]int // min, max
	fn    func(args ...any) (any, error)
}

var functions = []function{
	{"str_toUpperCase", [2]int{1, 1}, func(a ...any) (any, error) { return strings.ToUpper(jsString(a[0])), nil }},
	{"str_toLowerCase", [2]int{1, 1}, func(a ...any) (any, error) { return strings.ToLower(jsString(a[0])), nil }},
	{"str_trim", [2]int{1, 1}, func(a ...any) (any, error) { return strings.TrimSpace(jsString(a[0])), nil }},
	{"str_trimStart", [2]int{1, 1}, func(a ...any) (any, error) { return strings.TrimLeftFunc(jsString(a[0]), unicode.IsSpace), nil }},
	{"str_trimEnd", [2]int{1, 1}, func(a ...any) (any, error) { return strings.TrimRightFunc(jsString(a[0]), unicode.IsSpace), nil }},
	{"str_replace", [2]int{3, 3}, func(a ...any) (any, error) {
		return strings.Replace(jsString(a[0]), jsString(a[1]), jsString(a[2]), 1), nil
	}},
	{"str_replaceAll", [2]int{3, 3}, func(a ...any) (any, error) {
		return strings.ReplaceAll(jsString(a[0]), jsString(a[1]), jsString(a[2])), nil
	}},
	{"str_substring", [2]int{2, 3}, substring},
	{"str_slice", [2]int{2, 3}, slice},
	{"str_padStart", [2]int{2, 3}, func(a ...any) (any, error) { return pad(a, true) }},
	{"str_padEnd", [2]int{2, 3}, func(a ...any) (any, error) { return pad(a, false) }},
	{"str_startsWith", [2]int{2, 2}, func(a ...any) (any, error) { return strings.HasPrefix(jsString(a[0]), jsString(a[1])), nil }},
	{"str_endsWith", [2]int{2, 2}, func(a ...any) (any, error) { return strings.HasSuffix(jsString(a[0]), jsString(a[1])), nil }},
	{"str_includes", [2]int{2, 2}, func(a ...any) (any, error) { return strings.Contains(jsString(a[0]), jsString(a[1])), nil }},
	{"str_split", [2]int{2, 2}, func(a ...any) (any, error) {
		parts := strings.Split(jsString(a[0]), jsString(a[1]))
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	}},
	{"str_charAt", [2]int{2, 2}, func(a ...any) (any, error) {
		runes := []rune(jsString(a[0]))
		idx, err := toInt(a[1])
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(runes) {
			return "", nil
		}
		return string(runes[idx]), nil
	}},
	{"str_indexOf", [2]int{2, 2}, func(a ...any) (any, error) {
		s, sub := jsString(a[0]), jsString(a[1])
		idx := strings.Index(s, sub)
		if idx < 0 {
			return -1, nil
		}
		return len([]rune(s[:idx])), nil
	}},
	{"str_length", [2]int{1, 1}, func(a ...any) (any, error) {
		if list, ok := a[0].([]any); ok {
			return len(list), nil
		}
		return len([]rune(jsString(a[0]))), nil
	}},
	{"num_toFixed", [2]int{1, 2}, func(a ...any) (any, error) {
		f, err := toNumber(a[0])
		if err != nil {
			return nil, err
		}
		digits := 0
		if len(a) > 1 {
			if digits, err = toInt(a[1]); err != nil {
				return nil, err
			}
		}
		if digits < 0 || digits > 100 {
			return nil, fmt.Errorf("toFixed digits %d out of range", digits)
		}
		return strconv.FormatFloat(f, 'f', digits, 64), nil
	}},
	{"String", [2]int{1, 1}, func(a ...any) (any, error) { return jsString(a[0]), nil }},
	{"Number", [2]int{1, 1}, func(a ...any) (any, error) { return jsNumber(a[0]), nil }},
	{"parseFloat", [2]int{1, 1}, func(a ...any) (any, error) { return parseFloatPrefix(jsString(a[0])), nil }},
	{"parseInt", [2]int{1, 2}, parseInt},
	{"math_round", [2]int{1, 1}, mathUnary(func(f float64) float64 { return math.Floor(f + 0.5) })},
	{"math_floor", [2]int{1, 1}, mathUnary(math.Floor)},
	{"math_ceil", [2]int{1, 1}, mathUnary(math.Ceil)},
	{"math_abs", [2]int{1, 1}, mathUnary(math.Abs)},
	{"math_min", [2]int{1, 16}, mathFold(math.Min)},
	{"math_max", [2]int{1, 16}, mathFold(math.Max)},
}

func functionOptions() []expr.Option {
	opts := make([]expr.Option, 0, len(functions))
	for _, f := range functions {
		f := f
		opts = append(opts, expr.Function(f.name, func(params ...any) (any, error) {
			if len(params) < f.arity[0] || len(params) > f.arity[1] {
				return nil, fmt.Errorf("%s: unexpected argument count %d", f.name, len(params))
			}
			return f.fn(params...)
		}))
	}
	return opts
}

// Primitive passes strings, numbers, booleans and nil through and renders anything else
// (arrays, objects) as the transform language would when concatenating it to a string.
func Primitive(v any) any {
	switch v.(type) {
	case nil, string, bool, int, int32, int64, float32, float64:
		return v
	default:
		return jsString(v)
	}
}

// jsString renders a value the way string concatenation would in the transform language.
func jsString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return formatFloat(val)
	case float32:
		return formatFloat(float64(val))
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = jsString(item)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', 0, 64)
	default:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
}

// jsNumber converts like Number(): blanks become 0, unparseable input NaN.
func jsNumber(v any) float64 {
	switch val := v.(type) {
	case nil:
		return 0
	case bool:
		if val {
			return 1
		}
		return 0
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float64:
		return val
	case float32:
		return float64(val)
	}
	s := strings.TrimSpace(jsString(v))
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func toNumber(v any) (float64, error) {
	f := jsNumber(v)
	if math.IsNaN(f) {
		return 0, fmt.Errorf("%q is not a number", jsString(v))
	}
	return f, nil
}

func toInt(v any) (int, error) {
	f, err := toNumber(v)
	if err != nil {
		return 0, err
	}
	return int(math.Trunc(f)), nil
}

func parseFloatPrefix(s string) float64 {
	s = strings.TrimSpace(s)
	end := 0
	seenDot, seenDigit := false, false
scan:
	for end < len(s) {
		c := s[end]
		switch {
		case c >= '0' && c <= '9':
			seenDigit = true
		case c == '.' && !seenDot:
			seenDot = true
		case (c == '-' || c == '+') && end == 0:
		default:
			break scan
		}
		end++
	}
	if !seenDigit {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(s[:end], "."), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func parseInt(a ...any) (any, error) {
	radix := 10
	if len(a) > 1 {
		r, err := toInt(a[1])
		if err != nil {
			return nil, err
		}
		if r < 2 || r > 36 {
			return math.NaN(), nil
		}
		radix = r
	}
	s := strings.TrimSpace(jsString(a[0]))
	end := 0
	for end < len(s) {
		c := s[end]
		if (c == '-' || c == '+') && end == 0 {
			end++
			continue
		}
		if digitValue(c) >= radix {
			break
		}
		end++
	}
	n, err := strconv.ParseInt(s[:end], radix, 64)
	if err != nil {
		return math.NaN(), nil
	}
	return float64(n), nil
}

func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	default:
		return 99
	}
}

// clampIndex applies JavaScript slice semantics: negatives count from the end.
func clampIndex(idx, length int, negativeFromEnd bool) int {
	if idx < 0 {
		if !negativeFromEnd {
			return 0
		}
		idx += length
		if idx < 0 {
			return 0
		}
	}
	if idx > length {
		return length
	}
	return idx
}

func substring(a ...any) (any, error) {
	runes := []rune(jsString(a[0]))
	start, err := toInt(a[1])
	if err != nil {
		return nil, err
	}
	end := len(runes)
	if len(a) > 2 {
		if end, err = toInt(a[2]); err != nil {
			return nil, err
		}
	}
	start, end = clampIndex(start, len(runes), false), clampIndex(end, len(runes), false)
	if start > end {
		start, end = end, start
	}
	return string(runes[start:end]), nil
}

func slice(a ...any) (any, error) {
	runes := []rune(jsString(a[0]))
	start, err := toInt(a[1])
	if err != nil {
		return nil, err
	}
	end := len(runes)
	if len(a) > 2 {
		if end, err = toInt(a[2]); err != nil {
			return nil, err
		}
	}
	start, end = clampIndex(start, len(runes), true), clampIndex(end, len(runes), true)
	if start >= end {
		return "", nil
	}
	return string(runes[start:end]), nil
}

func pad(a []any, atStart bool) (any, error) {
	s := jsString(a[0])
	target, err := toInt(a[1])
	if err != nil {
		return nil, err
	}
	filler := " "
	if len(a) > 2 {
		filler = jsString(a[2])
	}
	current := len([]rune(s))
	if target <= current || filler == "" {
		return s, nil
	}
	if target > 10000 {
		return nil, fmt.Errorf("pad length %d too large", target)
	}
	var b strings.Builder
	fill := []rune(filler)
	for i := 0; i < target-current; i++ {
		b.WriteRune(fill[i%len(fill)])
	}
	if atStart {
		return b.String() + s, nil
	}
	return s + b.String(), nil
}

func mathUnary(op func(float64) float64) func(a ...any) (any, error) {
	return func(a ...any) (any, error) {
		return op(jsNumber(a[0])), nil
	}
}

func mathFold(op func(float64, float64) float64) func(a ...any) (any, error) {
	return func(a ...any) (any, error) {
		acc := jsNumber(a[0])
		for _, v := range a[1:] {
			acc = op(acc, jsNumber(v))
		}
		return acc, nil
	}
}

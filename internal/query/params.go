package query

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Reserved control keys; everything else in Params is a field filter.
const (
	KeySort    = "sort"
	KeyPage    = "page"
	KeyLimit   = "limit"
	KeyFields  = "fields"
	KeyKeyword = "keyword"
)

var reserved = map[string]bool{
	KeySort:    true,
	KeyPage:    true,
	KeyLimit:   true,
	KeyFields:  true,
	KeyKeyword: true,
}

// Params is the flattened query mapping. A value is a string, a number, or a
// map of operator -> value (map[string]any or map[string]string).
type Params map[string]any

// ParseValues turns a URL query into Params. Bracketed keys such as
// salary[gte]=100 are grouped under the field name; for repeated keys the
// first value wins.
func ParseValues(q url.Values) Params {
	p := make(Params, len(q))
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		vals := q[key]
		if len(vals) == 0 {
			continue
		}
		field, op, nested := splitBracket(key)
		if !nested {
			if _, taken := p[key]; !taken {
				p[key] = vals[0]
			}
			continue
		}
		ops, ok := p[field].(map[string]any)
		if !ok {
			// a[gt]=1 together with a=2: the operator form wins
			ops = map[string]any{}
			p[field] = ops
		}
		if _, taken := ops[op]; !taken {
			ops[op] = vals[0]
		}
	}
	return p
}

// splitBracket splits "field[op]" into its parts. Anything else, including
// deeper nesting, is reported as not nested and kept as a literal key.
func splitBracket(key string) (field, op string, ok bool) {
	open := strings.IndexByte(key, '[')
	if open <= 0 || !strings.HasSuffix(key, "]") {
		return "", "", false
	}
	field = key[:open]
	op = key[open+1 : len(key)-1]
	if op == "" || strings.ContainsAny(op, "[]") {
		return "", "", false
	}
	return field, op, true
}

// String returns the value of key as text; ok is false when absent.
func (p Params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	return toString(v), true
}

// operators returns the nested operator mapping of v, if v is one.
func operators(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out, true
	}
	return nil, false
}

// number reads a page/limit value. Blank or unparseable input reports false.
func number(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, !math.IsNaN(t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(s, 64)
		if errors.Is(err, strconv.ErrRange) && math.IsInf(n, 0) {
			// overflow stays out of range
			return n, true
		}
		if err != nil || math.IsNaN(n) {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// splitList parses "a, b,,c" into [a b c], dropping duplicates.
func splitList(raw string) []string {
	var out []string
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

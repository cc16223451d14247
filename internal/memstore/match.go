package memstore

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"roster/internal/store"
)

func matches(rec store.Record, where []store.Condition) bool {
	for _, c := range where {
		if !matchOne(rec[c.Field], c) {
			return false
		}
	}
	return true
}

func matchOne(got any, c store.Condition) bool {
	if c.Op == store.OpContains {
		s, ok := got.(string)
		if !ok {
			return false
		}
		return strings.Contains(strings.ToLower(s), strings.ToLower(toString(c.Value)))
	}
	if c.Op == store.OpEq && c.Value == nil {
		return got == nil
	}
	if got == nil || c.Value == nil {
		// comparisons with NULL never hold
		return false
	}
	rel := compare(got, c.Value)
	switch c.Op {
	case store.OpEq:
		return rel == 0
	case store.OpGt:
		return rel > 0
	case store.OpGte:
		return rel >= 0
	case store.OpLt:
		return rel < 0
	case store.OpLte:
		return rel <= 0
	}
	return false
}

// compare orders two non-nil values of the same kind. Mixed kinds fall back
// to their text form.
func compare(a, b any) int {
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	return strings.Compare(toString(a), toString(b))
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

// cmpByKey compares one sort key. NULL sorts as the largest value, so it
// comes last ascending and first descending.
func cmpByKey(a, b store.Record, key store.OrderKey) int {
	va, vb := a[key.Field], b[key.Field]
	var rel int
	switch {
	case va == nil && vb == nil:
		rel = 0
	case va == nil:
		rel = 1
	case vb == nil:
		rel = -1
	default:
		rel = compare(va, vb)
	}
	if key.Desc {
		rel = -rel
	}
	return rel
}

func sortRecords(rows []store.Record, keys []store.OrderKey) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			if c := cmpByKey(rows[i], rows[j], k); c != 0 {
				return c < 0
			}
		}
		return false
	})
}

// window applies skip/take; take 0 means no limit.
func window(rows []store.Record, skip, take int) []store.Record {
	if skip >= len(rows) {
		return rows[:0]
	}
	if skip > 0 {
		rows = rows[skip:]
	}
	if take > 0 && take < len(rows) {
		rows = rows[:take]
	}
	return rows
}

func project(rec store.Record, fields []string) store.Record {
	if fields == nil {
		return rec.Clone()
	}
	out := make(store.Record, len(fields))
	for _, f := range fields {
		if v, ok := rec[f]; ok {
			out[f] = v
		}
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

package docstore

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Apply evaluates q against an unordered set of documents. Backends without
// native ordered queries use it to honour filters, ordering, cursor and limit.
func Apply(q Query, docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if Matches(q.Filters, d) {
			out = append(out, d)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return Less(q, out[i], out[j])
	})

	if q.StartAfter != nil {
		pivot := Document{ID: q.StartAfter.ID, Fields: map[string]any{q.OrderBy: q.StartAfter.Value}}
		idx := sort.Search(len(out), func(i int) bool {
			return Less(q, pivot, out[i])
		})
		out = out[idx:]
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// Less reports whether a sorts before b under the ordering of q, with the
// document id as tie breaker.
func Less(q Query, a, b Document) bool {
	if q.OrderBy != "" {
		c := Compare(a.Fields[q.OrderBy], b.Fields[q.OrderBy])
		if c != 0 {
			if q.Descending {
				return c > 0
			}
			return c < 0
		}
	}
	if q.Descending {
		return a.ID > b.ID
	}
	return a.ID < b.ID
}

// Matches reports whether doc satisfies every filter.
func Matches(filters []Filter, doc Document) bool {
	for _, f := range filters {
		v := doc.Fields[f.Field]
		switch f.Op {
		case OpEqual, "":
			if Compare(v, f.Value) != 0 {
				return false
			}
		case OpNotEqual:
			if Compare(v, f.Value) == 0 {
				return false
			}
		case OpIn:
			if !containsValue(f.Value, v) {
				return false
			}
		case OpArrayContains:
			if !containsValue(v, f.Value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func containsValue(list any, v any) bool {
	rv := reflect.ValueOf(list)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if Compare(rv.Index(i).Interface(), v) == 0 {
			return true
		}
	}
	return false
}

// Compare orders two field values. Numbers compare numerically, times (or
// RFC3339 strings) chronologically, everything else by string form. nil sorts
// first.
func Compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}

	if ta, ok := toTime(a); ok {
		if tb, ok := toTime(b); ok {
			return ta.Compare(tb)
		}
	}

	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case !ba:
				return -1
			}
			return 1
		}
	}

	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}

package filedb

import (
	"sort"
	"strings"
	"time"
)

// undefinedT is the internal tag for "the path did not resolve to a value",
// as distinct from an explicit null in the document. A dot-path lookup that
// walks off the end of a document returns undefinedValue, never nil.
type undefinedT struct{}

var undefinedValue = undefinedT{}

func isUndefined(v interface{}) bool {
	_, ok := v.(undefinedT)
	return ok
}

// band is the top-level type ordering from spec.md §3:
// undefined < null < number < string < boolean < date < sequence < mapping.
type band int

const (
	bandUndefined band = iota
	bandNull
	bandNumber
	bandString
	bandBoolean
	bandDate
	bandSequence
	bandMapping
)

func valueBand(v interface{}) band {
	switch vv := v.(type) {
	case undefinedT:
		return bandUndefined
	case nil:
		return bandNull
	case bool:
		return bandBoolean
	case string:
		return bandString
	case time.Time:
		return bandDate
	case M:
		return bandMapping
	case map[string]interface{}:
		return bandMapping
	case []interface{}:
		return bandSequence
	default:
		_ = vv
		if isNumeric(v) {
			return bandNumber
		}
		// Unrecognized concrete types (e.g. a caller-supplied struct) fall
		// back to the mapping band since they behave like opaque structured
		// values for ordering purposes.
		return bandMapping
	}
}

func isNumeric(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

func asFloat64(v interface{}) (float64, bool) {
	switch vv := v.(type) {
	case int:
		return float64(vv), true
	case int8:
		return float64(vv), true
	case int16:
		return float64(vv), true
	case int32:
		return float64(vv), true
	case int64:
		return float64(vv), true
	case uint:
		return float64(vv), true
	case uint8:
		return float64(vv), true
	case uint16:
		return float64(vv), true
	case uint32:
		return float64(vv), true
	case uint64:
		return float64(vv), true
	case float32:
		return float64(vv), true
	case float64:
		return vv, true
	}
	return 0, false
}

// StringComparator overrides the default natural ordering used for string
// comparisons (sorts, index keys, $lt/$gt). It must return a negative,
// zero or positive int the way strings.Compare does.
type StringComparator func(a, b string) int

func defaultStringCompare(a, b string) int {
	return strings.Compare(a, b)
}

// compareThings implements the total order of spec.md §3. It never panics:
// incomparable inputs fall back to comparing their bands.
func compareThings(a, b interface{}, cmpStr StringComparator) int {
	ba, bb := valueBand(a), valueBand(b)
	if ba != bb {
		if ba < bb {
			return -1
		}
		return 1
	}
	switch ba {
	case bandUndefined, bandNull:
		return 0
	case bandNumber:
		fa, _ := asFloat64(a)
		fb, _ := asFloat64(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	case bandString:
		sa, _ := a.(string)
		sb, _ := b.(string)
		if cmpStr != nil {
			return cmpStr(sa, sb)
		}
		return defaultStringCompare(sa, sb)
	case bandBoolean:
		va, _ := a.(bool)
		vb, _ := b.(bool)
		if va == vb {
			return 0
		}
		if !va && vb {
			return -1
		}
		return 1
	case bandDate:
		ta, _ := a.(time.Time)
		tb, _ := b.(time.Time)
		switch {
		case ta.Before(tb):
			return -1
		case ta.After(tb):
			return 1
		default:
			return 0
		}
	case bandSequence:
		return compareSequences(toSlice(a), toSlice(b), cmpStr)
	case bandMapping:
		return compareMappings(toMap(a), toMap(b), cmpStr)
	}
	return 0
}

func compareSequences(a, b []interface{}, cmpStr StringComparator) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := compareThings(a[i], b[i], cmpStr); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func compareMappings(a, b M, cmpStr StringComparator) int {
	ka := sortedKeys(a)
	kb := sortedKeys(b)
	n := len(ka)
	if len(kb) < n {
		n = len(kb)
	}
	for i := 0; i < n; i++ {
		if c := compareThings(a[ka[i]], b[kb[i]], cmpStr); c != 0 {
			return c
		}
	}
	switch {
	case len(ka) < len(kb):
		return -1
	case len(ka) > len(kb):
		return 1
	default:
		return 0
	}
}

func sortedKeys(m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toSlice(v interface{}) []interface{} {
	switch vv := v.(type) {
	case []interface{}:
		return vv
	default:
		return nil
	}
}

func toMap(v interface{}) M {
	switch vv := v.(type) {
	case M:
		return vv
	case map[string]interface{}:
		return M(vv)
	default:
		return nil
	}
}

// areThingsEqual is structural equality per spec.md §3: same as
// compareThings == 0 except undefined is never equal to anything, including
// itself, and sequences/mappings require deep element-wise equality (which
// compareThings already provides via recursive comparison).
func areThingsEqual(a, b interface{}, cmpStr StringComparator) bool {
	if isUndefined(a) || isUndefined(b) {
		return false
	}
	if valueBand(a) != valueBand(b) {
		return false
	}
	return compareThings(a, b, cmpStr) == 0
}

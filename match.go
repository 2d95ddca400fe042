package filedb

import (
	"regexp"
	"strings"
)

// comparisonOp is the closed set of operators a query's operator object may
// use, replacing the original's runtime string-keyed dispatch (design notes
// §9) with a lookup table over a fixed tag set.
type comparisonOp string

const (
	opLt        comparisonOp = "$lt"
	opLte       comparisonOp = "$lte"
	opGt        comparisonOp = "$gt"
	opGte       comparisonOp = "$gte"
	opNe        comparisonOp = "$ne"
	opIn        comparisonOp = "$in"
	opNin       comparisonOp = "$nin"
	opRegex     comparisonOp = "$regex"
	opExists    comparisonOp = "$exists"
	opSize      comparisonOp = "$size"
	opElemMatch comparisonOp = "$elemMatch"
)

var knownComparisonOps = map[comparisonOp]bool{
	opLt: true, opLte: true, opGt: true, opGte: true, opNe: true,
	opIn: true, opNin: true, opRegex: true, opExists: true,
	opSize: true, opElemMatch: true,
}

// arrayWholeOps are operators that, when present in an operator object,
// force the clause to be evaluated against the whole array value rather
// than distributed over its elements (spec.md §4.D).
var arrayWholeOps = map[comparisonOp]bool{opSize: true, opElemMatch: true}

// matcher evaluates query trees against documents, sharing compareThings'
// comparison algebra with the index layer.
type matcher struct {
	cmpStr StringComparator
}

func newMatcher(cmpStr StringComparator) *matcher {
	return &matcher{cmpStr: cmpStr}
}

// match reports whether doc satisfies query.
func (m *matcher) match(doc M, query M) (bool, error) {
	for key, val := range query {
		var ok bool
		var err error
		switch key {
		case "$or":
			ok, err = m.matchOr(doc, val)
		case "$and":
			ok, err = m.matchAnd(doc, val)
		case "$not":
			ok, err = m.matchNot(doc, val)
		case "$where":
			ok, err = m.matchWhere(doc, val)
		default:
			ok, err = m.matchField(doc, key, val)
		}
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (m *matcher) matchOr(doc M, val interface{}) (bool, error) {
	clauses, ok := val.([]interface{})
	if !ok {
		return false, newErr(MixedQuery, "$or requires an array of sub-queries")
	}
	for _, c := range clauses {
		sub, ok := asDoc(c)
		if !ok {
			return false, newErr(MixedQuery, "$or clause must be a document")
		}
		matched, err := m.match(doc, sub)
		if err != nil {
			return false, err
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

func (m *matcher) matchAnd(doc M, val interface{}) (bool, error) {
	clauses, ok := val.([]interface{})
	if !ok {
		return false, newErr(MixedQuery, "$and requires an array of sub-queries")
	}
	for _, c := range clauses {
		sub, ok := asDoc(c)
		if !ok {
			return false, newErr(MixedQuery, "$and clause must be a document")
		}
		matched, err := m.match(doc, sub)
		if err != nil {
			return false, err
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

func (m *matcher) matchNot(doc M, val interface{}) (bool, error) {
	sub, ok := asDoc(val)
	if !ok {
		return false, newErr(MixedQuery, "$not requires a document")
	}
	matched, err := m.match(doc, sub)
	if err != nil {
		return false, err
	}
	return !matched, nil
}

func (m *matcher) matchWhere(doc M, val interface{}) (bool, error) {
	pred, ok := val.(func(M) bool)
	if !ok {
		return false, newErr(MixedQuery, "$where requires a func(M) bool predicate")
	}
	return pred(doc), nil
}

// matchField evaluates one top-level field-path clause against doc.
func (m *matcher) matchField(doc M, path string, val interface{}) (bool, error) {
	x := getDotValue(doc, path)

	opObj, isOpObj, err := asOperatorObject(val)
	if err != nil {
		return false, err
	}

	if seq, ok := x.([]interface{}); ok {
		wholeArray := false
		if _, ok := val.([]interface{}); ok {
			wholeArray = true // (a) v is itself a sequence: exact equality against x
		} else if isOpObj {
			for op := range opObj {
				if arrayWholeOps[comparisonOp(op)] {
					wholeArray = true
					break
				}
			}
		}
		if !wholeArray {
			for _, elem := range seq {
				matched, err := m.matchValue(elem, val, opObj, isOpObj)
				if err != nil {
					return false, err
				}
				if matched {
					return true, nil
				}
			}
			return false, nil
		}
	}

	return m.matchValue(x, val, opObj, isOpObj)
}

// matchValue evaluates a single (non-distributed) clause against x.
func (m *matcher) matchValue(x interface{}, val interface{}, opObj M, isOpObj bool) (bool, error) {
	if re, ok := val.(*regexp.Regexp); ok {
		return m.opRegex(x, re), nil
	}
	if isOpObj {
		for rawOp, operand := range opObj {
			op := comparisonOp(rawOp)
			ok, err := m.evalOp(x, op, operand)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}
	return areThingsEqual(x, val, m.cmpStr), nil
}

func (m *matcher) evalOp(x interface{}, op comparisonOp, operand interface{}) (bool, error) {
	if !knownComparisonOps[op] {
		return false, newFieldErr(UnknownOperator, string(op), "unknown query operator "+string(op))
	}
	switch op {
	case opLt:
		return comparable(x, operand) && m.scalarCompare(x, operand) < 0, nil
	case opLte:
		return comparable(x, operand) && m.scalarCompare(x, operand) <= 0, nil
	case opGt:
		return comparable(x, operand) && m.scalarCompare(x, operand) > 0, nil
	case opGte:
		return comparable(x, operand) && m.scalarCompare(x, operand) >= 0, nil
	case opNe:
		return !areThingsEqual(x, operand, m.cmpStr), nil
	case opIn:
		return m.opIn(x, operand), nil
	case opNin:
		return !m.opIn(x, operand), nil
	case opRegex:
		re, ok := operand.(*regexp.Regexp)
		if !ok {
			if s, ok := operand.(string); ok {
				compiled, err := regexp.Compile(s)
				if err != nil {
					return false, err
				}
				re = compiled
			}
		}
		return m.opRegex(x, re), nil
	case opExists:
		want, _ := operand.(bool)
		return isUndefined(x) != want, nil
	case opSize:
		seq, ok := x.([]interface{})
		if !ok {
			return false, nil
		}
		n, ok := asFloat64(operand)
		return ok && int(n) == len(seq), nil
	case opElemMatch:
		sub, ok := asDoc(operand)
		if !ok {
			return false, newErr(MixedQuery, "$elemMatch requires a document")
		}
		seq, ok := x.([]interface{})
		if !ok {
			return false, nil
		}
		for _, elem := range seq {
			elemDoc, ok := asDoc(elem)
			if !ok {
				continue
			}
			matched, err := m.match(elemDoc, sub)
			if err != nil {
				return false, err
			}
			if matched {
				return true, nil
			}
		}
		return false, nil
	}
	return false, nil
}

// comparable reports whether $lt/$lte/$gt/$gte are even defined between a
// and b: both must be scalars of the same comparable kind (spec.md §4.B).
func comparable(a, b interface{}) bool {
	ba, bb := valueBand(a), valueBand(b)
	if ba != bb {
		return false
	}
	switch ba {
	case bandNumber, bandString, bandDate:
		return true
	default:
		return false
	}
}

func (m *matcher) scalarCompare(a, b interface{}) int {
	return compareThings(a, b, m.cmpStr)
}

func (m *matcher) opIn(x interface{}, operand interface{}) bool {
	choices, ok := operand.([]interface{})
	if !ok {
		return false
	}
	for _, c := range choices {
		if areThingsEqual(x, c, m.cmpStr) {
			return true
		}
	}
	return false
}

func (m *matcher) opRegex(x interface{}, re *regexp.Regexp) bool {
	if re == nil {
		return false
	}
	s, ok := x.(string)
	if !ok {
		return false
	}
	return re.MatchString(s)
}

// asOperatorObject inspects val: if it is a document whose keys are all
// "$"-prefixed, it is an operator object. Mixing operator and non-operator
// keys fails with MixedQuery (spec.md §4.D).
func asOperatorObject(val interface{}) (M, bool, error) {
	doc, ok := asDoc(val)
	if !ok {
		return nil, false, nil
	}
	if len(doc) == 0 {
		return nil, false, nil
	}
	hasOp, hasPlain := false, false
	for k := range doc {
		if strings.HasPrefix(k, "$") {
			hasOp = true
		} else {
			hasPlain = true
		}
	}
	if hasOp && hasPlain {
		return nil, false, newErr(MixedQuery, "cannot mix operators and plain keys in the same clause")
	}
	if !hasOp {
		return nil, false, nil
	}
	return doc, true, nil
}

func asDoc(v interface{}) (M, bool) {
	switch vv := v.(type) {
	case M:
		return vv, true
	case map[string]interface{}:
		return M(vv), true
	default:
		return nil, false
	}
}

// getDotValue resolves a dot-notation path against doc. A numeric segment
// indexes into a sequence; a non-numeric segment following a sequence maps
// the remainder of the path over every element (spec.md §4.D).
func getDotValue(doc interface{}, path string) interface{} {
	segments := strings.Split(path, ".")
	return resolvePath(doc, segments)
}

func resolvePath(v interface{}, segments []string) interface{} {
	if len(segments) == 0 {
		return v
	}
	seg := segments[0]
	rest := segments[1:]

	switch vv := v.(type) {
	case M:
		child, ok := vv[seg]
		if !ok {
			return undefinedValue
		}
		return resolvePath(child, rest)
	case map[string]interface{}:
		child, ok := vv[seg]
		if !ok {
			return undefinedValue
		}
		return resolvePath(child, rest)
	case []interface{}:
		if idx, ok := parseIndex(seg); ok {
			if idx < 0 || idx >= len(vv) {
				return undefinedValue
			}
			return resolvePath(vv[idx], rest)
		}
		// non-numeric segment: map the remainder over every element.
		out := make([]interface{}, len(vv))
		for i, elem := range vv {
			out[i] = resolvePath(elem, segments)
		}
		return out
	default:
		return undefinedValue
	}
}

func parseIndex(seg string) (int, bool) {
	if seg == "" {
		return 0, false
	}
	n := 0
	for _, c := range seg {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

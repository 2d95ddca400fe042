package filedb

import "sort"

// Cursor is the builder of spec.md §4.K: a query plus settable projection,
// sort, skip and limit, materialized by Exec.
type Cursor struct {
	ds *Datastore

	query M
	proj  M
	sort  D
	skipN int
	limN  int
	hasLim bool
}

// Projection sets the fields to pick or omit (spec.md §4.F).
func (c *Cursor) Projection(p M) *Cursor { c.proj = p; return c }

// Sort sets the sort key list, applied lexicographically in order.
func (c *Cursor) Sort(s D) *Cursor { c.sort = s; return c }

// Skip sets the number of matches to skip before the first returned result.
func (c *Cursor) Skip(n int) *Cursor { c.skipN = n; return c }

// Limit caps the number of returned results.
func (c *Cursor) Limit(n int) *Cursor { c.limN = n; c.hasLim = true; return c }

// Exec runs the cursor through the executor and returns deep copies of the
// matching documents, projected.
func (c *Cursor) Exec() ([]M, error) {
	v, err := c.ds.exec.submit(func() (interface{}, error) {
		return c.execRaw()
	})
	if v == nil {
		return nil, err
	}
	return v.([]M), err
}

// execRaw is the internal, unqueued form used by callers already running
// inside an executor task (submitting again from there would deadlock the
// single-writer loop).
func (c *Cursor) execRaw() ([]M, error) {
	candidates, err := c.ds.getCandidatesRaw(c.query, false)
	if err != nil {
		return nil, err
	}

	matched := make([]M, 0, len(candidates))
	for _, d := range candidates {
		ok, err := c.ds.matcher.match(d, c.query)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, d)
		}
	}

	if len(c.sort) > 0 {
		sortDocs(matched, c.sort, c.ds.cfg.CompareStrings)
	}
	matched = applySkipLimit(matched, c.skipN, c.limN, c.hasLim)

	out := make([]M, 0, len(matched))
	for _, d := range matched {
		projected, err := applyProjection(deepCopyDoc(d), c.proj)
		if err != nil {
			return nil, err
		}
		out = append(out, projected)
	}
	return out, nil
}

// sortDocs orders docs by the (field, direction) pairs of spec, comparing
// per §4.B and multiplying by direction; the first non-zero comparison
// wins.
func sortDocs(docs []M, spec D, cmpStr StringComparator) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, pair := range spec {
			dir := 1.0
			if f, ok := asFloat64(pair.Value); ok && f < 0 {
				dir = -1
			}
			a := getDotValue(docs[i], pair.Key)
			b := getDotValue(docs[j], pair.Key)
			c := compareThings(a, b, cmpStr)
			if c == 0 {
				continue
			}
			return float64(c)*dir < 0
		}
		return false
	})
}

// applySkipLimit applies skip then, if hasLim, limit to an already
// materialized slice.
func applySkipLimit(docs []M, skip, lim int, hasLim bool) []M {
	if skip > 0 {
		if skip >= len(docs) {
			return nil
		}
		docs = docs[skip:]
	}
	if hasLim && lim < len(docs) {
		if lim < 0 {
			lim = 0
		}
		docs = docs[:lim]
	}
	return docs
}

package filedb

import "github.com/google/btree"

// treeKey is one distinct key value held in an index's underlying tree. It
// implements btree.Item the way the pack's asaidimu-go-store field index
// does: Less delegates to the same comparison algebra the matcher and
// sorter use, so tree order, sort order and $lt/$gt all agree.
type treeKey struct {
	value  interface{}
	cmpStr StringComparator
	docs   map[string]M // docId -> canonical document holding this key
}

func (k *treeKey) Less(than btree.Item) bool {
	other := than.(*treeKey)
	return compareThings(k.value, other.value, k.cmpStr) < 0
}

// index is the ordered-key index of spec.md §4.G: a balanced tree mapping
// key -> set of documents, with unique and sparse variants and atomic
// rollback for array-valued fields.
type index struct {
	fieldName   string
	unique      bool
	sparse      bool
	expireAfter int64 // seconds; 0 with hasExpire=false means "not TTL"
	hasExpire   bool
	cmpStr      StringComparator

	tree *btree.BTree
}

func newIndex(fieldName string, unique, sparse bool, cmpStr StringComparator) *index {
	return &index{
		fieldName: fieldName,
		unique:    unique,
		sparse:    sparse,
		cmpStr:    cmpStr,
		tree:      btree.New(32),
	}
}

func (ix *index) reset() {
	ix.tree = btree.New(32)
}

// fieldValues extracts the distinct key values a document contributes to
// this index: one value for a scalar field, one per distinct array element
// for an array-valued field (spec.md §3's "index entry" rule). A missing
// field contributes the undefined value, except on a sparse index, where it
// contributes nothing. The
// comparison-based distinctness here stands in for the original's
// type-tagged string key (design notes §9): two elements are distinct
// whenever compareThings disagrees, so 1 and "1" remain distinct.
func (ix *index) fieldValues(doc M) []interface{} {
	v := getDotValue(doc, ix.fieldName)
	if isUndefined(v) {
		if ix.sparse {
			return nil
		}
		return []interface{}{v}
	}
	seq, ok := v.([]interface{})
	if !ok {
		return []interface{}{v}
	}
	var out []interface{}
	for _, elem := range seq {
		dup := false
		for _, seen := range out {
			if compareThings(seen, elem, ix.cmpStr) == 0 {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, elem)
		}
	}
	return out
}

// insert adds doc at every distinct key value it contributes. Sparse
// indexes silently skip documents with no value. If this is an
// array-valued document and one of the k key-inserts fails (unique
// violation), the preceding k-1 are rolled back before the error surfaces
// (spec.md §4.G "per-document atomicity on array fields").
func (ix *index) insert(doc M) error {
	values := ix.fieldValues(doc)
	if len(values) == 0 {
		return nil // sparse index with the field absent, or an empty array
	}

	inserted := make([]interface{}, 0, len(values))
	for _, v := range values {
		if err := ix.insertOne(v, doc); err != nil {
			for _, done := range inserted {
				ix.deleteOne(done, doc)
			}
			return err
		}
		inserted = append(inserted, v)
	}
	return nil
}

func (ix *index) insertOne(value interface{}, doc M) error {
	search := &treeKey{value: value, cmpStr: ix.cmpStr}
	id, _ := doc["_id"].(string)

	if item := ix.tree.Get(search); item != nil {
		tk := item.(*treeKey)
		if ix.unique && len(tk.docs) > 0 {
			return uniqueViolation(ix.fieldName, value)
		}
		tk.docs[id] = doc
		return nil
	}
	tk := &treeKey{value: value, cmpStr: ix.cmpStr, docs: map[string]M{id: doc}}
	ix.tree.ReplaceOrInsert(tk)
	return nil
}

// remove deletes doc from every key it is indexed at. No error if some or
// all entries are already missing: removal is idempotent (spec.md §4.H).
func (ix *index) remove(doc M) {
	for _, v := range ix.fieldValues(doc) {
		ix.deleteOne(v, doc)
	}
}

func (ix *index) deleteOne(value interface{}, doc M) {
	id, _ := doc["_id"].(string)
	search := &treeKey{value: value, cmpStr: ix.cmpStr}
	item := ix.tree.Get(search)
	if item == nil {
		return
	}
	tk := item.(*treeKey)
	delete(tk.docs, id)
	if len(tk.docs) == 0 {
		ix.tree.Delete(search)
	}
}

// search returns every document at the given key, in no particular order.
func (ix *index) search(value interface{}) []M {
	search := &treeKey{value: value, cmpStr: ix.cmpStr}
	item := ix.tree.Get(search)
	if item == nil {
		return nil
	}
	tk := item.(*treeKey)
	out := make([]M, 0, len(tk.docs))
	for _, d := range tk.docs {
		out = append(out, d)
	}
	return out
}

func (ix *index) searchAny(values []interface{}) []M {
	seen := map[string]M{}
	for _, v := range values {
		for _, d := range ix.search(v) {
			if id, ok := d["_id"].(string); ok {
				seen[id] = d
			}
		}
	}
	out := make([]M, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	return out
}

// bounds is a range query spec for betweenBounds: each bound is optional.
type bounds struct {
	gt, gte, lt, lte interface{}
	hasGt, hasGte    bool
	hasLt, hasLte    bool
}

// betweenBounds returns documents with keys in the given range, in
// ascending key order (spec.md §4.G).
func (ix *index) betweenBounds(b bounds) []M {
	var out []M
	seen := map[string]bool{}
	visit := func(item btree.Item) bool {
		tk := item.(*treeKey)
		if b.hasLt && compareThings(tk.value, b.lt, ix.cmpStr) >= 0 {
			return true
		}
		if b.hasLte && compareThings(tk.value, b.lte, ix.cmpStr) > 0 {
			return true
		}
		for id, d := range tk.docs {
			if !seen[id] {
				seen[id] = true
				out = append(out, d)
			}
		}
		return true
	}

	switch {
	case b.hasGt:
		pivot := &treeKey{value: b.gt, cmpStr: ix.cmpStr}
		ix.tree.AscendGreaterOrEqual(pivot, func(item btree.Item) bool {
			tk := item.(*treeKey)
			if compareThings(tk.value, b.gt, ix.cmpStr) == 0 {
				return true // strictly greater: skip the pivot itself
			}
			return visit(item)
		})
	case b.hasGte:
		pivot := &treeKey{value: b.gte, cmpStr: ix.cmpStr}
		ix.tree.AscendGreaterOrEqual(pivot, visit)
	default:
		ix.tree.Ascend(visit)
	}
	return out
}

// executeOnEveryNode visits every (key, docs) entry in ascending key order.
func (ix *index) executeOnEveryNode(fn func(value interface{}, docs []M)) {
	ix.tree.Ascend(func(item btree.Item) bool {
		tk := item.(*treeKey)
		docs := make([]M, 0, len(tk.docs))
		for _, d := range tk.docs {
			docs = append(docs, d)
		}
		fn(tk.value, docs)
		return true
	})
}

func (ix *index) size() int {
	return ix.tree.Len()
}

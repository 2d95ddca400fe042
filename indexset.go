package filedb

// indexSet holds every index for one datastore and guarantees all-or-
// nothing semantics across them (spec.md §4.H). The _id index is always
// present, unique and non-sparse.
type indexSet struct {
	cmpStr StringComparator
	byName map[string]*index
	order  []string // stable iteration/rollback order: insertion order
}

const idField = "_id"

func newIndexSet(cmpStr StringComparator) *indexSet {
	is := &indexSet{cmpStr: cmpStr, byName: map[string]*index{}}
	is.addIndex(idField, true, false)
	return is
}

func (is *indexSet) addIndex(fieldName string, unique, sparse bool) *index {
	if existing, ok := is.byName[fieldName]; ok {
		return existing
	}
	ix := newIndex(fieldName, unique, sparse, is.cmpStr)
	is.byName[fieldName] = ix
	is.order = append(is.order, fieldName)
	return ix
}

func (is *indexSet) removeIndex(fieldName string) {
	if fieldName == idField {
		return // the _id index can never be removed
	}
	delete(is.byName, fieldName)
	for i, name := range is.order {
		if name == fieldName {
			is.order = append(is.order[:i], is.order[i+1:]...)
			break
		}
	}
}

func (is *indexSet) get(fieldName string) (*index, bool) {
	ix, ok := is.byName[fieldName]
	return ix, ok
}

func (is *indexSet) idIndex() *index { return is.byName[idField] }

func (is *indexSet) resetAll() {
	for _, name := range is.order {
		is.byName[name].reset()
	}
}

// addToIndexes inserts doc into every index in stable order. On the first
// failure (a unique violation), every earlier index's insert is undone
// before the error surfaces, so the whole operation is transactional.
func (is *indexSet) addToIndexes(doc M) error {
	done := make([]string, 0, len(is.order))
	for _, name := range is.order {
		ix := is.byName[name]
		if err := ix.insert(doc); err != nil {
			for _, earlier := range done {
				is.byName[earlier].remove(doc)
			}
			return err
		}
		done = append(done, name)
	}
	return nil
}

// removeFromIndexes deletes doc from every index. Idempotent: no rollback
// is needed because removal never fails.
func (is *indexSet) removeFromIndexes(doc M) {
	for _, name := range is.order {
		is.byName[name].remove(doc)
	}
}

// updatePair is one (old, new) document substitution.
type updatePair struct {
	old M
	new M
}

// updateIndexes performs a remove(old)+insert(new) across every index for
// each pair, two-phase (all removes for an index, then all inserts for
// that index) when there is more than one pair. On failure, the index that
// failed has its successful inserts undone and its removed originals
// reinserted; every earlier index is reverted the same way via
// revertUpdate, then the error surfaces.
func (is *indexSet) updateIndexes(pairs []updatePair) error {
	appliedOn := make([]string, 0, len(is.order))
	for _, name := range is.order {
		ix := is.byName[name]
		if err := applyUpdatePairs(ix, pairs); err != nil {
			for _, earlier := range appliedOn {
				is.revertUpdate(earlier, pairs)
			}
			return err
		}
		appliedOn = append(appliedOn, name)
	}
	return nil
}

// applyUpdatePairs removes every pair's old doc, then inserts every pair's
// new doc, into a single index. On insert failure the removes already done
// and the inserts already done on THIS index are undone before returning.
func applyUpdatePairs(ix *index, pairs []updatePair) error {
	for _, p := range pairs {
		ix.remove(p.old)
	}
	inserted := make([]updatePair, 0, len(pairs))
	for _, p := range pairs {
		if err := ix.insert(p.new); err != nil {
			for _, done := range inserted {
				ix.remove(done.new)
			}
			for _, p2 := range pairs {
				ix.insert(p2.old) //nolint:errcheck // reinserting an original can't newly violate uniqueness
			}
			return err
		}
		inserted = append(inserted, p)
	}
	return nil
}

// revertUpdate is the inverse primitive: it undoes a successful
// updateIndexes application on one named index by removing the new docs
// and reinserting the old ones.
func (is *indexSet) revertUpdate(fieldName string, pairs []updatePair) {
	ix, ok := is.byName[fieldName]
	if !ok {
		return
	}
	for _, p := range pairs {
		ix.remove(p.new)
	}
	for _, p := range pairs {
		ix.insert(p.old) //nolint:errcheck // best-effort revert to the known-good prior state
	}
}

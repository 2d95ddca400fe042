package filedb

import "testing"

func TestIndexUniqueViolation(t *testing.T) {
	ix := newIndex("name", true, false, nil)
	a := M{"_id": "1", "name": "ada"}
	b := M{"_id": "2", "name": "ada"}
	assertNoErr(t, ix.insert(a))
	err := ix.insert(b)
	if !IsKind(err, UniqueViolation) {
		t.Fatalf("expected UniqueViolation, got %v", err)
	}
	if ix.size() != 1 {
		t.Errorf("expected the tree to still hold exactly one key, got %d", ix.size())
	}
	docs := ix.search("ada")
	if len(docs) != 1 {
		t.Errorf("expected exactly one document at key ada, got %d", len(docs))
	}
}

func TestIndexSparseSkipsUndefined(t *testing.T) {
	ix := newIndex("email", false, true, nil)
	doc := M{"_id": "1"}
	assertNoErr(t, ix.insert(doc))
	if ix.size() != 0 {
		t.Errorf("sparse index should not index a missing field, got size %d", ix.size())
	}
}

func TestIndexArrayFieldAtomicRollback(t *testing.T) {
	ix := newIndex("tags", true, false, nil)
	first := M{"_id": "1", "tags": []interface{}{"a", "b"}}
	assertNoErr(t, ix.insert(first))

	second := M{"_id": "2", "tags": []interface{}{"c", "a"}}
	err := ix.insert(second)
	if !IsKind(err, UniqueViolation) {
		t.Fatalf("expected UniqueViolation on shared tag, got %v", err)
	}
	if docs := ix.search("c"); len(docs) != 0 {
		t.Error("the successful insert at 'c' should have been rolled back")
	}
}

func TestIndexBetweenBounds(t *testing.T) {
	ix := newIndex("age", false, false, nil)
	for i, age := range []float64{5, 57, 52, 23, 89} {
		assertNoErr(t, ix.insert(M{"_id": string(rune('a' + i)), "age": age}))
	}
	docs := ix.betweenBounds(bounds{gt: 23.0, hasGt: true})
	if len(docs) != 3 {
		t.Fatalf("expected 3 docs with age>23, got %d", len(docs))
	}
	for i := 1; i < len(docs); i++ {
		if compareThings(docs[i-1]["age"], docs[i]["age"], nil) > 0 {
			t.Error("betweenBounds should return results in ascending key order")
		}
	}
}

func TestIndexRemoveIsIdempotent(t *testing.T) {
	ix := newIndex("age", false, false, nil)
	doc := M{"_id": "1", "age": 5.0}
	ix.remove(doc) // never inserted; must not panic
	assertNoErr(t, ix.insert(doc))
	ix.remove(doc)
	ix.remove(doc)
	if ix.size() != 0 {
		t.Error("expected empty index after removal")
	}
}

func TestIndexSetAllOrNothingRollback(t *testing.T) {
	is := newIndexSet(nil)
	is.addIndex("name", true, false)
	first := M{"_id": "1", "name": "ada"}
	assertNoErr(t, is.addToIndexes(first))

	second := M{"_id": "2", "name": "ada"} // new _id, same unique name: the _id insert succeeds, then name fails
	err := is.addToIndexes(second)
	if err == nil {
		t.Fatal("expected a failure on the duplicate name")
	}
	if is.idIndex().size() != 1 {
		t.Errorf("expected the _id index to have rolled back to 1 entry, got %d", is.idIndex().size())
	}
}

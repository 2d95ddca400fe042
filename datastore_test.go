package filedb_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kinfkong/filedb"
)

func pastTime() time.Time { return time.Now().Add(-time.Hour) }

func newMemStore(t *testing.T) *filedb.Datastore {
	t.Helper()
	ds, err := filedb.New(filedb.Config{InMemoryOnly: true})
	AssertNoError(t, err, "creating an in-memory datastore")
	return ds
}

// Scenario 1: insert + find (spec.md §8.1).
func TestInsertAndFind(t *testing.T) {
	ds := newMemStore(t)
	ages := []float64{5, 57, 52, 23, 89}
	for _, age := range ages {
		_, err := ds.Insert(filedb.M{"age": age})
		AssertNoError(t, err, "inserting a document")
	}

	all, err := ds.Find(filedb.M{}).Exec()
	AssertNoError(t, err, "find({})")
	AssertEqual(t, 5, len(all), "find({}) should return every document")

	gt23, err := ds.Find(filedb.M{"age": filedb.M{"$gt": 23.0}}).Exec()
	AssertNoError(t, err, "find age>23")
	AssertEqual(t, 3, len(gt23), "expected exactly 3 documents with age>23")
	seen := map[float64]bool{}
	for _, d := range gt23 {
		seen[d["age"].(float64)] = true
	}
	for _, want := range []float64{57, 52, 89} {
		if !seen[want] {
			t.Errorf("expected age %v among the results", want)
		}
	}
}

// Scenario 2: sort + limit + skip (spec.md §8.2).
func TestSortLimitSkip(t *testing.T) {
	ds := newMemStore(t)
	for _, age := range []float64{5, 57, 52, 23, 89} {
		_, err := ds.Insert(filedb.M{"age": age})
		AssertNoError(t, err, "inserting a document")
	}

	ageList := func(docs []filedb.M) []float64 {
		out := make([]float64, len(docs))
		for i, d := range docs {
			out[i] = d["age"].(float64)
		}
		return out
	}

	top3, err := ds.Find(filedb.M{}).Sort(filedb.D{{Key: "age", Value: 1}}).Limit(3).Exec()
	AssertNoError(t, err, "sort+limit(3)")
	AssertEqual(t, fmt.Sprint([]float64{5, 23, 52}), fmt.Sprint(ageList(top3)), "sorted+limited(3) ages")

	mid, err := ds.Find(filedb.M{}).Sort(filedb.D{{Key: "age", Value: 1}}).Limit(8).Skip(2).Exec()
	AssertNoError(t, err, "sort+limit(8)+skip(2)")
	AssertEqual(t, fmt.Sprint([]float64{52, 57, 89}), fmt.Sprint(ageList(mid)), "sorted+skipped ages")

	empty, err := ds.Find(filedb.M{}).Sort(filedb.D{{Key: "age", Value: 1}}).Skip(7).Exec()
	AssertNoError(t, err, "sort+skip(7) past the end")
	AssertEqual(t, 0, len(empty), "skip past the end should yield no results")
}

// Scenario 3: unique index rollback (spec.md §8.3).
func TestUniqueIndexRollback(t *testing.T) {
	ds := newMemStore(t)
	AssertNoError(t, ds.EnsureIndex(filedb.IndexOptions{FieldName: "name", Unique: true}), "ensureIndex name unique")

	_, err := ds.Insert(filedb.M{"name": "a"})
	AssertNoError(t, err, "first insert of name=a")

	_, err = ds.Insert(filedb.M{"name": "a"})
	AssertError(t, err, "second insert of name=a should fail")
	if !filedb.IsKind(err, filedb.UniqueViolation) {
		t.Errorf("expected UniqueViolation, got %v", err)
	}

	all, err := ds.Find(filedb.M{}).Exec()
	AssertNoError(t, err, "find after rollback")
	AssertEqual(t, 1, len(all), "exactly one document should remain after the rollback")
}

// Scenario 4: modifier update preserves _id; replacement changing _id fails
// (spec.md §8.4).
func TestUpdatePreservesIdAndRejectsIdChange(t *testing.T) {
	ds := newMemStore(t)
	_, err := ds.Insert(filedb.M{"_id": "X", "a": 1.0})
	AssertNoError(t, err, "insert with explicit _id")

	info, err := ds.Update(filedb.M{"_id": "X"}, filedb.M{"$inc": filedb.M{"a": 2.0}}, filedb.UpdateOptions{})
	AssertNoError(t, err, "$inc update")
	AssertEqual(t, 1, info.Updated, "one document should have been updated")

	doc, err := ds.FindOne(filedb.M{"_id": "X"})
	AssertNoError(t, err, "findOne after update")
	AssertEqual(t, 3.0, doc["a"], "a should be 1+2=3")

	_, err = ds.Update(filedb.M{"_id": "X"}, filedb.M{"_id": "Y", "a": 0.0}, filedb.UpdateOptions{})
	if !filedb.IsKind(err, filedb.ImmutableId) {
		t.Errorf("expected ImmutableId, got %v", err)
	}

	doc, err = ds.FindOne(filedb.M{"_id": "X"})
	AssertNoError(t, err, "findOne after the failed update")
	AssertEqual(t, 3.0, doc["a"], "document should be unchanged after the failed update")
}

// ReturnUpdatedDocs asks Update to report the post-update documents, both
// for an ordinary match and for an upsert.
func TestUpdateReturnUpdatedDocs(t *testing.T) {
	ds := newMemStore(t)
	_, err := ds.Insert(filedb.M{"_id": "X", "a": 1.0})
	AssertNoError(t, err, "insert with explicit _id")

	info, err := ds.Update(filedb.M{"_id": "X"}, filedb.M{"$inc": filedb.M{"a": 2.0}}, filedb.UpdateOptions{ReturnUpdatedDocs: true})
	AssertNoError(t, err, "$inc update with ReturnUpdatedDocs")
	AssertEqual(t, 1, len(info.UpdatedDocs), "expected exactly one returned document")
	AssertEqual(t, 3.0, info.UpdatedDocs[0]["a"], "returned document should reflect the update")

	info, err = ds.Update(filedb.M{"sku": "zzz"}, filedb.M{"$set": filedb.M{"qty": 9.0}}, filedb.UpdateOptions{Upsert: true, ReturnUpdatedDocs: true})
	AssertNoError(t, err, "upsert with ReturnUpdatedDocs")
	AssertEqual(t, 1, len(info.UpdatedDocs), "expected exactly one returned upserted document")
	AssertEqual(t, 9.0, info.UpdatedDocs[0]["qty"], "returned upserted document should carry the modifier's field")
}

// Scenario 5: projection conflict and a valid pick+exclude-_id projection
// (spec.md §8.5).
func TestProjectionConflictAndPickExcludeId(t *testing.T) {
	ds := newMemStore(t)
	for _, age := range []float64{5, 57, 52, 23, 89} {
		_, err := ds.Insert(filedb.M{"age": age})
		AssertNoError(t, err, "inserting a document")
	}

	_, err := ds.Find(filedb.M{}).Projection(filedb.M{"age": 1, "name": 0}).Exec()
	if !filedb.IsKind(err, filedb.MixedProjection) {
		t.Errorf("expected MixedProjection, got %v", err)
	}

	docs, err := ds.Find(filedb.M{}).Sort(filedb.D{{Key: "age", Value: 1}}).Projection(filedb.M{"age": 1, "_id": 0}).Exec()
	AssertNoError(t, err, "valid projection")
	AssertEqual(t, 5, len(docs), "expected 5 projected documents")
	for _, d := range docs {
		if len(d) != 1 {
			t.Errorf("expected only the age field, got %#v", d)
		}
		if _, hasId := d["_id"]; hasId {
			t.Error("_id should have been excluded")
		}
	}
}

// Scenario 6: crash-safe compaction recovery (spec.md §8.6). Simulates a
// crash between the compaction's temp write and its rename by leaving only
// the "~" sibling on disk and deleting the real file.
func TestCrashSafeCompactionRecovery(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.log")

	ds, err := filedb.New(filedb.Config{Filename: path, Autoload: true})
	AssertNoError(t, err, "creating a persistent datastore")
	for i := 0; i < 3; i++ {
		_, err := ds.Insert(filedb.M{"n": float64(i)})
		AssertNoError(t, err, "inserting a document")
	}
	AssertNoError(t, ds.CompactDatafile(), "compacting the datafile")

	data, err := os.ReadFile(path)
	AssertNoError(t, err, "reading the compacted datafile")
	AssertNoError(t, os.WriteFile(path+"~", data, 0644), "writing the crash-sibling")
	AssertNoError(t, os.Remove(path), "removing the real file to simulate a crash before rename")

	reopened, err := filedb.New(filedb.Config{Filename: path, Autoload: true})
	AssertNoError(t, err, "reopening after simulated crash")
	docs, err := reopened.Find(filedb.M{}).Exec()
	AssertNoError(t, err, "find after recovery")
	AssertEqual(t, 3, len(docs), "expected the 3 live documents to survive recovery")

	if _, err := os.Stat(path + "~"); !os.IsNotExist(err) {
		t.Error("the crash-sibling should have been promoted and no longer exist afterward")
	}
}

// TTL expiration: a document older than its registered expireAfterSeconds
// is dropped from candidate results (spec.md §4.L).
func TestTTLExpiration(t *testing.T) {
	ds := newMemStore(t)
	AssertNoError(t, ds.EnsureIndex(filedb.IndexOptions{FieldName: "expireAt", HasExpire: true, ExpireAfterSeconds: 0}), "ensureIndex TTL")

	_, err := ds.Insert(filedb.M{"expireAt": pastTime()})
	AssertNoError(t, err, "inserting an already-expired document")

	docs, err := ds.Find(filedb.M{}).Exec()
	AssertNoError(t, err, "find should filter out the expired document")
	AssertEqual(t, 0, len(docs), "expired document should not be returned")
}

// Upsert: no match plus options.Upsert constructs a new document from the
// query literals and the update's modifiers (spec.md §4.L).
func TestUpsertInsertsWhenNoMatch(t *testing.T) {
	ds := newMemStore(t)
	info, err := ds.Update(filedb.M{"sku": "abc"}, filedb.M{"$set": filedb.M{"qty": 5.0}}, filedb.UpdateOptions{Upsert: true})
	AssertNoError(t, err, "upsert with no existing match")
	if info.UpsertedId == nil {
		t.Fatal("expected an UpsertedId to be reported")
	}

	doc, err := ds.FindOne(filedb.M{"sku": "abc"})
	AssertNoError(t, err, "findOne after upsert")
	AssertEqual(t, "abc", doc["sku"], "upserted document should carry the query's literal field")
	AssertEqual(t, 5.0, doc["qty"], "upserted document should carry the modifier's field")
}

func TestRegistrySharesDirectory(t *testing.T) {
	dir := t.TempDir()
	reg := filedb.NewRegistry(dir, filedb.Config{})
	defer reg.Close()

	users, err := reg.C("users")
	AssertNoError(t, err, "opening the users collection")
	_, err = users.Insert(filedb.M{"name": "ada"})
	AssertNoError(t, err, "inserting into users")

	again, err := reg.C("users")
	AssertNoError(t, err, "reopening the users collection")
	if again != users {
		t.Error("expected the same *Datastore instance for the same name")
	}
}

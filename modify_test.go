package filedb

import "testing"

func TestApplyUpdateModifierPreservesId(t *testing.T) {
	u := newUpdateEngine(nil)
	original := M{"_id": "X", "a": 1.0}
	result, err := u.applyUpdate(original, M{"$inc": M{"a": 2.0}})
	assertNoErr(t, err)
	if result["_id"] != "X" {
		t.Errorf("expected _id to survive, got %v", result["_id"])
	}
	if result["a"] != 3.0 {
		t.Errorf("expected a=3, got %v", result["a"])
	}
}

func TestApplyUpdateReplacementChangingIdFails(t *testing.T) {
	u := newUpdateEngine(nil)
	original := M{"_id": "X", "a": 1.0}
	_, err := u.applyUpdate(original, M{"_id": "Y", "a": 0.0})
	if !IsKind(err, ImmutableId) {
		t.Errorf("expected ImmutableId, got %v", err)
	}
}

func TestApplyUpdateMixedFails(t *testing.T) {
	u := newUpdateEngine(nil)
	_, err := u.applyUpdate(M{"_id": "X"}, M{"$set": M{"a": 1}, "plain": 2})
	if !IsKind(err, MixedUpdate) {
		t.Errorf("expected MixedUpdate, got %v", err)
	}
}

func TestApplyUpdateUnknownModifierFails(t *testing.T) {
	u := newUpdateEngine(nil)
	_, err := u.applyUpdate(M{"_id": "X"}, M{"$bogus": M{"a": 1}})
	if !IsKind(err, UnknownModifier) {
		t.Errorf("expected UnknownModifier, got %v", err)
	}
}

func TestModPushEachSlice(t *testing.T) {
	u := newUpdateEngine(nil)
	original := M{"_id": "X", "tags": []interface{}{"a"}}
	result, err := u.applyUpdate(original, M{"$push": M{"tags": M{"$each": []interface{}{"b", "c"}, "$slice": -2}}})
	assertNoErr(t, err)
	arr := result["tags"].([]interface{})
	if len(arr) != 2 || arr[0] != "b" || arr[1] != "c" {
		t.Errorf("expected [b c] after slice -2, got %#v", arr)
	}
}

func TestModAddToSetDedup(t *testing.T) {
	u := newUpdateEngine(nil)
	original := M{"_id": "X", "tags": []interface{}{"a", "b"}}
	result, err := u.applyUpdate(original, M{"$addToSet": M{"tags": M{"$each": []interface{}{"b", "c"}}}})
	assertNoErr(t, err)
	arr := result["tags"].([]interface{})
	if len(arr) != 3 {
		t.Errorf("expected 3 distinct tags, got %#v", arr)
	}
}

func TestModPopHeadAndTail(t *testing.T) {
	u := newUpdateEngine(nil)
	original := M{"_id": "X", "arr": []interface{}{1.0, 2.0, 3.0}}
	result, err := u.applyUpdate(original, M{"$pop": M{"arr": -1.0}})
	assertNoErr(t, err)
	arr := result["arr"].([]interface{})
	if len(arr) != 2 || arr[0] != 2.0 {
		t.Errorf("expected [2 3] after popping head, got %#v", arr)
	}
	result, err = u.applyUpdate(original, M{"$pop": M{"arr": 1.0}})
	assertNoErr(t, err)
	arr = result["arr"].([]interface{})
	if len(arr) != 2 || arr[1] != 2.0 {
		t.Errorf("expected [1 2] after popping tail, got %#v", arr)
	}
}

func TestModPullByEquality(t *testing.T) {
	u := newUpdateEngine(nil)
	original := M{"_id": "X", "arr": []interface{}{1.0, 2.0, 3.0}}
	result, err := u.applyUpdate(original, M{"$pull": M{"arr": 2.0}})
	assertNoErr(t, err)
	arr := result["arr"].([]interface{})
	if len(arr) != 2 {
		t.Errorf("expected 2 remaining elements, got %#v", arr)
	}
}

func TestModIncCreatesFieldWhenMissing(t *testing.T) {
	u := newUpdateEngine(nil)
	result, err := u.applyUpdate(M{"_id": "X"}, M{"$inc": M{"counter": 5.0}})
	assertNoErr(t, err)
	if result["counter"] != 5.0 {
		t.Errorf("expected counter=5, got %v", result["counter"])
	}
}

func TestModMinMax(t *testing.T) {
	u := newUpdateEngine(nil)
	result, err := u.applyUpdate(M{"_id": "X", "a": 5.0}, M{"$min": M{"a": 3.0}})
	assertNoErr(t, err)
	if result["a"] != 3.0 {
		t.Errorf("expected $min to lower a to 3, got %v", result["a"])
	}
	result, err = u.applyUpdate(M{"_id": "X", "a": 5.0}, M{"$max": M{"a": 3.0}})
	assertNoErr(t, err)
	if result["a"] != 5.0 {
		t.Errorf("expected $max to keep a at 5, got %v", result["a"])
	}
}

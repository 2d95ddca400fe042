package filedb

import "testing"

func TestApplyProjectionPick(t *testing.T) {
	doc := M{"_id": "X", "age": 30.0, "name": "ada"}
	out, err := applyProjection(doc, M{"age": 1})
	assertNoErr(t, err)
	if _, hasName := out["name"]; hasName {
		t.Error("name should be omitted in pick mode")
	}
	if out["age"] != 30.0 {
		t.Errorf("expected age=30, got %v", out["age"])
	}
	if _, hasId := out["_id"]; !hasId {
		t.Error("_id should survive pick mode unless explicitly excluded")
	}
}

func TestApplyProjectionOmit(t *testing.T) {
	doc := M{"_id": "X", "age": 30.0, "name": "ada"}
	out, err := applyProjection(doc, M{"name": 0})
	assertNoErr(t, err)
	if _, hasName := out["name"]; hasName {
		t.Error("name should be omitted")
	}
	if out["age"] != 30.0 {
		t.Error("age should survive omit mode")
	}
}

func TestApplyProjectionIdOnlyExclusion(t *testing.T) {
	doc := M{"_id": "X", "age": 30.0, "name": "ada"}
	out, err := applyProjection(doc, M{"_id": 0})
	assertNoErr(t, err)
	if _, hasId := out["_id"]; hasId {
		t.Error("_id should be excluded")
	}
	if out["age"] != 30.0 || out["name"] != "ada" {
		t.Errorf("all other fields should survive a bare {_id: 0} projection, got %#v", out)
	}
}

func TestApplyProjectionMixedFails(t *testing.T) {
	doc := M{"_id": "X", "age": 30.0, "name": "ada"}
	_, err := applyProjection(doc, M{"age": 1, "name": 0})
	if !IsKind(err, MixedProjection) {
		t.Errorf("expected MixedProjection, got %v", err)
	}
}

func TestApplyProjectionEmptyIsIdentity(t *testing.T) {
	doc := M{"_id": "X", "age": 30.0}
	out, err := applyProjection(doc, M{})
	assertNoErr(t, err)
	if out["age"] != 30.0 {
		t.Error("empty projection should return the document unchanged")
	}
}

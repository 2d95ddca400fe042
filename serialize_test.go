package filedb

import (
	"testing"
	"time"
)

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	doc := M{"_id": "X", "age": 30.0, "born": time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)}
	line, err := serializeDoc(doc)
	assertNoErr(t, err)

	rec, err := deserializeLine(line)
	assertNoErr(t, err)
	if rec.kind != recordDoc {
		t.Fatalf("expected recordDoc, got %v", rec.kind)
	}
	born, ok := rec.doc["born"].(time.Time)
	if !ok || !born.Equal(doc["born"].(time.Time)) {
		t.Errorf("expected the date to survive the round trip, got %#v", rec.doc["born"])
	}
	if rec.doc["age"] != 30.0 {
		t.Errorf("expected age=30, got %v", rec.doc["age"])
	}
}

func TestDeserializeTombstone(t *testing.T) {
	line, err := serializeTombstone("X")
	assertNoErr(t, err)
	rec, err := deserializeLine(line)
	assertNoErr(t, err)
	if rec.kind != recordDeleted || rec.deletedId != "X" {
		t.Errorf("expected a deleted record for X, got %#v", rec)
	}
}

func TestDeserializeIndexDDL(t *testing.T) {
	line, err := serializeIndexCreated(indexSpec{FieldName: "email", Unique: true})
	assertNoErr(t, err)
	rec, err := deserializeLine(line)
	assertNoErr(t, err)
	if rec.kind != recordIndexCreated || rec.index.FieldName != "email" || !rec.index.Unique {
		t.Errorf("expected an indexCreated record for email/unique, got %#v", rec)
	}

	line, err = serializeIndexRemoved("email")
	assertNoErr(t, err)
	rec, err = deserializeLine(line)
	assertNoErr(t, err)
	if rec.kind != recordIndexRemoved || rec.removed != "email" {
		t.Errorf("expected an indexRemoved record for email, got %#v", rec)
	}
}

func TestDeserializeMalformedLineErrors(t *testing.T) {
	if _, err := deserializeLine("not json"); err == nil {
		t.Error("expected an error decoding a non-JSON line")
	}
}

func TestSplitLinesIgnoresTrailingBlank(t *testing.T) {
	lines := splitLines("a\nb\n")
	if len(lines) != 2 {
		t.Errorf("expected 2 lines, got %d: %#v", len(lines), lines)
	}
	if splitLines("") != nil {
		t.Error("expected nil for empty input")
	}
}

func TestValidateHooksRoundTrip(t *testing.T) {
	h := &HookPair{
		AfterSerialization:    func(s string) string { return "x" + s },
		BeforeDeserialization: func(s string) string { return s[1:] },
	}
	if err := validateHooks(h); err != nil {
		t.Errorf("expected a valid inverse hook pair, got %v", err)
	}

	bad := &HookPair{
		AfterSerialization:    func(s string) string { return s },
		BeforeDeserialization: func(s string) string { return "broken" },
	}
	if err := validateHooks(bad); !IsKind(err, BadHooks) {
		t.Errorf("expected BadHooks, got %v", err)
	}
}

func TestValidateHooksRequiresBoth(t *testing.T) {
	h := &HookPair{AfterSerialization: func(s string) string { return s }}
	if err := validateHooks(h); !IsKind(err, BadHooks) {
		t.Errorf("expected BadHooks when only one hook is set, got %v", err)
	}
}

package filedb

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// recordKind distinguishes the three on-disk record shapes of spec.md §4.J.
// This is the tagged-variant representation design notes §9 recommends in
// place of the original's in-band "$$"-prefixed sentinel documents.
type recordKind int

const (
	recordDoc recordKind = iota
	recordDeleted
	recordIndexCreated
	recordIndexRemoved
)

type indexSpec struct {
	FieldName       string
	Unique          bool
	Sparse          bool
	ExpireAfterSecs int64 // seconds; meaningful only when HasExpire is set
	HasExpire       bool
}

// record is the in-memory decoding of one log line.
type record struct {
	kind      recordKind
	doc       M         // recordDoc
	deletedId interface{} // recordDeleted
	index     indexSpec // recordIndexCreated
	removed   string    // recordIndexRemoved
}

// HookPair is an optional, invertible transform applied to each serialized
// line before it is written and after it is read (spec.md §4.J / §6).
type HookPair struct {
	BeforeDeserialization func(line string) string
	AfterSerialization    func(line string) string
}

// validateHooks round-trips random strings of length 1..29, ten times each,
// and fails with BadHooks if decode(encode(s)) != s for any of them.
func validateHooks(h *HookPair) error {
	if h == nil {
		return nil
	}
	if (h.BeforeDeserialization == nil) != (h.AfterSerialization == nil) {
		return newErr(BadHooks, "beforeDeserialization and afterSerialization must both be supplied, or neither")
	}
	if h.BeforeDeserialization == nil {
		return nil
	}
	for length := 1; length < 30; length++ {
		for i := 0; i < 10; i++ {
			s := randomString(length)
			encoded := h.AfterSerialization(s)
			decoded := h.BeforeDeserialization(encoded)
			if decoded != s {
				return newErr(BadHooks, fmt.Sprintf("hook pair is not inverse for length %d", length))
			}
		}
	}
	return nil
}

func randomString(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	buf := make([]byte, n)
	rand.Read(buf)
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out)
}

// serializeDoc renders a live document as one log line, tagging dates as
// {"$$date": millis}. Keys are validated first (sentinel exceptions apply).
func serializeDoc(doc M) (string, error) {
	if err := validateDoc(doc); err != nil {
		return "", err
	}
	return marshalLine(toWireValue(doc))
}

func serializeTombstone(id interface{}) (string, error) {
	return marshalLine(M{sentinelDeleted: true, "_id": toWireValue(id)})
}

func serializeIndexCreated(spec indexSpec) (string, error) {
	sub := M{"fieldName": spec.FieldName}
	if spec.Unique {
		sub["unique"] = true
	}
	if spec.Sparse {
		sub["sparse"] = true
	}
	if spec.HasExpire {
		sub["expireAfterSeconds"] = spec.ExpireAfterSecs
	}
	return marshalLine(M{sentinelIndexCreated: sub})
}

func serializeIndexRemoved(fieldName string) (string, error) {
	return marshalLine(M{sentinelIndexRemoved: fieldName})
}

func marshalLine(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", newErr(IoError, err.Error())
	}
	return string(b), nil
}

// deserializeLine parses one non-blank log line into a record. Malformed
// JSON surfaces as an error; the caller (persistence load) counts these as
// corrupt lines rather than failing outright.
func deserializeLine(line string) (record, error) {
	var raw interface{}
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return record{}, err
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return record{}, fmt.Errorf("log line is not a JSON object")
	}
	doc := fromWireValue(M(m)).(M)

	if v, ok := doc[sentinelDeleted]; ok {
		if b, _ := v.(bool); b {
			return record{kind: recordDeleted, deletedId: doc["_id"]}, nil
		}
	}
	if v, ok := doc[sentinelIndexCreated]; ok {
		sub, _ := v.(M)
		spec := indexSpec{}
		if sub != nil {
			if fn, ok := sub["fieldName"].(string); ok {
				spec.FieldName = fn
			}
			if u, ok := sub["unique"].(bool); ok {
				spec.Unique = u
			}
			if s, ok := sub["sparse"].(bool); ok {
				spec.Sparse = s
			}
			if e, ok := sub["expireAfterSeconds"]; ok {
				if f, ok := asFloat64(e); ok {
					spec.HasExpire = true
					spec.ExpireAfterSecs = int64(f)
				}
			}
		}
		return record{kind: recordIndexCreated, index: spec}, nil
	}
	if v, ok := doc[sentinelIndexRemoved]; ok {
		fn, _ := v.(string)
		return record{kind: recordIndexRemoved, removed: fn}, nil
	}
	if _, ok := doc["_id"]; !ok {
		return record{}, fmt.Errorf("log line is missing _id")
	}
	return record{kind: recordDoc, doc: doc}, nil
}

// toWireValue recursively converts in-memory values (notably time.Time)
// into the JSON-friendly shape written to the log.
func toWireValue(v interface{}) interface{} {
	switch vv := v.(type) {
	case time.Time:
		return M{sentinelDate: vv.UnixMilli()}
	case M:
		out := make(map[string]interface{}, len(vv))
		for k, val := range vv {
			out[k] = toWireValue(val)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(vv))
		for k, val := range vv {
			out[k] = toWireValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, val := range vv {
			out[i] = toWireValue(val)
		}
		return out
	default:
		return v
	}
}

// fromWireValue is the inverse of toWireValue: any mapping of the shape
// {"$$date": n} is promoted back to a time.Time.
func fromWireValue(v interface{}) interface{} {
	switch vv := v.(type) {
	case M:
		if len(vv) == 1 {
			if ms, ok := vv[sentinelDate]; ok {
				if f, ok := asFloat64(ms); ok {
					return time.UnixMilli(int64(f)).UTC()
				}
			}
		}
		out := make(M, len(vv))
		for k, val := range vv {
			out[k] = fromWireValue(val)
		}
		return out
	case map[string]interface{}:
		return fromWireValue(M(vv))
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, val := range vv {
			out[i] = fromWireValue(val)
		}
		return out
	default:
		return v
	}
}

// splitLines splits a raw log file's contents on "\n". A trailing blank
// line (the usual result of the last record's terminator) does not count
// toward the corruption ratio.
func splitLines(data string) []string {
	if data == "" {
		return nil
	}
	lines := strings.Split(data, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

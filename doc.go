// Package filedb implements an embedded, single-process document store: a
// collection of schema-less documents persisted to one append-only log file
// with periodic compaction, queried and updated with a subset of the
// MongoDB query/update language.
package filedb

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// M is a document: a mapping from field name to value. It is exactly
// go.mongodb.org/mongo-driver's bson.M, reused rather than re-declared so
// documents round-trip through the rest of the pack's bson tooling without
// conversion.
type M = bson.M

// D is an order-preserving document, used where key order matters (index
// creation DDL, sort specs).
type D = bson.D

const reservedTildeSuffix = "~"

// reserved sentinel keys used only inside the on-disk log (spec.md §3).
const (
	sentinelDate          = "$$date"
	sentinelDeleted       = "$$deleted"
	sentinelIndexCreated  = "$$indexCreated"
	sentinelIndexRemoved  = "$$indexRemoved"
)

// validateKey checks a single field name against the key rules in spec.md
// §3: no leading "$", no ".", except the reserved sentinels used internally
// by the log.
func validateKey(key string) error {
	switch key {
	case sentinelDate, sentinelDeleted, sentinelIndexCreated, sentinelIndexRemoved:
		return nil
	}
	if strings.HasPrefix(key, "$") {
		return newFieldErr(InvalidKey, key, "field names cannot start with '$'")
	}
	if strings.Contains(key, ".") {
		return newFieldErr(InvalidKey, key, "field names cannot contain '.'")
	}
	return nil
}

// validateDoc walks doc recursively and validates every mapping key via
// validateKey. Sequences are walked but not validated (their elements are
// not keyed).
func validateDoc(doc M) error {
	for k, v := range doc {
		if err := validateKey(k); err != nil {
			return err
		}
		if err := validateValueKeys(v); err != nil {
			return err
		}
	}
	return nil
}

func validateValueKeys(v interface{}) error {
	switch vv := v.(type) {
	case M:
		return validateDoc(vv)
	case map[string]interface{}:
		return validateDoc(M(vv))
	case []interface{}:
		for _, e := range vv {
			if err := validateValueKeys(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// deepCopy produces an independent copy of v, so that documents handed back
// across the API boundary never alias the canonical copies owned by the
// index set.
func deepCopy(v interface{}) interface{} {
	switch vv := v.(type) {
	case M:
		out := make(M, len(vv))
		for k, val := range vv {
			out[k] = deepCopy(val)
		}
		return out
	case map[string]interface{}:
		out := make(M, len(vv))
		for k, val := range vv {
			out[k] = deepCopy(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, val := range vv {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}

func deepCopyDoc(doc M) M {
	return deepCopy(doc).(M)
}

package filedb

import "bytes"

// IndexOptions mirrors the options accepted by EnsureIndex: the on-disk
// index DDL record plus its two boolean variants (spec.md §4.G, §6).
//
// Adapted from the teacher's mgo.Index: the replica-set/geo/text-index
// fields (Background, Weights, Collation, Min/Max, ...) described a real
// MongoDB server's index catalog and have no meaning for an in-process
// ordered-tree index, so only the fields this store actually uses survive.
type IndexOptions struct {
	FieldName string

	// Unique rejects a second document at the same key.
	Unique bool

	// Sparse omits documents whose indexed field resolves to undefined.
	Sparse bool

	// ExpireAfterSeconds, when HasExpire is true, registers this as a TTL
	// index: documents whose FieldName holds a date older than
	// ExpireAfterSeconds are swept during the next candidate scan.
	ExpireAfterSeconds int64
	HasExpire          bool
}

// ChangeInfo captures the outcome of an Update or Remove call — the same
// shape the teacher's mgo-compatible wrapper returns from its own
// Update/Remove calls.
type ChangeInfo struct {
	Updated    int         // number of existing documents modified
	Removed    int         // number of documents removed
	Matched    int         // number of documents matched (may differ from Updated)
	UpsertedId interface{} // _id of an upserted document, when the query matched nothing

	// UpdatedDocs holds the post-update documents when UpdateOptions.ReturnUpdatedDocs
	// is set: one per modified document (or the single upserted document), in the
	// same order they were applied. Left nil otherwise.
	UpdatedDocs []M
}

// UpdateOptions controls Update's behavior (spec.md §6).
type UpdateOptions struct {
	Multi             bool
	Upsert            bool
	ReturnUpdatedDocs bool
}

// RemoveOptions controls Remove's behavior (spec.md §6).
type RemoveOptions struct {
	Multi bool
}

// BulkErrorCase stores the error and the position within a multi-document
// Insert that generated it. Kept from the teacher's bulk-operation error
// shape (legacy_types.go) since Insert(docs...) has the same "one of many
// documents failed" reporting need a bulk write does.
type BulkErrorCase struct {
	Index int   // position of the failed document (-1 if unknown)
	Err   error // the underlying error
}

// BulkError aggregates one or more BulkErrorCase instances, returned by
// Insert when more than one of several documents fails.
type BulkError struct {
	ecases []BulkErrorCase
}

func (e *BulkError) Error() string {
	if len(e.ecases) == 0 {
		return "invalid BulkError instance: no errors"
	}
	if len(e.ecases) == 1 {
		return e.ecases[0].Err.Error()
	}
	var buf bytes.Buffer
	buf.WriteString("multiple errors inserting documents:\n")
	seen := make(map[string]bool, len(e.ecases))
	for _, c := range e.ecases {
		msg := c.Err.Error()
		if !seen[msg] {
			seen[msg] = true
			buf.WriteString("  - ")
			buf.WriteString(msg)
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// Cases exposes the individual error cases contained in the BulkError.
func (e *BulkError) Cases() []BulkErrorCase {
	return e.ecases
}

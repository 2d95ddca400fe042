package filedb

import "fmt"

// Kind identifies the category of a DBError. Callers that need to branch on
// error type should compare against these constants with errors.As, not by
// parsing the message.
type Kind int

const (
	_ Kind = iota
	UniqueViolation
	ImmutableId
	MixedQuery
	MixedUpdate
	MixedProjection
	UnknownOperator
	UnknownModifier
	ModifierTypeError
	BadHooks
	CorruptDatafile
	ReservedFilename
	InvalidKey
	MissingFieldName
	IoError
)

var kindNames = map[Kind]string{
	UniqueViolation:   "UniqueViolation",
	ImmutableId:       "ImmutableId",
	MixedQuery:        "MixedQuery",
	MixedUpdate:       "MixedUpdate",
	MixedProjection:   "MixedProjection",
	UnknownOperator:   "UnknownOperator",
	UnknownModifier:   "UnknownModifier",
	ModifierTypeError: "ModifierTypeError",
	BadHooks:          "BadHooks",
	CorruptDatafile:   "CorruptDatafile",
	ReservedFilename:  "ReservedFilename",
	InvalidKey:        "InvalidKey",
	MissingFieldName:  "MissingFieldName",
	IoError:           "IoError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UnknownKind"
}

// DBError is the concrete error type returned by this package's exported
// operations, except that a multi-document Insert with more than one failing
// document returns a *BulkError and an invalid $regex pattern surfaces the
// regexp package's own error. Field is set when the error pertains to a specific document
// field or index, and is empty otherwise.
type DBError struct {
	Kind    Kind
	Field   string
	Key     interface{}
	Message string
	Cause   error
}

func (e *DBError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Field)
	}
	return e.Kind.String()
}

func (e *DBError) Unwrap() error { return e.Cause }

func newErr(kind Kind, msg string) *DBError {
	return &DBError{Kind: kind, Message: msg}
}

func newFieldErr(kind Kind, field, msg string) *DBError {
	return &DBError{Kind: kind, Field: field, Message: msg}
}

func uniqueViolation(field string, key interface{}) *DBError {
	return &DBError{
		Kind:    UniqueViolation,
		Field:   field,
		Key:     key,
		Message: fmt.Sprintf("E11000 duplicate key error: field %q already has a document at key %v", field, key),
	}
}

func ioErr(cause error) *DBError {
	return &DBError{Kind: IoError, Message: cause.Error(), Cause: cause}
}

// IsKind reports whether err is a *DBError of the given kind.
func IsKind(err error, kind Kind) bool {
	de, ok := err.(*DBError)
	if !ok {
		return false
	}
	return de.Kind == kind
}

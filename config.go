package filedb

import "go.uber.org/zap"

const (
	defaultCorruptAlertThreshold = 0.1
	minAutocompactionIntervalMs  = 5000
)

// Config carries every construction option of spec.md §6, in the same
// options-struct style the teacher uses for Safe and Index
// (legacy_types.go) rather than functional options.
type Config struct {
	// Filename is the log file path. Empty means memory-only.
	Filename string

	// InMemoryOnly forces no persistence even if Filename is set.
	InMemoryOnly bool

	// TimestampData auto-populates createdAt/updatedAt on insert.
	TimestampData bool

	// Autoload calls LoadDatabase during New.
	Autoload bool

	// OnLoad, if set, receives the result of an autoload instead of New
	// returning the load error.
	OnLoad func(error)

	// Hooks is an optional invertible pair of line transforms.
	Hooks *HookPair

	// CorruptAlertThreshold is the fraction of corrupt lines, in [0,1],
	// above which load fails with CorruptDatafile. Zero means the
	// default of 0.1.
	CorruptAlertThreshold float64

	// CompareStrings overrides the default natural string ordering.
	CompareStrings StringComparator

	// AutocompactionIntervalMs, when non-zero, starts an autocompaction
	// timer at construction. Values below 5000 are floored to 5000.
	AutocompactionIntervalMs int64

	// Logger receives structured log events. A no-op logger is used when
	// nil.
	Logger *zap.Logger
}

// Package netrterr defines the error taxonomy of spec.md §7. Every
// build-time or execute-time failure surfaces as a *BuildError wrapping one
// of the sentinel Kinds below, carrying the offending primitive id and,
// where applicable, the expected/observed shapes or layouts and the
// driver's complete build log — callers branch on Kind with errors.Is
// against the sentinels, exactly as the teacher's packages branch on their
// own sentinel error sets.
package netrterr

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per error kind of spec.md §7. BuildError.Unwrap
// returns the sentinel matching its Kind so errors.Is keeps working through
// the wrapper.
var (
	ErrInvalidArgument  = errors.New("netrt: invalid argument")
	ErrUnsupportedLayout = errors.New("netrt: unsupported layout")
	ErrUnsupportedDevice = errors.New("netrt: no kernel candidate supports this device/params combination")
	ErrCompilationFailed = errors.New("netrt: kernel compilation failed")
	ErrAllocationFailed  = errors.New("netrt: device memory allocation failed")
	ErrIOFailure         = errors.New("netrt: cache or tuning file I/O failed")
	ErrRuntimeAborted    = errors.New("netrt: device reported an error from an enqueued kernel")
)

// Kind identifies which of the sentinel errors a BuildError wraps.
type Kind int

const (
	InvalidArgument Kind = iota
	UnsupportedLayout
	UnsupportedDevice
	CompilationFailed
	AllocationFailed
	IOFailure
	RuntimeAborted
)

func (k Kind) sentinel() error {
	switch k {
	case InvalidArgument:
		return ErrInvalidArgument
	case UnsupportedLayout:
		return ErrUnsupportedLayout
	case UnsupportedDevice:
		return ErrUnsupportedDevice
	case CompilationFailed:
		return ErrCompilationFailed
	case AllocationFailed:
		return ErrAllocationFailed
	case IOFailure:
		return ErrIOFailure
	case RuntimeAborted:
		return ErrRuntimeAborted
	default:
		return ErrInvalidArgument
	}
}

// BuildError is the structured error type every failure path in netrt
// surfaces, per spec.md §7: "every error carries the offending primitive
// id, the expected vs. observed shapes/layouts, and, for compilation
// failures, the driver's complete build log."
type BuildError struct {
	Kind        Kind
	PrimitiveID string
	Expected    string
	Observed    string
	BuildLog    string
}

// Error renders a one-line message; use Expected/Observed/BuildLog fields
// directly for diagnostics rather than parsing this string.
func (e *BuildError) Error() string {
	msg := fmt.Sprintf("%v: primitive %q", e.Kind.sentinel(), e.PrimitiveID)
	if e.Expected != "" || e.Observed != "" {
		msg += fmt.Sprintf(" (expected %s, observed %s)", e.Expected, e.Observed)
	}
	if e.BuildLog != "" {
		msg += ": " + e.BuildLog
	}
	return msg
}

// Unwrap exposes the sentinel so callers can branch with errors.Is(err,
// netrterr.ErrCompilationFailed) without caring about the structured fields.
func (e *BuildError) Unwrap() error {
	return e.Kind.sentinel()
}

// New constructs a BuildError for the given kind and primitive id.
func New(kind Kind, primitiveID string) *BuildError {
	return &BuildError{Kind: kind, PrimitiveID: primitiveID}
}

// WithShapes attaches expected/observed strings to a BuildError and
// returns it, for the common "shapes incompatible" construction site.
func (e *BuildError) WithShapes(expected, observed string) *BuildError {
	e.Expected = expected
	e.Observed = observed
	return e
}

// WithBuildLog attaches the driver's verbatim build log.
func (e *BuildError) WithBuildLog(log string) *BuildError {
	e.BuildLog = log
	return e
}

// Package device owns the device handle, context and command queues: it
// compiles source text into device binaries, enqueues kernels with
// positional argument sets, and produces/waits on completion events
// (spec.md §4.1). The actual driver call — the C-ABI façade — is an
// external collaborator behind the Driver interface; only its Go-side
// contract is specified here (spec.md §1).
package device

import "context"

// Binary is an opaque, device-loadable compiled kernel binary.
type Binary []byte

// Event is a completion token produced by each kernel enqueue. It
// supports waiting, and a Driver may additionally support host-triggered
// "user events" via Driver.UserEvent.
type Event interface {
	// Wait blocks until the event's command has completed or ctx is done.
	Wait(ctx context.Context) error
	// Done reports completion without blocking.
	Done() bool
	// Err returns the terminal error if the command aborted
	// (netrterr.RuntimeAborted), or nil.
	Err() error
}

// ArgKind is the closed set of positional argument roles a stage kernel's
// argument descriptor may bind, per spec.md §4.3.
type ArgKind int

const (
	ArgInput ArgKind = iota
	ArgOutput
	ArgWeights
	ArgBias
	ArgLookupTable
	ArgScaleTable
	ArgSlope
	ArgSplit
	ArgScalar
)

// ScalarType is the closed set of inline scalar constant types an argument
// descriptor may carry, per spec.md §4.3.
type ScalarType int

const (
	ScalarU8 ScalarType = iota
	ScalarU16
	ScalarU32
	ScalarU64
	ScalarI8
	ScalarI16
	ScalarI32
	ScalarI64
	ScalarF32
	ScalarF64
)

// Arg is one positional argument binding in a stage kernel's call: which
// runtime resource (input[k], output, weights[k], ...) or inline scalar
// value fills this kernel parameter slot.
type Arg struct {
	Kind       ArgKind
	Index      int // which INPUT[k]/WEIGHTS[k]/BIAS[k] (ignored otherwise)
	ScalarType ScalarType
	ScalarVal  uint64 // bit pattern of the scalar; ArgSplit stores a uint32 here too
}

// WorkSize is the global + local work-group triple a stage kernel is
// dispatched with.
type WorkSize struct {
	Global [3]int
	Local  [3]int
}

// BoundArg is an Arg resolved to an actual device resource at enqueue
// time, produced by runtime.Instance when it dispatches its implementation.
type BoundArg struct {
	Arg   Arg
	Value Resource
}

// Resource is anything an enqueue can bind as an argument value: a
// *Memory, or an inline scalar (Value ignored, ScalarVal used directly).
type Resource interface {
	isResource()
}

// Memory is an opaque, reference-counted handle over a device allocation.
// Two Memory handles may alias the same allocation when the builder has
// proven it safe (program Pass 14 buffer fusing); aliasing handles share
// the same backing field.
type Memory struct {
	driverHandle interface{}
	size         int
	refs         *int32
}

func (*Memory) isResource() {}

// Size returns the buffer size in bytes this handle was allocated with.
func (m *Memory) Size() int { return m.size }

// Handle returns the opaque driver-side handle this Memory wraps, the
// same value the Driver's own Allocate returned — a Driver's Enqueue
// implementation needs it back to resolve a BoundArg into an actual
// device buffer.
func (m *Memory) Handle() interface{} { return m.driverHandle }

package device

import "context"

// Driver is the external collaborator that actually talks to the
// accelerator — the C-ABI façade spec.md §1 places out of scope. netrt
// specifies only this Go-side contract; a real build links a concrete
// implementation (cgo OpenCL bindings or a simulator) behind it.
type Driver interface {
	// BuildID returns a digest identifying this driver+runtime build, used
	// to validate persisted kernel cache entries (spec.md §4.2, §9).
	BuildID() (uint64, error)

	// SupportsPriorityQueue reports whether the priority-flagged queue
	// extension (spec.md §4.1 queue configuration option iii) is present.
	SupportsPriorityQueue() bool

	// NewQueue creates a command queue in the requested mode. profiling
	// enables per-command timing (required whenever tuning mode is
	// tune-and-cache).
	NewQueue(mode QueueMode, profiling bool) (QueueHandle, error)

	// Compile synchronously builds device code. On failure it returns the
	// driver's complete build log verbatim as buildLog, alongside a non-nil err.
	Compile(ctx context.Context, source, options string) (Binary, buildLog string, err error)

	// Allocate reserves a device buffer of the given size in bytes.
	Allocate(size int) (driverMemHandle interface{}, err error)
	// Free releases a device buffer previously returned by Allocate.
	Free(driverMemHandle interface{})

	// Enqueue submits one compiled kernel invocation and returns its
	// completion event. wait lists the events this command must follow.
	Enqueue(q QueueHandle, bin Binary, entryPoint string, work WorkSize, args []BoundArg, wait []Event) (Event, error)

	// UserEvent constructs a host-signalable event.
	UserEvent() (Event, error)
	// SetUserEvent signals a user event created by UserEvent, with a
	// terminal success (err == nil) or failure status.
	SetUserEvent(ev Event, err error) error

	// MapForRead/MapForWrite expose a host-visible view of a device
	// allocation, honoring the scoped mem_lock pattern of spec.md §9:
	// callers MUST call the returned release func exactly once, and MUST
	// NOT retain the returned slice past that call.
	MapForRead(mem interface{}, size int) (data []byte, release func(), err error)
	MapForWrite(mem interface{}, size int) (data []byte, release func(), err error)
}

// QueueHandle is an opaque driver-side command queue identifier.
type QueueHandle interface{}

// QueueMode selects how the Driver's command queue orders submitted work,
// per spec.md §4.1.
type QueueMode int

const (
	// InOrder executes submitted commands strictly in submission order.
	InOrder QueueMode = iota
	// OutOfOrder lets the driver reorder/overlap commands subject only to
	// each command's explicit wait list.
	OutOfOrder
	// Priority is OutOfOrder plus a driver-extension priority hint;
	// requesting it without the extension present fails the build.
	Priority
)

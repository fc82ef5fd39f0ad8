package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/gpudag/netrt/netlog"
	"github.com/gpudag/netrt/netrterr"
)

// TuningMode selects how the kernel selector resolves implementation
// choices, per spec.md §4.3/§6.
type TuningMode int

const (
	TuningDisabled TuningMode = iota
	TuningUseCache
	TuningTuneAndCache
)

// EngineOption configures a Context at construction, in the same
// functional-options style as core.GraphOption / builder.BuilderOption.
type EngineOption func(*engineConfig)

type engineConfig struct {
	mode       QueueMode
	profiling  bool
	tuningMode TuningMode
	logger     *logrus.Logger
}

// WithQueueMode selects in-order, out-of-order, or priority queue
// construction (spec.md §4.1).
func WithQueueMode(mode QueueMode) EngineOption {
	return func(c *engineConfig) { c.mode = mode }
}

// WithProfiling enables per-command timing on the constructed queue.
func WithProfiling(enabled bool) EngineOption {
	return func(c *engineConfig) { c.profiling = enabled }
}

// WithTuningMode records the tuning mode so NewContext can enforce
// "profiling must be enabled when tuning mode is tune-and-cache" (spec.md §4.1).
func WithTuningMode(mode TuningMode) EngineOption {
	return func(c *engineConfig) { c.tuningMode = mode }
}

// WithLogger injects a *logrus.Logger; omitted, a discard logger is used
// so library code never needs a nil check.
func WithLogger(l *logrus.Logger) EngineOption {
	return func(c *engineConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Context owns the device handle, a Driver, and one primary command
// queue. A process normally holds Context as a weak singleton (spec.md
// §5/§9): construction and teardown are cheap and re-entrant, and
// recreation after teardown is permitted.
type Context struct {
	mu     sync.Mutex // guards teardown bookkeeping; re-entrant by convention
	driver Driver
	queue  *Queue
	log    *logrus.Logger
	closed bool
}

// NewContext creates a Context against the given Driver, applying opts.
// Fails with UnsupportedDevice if Priority mode is requested but the
// driver's priority extension is absent, and with InvalidArgument if
// tuning mode is TuningTuneAndCache and profiling was not also requested.
func NewContext(drv Driver, opts ...EngineOption) (*Context, error) {
	cfg := engineConfig{mode: InOrder, logger: netlog.Discard()}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.mode == Priority && !drv.SupportsPriorityQueue() {
		return nil, netrterr.New(netrterr.UnsupportedDevice, "").
			WithShapes("priority queue extension", "absent")
	}
	if cfg.tuningMode == TuningTuneAndCache && !cfg.profiling {
		return nil, netrterr.New(netrterr.InvalidArgument, "").
			WithShapes("profiling enabled (tune-and-cache requires it)", "profiling disabled")
	}

	qh, err := drv.NewQueue(cfg.mode, cfg.profiling)
	if err != nil {
		return nil, fmt.Errorf("device: NewContext: %w", err)
	}

	ctx := &Context{
		driver: drv,
		log:    cfg.logger,
	}
	ctx.queue = &Queue{ctx: ctx, handle: qh}

	return ctx, nil
}

// Queue returns the Context's primary command queue.
func (c *Context) Queue() *Queue { return c.queue }

// BuildID returns the driver's build identifier, used by cache.Store to
// validate persisted entries.
func (c *Context) BuildID() (uint64, error) { return c.driver.BuildID() }

// Allocate reserves a device buffer of size bytes.
func (c *Context) Allocate(size int) (*Memory, error) {
	h, err := c.driver.Allocate(size)
	if err != nil {
		return nil, fmt.Errorf("device: Allocate(%d): %w", size, netrterr.New(netrterr.AllocationFailed, ""))
	}
	refs := int32(1)
	return &Memory{driverHandle: h, size: size, refs: &refs}, nil
}

// Release decrements a Memory handle's reference count, freeing the
// underlying allocation once it reaches zero. Two handles produced by
// program Pass 14 buffer aliasing share the same refs counter.
func (c *Context) Release(m *Memory) {
	if m == nil || m.refs == nil {
		return
	}
	*m.refs--
	if *m.refs <= 0 {
		c.driver.Free(m.driverHandle)
	}
}

// Close marks the Context closed; a second call is a no-op. It does not
// wait for outstanding events and does not release the driver queue.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return nil
}

// MapRead acquires a scoped host-visible read view of mem, honoring the
// mem_lock pattern of spec.md §9: the caller must invoke the returned
// ReadView's Close exactly once and must not retain Bytes() past that call.
func (c *Context) MapRead(mem *Memory) (*ReadView, error) {
	data, release, err := c.driver.MapForRead(mem.driverHandle, mem.size)
	if err != nil {
		return nil, fmt.Errorf("device: MapRead: %w", netrterr.New(netrterr.AllocationFailed, ""))
	}
	return &ReadView{data: data, release: release}, nil
}

// MapWrite acquires a scoped host-visible write view of mem.
func (c *Context) MapWrite(mem *Memory) (*WriteView, error) {
	data, release, err := c.driver.MapForWrite(mem.driverHandle, mem.size)
	if err != nil {
		return nil, fmt.Errorf("device: MapWrite: %w", netrterr.New(netrterr.AllocationFailed, ""))
	}
	return &WriteView{data: data, release: release}, nil
}

// ReadView is a scoped host-side read view over device memory. It must
// never be retained past Close, and never exposes a raw host pointer —
// only a slice valid until Close runs.
type ReadView struct {
	data    []byte
	release func()
	closed  bool
}

// Bytes returns the mapped bytes, valid until Close.
func (r *ReadView) Bytes() []byte { return r.data }

// Close releases the mapping. Safe to call more than once.
func (r *ReadView) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.release()
}

// WriteView is a scoped host-side write view over device memory.
type WriteView struct {
	data    []byte
	release func()
	closed  bool
}

// Bytes returns the mapped bytes for writing, valid until Close.
func (w *WriteView) Bytes() []byte { return w.data }

// Close releases the mapping, flushing any host writes. Safe to call
// more than once.
func (w *WriteView) Close() {
	if w.closed {
		return
	}
	w.closed = true
	w.release()
}

// compileContext is the background context used when callers do not
// thread one through Queue.Compile explicitly.
var compileContext = context.Background()

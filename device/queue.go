package device

import (
	"context"
	"fmt"

	"github.com/gpudag/netrt/netrterr"
)

// Queue wraps one driver command queue. Its three operations are exactly
// spec.md §4.1's contract: compile, enqueue, and the user-event/wait pair.
type Queue struct {
	ctx    *Context
	handle QueueHandle
}

// Compile synchronously builds device code via the driver. On failure it
// returns a *netrterr.BuildError carrying the driver's build log verbatim.
func (q *Queue) Compile(ctx context.Context, primitiveID, source, options string) (Binary, error) {
	if ctx == nil {
		ctx = compileContext
	}
	bin, log, err := q.ctx.driver.Compile(ctx, source, options)
	if err != nil {
		return nil, netrterr.New(netrterr.CompilationFailed, primitiveID).WithBuildLog(log)
	}
	return bin, nil
}

// Enqueue wires args by position and submits bin's entryPoint for
// execution, returning its completion event. wait lists the events this
// command must follow — even on an out-of-order queue, ordering between
// dependent commands is expressed only through this wait list, never a
// host barrier (spec.md §5).
func (q *Queue) Enqueue(bin Binary, entryPoint string, work WorkSize, args []BoundArg, wait []Event) (Event, error) {
	ev, err := q.ctx.driver.Enqueue(q.handle, bin, entryPoint, work, args, wait)
	if err != nil {
		return nil, fmt.Errorf("device: Enqueue(%s): %w", entryPoint, netrterr.New(netrterr.RuntimeAborted, ""))
	}
	return ev, nil
}

// UserEvent constructs a host-signalable event.
func (q *Queue) UserEvent() (Event, error) {
	return q.ctx.driver.UserEvent()
}

// SignalUserEvent sets a user event's terminal status.
func (q *Queue) SignalUserEvent(ev Event, err error) error {
	return q.ctx.driver.SetUserEvent(ev, err)
}

// Wait blocks until every event in events has completed, or ctx is done.
// This and Compile/MapRead/MapWrite are the only host-visible blocking
// points in the whole runtime (spec.md §5).
func Wait(ctx context.Context, events []Event) error {
	for _, ev := range events {
		if ev == nil {
			continue
		}
		if err := ev.Wait(ctx); err != nil {
			return err
		}
		if err := ev.Err(); err != nil {
			return err
		}
	}
	return nil
}

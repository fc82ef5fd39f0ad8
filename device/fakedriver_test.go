package device

import (
	"context"
	"errors"
	"sync"
)

// fakeDriver is a minimal in-memory Driver used only by this package's
// tests — a stand-in for the C-ABI façade the real binding would provide.
type fakeDriver struct {
	mu              sync.Mutex
	priorityCapable bool
	failCompile     bool
	nextMemID       int
	mem             map[int][]byte
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{mem: make(map[int][]byte)}
}

func (d *fakeDriver) BuildID() (uint64, error) { return 42, nil }

func (d *fakeDriver) SupportsPriorityQueue() bool { return d.priorityCapable }

func (d *fakeDriver) NewQueue(mode QueueMode, profiling bool) (QueueHandle, error) {
	return mode, nil
}

func (d *fakeDriver) Compile(ctx context.Context, source, options string) (Binary, string, error) {
	if d.failCompile {
		return nil, "kernel.cl:1: error: bad token", errors.New("build failed")
	}
	return Binary(source), "", nil
}

func (d *fakeDriver) Allocate(size int) (interface{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextMemID
	d.nextMemID++
	d.mem[id] = make([]byte, size)
	return id, nil
}

func (d *fakeDriver) Free(h interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.mem, h.(int))
}

func (d *fakeDriver) Enqueue(q QueueHandle, bin Binary, entryPoint string, work WorkSize, args []BoundArg, wait []Event) (Event, error) {
	return &fakeEvent{done: true}, nil
}

func (d *fakeDriver) UserEvent() (Event, error) {
	return &fakeEvent{}, nil
}

func (d *fakeDriver) SetUserEvent(ev Event, err error) error {
	fe := ev.(*fakeEvent)
	fe.done = true
	fe.err = err
	return nil
}

func (d *fakeDriver) MapForRead(mem interface{}, size int) ([]byte, func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mem[mem.(int)], func() {}, nil
}

func (d *fakeDriver) MapForWrite(mem interface{}, size int) ([]byte, func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mem[mem.(int)], func() {}, nil
}

type fakeEvent struct {
	done bool
	err  error
}

func (e *fakeEvent) Wait(ctx context.Context) error { return nil }
func (e *fakeEvent) Done() bool                     { return e.done }
func (e *fakeEvent) Err() error                      { return e.err }

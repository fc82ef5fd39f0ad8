// Package runtime allocates device memory for a compiled program and
// executes it: one runtime.Instance per surviving node, wired through the
// dependency edges the program package left behind, dispatched in
// processing order (spec.md §4.5).
package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/gpudag/netrt/device"
	"github.com/gpudag/netrt/layout"
	"github.com/gpudag/netrt/netlog"
	"github.com/gpudag/netrt/netrterr"
	"github.com/gpudag/netrt/program"
)

// Instance is one executable node: its compiled program.Node, the device
// memory backing its output (nil for a node that was folded away by
// program Pass 10/14 buffer fusing and instead aliases its producer's
// memory), and the bookkeeping Execute needs for skip-if-unchanged.
type Instance struct {
	Node   *program.Node
	Output *device.Memory // nil when Node.CanBeOptimized — aliases the producer's Instance.Output instead

	dirty     bool
	lastEvent device.Event
	ran       bool
}

// Network is a built, executable instantiation of a program.Program: one
// Instance per node, device memory allocated honoring memdep's
// non-aliasing constraints, ready for repeated Execute calls against
// fresh input data.
type Network struct {
	mu  sync.Mutex
	ctx *device.Context
	q   *device.Queue
	log *logrus.Logger

	prog      *program.Program
	instances map[string]*Instance
}

// Allocate builds a Network from a compiled program: walks prog.Order,
// allocating one device.Memory per node that was not folded away by
// buffer fusing, and wiring can_be_optimized nodes to alias their single
// producer's memory directly — mirrors core.methods_clone.go's
// ownership-arena pattern, generalized from graph-clone copying to
// device-buffer allocation, and bfs's traversal hooks for the
// allocate-in-processing-order walk.
func Allocate(ctx *device.Context, prog *program.Program, opts ...Option) (*Network, error) {
	cfg := config{logger: netlog.Discard()}
	for _, opt := range opts {
		opt(&cfg)
	}

	n := &Network{
		ctx:       ctx,
		q:         ctx.Queue(),
		log:       cfg.logger,
		prog:      prog,
		instances: make(map[string]*Instance, len(prog.Order)),
	}

	for _, id := range prog.Order {
		node := prog.Nodes[id]
		inst := &Instance{Node: node, dirty: true}

		if node.CanBeOptimized {
			// Folded into its producer's buffer; no allocation of its own.
			if len(node.Dependencies) == 1 {
				if prod, ok := n.instances[node.Dependencies[0]]; ok {
					inst.Output = prod.Output
				}
			}
			n.instances[id] = inst
			continue
		}

		size := node.Output.BufferSize() * elementSize(node.Output.DataType)
		if size <= 0 {
			size = elementSize(node.Output.DataType)
		}
		mem, err := ctx.Allocate(size)
		if err != nil {
			return nil, fmt.Errorf("runtime: allocate %s: %w", id, err)
		}
		inst.Output = mem
		n.instances[id] = inst
	}

	return n, nil
}

func elementSize(dt layout.DataType) int {
	switch dt {
	case layout.Half:
		return 2
	case layout.Int8:
		return 1
	default:
		return 4
	}
}

// Config functional options, WithLogger only for now.
type config struct {
	logger *logrus.Logger
}

// Option configures Allocate, in the same functional-options style as
// device.EngineOption.
type Option func(*config)

// WithLogger injects a *logrus.Logger for the network's own log lines.
func WithLogger(l *logrus.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// instance returns the named Instance, or an InvalidArgument BuildError
// if the Network has none by that id.
func (n *Network) instance(id string) (*Instance, error) {
	inst, ok := n.instances[id]
	if !ok {
		return nil, netrterr.New(netrterr.InvalidArgument, id).WithShapes("a node present in the built program", "no such node")
	}
	return inst, nil
}

// SetInputData writes host bytes into an input_layout node's device
// buffer and marks it, and everything reachable from it, dirty so the
// next Execute does not skip them.
func (n *Network) SetInputData(id string, data []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	inst, err := n.instance(id)
	if err != nil {
		return err
	}
	if inst.Output == nil {
		return netrterr.New(netrterr.InvalidArgument, id).WithShapes("a node owning device memory", "a buffer-fused node")
	}

	view, err := n.ctx.MapWrite(inst.Output)
	if err != nil {
		return err
	}
	copy(view.Bytes(), data)
	view.Close()

	n.markDirty(id)
	return nil
}

// markDirty flags id and every node transitively reachable through Users
// as needing re-execution.
func (n *Network) markDirty(id string) {
	visited := make(map[string]bool)
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		inst, ok := n.instances[cur]
		if !ok {
			continue
		}
		inst.dirty = true
		queue = append(queue, inst.Node.Users...)
	}
}

// GetOutput reads back the current device-side bytes of a node marked as
// a network output.
func (n *Network) GetOutput(id string) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	inst, err := n.instance(id)
	if err != nil {
		return nil, err
	}
	if inst.Output == nil {
		return nil, netrterr.New(netrterr.InvalidArgument, id).WithShapes("a node owning device memory", "a buffer-fused node")
	}

	view, err := n.ctx.MapRead(inst.Output)
	if err != nil {
		return nil, err
	}
	defer view.Close()

	out := make([]byte, len(view.Bytes()))
	copy(out, view.Bytes())
	return out, nil
}

// Execute dispatches every dirty, non-optimized node in processing
// order: skip-if-unchanged, then on_execute/dispatch/mark-changed per
// spec.md §4.5. A buffer-fused (can_be_optimized) node is never
// dispatched — its correctness depends entirely on sharing its
// producer's memory, exactly invariant 6.
func (n *Network) Execute(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, id := range n.prog.Order {
		inst := n.instances[id]
		if inst.Node.CanBeOptimized {
			continue
		}
		if inst.ran && !inst.dirty {
			continue // skip-if-unchanged
		}

		wait := n.waitEvents(inst.Node)
		if len(inst.Node.Stages) == 0 {
			// No compiled implementation (a data/input_layout node, the
			// only kinds program.Build's Pass 16 ever leaves with zero
			// Stages once compiled) — nothing to enqueue; it is already
			// resident.
			inst.dirty = false
			inst.ran = true
			continue
		}

		var ev device.Event
		for i := range inst.Node.Stages {
			stage := &inst.Node.Stages[i]
			var bin device.Binary
			if i < len(inst.Node.Binaries) {
				bin = inst.Node.Binaries[i]
			}
			args, err := n.bindArgs(inst, stage.Args)
			if err != nil {
				return err
			}
			e, err := n.q.Enqueue(bin, stage.EntryPoint, stage.Work, args, wait)
			if err != nil {
				return fmt.Errorf("runtime: execute %s: %w", id, err)
			}
			ev = e
			wait = []device.Event{e}
		}
		inst.lastEvent = ev
		inst.dirty = false
		inst.ran = true
	}
	return nil
}

// waitEvents gathers the last completion events of a node's direct
// producers — the only ordering mechanism between dependent commands
// even on an out-of-order queue (spec.md §5).
func (n *Network) waitEvents(node *program.Node) []device.Event {
	var wait []device.Event
	for _, depID := range node.Dependencies {
		if dep, ok := n.instances[depID]; ok && dep.lastEvent != nil {
			wait = append(wait, dep.lastEvent)
		}
	}
	return wait
}

// bindArgs resolves a stage kernel's positional Arg descriptors into
// device-bound resources: ArgInput/ArgWeights reference a dependency's
// output memory by position, everything else carries its literal scalar
// value through unchanged.
func (n *Network) bindArgs(inst *Instance, args []device.Arg) ([]device.BoundArg, error) {
	bound := make([]device.BoundArg, len(args))
	for i, a := range args {
		switch a.Kind {
		case device.ArgInput, device.ArgWeights, device.ArgBias:
			if a.Index < 0 || a.Index >= len(inst.Node.Dependencies) {
				return nil, netrterr.New(netrterr.InvalidArgument, inst.Node.ID).
					WithShapes("a dependency index in range", fmt.Sprintf("index %d", a.Index))
			}
			depID := inst.Node.Dependencies[a.Index]
			dep, ok := n.instances[depID]
			if !ok || dep.Output == nil {
				return nil, netrterr.New(netrterr.InvalidArgument, inst.Node.ID).WithShapes("a resolvable dependency buffer", depID)
			}
			bound[i] = device.BoundArg{Arg: a, Value: dep.Output}
		case device.ArgOutput:
			bound[i] = device.BoundArg{Arg: a, Value: inst.Output}
		default:
			bound[i] = device.BoundArg{Arg: a}
		}
	}
	return bound, nil
}

package program

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gpudag/netrt/cache"
	"github.com/gpudag/netrt/descriptor"
	"github.com/gpudag/netrt/device"
	"github.com/gpudag/netrt/memdep"
	"github.com/gpudag/netrt/netlog"
	"github.com/gpudag/netrt/selector"
)

// builder holds one Build call's mutable state — the program under
// construction plus its collaborators, in the same single-struct-of-
// state style as dijkstra's runner.
type builder struct {
	cfg   buildConfig
	prog  *Program
	book  *selector.Book
	store *cache.Store
	queue *device.Queue
	log   *logrus.Logger

	constantFrontier map[string]bool // Pass 4 output, consumed by Pass 13
}

// Build compiles topo into an optimized, compiled program.Program ready
// for runtime.Network to allocate, running the eighteen passes of
// spec.md §4.4 in fixed order. topo is marked built on success; the
// passes never see the original topology again.
func Build(topo *descriptor.Topology, book *selector.Book, store *cache.Store, q *device.Queue, opts ...BuildOption) (*Program, error) {
	cfg := buildConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	b := &builder{
		cfg:   cfg,
		book:  book,
		store: store,
		queue: q,
		log:   netlog.Discard(),
	}
	b.prog = &Program{Nodes: make(map[string]*Node)}

	if err := b.initFromTopology(topo); err != nil {
		return nil, err
	}

	type step struct {
		name string
		run  func() error
	}
	steps := []step{
		{"replace_expand", b.pass1ReplaceExpand},
		{"outputs_order", b.pass2OutputsAndOrder},
		{"prior_box", b.pass3PriorBox},
		{"constant_dataflow", b.pass4ConstantDataFlow},
		{"dominator_joint", b.pass5DominatorJoint},
		{"trim", b.pass6Trim},
		{"parallel_reorder", b.pass7ParallelReorder},
		{"output_size_handling", b.pass8OutputSizeHandling},
		{"layout_reorder_selection", b.pass9LayoutReorderSelection},
		{"redundant_reorder_removal", b.pass10RedundantReorderRemoval},
		{"padding_preparation", b.pass11PaddingPreparation},
		{"depthwise_fusion", b.pass12DepthwiseFusion},
		{"constant_propagation", b.pass13ConstantPropagation},
		{"buffer_fusing", b.pass14BufferFusing},
		{"primitive_fusing", b.pass15PrimitiveFusing},
		{"implementation_compile", b.pass16ImplementationCompile},
		{"post_optimize_weights", b.pass17PostOptimizeWeights},
	}

	for _, s := range steps {
		if err := s.run(); err != nil {
			return nil, fmt.Errorf("program: pass %s: %w", s.name, err)
		}
		b.log.WithField(netlog.FieldPass, s.name).Debug("program: pass complete")
	}

	if err := b.pass18MemoryDependencies(); err != nil {
		return nil, fmt.Errorf("program: pass memory_dependencies: %w", err)
	}

	if err := b.maybeDump(); err != nil {
		return nil, fmt.Errorf("program: dump: %w", err)
	}

	topo.MarkBuilt()

	return b.prog, nil
}

// initFromTopology converts every descriptor into a Node, in the
// topology's insertion order, and wires Users as the reverse of
// Dependencies — core.Graph's AddVertex/AddEdge idempotent-insert style
// generalized from a vertex/edge store to a descriptor/Node store.
func (b *builder) initFromTopology(topo *descriptor.Topology) error {
	for _, d := range topo.Descriptors() {
		n := &Node{
			ID:           d.ID,
			Kind:         d.Kind,
			Dependencies: append([]string(nil), d.Dependencies...),
			Attrs:        d.Attrs,
			procPos:      -1,
		}
		b.prog.Nodes[d.ID] = n
		b.prog.Order = append(b.prog.Order, d.ID)
	}
	for _, n := range b.prog.Nodes {
		for _, dep := range n.Dependencies {
			if p, ok := b.prog.Nodes[dep]; ok {
				p.Users = append(p.Users, n.ID)
			}
		}
	}
	return nil
}

// mainMemdepInputs adapts the builder's state to memdep's plain-data
// contract (memdep cannot import program: program already imports
// memdep, and a cycle is not an option).
func (b *builder) mainMemdepInputs() memdep.Input {
	deps := make(map[string][]string, len(b.prog.Nodes))
	optimized := make(map[string]bool, len(b.prog.Nodes))
	outputs := make(map[string]bool)
	for id, n := range b.prog.Nodes {
		deps[id] = n.Dependencies
		optimized[id] = n.CanBeOptimized
		if n.OutputMarked {
			outputs[id] = true
		}
	}
	return memdep.Input{Order: append([]string(nil), b.prog.Order...), Dependencies: deps, Optimized: optimized, Outputs: outputs}
}

func (b *builder) pass18MemoryDependencies() error {
	result := memdep.Compute(b.mainMemdepInputs())
	for id, set := range result {
		n, ok := b.prog.Nodes[id]
		if !ok {
			continue
		}
		n.MemoryDeps = set
	}
	return nil
}

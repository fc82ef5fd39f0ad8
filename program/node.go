package program

import (
	"github.com/gpudag/netrt/descriptor"
	"github.com/gpudag/netrt/device"
	"github.com/gpudag/netrt/layout"
	"github.com/gpudag/netrt/selector"
)

// Node is one vertex of the compiled program DAG. Early passes mutate it
// freely; Pass 16 onward treat Stages/ImplName as the compiled contract
// runtime.Instance dispatches.
type Node struct {
	ID           string
	Kind         descriptor.Kind
	Dependencies []string // producer ids, data-flow order
	Users        []string // consumer ids, populated by the builder, not the caller
	Attrs        interface{}

	Output  layout.Tensor
	HasType bool // Output has been computed by a layout-inference step

	OutputMarked bool // endpoint the caller (or debug mode) wants to read
	Constant     bool // Pass 4: all dependencies are constant
	DataFlow     bool // Pass 4: reachable backward from an output via non-constant edges
	MainBranch   bool // Pass 5: lies on the single dominant path through its split region

	CanBeOptimized      bool // Pass 10/14: buffer-aliased no-op at runtime
	RequiresReinterpret bool // Pass 10/14: alias is a layout reinterpretation, not identity

	Fused *descriptor.Fused // Pass 15: folded activation, if any

	ImplName   string                 // Pass 16: selected candidate name
	Stages     []selector.StageKernel // Pass 16: compiled stage kernels
	Binaries   []device.Binary        // Pass 16: compiled device binary per Stages entry, parallel slice
	WeightsPre *selector.WeightsReorder

	MemoryDeps map[string]struct{} // Pass 18 (memdep package writes this)

	procPos int // index into Program.order once Pass 2 has run; -1 until then
}

// DependsOn reports whether id appears in n's Dependencies.
func (n *Node) DependsOn(id string) bool {
	for _, d := range n.Dependencies {
		if d == id {
			return true
		}
	}
	return false
}

// Program is the compiled DAG produced by Build: an id-indexed node map
// plus the processing order (reverse-postorder: every producer appears
// before its consumers).
type Program struct {
	Nodes map[string]*Node
	Order []string // node ids in processing order
}

// ProcPos returns id's index in p.Order, or -1 if id is absent.
func (p *Program) ProcPos(id string) int {
	if n, ok := p.Nodes[id]; ok {
		return n.procPos
	}
	return -1
}

// Get returns the node for id.
func (p *Program) Get(id string) (*Node, bool) {
	n, ok := p.Nodes[id]
	return n, ok
}

// Outputs returns the ids of every node currently marked as an output.
func (p *Program) Outputs() []string {
	var out []string
	for _, id := range p.Order {
		if n := p.Nodes[id]; n.OutputMarked {
			out = append(out, id)
		}
	}
	return out
}

// insert adds a brand-new node to both the node map and the tail of the
// processing order — callers that insert mid-stream (a reorder between an
// existing producer/consumer pair) must call reindex afterward.
func (p *Program) insert(n *Node) {
	p.Nodes[n.ID] = n
	p.Order = append(p.Order, n.ID)
	n.procPos = len(p.Order) - 1
}

// remove deletes a node from the map and the order list, and scrubs it
// from every remaining node's Dependencies/Users.
func (p *Program) remove(id string) {
	delete(p.Nodes, id)
	for i, oid := range p.Order {
		if oid == id {
			p.Order = append(p.Order[:i], p.Order[i+1:]...)
			break
		}
	}
	for _, n := range p.Nodes {
		n.Dependencies = removeString(n.Dependencies, id)
		n.Users = removeString(n.Users, id)
	}
	p.reindex()
}

// reindex recomputes every node's procPos from the current Order slice —
// called after any structural edit that changes relative positions.
func (p *Program) reindex() {
	for i, id := range p.Order {
		if n, ok := p.Nodes[id]; ok {
			n.procPos = i
		}
	}
}

// insertBetween splices a new node between producer and consumer: rewires
// consumer's dependency from producer to the new node, adds the new node
// depending on producer, and places it in Order immediately after
// producer so the reverse-postorder invariant holds without a full re-sort.
func (p *Program) insertBetween(producerID, consumerID string, n *Node) {
	n.Dependencies = []string{producerID}
	n.Users = []string{consumerID}

	if prod, ok := p.Nodes[producerID]; ok {
		prod.Users = replaceString(prod.Users, consumerID, n.ID)
	}
	if cons, ok := p.Nodes[consumerID]; ok {
		cons.Dependencies = replaceString(cons.Dependencies, producerID, n.ID)
	}

	p.Nodes[n.ID] = n
	pos := indexOf(p.Order, producerID)
	if pos < 0 {
		p.Order = append(p.Order, n.ID)
	} else {
		p.Order = append(p.Order[:pos+1], append([]string{n.ID}, p.Order[pos+1:]...)...)
	}
	p.reindex()
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func replaceString(s []string, old, new string) []string {
	out := make([]string, len(s))
	for i, x := range s {
		if x == old {
			out[i] = new
		} else {
			out[i] = x
		}
	}
	return out
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

// Package convert adapts a compiled program.Program to two external
// graph representations — gonum/graph (for an independent topological-
// soundness cross-check, spec.md §8 invariant 1) and dominikbraun/graph
// (for Graphviz export) — fulfilling converterts/doc.go's stated intent,
// which the teacher package itself left as an empty doc-only stub.
package convert

import (
	"errors"
	"fmt"
	"io"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/gpudag/netrt/program"
)

// ErrCycle is returned when a program's dependency edges do not form a
// DAG — gonum's topo.Sort disagreeing with program.Build having
// succeeded would indicate a Pass-2 defect, never an expected outcome.
var ErrCycle = errors.New("convert: program dependency graph is not acyclic")

// ToGonum builds a gonum simple.DirectedGraph mirroring prog's
// dependency edges (producer -> consumer), with node ids assigned by
// prog.Order position. It is used purely as an independent topological
// check, never by program's own passes.
func ToGonum(prog *program.Program) (*simple.DirectedGraph, map[string]int64, error) {
	g := simple.NewDirectedGraph()
	ids := make(map[string]int64, len(prog.Order))
	for i, id := range prog.Order {
		nid := int64(i)
		ids[id] = nid
		g.AddNode(simple.Node(nid))
	}
	for _, id := range prog.Order {
		n, _ := prog.Get(id)
		for _, dep := range n.Dependencies {
			from, ok := ids[dep]
			if !ok {
				continue
			}
			g.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(ids[id])})
		}
	}
	return g, ids, nil
}

// CheckAcyclic cross-checks prog's topological soundness via gonum's
// topo.Sort, independent of program.Build's own Pass 2 DFS.
func CheckAcyclic(prog *program.Program) error {
	g, _, err := ToGonum(prog)
	if err != nil {
		return err
	}
	if _, err := topo.Sort(g); err != nil {
		return fmt.Errorf("%w: %v", ErrCycle, err)
	}
	return nil
}

// ToDominikBraun builds a string-keyed dominikbraun/graph.Graph mirroring
// prog's dependency edges, for Graphviz export via WriteDOT.
func ToDominikBraun(prog *program.Program) (graph.Graph[string, string], error) {
	g := graph.New(graph.StringHash, graph.Directed())
	for _, id := range prog.Order {
		n, _ := prog.Get(id)
		label := fmt.Sprintf("%s\\n%s", id, n.Kind.String())
		if err := g.AddVertex(id, graph.VertexAttribute("label", label)); err != nil {
			return nil, fmt.Errorf("convert: add vertex %s: %w", id, err)
		}
	}
	for _, id := range prog.Order {
		n, _ := prog.Get(id)
		for _, dep := range n.Dependencies {
			if err := g.AddEdge(dep, id); err != nil {
				return nil, fmt.Errorf("convert: add edge %s->%s: %w", dep, id, err)
			}
		}
	}
	return g, nil
}

// WriteDOT renders prog as a Graphviz DOT document, for
// cmd/netrtctl's topology dump.
func WriteDOT(prog *program.Program, w io.Writer) error {
	g, err := ToDominikBraun(prog)
	if err != nil {
		return err
	}
	return draw.DOT(g, w)
}

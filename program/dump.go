package program

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// dumpNode is the serializable projection of a Node written by
// maybeDump — just enough to inspect a build's outcome offline, not a
// format any other part of this module reads back.
type dumpNode struct {
	ID             string   `json:"id"`
	Kind           string   `json:"kind"`
	Dependencies   []string `json:"dependencies"`
	ImplName       string   `json:"impl_name,omitempty"`
	CanBeOptimized bool     `json:"can_be_optimized"`
	OutputMarked   bool     `json:"output_marked"`
}

// maybeDump writes a JSON snapshot of the compiled program to
// cfg.dumpDirectory/cfg.serializationName, when WithDumpDirectory was
// given. There is no third-party serialization library anywhere in the
// retrieval pack for an ad hoc internal debug dump like this one, so it
// stays on stdlib encoding/json; a Graphviz rendering of the same
// program is available separately through convert.WriteDOT, which
// program cannot import itself (convert already imports program).
func (b *builder) maybeDump() error {
	if b.cfg.dumpDirectory == "" {
		return nil
	}
	name := b.cfg.serializationName
	if name == "" {
		name = "program.json"
	}
	nodes := make([]dumpNode, 0, len(b.prog.Order))
	for _, id := range b.prog.Order {
		n := b.prog.Nodes[id]
		nodes = append(nodes, dumpNode{
			ID:             n.ID,
			Kind:           n.Kind.String(),
			Dependencies:   n.Dependencies,
			ImplName:       n.ImplName,
			CanBeOptimized: n.CanBeOptimized,
			OutputMarked:   n.OutputMarked,
		})
	}
	data, err := json.MarshalIndent(struct {
		Order []string   `json:"order"`
		Nodes []dumpNode `json:"nodes"`
	}{Order: b.prog.Order, Nodes: nodes}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(b.cfg.dumpDirectory, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(b.cfg.dumpDirectory, name), data, 0o644)
}

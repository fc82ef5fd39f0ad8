package program

import (
	"math"

	"github.com/gpudag/netrt/descriptor"
	"github.com/gpudag/netrt/layout"
)

// pass1ReplaceExpand lowers `split` nodes into one `crop` per output
// slice and `upsampling` (bilinear mode) into a `deconvolution` with
// filter 2*scale and stride scale. No bilinear weight tensor is computed
// or attached to the deconvolution. Plain graph rewriting in the style of
// core.Graph.AddVertex/AddEdge's idempotent insertion.
func (b *builder) pass1ReplaceExpand() error {
	for _, id := range append([]string(nil), b.prog.Order...) {
		n := b.prog.Nodes[id]
		switch n.Kind {
		case descriptor.Split:
			if err := b.lowerSplit(n); err != nil {
				return err
			}
		case descriptor.Upsampling:
			b.lowerUpsampling(n)
		}
	}
	return nil
}

func (b *builder) lowerSplit(n *Node) error {
	p := n.Attrs.(descriptor.SplitParams)
	users := append([]string(nil), n.Users...)

	for i, r := range p.Ranges {
		cropID := n.ID + ".crop" + itoa(i)
		// A full shape needs the producer's typed output, unavailable until
		// Pass 2's typing sweep; only the split axis's extent is knowable here.
		shape := layout.Shape{B: 1, F: 1, Y: 1, X: 1}
		setAxisExtent(&shape, p.Axis, r[1]-r[0])
		var offset [4]int
		if p.Axis >= 0 && p.Axis < 3 {
			offset[p.Axis] = r[0]
		} else {
			offset[3] = r[0]
		}
		crop := &Node{
			ID:           cropID,
			Kind:         descriptor.Crop,
			Dependencies: n.Dependencies,
			Attrs: descriptor.CropParams{
				ReferenceShape: shape,
				Offset:         offset,
			},
			procPos: -1,
		}
		b.prog.Nodes[cropID] = crop
		b.prog.Order = append(b.prog.Order, cropID)
		for _, dep := range n.Dependencies {
			if prod, ok := b.prog.Nodes[dep]; ok {
				prod.Users = append(prod.Users, cropID)
			}
		}
		if i < len(users) {
			// The ith downstream user of the split now depends on the ith crop.
			u := b.prog.Nodes[users[i]]
			u.Dependencies = replaceString(u.Dependencies, n.ID, cropID)
			crop.Users = append(crop.Users, users[i])
		}
	}

	b.prog.remove(n.ID)
	return nil
}

func (b *builder) lowerUpsampling(n *Node) {
	p := n.Attrs.(descriptor.UpsamplingParams)
	if p.Mode != descriptor.UpsamplingBilinear {
		return
	}
	n.Kind = descriptor.Deconvolution
	n.Attrs = descriptor.DeconvolutionParams{
		FilterSize: [2]int{2 * p.Scale[0], 2 * p.Scale[1]},
		Stride:     p.Scale,
		Split:      p.NumFilter,
	}
}

// pass2OutputsAndOrder marks outputs (explicit list, or every endpoint
// with no users) and builds the processing order by recursive DFS over
// Dependencies, appending a node only once all of its dependencies have
// been appended, so producers precede consumers — dfs.TopologicalSort's
// 3-color postorder walk, adapted from vertex IDs to *Node pointers. Also runs layout inference in the
// resulting order, since every dependency is now typed before its
// consumer.
func (b *builder) pass2OutputsAndOrder() error {
	if len(b.cfg.outputs) > 0 {
		set := make(map[string]bool, len(b.cfg.outputs))
		for _, id := range b.cfg.outputs {
			set[id] = true
		}
		for id, n := range b.prog.Nodes {
			n.OutputMarked = set[id]
		}
	} else {
		for _, n := range b.prog.Nodes {
			n.OutputMarked = len(n.Users) == 0
		}
	}
	if b.cfg.debug {
		for _, n := range b.prog.Nodes {
			n.OutputMarked = true
		}
	}

	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(b.prog.Nodes))
	var order []string

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return errCycle
		}
		color[id] = gray
		n := b.prog.Nodes[id]
		for _, dep := range n.Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[id] = black
		order = append(order, id)
		return nil
	}

	for _, id := range b.prog.Order {
		if err := visit(id); err != nil {
			return err
		}
	}

	b.prog.Order = order
	b.prog.reindex()

	for _, id := range b.prog.Order {
		n := b.prog.Nodes[id]
		deps := make([]*Node, len(n.Dependencies))
		for i, d := range n.Dependencies {
			deps[i] = b.prog.Nodes[d]
		}
		n.Output = inferOutput(n, deps)
		n.HasType = true
	}

	return nil
}

// pass3PriorBox evaluates any node whose output is fully determined by
// its inputs and user-provided constants on the host at build time and
// replaces it with a `data` node holding the computed tensor. Host-side
// constant evaluation — no graph algorithm, grounded on descriptor's
// value-type contract: a PriorBox descriptor carries everything needed
// to compute its output without device participation.
func (b *builder) pass3PriorBox() error {
	for _, id := range append([]string(nil), b.prog.Order...) {
		n := b.prog.Nodes[id]
		if n.Kind != descriptor.PriorBox {
			continue
		}
		p := n.Attrs.(descriptor.PriorBoxParams)
		layerShape := b.prog.Nodes[n.Dependencies[0]].Output.Shape
		values := evaluatePriorBox(p, layerShape)
		n.Kind = descriptor.Data
		n.Attrs = descriptor.DataParams{Tensor: n.Output, Values: values}
		n.Dependencies = nil
	}
	return nil
}

// priorBoxNumPriors is the per-position anchor-box count: one box per
// min_size (aspect_ratio 1), one more per min_size when a paired max_size
// is given, plus one per non-unit aspect ratio (two when Flip also emits
// each ratio's reciprocal) — original_source/src/prior_box.cpp's
// num_priors formula, extended with Flip's reciprocal-ratio doubling.
func priorBoxNumPriors(p descriptor.PriorBoxParams) int {
	perMinSize := 1
	if len(p.MaxSize) > 0 {
		perMinSize++
	}
	for _, ar := range p.AspectRt {
		if closeToOne(ar) {
			continue
		}
		perMinSize++
		if p.Flip {
			perMinSize++
		}
	}
	return len(p.MinSize) * perMinSize
}

func closeToOne(ar float64) bool {
	const eps = 1e-6
	d := ar - 1
	if d < 0 {
		d = -d
	}
	return d < eps
}

// evaluatePriorBox computes the real anchor-box grid a PriorBox node
// emits, following original_source/src/prior_box.cpp: for every
// (layer_y, layer_x) position, a box per min_size (plus one more when a
// paired max_size exists, and one or two per non-unit aspect ratio,
// depending on Flip), normalized to [0,1] against the layer's own
// spatial extent (this port carries no separate image-size field, so the
// feature-map layer doubles as its own reference image), followed by the
// variance plane. layerShape is the PriorBox node's single dependency's
// output tensor — its Y/X give layer_height/layer_width.
func evaluatePriorBox(p descriptor.PriorBoxParams, layerShape layout.Shape) []float64 {
	layerHeight, layerWidth := layerShape.Y, layerShape.X
	numPriors := priorBoxNumPriors(p)

	stepW, stepH := p.Step, p.Step
	if stepW <= 0 {
		stepW, stepH = 1, 1
	}
	imgWidth := float64(layerWidth) * stepW
	imgHeight := float64(layerHeight) * stepH

	count := layerHeight * layerWidth * numPriors * 4
	out := make([]float64, 2*count)

	idx := 0
	emit := func(centerX, centerY, boxW, boxH float64) {
		out[idx] = (centerX - boxW/2) / imgWidth
		out[idx+1] = (centerY - boxH/2) / imgHeight
		out[idx+2] = (centerX + boxW/2) / imgWidth
		out[idx+3] = (centerY + boxH/2) / imgHeight
		idx += 4
	}

	for h := 0; h < layerHeight; h++ {
		for w := 0; w < layerWidth; w++ {
			centerX := (float64(w) + p.Offset) * stepW
			centerY := (float64(h) + p.Offset) * stepH

			for s, minSize := range p.MinSize {
				emit(centerX, centerY, minSize, minSize)

				if s < len(p.MaxSize) {
					size := math.Sqrt(minSize * p.MaxSize[s])
					emit(centerX, centerY, size, size)
				}

				for _, ar := range p.AspectRt {
					if closeToOne(ar) {
						continue
					}
					sq := math.Sqrt(ar)
					emit(centerX, centerY, minSize*sq, minSize/sq)
					if p.Flip {
						emit(centerX, centerY, minSize/sq, minSize*sq)
					}
				}
			}
		}
	}

	if p.Clip {
		for i := 0; i < count; i++ {
			out[i] = clamp01(out[i])
		}
	}

	for i := count; i < 2*count; i++ {
		j := (i - count) % 4
		if p.Variance[0] != 0 || p.Variance[1] != 0 || p.Variance[2] != 0 || p.Variance[3] != 0 {
			out[i] = p.Variance[j]
		}
	}

	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// pass4ConstantDataFlow marks every node constant iff all its
// dependencies are constant (inputs and user-layouts are never
// constant), then runs a backward BFS from the outputs over non-constant
// edges to mark the data-flow subgraph — bfs.BFS's OnVisit hook walking
// reverse edges, generalized from forward to backward traversal.
// Constants reachable from data-flow nodes become the constant frontier,
// candidates for Pass 13's folding.
func (b *builder) pass4ConstantDataFlow() error {
	for _, id := range b.prog.Order {
		n := b.prog.Nodes[id]
		switch n.Kind {
		case descriptor.InputLayout:
			n.Constant = false
		default:
			n.Constant = true
			for _, dep := range n.Dependencies {
				if !b.prog.Nodes[dep].Constant {
					n.Constant = false
					break
				}
			}
			if len(n.Dependencies) == 0 && n.Kind != descriptor.Data {
				n.Constant = false
			}
		}
	}

	visited := make(map[string]bool)
	frontier := make(map[string]bool)
	var queue []string
	for _, id := range b.prog.Order {
		if b.prog.Nodes[id].OutputMarked {
			queue = append(queue, id)
			visited[id] = true
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n := b.prog.Nodes[id]
		n.DataFlow = true
		for _, dep := range n.Dependencies {
			d := b.prog.Nodes[dep]
			if d.Constant {
				frontier[dep] = true
				continue
			}
			if !visited[dep] {
				visited[dep] = true
				queue = append(queue, dep)
			}
		}
	}

	b.constantFrontier = frontier
	return nil
}

// pass5DominatorJoint computes immediate dominators over the data-flow
// subgraph via the Cooper-Harvey-Kennedy iterative fixpoint — reverse-
// postorder iteration until no dominator set changes, structurally the
// same fixpoint-until-no-change loop as dfs.DetectCycles's state-machine
// iteration, generalized from cycle detection to dominator sets.
// MainBranch is then set on every node with at most one user, every node
// whose immediate dominator is the entry, and every node that is another
// node's immediate dominator; joint nodes are not computed.
func (b *builder) pass5DominatorJoint() error {
	order := b.dataFlowOrder()
	if len(order) == 0 {
		return nil
	}

	idom := make(map[string]string, len(order))
	entry := order[0]
	idom[entry] = entry

	posInOrder := make(map[string]int, len(order))
	for i, id := range order {
		posInOrder[id] = i
	}

	changed := true
	for changed {
		changed = false
		for _, id := range order[1:] {
			n := b.prog.Nodes[id]
			var newIdom string
			for _, predID := range b.dataFlowUsers(n) {
				if _, ok := idom[predID]; !ok {
					continue
				}
				if newIdom == "" {
					newIdom = predID
					continue
				}
				newIdom = intersect(newIdom, predID, idom, posInOrder)
			}
			if newIdom != "" && idom[id] != newIdom {
				idom[id] = newIdom
				changed = true
			}
		}
	}

	for _, id := range order {
		n := b.prog.Nodes[id]
		n.MainBranch = len(n.Users) <= 1 || idom[id] == entry
	}
	for id, predID := range idom {
		if id != predID {
			// The immediate dominator's own branch is always main.
			b.prog.Nodes[predID].MainBranch = true
		}
	}

	return nil
}

// dataFlowOrder returns b.prog.Order restricted to DataFlow-marked nodes,
// preserving relative order (a valid reverse-postorder over the subgraph).
func (b *builder) dataFlowOrder() []string {
	var out []string
	for _, id := range b.prog.Order {
		if b.prog.Nodes[id].DataFlow {
			out = append(out, id)
		}
	}
	return out
}

// dataFlowUsers returns n's dependencies that are themselves data-flow
// nodes — the "predecessors" in the dominator walk, since dominance here
// runs forward from inputs toward outputs, so a node's predecessors are
// its producers.
func (b *builder) dataFlowUsers(n *Node) []string {
	var out []string
	for _, dep := range n.Dependencies {
		if d, ok := b.prog.Nodes[dep]; ok && d.DataFlow {
			out = append(out, dep)
		}
	}
	return out
}

func intersect(a, b string, idom map[string]string, pos map[string]int) string {
	for a != b {
		for pos[a] > pos[b] {
			a = idom[a]
		}
		for pos[b] > pos[a] {
			b = idom[b]
		}
	}
	return a
}

// pass6Trim runs a backward BFS from the outputs and removes every node
// not reached — their dangling dependencies fall away with them.
// input-layout nodes survive unconditionally even if unreached, per
// spec.md §4.4 Pass 6.
func (b *builder) pass6Trim() error {
	reached := make(map[string]bool)
	var queue []string
	for _, id := range b.prog.Order {
		if b.prog.Nodes[id].OutputMarked {
			queue = append(queue, id)
			reached[id] = true
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range b.prog.Nodes[id].Dependencies {
			if !reached[dep] {
				reached[dep] = true
				queue = append(queue, dep)
			}
		}
	}

	for _, id := range append([]string(nil), b.prog.Order...) {
		n := b.prog.Nodes[id]
		if !reached[id] && n.Kind != descriptor.InputLayout {
			b.prog.remove(id)
		}
	}
	return nil
}

// pass7ParallelReorder stable-sorts the whole processing order by each
// node's longest-path depth from the source nodes, so nodes at the same
// depth sit adjacently, exposing independent work to the out-of-order
// queue — bfs.BFS's depth-bucketing (its OnEnqueue depth argument). The
// sort is global; Pass 5's dominance information is not consulted. No-op
// when optimize_data is disabled.
func (b *builder) pass7ParallelReorder() error {
	if !b.cfg.enableParallelReorder {
		return nil
	}

	depth := make(map[string]int, len(b.prog.Order))
	for _, id := range b.prog.Order {
		n := b.prog.Nodes[id]
		d := 0
		for _, dep := range n.Dependencies {
			if depth[dep]+1 > d {
				d = depth[dep] + 1
			}
		}
		depth[id] = d
	}

	bucketed := make([]string, len(b.prog.Order))
	copy(bucketed, b.prog.Order)
	stableSortByKey(bucketed, func(id string) int { return depth[id] })

	b.prog.Order = bucketed
	b.prog.reindex()
	return nil
}

var errCycle = &cycleError{}

type cycleError struct{}

func (*cycleError) Error() string { return "program: cycle detected while computing processing order" }

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// stableSortByKey performs an in-place stable sort of ids by key(id),
// preserving relative order among equal keys — equivalent to
// sort.SliceStable without importing sort for this one small use.
func stableSortByKey(ids []string, key func(string) int) {
	for i := 1; i < len(ids); i++ {
		j := i
		for j > 0 && key(ids[j-1]) > key(ids[j]) {
			ids[j-1], ids[j] = ids[j], ids[j-1]
			j--
		}
	}
}

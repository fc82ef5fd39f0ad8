package program

import (
	"github.com/gpudag/netrt/descriptor"
	"github.com/gpudag/netrt/layout"
)

// pass8OutputSizeHandling sets, for every convolution/deconvolution/
// pooling carrying a user-declared output_size, the node's output Y/X to
// the declared size. For convolution the natural sliding-window size is
// computed but not compared or recorded; no flag is set, and Pass 11 does
// not depend on this pass. Arithmetic only, grounded on layout's
// pitch/shape helpers — no graph traversal.
func (b *builder) pass8OutputSizeHandling() error {
	for _, id := range b.prog.Order {
		n := b.prog.Nodes[id]
		switch n.Kind {
		case descriptor.Convolution:
			p := n.Attrs.(descriptor.ConvParams)
			if p.OutputSize == nil {
				continue
			}
			natural := convOutputShape(b.prog.Nodes[n.Dependencies[0]].Output.Shape, p.FilterSize, p.Stride, p.InputOffset, p.Dilation, nil)
			n.Output.Shape.Y, n.Output.Shape.X = p.OutputSize[0], p.OutputSize[1]
			_ = natural // disagreement already reflected: Output now holds the declared size
		case descriptor.Pooling:
			p := n.Attrs.(descriptor.PoolingParams)
			if p.OutputSize == nil {
				continue
			}
			n.Output.Shape.Y, n.Output.Shape.X = p.OutputSize[0], p.OutputSize[1]
		case descriptor.Deconvolution:
			p := n.Attrs.(descriptor.DeconvolutionParams)
			if p.OutputSize == nil {
				continue
			}
			n.Output.Shape.Y, n.Output.Shape.X = p.OutputSize[0], p.OutputSize[1]
		}
	}
	return nil
}

// pass9LayoutReorderSelection examines, for each convolution, the
// (input_layout, output_layout, weights_layout, spatial) tuple and
// decides the best input layout, inserting (or retargeting an existing)
// reorder — a decision table keyed exactly the way selector.Registry
// keys candidates, reusing its predicate/priority shape. Specialized
// Winograd/bf8/byxf paths are out of scope for this pass's simplified
// table; the default-layout decision below is the contract every other
// candidate path composes with.
func (b *builder) pass9LayoutReorderSelection() error {
	if !b.cfg.optimizeData {
		return nil
	}
	for _, id := range append([]string(nil), b.prog.Order...) {
		n := b.prog.Nodes[id]
		if n.Kind != descriptor.Convolution {
			continue
		}
		preferred := preferredConvInputLayout(n)
		producerID := n.Dependencies[0]
		producer := b.prog.Nodes[producerID]

		if producer.Output.Tag == preferred {
			continue
		}
		if producer.Kind == descriptor.Reorder {
			rp := producer.Attrs.(descriptor.ReorderParams)
			rp.OutputTag = preferred
			producer.Attrs = rp
			producer.Output.Tag = preferred
			continue
		}

		reorderID := n.ID + ".input_reorder"
		reorder := &Node{
			ID:   reorderID,
			Kind: descriptor.Reorder,
			Attrs: descriptor.ReorderParams{
				OutputTag:      preferred,
				OutputDataType: producer.Output.DataType,
			},
			Output:  layout.Tensor{DataType: producer.Output.DataType, Shape: producer.Output.Shape, Tag: preferred},
			HasType: true,
			procPos: -1,
		}
		b.prog.insertBetween(producerID, n.ID, reorder)
	}
	return nil
}

// preferredConvInputLayout is the simplified decision-table lookup Pass 9
// drives: bfyx is the universal default input layout for convolution in
// this compiler, matching the reference kernel candidate registered in
// selector.NewDefaultBook.
func preferredConvInputLayout(n *Node) layout.Tag {
	return layout.Bfyx
}

// pass10RedundantReorderRemoval drops any reorder whose input/output
// layouts are identical (erased entirely) or reinterpretable (marked
// can_be_optimized + requires_reinterpret, aliased by the runtime instead
// of copied). Reorders carrying a mean/per-feature subtract, or where both
// sides are output-marked, are never dropped. Consecutive reorders are
// grouped with prim_kruskal's union-find (Find/Union), but the grouping is
// not used afterwards: each reorder is judged against its own producer
// only, and a chain is not merged into one representative.
func (b *builder) pass10RedundantReorderRemoval() error {
	ds := newDisjointSet(b.prog.Order)

	for _, id := range b.prog.Order {
		n := b.prog.Nodes[id]
		if n.Kind != descriptor.Reorder || len(n.Dependencies) != 1 {
			continue
		}
		producer := b.prog.Nodes[n.Dependencies[0]]
		if producer.Kind == descriptor.Reorder {
			ds.union(producer.ID, n.ID)
		}
	}

	for _, id := range append([]string(nil), b.prog.Order...) {
		n, ok := b.prog.Nodes[id]
		if !ok || n.Kind != descriptor.Reorder {
			continue
		}
		rp := n.Attrs.(descriptor.ReorderParams)
		if rp.MeanSubtract || len(rp.PerFeatureSub) > 0 {
			continue
		}
		if len(n.Dependencies) != 1 {
			continue
		}
		producer := b.prog.Nodes[n.Dependencies[0]]
		if n.OutputMarked && producer.OutputMarked {
			continue
		}

		in := producer.Output
		out := n.Output
		switch {
		case in == out:
			b.bypassReorder(n, producer)
		case layout.Reinterpretable(in, out):
			n.CanBeOptimized = true
			n.RequiresReinterpret = true
		}
	}
	return nil
}

// bypassReorder removes an identity reorder, rewiring its users directly
// to its producer.
func (b *builder) bypassReorder(n, producer *Node) {
	for _, userID := range append([]string(nil), n.Users...) {
		if u, ok := b.prog.Nodes[userID]; ok {
			u.Dependencies = replaceString(u.Dependencies, n.ID, producer.ID)
			producer.Users = append(producer.Users, userID)
		}
	}
	producer.Users = removeString(producer.Users, n.ID)
	b.prog.remove(n.ID)
}

// pass11PaddingPreparation propagates the minimum padding a node's
// implementation demands upstream into its producer's output padding;
// when the producer is an input-layout, a padding-providing reorder is
// inserted instead. Right-padding is aligned so total row width meets
// required alignment (spec.md §4.4 Pass 11's "16-element" example),
// reusing matrix's "round up to alignment" bounds-check style.
func (b *builder) pass11PaddingPreparation() error {
	const rowAlignment = 16

	for _, id := range b.prog.Order {
		n := b.prog.Nodes[id]
		if n.Kind != descriptor.Convolution {
			continue
		}
		p := n.Attrs.(descriptor.ConvParams)
		minPad := layout.Padding{
			LowerY: p.InputOffset[0], LowerX: p.InputOffset[1],
			UpperY: p.InputOffset[0], UpperX: p.InputOffset[1],
		}
		producer := b.prog.Nodes[n.Dependencies[0]]

		aligned := layout.AlignRowPitch(producer.Output.Shape.X+minPad.LowerX+minPad.UpperX, rowAlignment)
		minPad.UpperX += aligned - (producer.Output.Shape.X + minPad.LowerX + minPad.UpperX)

		if producer.Kind == descriptor.InputLayout {
			reorderID := n.ID + ".padding_reorder"
			reorder := &Node{
				ID:   reorderID,
				Kind: descriptor.Reorder,
				Attrs: descriptor.ReorderParams{
					OutputTag:      producer.Output.Tag,
					OutputDataType: producer.Output.DataType,
				},
				Output:  layout.Tensor{DataType: producer.Output.DataType, Shape: producer.Output.Shape, Tag: producer.Output.Tag, Padding: minPad},
				HasType: true,
				procPos: -1,
			}
			b.prog.insertBetween(producer.ID, n.ID, reorder)
			continue
		}

		producer.Output.Padding = mergePadding(producer.Output.Padding, minPad)
	}
	return nil
}

func mergePadding(a, b layout.Padding) layout.Padding {
	return layout.Padding{
		LowerB: maxInt(a.LowerB, b.LowerB), LowerF: maxInt(a.LowerF, b.LowerF),
		LowerY: maxInt(a.LowerY, b.LowerY), LowerX: maxInt(a.LowerX, b.LowerX),
		UpperB: maxInt(a.UpperB, b.UpperB), UpperF: maxInt(a.UpperF, b.UpperF),
		UpperY: maxInt(a.UpperY, b.UpperY), UpperX: maxInt(a.UpperX, b.UpperX),
		FillValue: a.FillValue,
	}
}

func maxInt(a, bv int) int {
	if a > bv {
		return a
	}
	return bv
}

package program

import (
	"context"
	"fmt"

	"github.com/gpudag/netrt/descriptor"
	"github.com/gpudag/netrt/device"
	"github.com/gpudag/netrt/netrterr"
	"github.com/gpudag/netrt/selector"
)

// selectParams builds the selector-level params object for a node's kind
// from its descriptor attributes and typed dependencies, or returns
// (nil, false) for kinds the selector never compiles directly (data,
// input-layout — these never reach the device).
func (b *builder) selectParams(n *Node) (interface{}, bool) {
	switch n.Kind {
	case descriptor.Convolution:
		return selector.ConvSelectParams{Params: n.Attrs.(descriptor.ConvParams)}, true
	case descriptor.Pooling:
		in := b.prog.Nodes[n.Dependencies[0]].Output
		return selector.PoolingSelectParams{
			Params:    n.Attrs.(descriptor.PoolingParams),
			InputSize: [2]int{in.Shape.Y, in.Shape.X},
		}, true
	case descriptor.Softmax:
		return selector.SoftmaxSelectParams{Params: n.Attrs.(descriptor.SoftmaxParams)}, true
	case descriptor.DetectionOutput:
		return selector.DetectionOutputSelectParams{Params: n.Attrs.(descriptor.DetectionOutputParams)}, true
	case descriptor.Data, descriptor.InputLayout:
		return nil, false
	default:
		return n.Attrs, true
	}
}

// pass16ImplementationCompile calls the kernel selector for every
// remaining node, storing the chosen implementation on the node, and,
// when Build was given both a cache store and a queue, compiles each
// stage kernel through the cache. A node Pass 10/14 has
// already flagged CanBeOptimized is a buffer-aliased no-op and legitimately
// needs no kernel; any other node for which the selector has no registry
// at all is a build-time defect, not a silent skip, and aborts compilation
// with netrterr.UnsupportedDevice (spec.md §7).
func (b *builder) pass16ImplementationCompile() error {
	for _, id := range b.prog.Order {
		n := b.prog.Nodes[id]
		if n.CanBeOptimized {
			continue
		}
		params, ok := b.selectParams(n)
		if !ok {
			continue
		}

		tag := selector.Tag(n.Kind.String())
		kd, name, err := b.book.Select(tag, params)
		if err != nil {
			if err == selector.ErrUnknownTag {
				return (&netrterr.BuildError{
					Kind:        netrterr.UnsupportedDevice,
					PrimitiveID: n.ID,
					Expected:    "a registered kernel candidate for kind " + n.Kind.String(),
					Observed:    "no registry for this kind",
				})
			}
			return fmt.Errorf("node %q: %w", n.ID, err)
		}

		n.ImplName = name
		n.WeightsPre = kd.Reorder
		n.Stages = kd.Stages

		if b.store != nil && b.queue != nil {
			n.Binaries = make([]device.Binary, len(n.Stages))
			for i := range n.Stages {
				stage := &n.Stages[i]
				bin, err := b.store.Get(context.Background(), b.queue, n.ID, stage.Source, stage.Options)
				if err != nil {
					return err
				}
				n.Binaries[i] = bin
			}
		}
	}
	return nil
}

// pass17PostOptimizeWeights inserts a generic weights-reorder node between
// the weights and every node that received a weights-reorder
// prerequisite, and marks its output tensor constant so Pass 13's
// constant-folding invariant still holds for nodes inserted after that
// pass ran. The inserted reorder does not go through kernel selection or
// the cache and carries no Stages, so the runtime dispatches nothing for
// it.
func (b *builder) pass17PostOptimizeWeights() error {
	for _, id := range append([]string(nil), b.prog.Order...) {
		n := b.prog.Nodes[id]
		if n.WeightsPre == nil {
			continue
		}

		weightsID := weightsIDOf(n)
		if weightsID == "" {
			continue
		}
		weights, ok := b.prog.Nodes[weightsID]
		if !ok {
			continue
		}

		reorderID := weightsID + ".reorder"
		reorder := &Node{
			ID:           reorderID,
			Kind:         descriptor.Reorder,
			Dependencies: []string{weightsID},
			Attrs: descriptor.ReorderParams{
				OutputTag:      weights.Output.Tag,
				OutputDataType: weights.Output.DataType,
			},
			Output:   weights.Output,
			HasType:  true,
			Constant: true,
			procPos:  -1,
		}
		b.prog.insertBetween(weightsID, n.ID, reorder)

		switch attrs := n.Attrs.(type) {
		case descriptor.ConvParams:
			attrs.WeightsID = reorderID
			n.Attrs = attrs
		case descriptor.FullyConnectedParams:
			attrs.WeightsID = reorderID
			n.Attrs = attrs
		case descriptor.DeconvolutionParams:
			attrs.WeightsID = reorderID
			n.Attrs = attrs
		}
		n.Dependencies = replaceString(n.Dependencies, weightsID, reorderID)
		n.WeightsPre = nil
	}
	return nil
}

func weightsIDOf(n *Node) string {
	switch attrs := n.Attrs.(type) {
	case descriptor.ConvParams:
		return attrs.WeightsID
	case descriptor.FullyConnectedParams:
		return attrs.WeightsID
	case descriptor.DeconvolutionParams:
		return attrs.WeightsID
	default:
		return ""
	}
}

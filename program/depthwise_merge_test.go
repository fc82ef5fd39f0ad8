package program_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gpudag/netrt/descriptor"
	"github.com/gpudag/netrt/layout"
	"github.com/gpudag/netrt/program"
	"github.com/gpudag/netrt/selector"
)

// TestDepthwiseSeparableMergeConcatenatesSixteenGroupSiblings is spec.md
// §8 scenario 6: a convolution with 16 weight-data siblings (one per
// group, features_per_group=4) results in a single concatenated weight
// tensor and split=1 after Pass 12.
func TestDepthwiseSeparableMergeConcatenatesSixteenGroupSiblings(t *testing.T) {
	const groups = 16
	const featuresPerGroup = 4

	topo := descriptor.New()

	input := layout.Tensor{DataType: layout.Float, Shape: layout.Shape{B: 1, F: groups * featuresPerGroup, Y: 16, X: 16}, Tag: layout.Bfyx}
	require.NoError(t, topo.Add(descriptor.Descriptor{
		ID:    "input",
		Kind:  descriptor.InputLayout,
		Attrs: descriptor.InputLayoutParams{Tensor: input, Tag: layout.Bfyx},
	}))

	convDeps := []string{"input", "weights"}
	for i := 0; i < groups; i++ {
		id := "weights"
		if i > 0 {
			id = "weights.group" + itoaTest(i)
			convDeps = append(convDeps, id)
		}
		groupWeights := layout.Tensor{DataType: layout.Float, Shape: layout.Shape{B: 1, F: featuresPerGroup, Y: 3, X: 3}, Tag: layout.WeightsOiyx}
		values := make([]float64, groupWeights.Shape.Count())
		for j := range values {
			values[j] = float64(i*1000 + j)
		}
		require.NoError(t, topo.Add(descriptor.Descriptor{
			ID:    id,
			Kind:  descriptor.Data,
			Attrs: descriptor.DataParams{Tensor: groupWeights, Values: values},
		}))
	}

	require.NoError(t, topo.Add(descriptor.Descriptor{
		ID:           "conv",
		Kind:         descriptor.Convolution,
		Dependencies: convDeps,
		Attrs: descriptor.ConvParams{
			FilterSize: [2]int{3, 3}, Stride: [2]int{1, 1},
			InputOffset: [2]int{0, 0}, Dilation: [2]int{1, 1},
			Split: groups, WeightsID: "weights",
		},
	}))

	prog, err := program.Build(topo, selector.NewDefaultBook(), nil, nil,
		program.WithOutputs("conv"), program.WithOptimizeData(true))
	require.NoError(t, err)

	conv, ok := prog.Get("conv")
	require.True(t, ok)
	p := conv.Attrs.(descriptor.ConvParams)
	require.Equal(t, 1, p.Split, "Pass 12 must collapse a 16-group depthwise convolution to split=1")

	weights, ok := prog.Get("weights")
	require.True(t, ok)
	require.Equal(t, descriptor.Data, weights.Kind)
	require.Equal(t, groups*featuresPerGroup, weights.Output.Shape.F, "the fused tensor must hold all 16 groups' features")

	dp := weights.Attrs.(descriptor.DataParams)
	require.Len(t, dp.Values, groups*featuresPerGroup*3*3, "fused values must be the concatenation of every group's values")

	for i := 1; i < groups; i++ {
		_, stillPresent := prog.Get("weights.group" + itoaTest(i))
		require.False(t, stillPresent, "group sibling nodes are consumed by the fusion and must not survive")
	}
}

func itoaTest(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}

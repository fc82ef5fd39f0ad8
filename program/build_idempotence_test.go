package program_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gpudag/netrt/program"
	"github.com/gpudag/netrt/sampletopo"
	"github.com/gpudag/netrt/selector"
)

// TestBuildIsIdempotentAcrossIndependentTopologies checks SPEC_FULL.md §8's
// idempotence invariant: building the same topology description twice,
// with the same options, yields programs with identical node counts,
// processing orders, and per-node output layouts. Each call gets its own
// *descriptor.Topology instance since Build marks its argument built on
// success and a topology cannot be submitted twice.
func TestBuildIsIdempotentAcrossIndependentTopologies(t *testing.T) {
	topoA, err := sampletopo.ConvPoolSoftmax()
	require.NoError(t, err)
	topoB, err := sampletopo.ConvPoolSoftmax()
	require.NoError(t, err)

	progA, err := program.Build(topoA, selector.NewDefaultBook(), nil, nil,
		program.WithOutputs("softmax"), program.WithOptimizeData(true))
	require.NoError(t, err)
	progB, err := program.Build(topoB, selector.NewDefaultBook(), nil, nil,
		program.WithOutputs("softmax"), program.WithOptimizeData(true))
	require.NoError(t, err)

	require.Equal(t, len(progA.Nodes), len(progB.Nodes), "node counts must match")
	require.Equal(t, progA.Order, progB.Order, "processing order must match exactly, id for id")

	for _, id := range progA.Order {
		nodeA, ok := progA.Get(id)
		require.True(t, ok)
		nodeB, ok := progB.Get(id)
		require.True(t, ok, "every id from progA's order must also exist in progB")
		require.Equal(t, nodeA.Output, nodeB.Output, "node %q must carry the same output layout in both builds", id)
		require.Equal(t, nodeA.Kind, nodeB.Kind, "node %q must carry the same kind in both builds", id)
	}
}

// TestBuildIsIdempotentWithoutOptimizeData repeats the check with the
// optimization passes disabled, so the comparison also covers the
// unoptimized code path the first test's WithOptimizeData(true) skips.
func TestBuildIsIdempotentWithoutOptimizeData(t *testing.T) {
	topoA, err := sampletopo.DetectionOutput()
	require.NoError(t, err)
	topoB, err := sampletopo.DetectionOutput()
	require.NoError(t, err)

	progA, err := program.Build(topoA, selector.NewDefaultBook(), nil, nil, program.WithOutputs("detection"))
	require.NoError(t, err)
	progB, err := program.Build(topoB, selector.NewDefaultBook(), nil, nil, program.WithOutputs("detection"))
	require.NoError(t, err)

	require.Equal(t, progA.Order, progB.Order)
	for _, id := range progA.Order {
		nodeA, _ := progA.Get(id)
		nodeB, _ := progB.Get(id)
		require.Equal(t, nodeA.Output, nodeB.Output, "node %q must carry the same output layout in both builds", id)
	}
}

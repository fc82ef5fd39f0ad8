package descriptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpudag/netrt/layout"
)

func TestAddRejectsUnknownDependency(t *testing.T) {
	topo := New()
	err := topo.Add(Descriptor{ID: "conv1", Kind: Convolution, Dependencies: []string{"missing"}})
	require.ErrorIs(t, err, ErrUnknownDependency)
}

func TestAddRejectsDuplicateAndEmptyID(t *testing.T) {
	topo := New()
	require.NoError(t, topo.Add(Descriptor{ID: "in", Kind: InputLayout}))
	require.ErrorIs(t, topo.Add(Descriptor{ID: "in", Kind: InputLayout}), ErrDuplicateID)
	require.ErrorIs(t, topo.Add(Descriptor{ID: "", Kind: InputLayout}), ErrEmptyID)
}

func TestChangeInputLayoutOnlyOnInputLayoutNodes(t *testing.T) {
	topo := New()
	require.NoError(t, topo.Add(Descriptor{ID: "in", Kind: InputLayout, Attrs: InputLayoutParams{Tag: layout.Bfyx}}))
	require.NoError(t, topo.Add(Descriptor{ID: "conv1", Kind: Convolution, Dependencies: []string{"in"}}))

	require.ErrorIs(t, topo.ChangeInputLayout("conv1", layout.Yxfb), ErrWrongKind)
	require.ErrorIs(t, topo.ChangeInputLayout("nope", layout.Yxfb), ErrNotFound)

	require.NoError(t, topo.ChangeInputLayout("in", layout.Yxfb))
	d, ok := topo.Get("in")
	require.True(t, ok)
	assert.Equal(t, layout.Yxfb, d.Attrs.(InputLayoutParams).Tag)
}

func TestMarkBuiltFreezesTopology(t *testing.T) {
	topo := New()
	require.NoError(t, topo.Add(Descriptor{ID: "in", Kind: InputLayout}))
	topo.MarkBuilt()
	require.ErrorIs(t, topo.Add(Descriptor{ID: "in2", Kind: InputLayout}), ErrAlreadyBuilt)
	require.ErrorIs(t, topo.ChangeInputLayout("in", layout.Bfyx), ErrAlreadyBuilt)
}

func TestDescriptorsPreservesInsertionOrder(t *testing.T) {
	topo := New()
	require.NoError(t, topo.Add(Descriptor{ID: "a", Kind: InputLayout}))
	require.NoError(t, topo.Add(Descriptor{ID: "b", Kind: Convolution, Dependencies: []string{"a"}}))
	ids := make([]string, 0, 2)
	for _, d := range topo.Descriptors() {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"a", "b"}, ids)
}

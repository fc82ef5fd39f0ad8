package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeValidate(t *testing.T) {
	require.NoError(t, Shape{B: 1, F: 1, Y: 1, X: 1}.Validate())
	require.ErrorIs(t, Shape{B: 0, F: 1, Y: 1, X: 1}.Validate(), ErrInvalidShape)
}

func TestBufferShape(t *testing.T) {
	s := Shape{B: 1, F: 2, Y: 3, X: 4}
	p := Padding{LowerX: 1, UpperX: 1, LowerY: 2}
	got := s.BufferShape(p)
	assert.Equal(t, Shape{B: 1, F: 2, Y: 5, X: 6}, got)
}

func TestCompatibleWith(t *testing.T) {
	want := Tensor{DataType: Float, Tag: Bfyx, Shape: Shape{1, 1, 1, 1}, Padding: Padding{}}
	have := Tensor{DataType: Float, Tag: Bfyx, Shape: Shape{1, 1, 1, 1}, Padding: Padding{LowerX: 1}}
	assert.True(t, want.CompatibleWith(have), "wider producer padding still satisfies a zero-pad consumer")

	other := Tensor{DataType: Half, Tag: Bfyx, Shape: Shape{1, 1, 1, 1}}
	assert.False(t, want.CompatibleWith(other), "data type mismatch requires a reorder")
}

func TestReinterpretable(t *testing.T) {
	a := Tensor{DataType: Float, Tag: Bfyx, Shape: Shape{2, 2, 2, 2}}
	b := Tensor{DataType: Float, Tag: Bfyx, Shape: Shape{2, 2, 2, 2}}
	assert.True(t, Reinterpretable(a, b))

	c := Tensor{DataType: Float, Tag: Yxfb, Shape: Shape{2, 2, 2, 2}}
	assert.False(t, Reinterpretable(a, c), "different traversal order is not reinterpretable")
}

func TestPitchesOffset(t *testing.T) {
	shape := Shape{B: 1, F: 2, Y: 2, X: 2}
	pitches := NewPitches(shape, Bfyx, Padding{})
	off, err := pitches.Offset(0, 1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1*2*2+1*2+1, off)
}

func TestAlignRowPitch(t *testing.T) {
	assert.Equal(t, 16, AlignRowPitch(9, 16))
	assert.Equal(t, 32, AlignRowPitch(17, 16))
	assert.Equal(t, 16, AlignRowPitch(16, 16))
	assert.Equal(t, 9, AlignRowPitch(9, 0))
}

package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpudag/netrt/descriptor"
	"github.com/gpudag/netrt/netrterr"
)

func TestPoolingOffsetAtHalfInputIsRejected(t *testing.T) {
	p := PoolingSelectParams{
		Params:    descriptor.PoolingParams{InputOffset: [2]int{4, 0}},
		InputSize: [2]int{8, 8}, // 4 >= 8/2
	}
	err := ValidatePooling(p)
	require.Error(t, err)
	assert.ErrorIs(t, err, netrterr.ErrInvalidArgument)
}

func TestPoolingOffsetJustBelowHalfIsAccepted(t *testing.T) {
	p := PoolingSelectParams{
		Params:    descriptor.PoolingParams{InputOffset: [2]int{3, 3}},
		InputSize: [2]int{8, 8}, // 3 < 4
	}
	assert.NoError(t, ValidatePooling(p))
}

func TestSelectRejectsOutOfRangePoolingOffset(t *testing.T) {
	book := NewDefaultBook()
	p := PoolingSelectParams{
		Params:    descriptor.PoolingParams{InputOffset: [2]int{5, 0}},
		InputSize: [2]int{8, 8},
	}
	_, _, err := book.Select(Tag("pooling"), p)
	require.Error(t, err)
	// Select must surface ValidatePooling's structured BuildError, not
	// collapse it to the bare ErrNoCandidate sentinel.
	assert.ErrorIs(t, err, netrterr.ErrInvalidArgument)
	assert.NotErrorIs(t, err, ErrNoCandidate)
}

func TestSelectAcceptsInRangePoolingOffset(t *testing.T) {
	book := NewDefaultBook()
	p := PoolingSelectParams{
		Params:    descriptor.PoolingParams{Mode: descriptor.PoolingAverage, InputOffset: [2]int{1, 1}},
		InputSize: [2]int{8, 8},
	}
	kd, name, err := book.Select(Tag("pooling"), p)
	require.NoError(t, err)
	assert.Equal(t, "pooling_ref", name)
	assert.Equal(t, "pooling_gpu_ref_avg", kd.Stages[0].EntryPoint)
}

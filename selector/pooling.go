package selector

import (
	"fmt"

	"github.com/gpudag/netrt/descriptor"
	"github.com/gpudag/netrt/netrterr"
)

// PoolingSelectParams is the selector-level params object for the Pooling
// tag: the descriptor attributes plus the input spatial size the
// boundary check needs (spec.md §8 Boundary: "Pooling with input_offset ≥
// input_size / 2 is rejected").
type PoolingSelectParams struct {
	Params    descriptor.PoolingParams
	InputSize [2]int // Y, X
}

// ValidatePooling enforces spec.md §8's pooling boundary condition: an
// input_offset at or past half the input extent on either axis can never
// address a valid window and is rejected outright, not merely excluded
// from candidate selection.
func ValidatePooling(p PoolingSelectParams) error {
	for axis := 0; axis < 2; axis++ {
		if p.Params.InputOffset[axis] >= p.InputSize[axis]/2 {
			return netrterr.New(netrterr.InvalidArgument, "pooling").
				WithShapes("input_offset < input_size/2", fmt.Sprintf("%v vs input_size %v", p.Params.InputOffset, p.InputSize))
		}
	}
	return nil
}

// defaultPoolingCandidate is the always-present fallback implementation:
// supports any in-range params and builds a single generic pooling kernel.
var defaultPoolingCandidate = Candidate{
	Name: "pooling_ref",
	Supports: func(params interface{}) bool {
		p, ok := params.(PoolingSelectParams)
		if !ok {
			return false
		}
		return ValidatePooling(p) == nil
	},
	Diagnose: func(params interface{}) error {
		p, ok := params.(PoolingSelectParams)
		if !ok {
			return nil
		}
		return ValidatePooling(p)
	},
	Build: func(params interface{}) (KernelData, error) {
		p := params.(PoolingSelectParams)
		if err := ValidatePooling(p); err != nil {
			return KernelData{}, err
		}
		entry := "pooling_gpu_ref"
		if p.Params.Mode == descriptor.PoolingAverage {
			entry = "pooling_gpu_ref_avg"
		}
		return KernelData{
			Stages: []StageKernel{{
				EntryPoint: entry,
			}},
			EstimatedTime: 100.0,
		}, nil
	},
}

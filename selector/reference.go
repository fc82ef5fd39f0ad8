package selector

import "github.com/gpudag/netrt/descriptor"

// SoftmaxSelectParams is the selector-level params object for the
// Softmax tag.
type SoftmaxSelectParams struct {
	Params descriptor.SoftmaxParams
}

// defaultSoftmaxCandidate is the always-present reference implementation:
// a single reduce-then-normalize kernel along the declared axis.
var defaultSoftmaxCandidate = Candidate{
	Name: "softmax_ref",
	Supports: func(params interface{}) bool {
		_, ok := params.(SoftmaxSelectParams)
		return ok
	},
	Build: func(params interface{}) (KernelData, error) {
		return KernelData{
			Stages:        []StageKernel{{EntryPoint: "softmax_gpu_ref"}},
			EstimatedTime: 100.0,
		}, nil
	},
}

// defaultReorderCandidate is the always-present reference implementation
// for a reorder that Pass 10 did not erase or flag can_be_optimized (a
// real layout/padding change, e.g. Pass 11's inserted padding reorder):
// a generic gather-scatter kernel between the two declared layouts.
var defaultReorderCandidate = Candidate{
	Name: "reorder_ref",
	Supports: func(params interface{}) bool {
		_, ok := params.(descriptor.ReorderParams)
		return ok
	},
	Build: func(params interface{}) (KernelData, error) {
		return KernelData{
			Stages:        []StageKernel{{EntryPoint: "reorder_gpu_ref"}},
			EstimatedTime: 50.0,
		}, nil
	},
}

// DetectionOutputSelectParams is the selector-level params object for the
// DetectionOutput tag.
type DetectionOutputSelectParams struct {
	Params descriptor.DetectionOutputParams
}

// defaultDetectionOutputCandidate is the always-present reference
// implementation: per-class NMS followed by the top-k merge spec.md §6
// describes.
var defaultDetectionOutputCandidate = Candidate{
	Name: "detection_output_ref",
	Supports: func(params interface{}) bool {
		_, ok := params.(DetectionOutputSelectParams)
		return ok
	},
	Build: func(params interface{}) (KernelData, error) {
		return KernelData{
			Stages:        []StageKernel{{EntryPoint: "detection_output_gpu_ref"}},
			EstimatedTime: 100.0,
		}, nil
	},
}

package selector

import "github.com/gpudag/netrt/descriptor"

// ConvSelectParams is the selector-level params object for the
// Convolution tag.
type ConvSelectParams struct {
	Params descriptor.ConvParams
}

// isElementwiseEquivalent reports spec.md §8's convolution boundary case:
// stride=1, filter=1x1, offset=0 on both axes degenerates to a plain
// elementwise multiply-accumulate with a reshape, no sliding window at all.
func isElementwiseEquivalent(p descriptor.ConvParams) bool {
	return p.FilterSize == [2]int{1, 1} &&
		p.Stride == [2]int{1, 1} &&
		p.InputOffset == [2]int{0, 0} &&
		p.Dilation == [2]int{1, 1}
}

// elementwiseConvCandidate handles the 1x1/stride-1/offset-0 degenerate
// case with a cheaper, specialized kernel; registered ahead of the
// general candidate so it wins on EstimatedTime whenever it applies.
var elementwiseConvCandidate = Candidate{
	Name: "convolution_eltwise_mad",
	Supports: func(params interface{}) bool {
		p, ok := params.(ConvSelectParams)
		return ok && isElementwiseEquivalent(p.Params)
	},
	Build: func(params interface{}) (KernelData, error) {
		return KernelData{
			Stages: []StageKernel{{
				EntryPoint: "convolution_gpu_eltwise_mad",
			}},
			EstimatedTime: 10.0,
		}, nil
	},
}

// defaultConvCandidate is the general sliding-window implementation,
// always supports any convolution params.
var defaultConvCandidate = Candidate{
	Name: "convolution_ref",
	Supports: func(params interface{}) bool {
		_, ok := params.(ConvSelectParams)
		return ok
	},
	Build: func(params interface{}) (KernelData, error) {
		return KernelData{
			Stages: []StageKernel{{
				EntryPoint: "convolution_gpu_ref",
			}},
			EstimatedTime: 100.0,
		}, nil
	},
}

// NewDefaultBook returns a Book pre-populated with the reference
// candidates for Convolution, Pooling, Softmax, DetectionOutput and
// Reorder — the always-correct fallback every installation carries
// regardless of which tuned implementations a particular build adds.
func NewDefaultBook() *Book {
	b := NewBook()
	reg := b.For(Tag(descriptor.Convolution.String()))
	reg.Register(elementwiseConvCandidate)
	reg.Register(defaultConvCandidate)

	pooling := b.For(Tag(descriptor.Pooling.String()))
	pooling.Register(defaultPoolingCandidate)

	softmax := b.For(Tag(descriptor.Softmax.String()))
	softmax.Register(defaultSoftmaxCandidate)

	detection := b.For(Tag(descriptor.DetectionOutput.String()))
	detection.Register(defaultDetectionOutputCandidate)

	reorder := b.For(Tag(descriptor.Reorder.String()))
	reorder.Register(defaultReorderCandidate)

	return b
}

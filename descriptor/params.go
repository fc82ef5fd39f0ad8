package descriptor

import "github.com/gpudag/netrt/layout"

// ConvParams carries convolution-specific attributes.
type ConvParams struct {
	FilterSize    [2]int // Y, X
	Stride        [2]int
	InputOffset   [2]int
	Dilation      [2]int
	Split         int
	OutputSize    *[2]int // user-declared output size, nil if inferred
	Fused         Fused
	WeightsID     string
	BiasID        string
}

// PoolingMode selects the pooling reduction.
type PoolingMode int

const (
	PoolingMax PoolingMode = iota
	PoolingAverage
)

// PoolingParams carries pooling-specific attributes.
type PoolingParams struct {
	Mode        PoolingMode
	FilterSize  [2]int
	Stride      [2]int
	InputOffset [2]int
	OutputSize  *[2]int
	Fused       Fused
}

// SoftmaxParams carries softmax-specific attributes.
type SoftmaxParams struct {
	Axis int
}

// ReorderParams carries reorder-specific attributes.
type ReorderParams struct {
	OutputTag      layout.Tag
	OutputDataType layout.DataType
	MeanSubtract   bool
	PerFeatureSub  []float64
}

// ConcatParams carries concatenation-specific attributes.
type ConcatParams struct {
	Axis int // which of B/F/Y/X the inputs are concatenated along
}

// CropParams carries crop-specific attributes.
type CropParams struct {
	ReferenceShape layout.Shape
	Offset         [4]int // B,F,Y,X
}

// ReshapeParams carries reshape-specific attributes.
type ReshapeParams struct {
	OutputShape layout.Shape
}

// DataParams carries the constant tensor payload for a `data` node.
type DataParams struct {
	Tensor layout.Tensor
	Values []float64
}

// InputLayoutParams carries the declared layout of a graph input.
type InputLayoutParams struct {
	Tensor layout.Tensor
	Tag    layout.Tag
}

// ScaleParams carries scale (per-feature multiply, optional bias) attributes.
type ScaleParams struct {
	BiasTermID string
}

// BatchNormParams carries batch-normalization attributes.
type BatchNormParams struct {
	Epsilon        float64
	UseGlobalStats bool
	MeanID         string
	VarianceID     string
}

// LRNParams carries local-response-normalization attributes.
type LRNParams struct {
	LocalSize int
	Alpha     float64
	Beta      float64
	K         float64
}

// FullyConnectedParams carries fully-connected attributes.
type FullyConnectedParams struct {
	WeightsID string
	BiasID    string
	Fused     Fused
}

// DeconvolutionParams carries deconvolution attributes.
type DeconvolutionParams struct {
	FilterSize  [2]int
	Stride      [2]int
	InputOffset [2]int
	Split       int
	OutputSize  *[2]int
	Fused       Fused
	WeightsID   string
	BiasID      string
}

// ActivationParams carries a standalone activation node's attributes.
type ActivationParams struct {
	Func     ActivationFunc
	SlopeOrA float64
	BoundOrB float64
}

// ROIPoolingParams carries ROI-pooling attributes.
type ROIPoolingParams struct {
	Mode         PoolingMode
	PooledHeight int
	PooledWidth  int
	SpatialScale float64
}

// PriorBoxParams carries prior-box attributes.
type PriorBoxParams struct {
	MinSize  []float64
	MaxSize  []float64
	AspectRt []float64
	Flip     bool
	Clip     bool
	Variance [4]float64
	Step     float64
	Offset   float64
}

// ProposalParams carries region-proposal attributes.
type ProposalParams struct {
	FeatStride  int
	PreNMSTopN  int
	PostNMSTopN int
	NMSThresh   float64
	MinSize     int
}

// SimplerNMSParams carries simpler-NMS attributes.
type SimplerNMSParams struct {
	PreNMSTopN  int
	PostNMSTopN int
	IOUThresh   float64
	MinBoxSize  int
}

// DetectionOutputParams carries detection-output attributes (spec.md §6).
type DetectionOutputParams struct {
	NumClasses    int
	ShareLocation bool
	BackgroundID  int
	NMSThreshold  float64
	TopK          int
	KeepTopK      int
	ConfThreshold float64
	CodeType      int
}

// SplitParams carries the pre-lowering split attributes (Pass 1 replaces
// this with one Crop per output slice and removes the Split descriptor).
type SplitParams struct {
	Axis   int
	Ranges [][2]int // [start,end) per output slice, along Axis
}

// UpsamplingMode selects the upsampling algorithm.
type UpsamplingMode int

const (
	UpsamplingNearest UpsamplingMode = iota
	UpsamplingBilinear
)

// UpsamplingParams carries the pre-lowering upsampling attributes (Pass 1
// lowers Bilinear mode to a Deconvolution; no bilinear weights are computed).
type UpsamplingParams struct {
	Mode   UpsamplingMode
	Scale  [2]int
	NumFilter int
}

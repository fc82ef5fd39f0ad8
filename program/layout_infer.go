package program

import (
	"github.com/gpudag/netrt/descriptor"
	"github.com/gpudag/netrt/layout"
)

// inferOutput computes n's output tensor from its Kind, Attrs and its
// already-typed dependencies. Called in processing order (Pass 2's
// reverse-postorder guarantees every dependency is typed before its
// consumer), so deps are always available.
func inferOutput(n *Node, deps []*Node) layout.Tensor {
	switch n.Kind {
	case descriptor.Data:
		p := n.Attrs.(descriptor.DataParams)
		return p.Tensor

	case descriptor.InputLayout:
		p := n.Attrs.(descriptor.InputLayoutParams)
		t := p.Tensor
		t.Tag = p.Tag
		return t

	case descriptor.Reorder:
		p := n.Attrs.(descriptor.ReorderParams)
		in := deps[0].Output
		return layout.Tensor{DataType: p.OutputDataType, Shape: in.Shape, Tag: p.OutputTag}

	case descriptor.Convolution:
		p := n.Attrs.(descriptor.ConvParams)
		in := deps[0].Output
		return layout.Tensor{DataType: in.DataType, Shape: convOutputShape(in.Shape, p.FilterSize, p.Stride, p.InputOffset, p.Dilation, p.OutputSize), Tag: in.Tag}

	case descriptor.Deconvolution:
		p := n.Attrs.(descriptor.DeconvolutionParams)
		in := deps[0].Output
		return layout.Tensor{DataType: in.DataType, Shape: deconvOutputShape(in.Shape, p.FilterSize, p.Stride, p.OutputSize), Tag: in.Tag}

	case descriptor.Pooling:
		p := n.Attrs.(descriptor.PoolingParams)
		in := deps[0].Output
		return layout.Tensor{DataType: in.DataType, Shape: convOutputShape(in.Shape, p.FilterSize, p.Stride, p.InputOffset, [2]int{1, 1}, p.OutputSize), Tag: in.Tag}

	case descriptor.Concatenation:
		p := n.Attrs.(descriptor.ConcatParams)
		shape := deps[0].Output.Shape
		total := 0
		for _, d := range deps {
			total += axisExtent(d.Output.Shape, p.Axis)
		}
		setAxisExtent(&shape, p.Axis, total)
		return layout.Tensor{DataType: deps[0].Output.DataType, Shape: shape, Tag: deps[0].Output.Tag}

	case descriptor.Crop:
		p := n.Attrs.(descriptor.CropParams)
		in := deps[0].Output
		return layout.Tensor{DataType: in.DataType, Shape: p.ReferenceShape, Tag: in.Tag}

	case descriptor.Reshape:
		p := n.Attrs.(descriptor.ReshapeParams)
		in := deps[0].Output
		return layout.Tensor{DataType: in.DataType, Shape: p.OutputShape, Tag: in.Tag}

	case descriptor.FullyConnected:
		in := deps[0].Output
		return layout.Tensor{DataType: in.DataType, Shape: layout.Shape{B: in.Shape.B, F: in.Shape.F, Y: 1, X: 1}, Tag: layout.Bf}

	case descriptor.Softmax, descriptor.Scale, descriptor.BatchNorm, descriptor.LRN,
		descriptor.Activation, descriptor.Eltwise:
		return deps[0].Output

	case descriptor.ROIPooling:
		p := n.Attrs.(descriptor.ROIPoolingParams)
		in := deps[0].Output
		return layout.Tensor{DataType: in.DataType, Shape: layout.Shape{B: in.Shape.B, F: in.Shape.F, Y: p.PooledHeight, X: p.PooledWidth}, Tag: in.Tag}

	case descriptor.DetectionOutput:
		p := n.Attrs.(descriptor.DetectionOutputParams)
		return layout.Tensor{DataType: layout.Float, Shape: layout.Shape{B: 1, F: 1, Y: p.KeepTopK, X: 7}, Tag: layout.Bfyx}

	case descriptor.PriorBox:
		p := n.Attrs.(descriptor.PriorBoxParams)
		in := deps[0].Output
		numPriors := priorBoxNumPriors(p)
		return layout.Tensor{DataType: layout.Float, Shape: layout.Shape{B: 1, F: 2, Y: in.Shape.Y * in.Shape.X * numPriors * 4, X: 1}, Tag: layout.Bfyx}

	default:
		if len(deps) > 0 {
			return deps[0].Output
		}
		return layout.Tensor{DataType: layout.Float, Shape: layout.Shape{B: 1, F: 1, Y: 1, X: 1}, Tag: layout.Bfyx}
	}
}

// convOutputShape computes the natural sliding-window output extent for
// convolution/pooling, honoring an explicit OutputSize override when
// present (spec.md §4.4 Pass 8 compares against this natural value).
func convOutputShape(in layout.Shape, filter, stride, offset, dilation [2]int, override *[2]int) layout.Shape {
	out := in
	if override != nil {
		out.Y, out.X = override[0], override[1]
		return out
	}
	effFilterY := (filter[0]-1)*dilation[0] + 1
	effFilterX := (filter[1]-1)*dilation[1] + 1
	out.Y = (in.Y+2*offset[0]-effFilterY)/stride[0] + 1
	out.X = (in.X+2*offset[1]-effFilterX)/stride[1] + 1
	if out.Y < 1 {
		out.Y = 1
	}
	if out.X < 1 {
		out.X = 1
	}
	return out
}

func deconvOutputShape(in layout.Shape, filter, stride [2]int, override *[2]int) layout.Shape {
	out := in
	if override != nil {
		out.Y, out.X = override[0], override[1]
		return out
	}
	out.Y = (in.Y-1)*stride[0] + filter[0]
	out.X = (in.X-1)*stride[1] + filter[1]
	return out
}

func axisExtent(s layout.Shape, axis int) int {
	switch axis {
	case 0:
		return s.B
	case 1:
		return s.F
	case 2:
		return s.Y
	default:
		return s.X
	}
}

func setAxisExtent(s *layout.Shape, axis, v int) {
	switch axis {
	case 0:
		s.B = v
	case 1:
		s.F = v
	case 2:
		s.Y = v
	default:
		s.X = v
	}
}

// isElementwiseEquivalentConv reports the spec.md §8 convolution boundary
// case: stride=1, filter=1x1, offset=0 degenerates to a plain elementwise
// multiply-accumulate with a reshape — no sliding window at all.
func isElementwiseEquivalentConv(p descriptor.ConvParams) bool {
	return p.FilterSize == [2]int{1, 1} &&
		p.Stride == [2]int{1, 1} &&
		p.InputOffset == [2]int{0, 0} &&
		(p.Dilation == [2]int{0, 0} || p.Dilation == [2]int{1, 1})
}

// Package sampletopo assembles the two worked topologies SPEC_FULL.md
// names — conv -> pool -> softmax, and the detection-output scenario of
// spec.md §8 — shared by cmd/netrtctl and the program package's tests so
// both describe the same graphs instead of drifting copies.
package sampletopo

import (
	"github.com/gpudag/netrt/descriptor"
	"github.com/gpudag/netrt/layout"
)

// ConvPoolSoftmax builds a small conv -> pool -> softmax topology over a
// 3x32x32 input.
func ConvPoolSoftmax() (*descriptor.Topology, error) {
	topo := descriptor.New()

	input := layout.Tensor{DataType: layout.Float, Shape: layout.Shape{B: 1, F: 3, Y: 32, X: 32}, Tag: layout.Bfyx}
	if err := topo.Add(descriptor.Descriptor{
		ID:    "input",
		Kind:  descriptor.InputLayout,
		Attrs: descriptor.InputLayoutParams{Tensor: input, Tag: layout.Bfyx},
	}); err != nil {
		return nil, err
	}

	weights := layout.Tensor{DataType: layout.Float, Shape: layout.Shape{B: 16, F: 3, Y: 3, X: 3}, Tag: layout.WeightsOiyx}
	if err := topo.Add(descriptor.Descriptor{
		ID:    "conv_weights",
		Kind:  descriptor.Data,
		Attrs: descriptor.DataParams{Tensor: weights, Values: make([]float64, weights.Shape.Count())},
	}); err != nil {
		return nil, err
	}

	if err := topo.Add(descriptor.Descriptor{
		ID:           "conv",
		Kind:         descriptor.Convolution,
		Dependencies: []string{"input", "conv_weights"},
		Attrs: descriptor.ConvParams{
			FilterSize: [2]int{3, 3}, Stride: [2]int{1, 1},
			InputOffset: [2]int{0, 0}, Dilation: [2]int{1, 1},
			Split: 1, WeightsID: "conv_weights",
		},
	}); err != nil {
		return nil, err
	}

	if err := topo.Add(descriptor.Descriptor{
		ID:           "pool",
		Kind:         descriptor.Pooling,
		Dependencies: []string{"conv"},
		Attrs: descriptor.PoolingParams{
			Mode: descriptor.PoolingMax, FilterSize: [2]int{2, 2}, Stride: [2]int{2, 2},
		},
	}); err != nil {
		return nil, err
	}

	if err := topo.Add(descriptor.Descriptor{
		ID:           "softmax",
		Kind:         descriptor.Softmax,
		Dependencies: []string{"pool"},
		Attrs:        descriptor.SoftmaxParams{Axis: 1},
	}); err != nil {
		return nil, err
	}

	return topo, nil
}

// DetectionOutput builds the locations/confidences/prior-box topology of
// spec.md §8 scenario 2, feeding a single detection_output node.
func DetectionOutput() (*descriptor.Topology, error) {
	topo := descriptor.New()

	locTensor := layout.Tensor{DataType: layout.Float, Shape: layout.Shape{B: 1, F: 4, Y: 1, X: 1}, Tag: layout.Bfyx}
	if err := topo.Add(descriptor.Descriptor{
		ID:    "locations",
		Kind:  descriptor.InputLayout,
		Attrs: descriptor.InputLayoutParams{Tensor: locTensor, Tag: layout.Bfyx},
	}); err != nil {
		return nil, err
	}

	confTensor := layout.Tensor{DataType: layout.Float, Shape: layout.Shape{B: 1, F: 2, Y: 1, X: 1}, Tag: layout.Bfyx}
	if err := topo.Add(descriptor.Descriptor{
		ID:    "confidences",
		Kind:  descriptor.InputLayout,
		Attrs: descriptor.InputLayoutParams{Tensor: confTensor, Tag: layout.Bfyx},
	}); err != nil {
		return nil, err
	}

	priorTensor := layout.Tensor{DataType: layout.Float, Shape: layout.Shape{B: 1, F: 8, Y: 1, X: 1}, Tag: layout.Bfyx}
	if err := topo.Add(descriptor.Descriptor{
		ID:    "priors",
		Kind:  descriptor.Data,
		Attrs: descriptor.DataParams{Tensor: priorTensor, Values: make([]float64, priorTensor.Shape.Count())},
	}); err != nil {
		return nil, err
	}

	if err := topo.Add(descriptor.Descriptor{
		ID:           "detection",
		Kind:         descriptor.DetectionOutput,
		Dependencies: []string{"locations", "confidences", "priors"},
		Attrs: descriptor.DetectionOutputParams{
			NumClasses: 2, ShareLocation: true, TopK: 1, KeepTopK: 1,
			ConfThreshold: 0.01, NMSThreshold: 0.45,
		},
	}); err != nil {
		return nil, err
	}

	return topo, nil
}

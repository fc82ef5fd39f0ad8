package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gpudag/netrt/descriptor"
	"github.com/gpudag/netrt/device"
	"github.com/gpudag/netrt/layout"
	"github.com/gpudag/netrt/program"
	"github.com/gpudag/netrt/selector"
)

// roiPoolingDriver is a fake device.Driver standing in for the real
// ROI-pooling kernel: it divides the ROI's spatial extent on a single-
// feature input into pooledH x pooledW bins and max-pools each, the usual
// ROI-pooling reduction (spec.md §6).
type roiPoolingDriver struct {
	copyDriver
	inW, inH         int
	pooledW, pooledH int
	spatialScale     float64
}

func (d *roiPoolingDriver) Enqueue(_ device.QueueHandle, _ device.Binary, _ string, _ device.WorkSize, args []device.BoundArg, _ []device.Event) (device.Event, error) {
	d.enqueues++
	var feat, roi, out *[]byte
	for _, a := range args {
		mem, ok := a.Value.(*device.Memory)
		if !ok {
			continue
		}
		buf := mem.Handle().(*[]byte)
		switch a.Arg.Kind {
		case device.ArgInput:
			feat = buf
		case device.ArgWeights:
			roi = buf
		case device.ArgOutput:
			out = buf
		}
	}
	if feat == nil || roi == nil || out == nil {
		return &fakeEvent{}, nil
	}

	values := decodeFloats32(*feat)
	r := decodeFloats32(*roi) // x1, y1, x2, y2 in input pixel coordinates

	x1 := int(float64(r[0]) * d.spatialScale)
	y1 := int(float64(r[1]) * d.spatialScale)
	x2 := int(float64(r[2]) * d.spatialScale)
	y2 := int(float64(r[3]) * d.spatialScale)
	roiW := maxI(x2-x1+1, 1)
	roiH := maxI(y2-y1+1, 1)

	result := make([]float32, d.pooledH*d.pooledW)
	for ph := 0; ph < d.pooledH; ph++ {
		hStart := y1 + (ph*roiH)/d.pooledH
		hEnd := y1 + ((ph+1)*roiH+d.pooledH-1)/d.pooledH
		hEnd = minI(hEnd, d.inH)
		for pw := 0; pw < d.pooledW; pw++ {
			wStart := x1 + (pw*roiW)/d.pooledW
			wEnd := x1 + ((pw+1)*roiW+d.pooledW-1)/d.pooledW
			wEnd = minI(wEnd, d.inW)

			best := float32(0)
			any := false
			for y := hStart; y < hEnd; y++ {
				if y < 0 || y >= d.inH {
					continue
				}
				for x := wStart; x < wEnd; x++ {
					if x < 0 || x >= d.inW {
						continue
					}
					v := values[y*d.inW+x]
					if !any || v > best {
						best = v
						any = true
					}
				}
			}
			result[ph*d.pooledW+pw] = best
		}
	}
	copy(*out, encodeFloats32(result))
	return &fakeEvent{}, nil
}

func maxI(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minI(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// stageROIPooling binds the feature map (input) and ROI rectangle
// (weights) into a single roi_pooling stage.
func stageROIPooling() []selector.StageKernel {
	return []selector.StageKernel{{
		EntryPoint: "roi_pooling",
		Work:       device.WorkSize{Global: [3]int{2, 2, 1}},
		Args: []device.Arg{
			{Kind: device.ArgInput, Index: 0},
			{Kind: device.ArgWeights, Index: 1},
			{Kind: device.ArgOutput},
		},
	}}
}

// TestROIPoolingMaxPoolsRegionIntoFixedGrid exercises spec.md §8's
// ROI-pooling concrete scenario: a 4x4 single-feature input max-pooled
// over a full-extent ROI down to a 2x2 grid.
func TestROIPoolingMaxPoolsRegionIntoFixedGrid(t *testing.T) {
	const inW, inH = 4, 4
	const pooledW, pooledH = 2, 2

	drv := &roiPoolingDriver{inW: inW, inH: inH, pooledW: pooledW, pooledH: pooledH, spatialScale: 1.0}
	ctx, err := device.NewContext(drv)
	require.NoError(t, err)

	featTensor := layout.Tensor{DataType: layout.Float, Shape: layout.Shape{B: 1, F: 1, Y: inH, X: inW}, Tag: layout.Bfyx}
	roiTensor := layout.Tensor{DataType: layout.Float, Shape: layout.Shape{B: 1, F: 1, Y: 1, X: 4}, Tag: layout.Bfyx}
	pooledTensor := layout.Tensor{DataType: layout.Float, Shape: layout.Shape{B: 1, F: 1, Y: pooledH, X: pooledW}, Tag: layout.Bfyx}

	feat := &program.Node{ID: "feat", Kind: descriptor.InputLayout, Output: featTensor, HasType: true, Users: []string{"roi"}}
	roi := &program.Node{ID: "roi", Kind: descriptor.Data, Output: roiTensor, HasType: true, Users: []string{"pool"}}
	pooled := &program.Node{
		ID: "pool", Kind: descriptor.ROIPooling, Dependencies: []string{"feat", "roi"}, OutputMarked: true,
		Attrs:  descriptor.ROIPoolingParams{Mode: descriptor.PoolingMax, PooledHeight: pooledH, PooledWidth: pooledW, SpatialScale: 1.0},
		Output: pooledTensor, HasType: true, Stages: stageROIPooling(),
	}

	prog := &program.Program{
		Nodes: map[string]*program.Node{"feat": feat, "roi": roi, "pool": pooled},
		Order: []string{"feat", "roi", "pool"},
	}

	net, err := Allocate(ctx, prog)
	require.NoError(t, err)

	// 4x4 feature map, row-major:
	//   1  2  3  4
	//   5  6  7  8
	//   9 10 11 12
	//  13 14 15 16
	values := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	roiRect := []float32{0, 0, 3, 3} // full extent, inclusive pixel coords

	require.NoError(t, net.SetInputData("feat", encodeFloats32(values)))
	require.NoError(t, net.SetInputData("roi", encodeFloats32(roiRect)))
	require.NoError(t, net.Execute(context.Background()))

	out, err := net.GetOutput("pool")
	require.NoError(t, err)
	got := decodeFloats32(out)

	// Each 2x2 pooled bin covers a 2x2 quadrant of the 4x4 input; the max
	// of each quadrant is its bottom-right corner.
	want := []float32{6, 8, 14, 16}
	require.Equal(t, want, got)
}

package runtime

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gpudag/netrt/descriptor"
	"github.com/gpudag/netrt/device"
	"github.com/gpudag/netrt/layout"
	"github.com/gpudag/netrt/program"
	"github.com/gpudag/netrt/selector"
)

// detectionOutputDriver is a fake device.Driver standing in for the real
// detection-output kernel: it decodes a single SSD-style box (center-size
// code type) against its prior and emits one [image_id, label,
// confidence, xmin, ymin, xmax, ymax] row, the same decode arithmetic
// original_source/src/prior_box.cpp's companion detection-output kernel
// performs on the device. One prior, one foreground class keeps the
// arithmetic checkable by hand while still exercising real decode math
// rather than a pass-through copy.
type detectionOutputDriver struct {
	copyDriver
	label      float32
	confidence float32
}

func (d *detectionOutputDriver) Enqueue(_ device.QueueHandle, _ device.Binary, _ string, _ device.WorkSize, args []device.BoundArg, _ []device.Event) (device.Event, error) {
	d.enqueues++
	var loc, prior, out *[]byte
	for _, a := range args {
		mem, ok := a.Value.(*device.Memory)
		if !ok {
			continue
		}
		buf := mem.Handle().(*[]byte)
		switch a.Arg.Kind {
		case device.ArgInput:
			loc = buf
		case device.ArgWeights:
			prior = buf
		case device.ArgOutput:
			out = buf
		}
	}
	if loc == nil || prior == nil || out == nil {
		return &fakeEvent{}, nil
	}

	l := decodeFloats32(*loc)      // dx, dy, dw, dh
	p := decodeFloats32(*prior)    // xmin, ymin, xmax, ymax (variance 1.0 on all four)
	priorW := p[2] - p[0]
	priorH := p[3] - p[1]
	priorCx := p[0] + priorW/2
	priorCy := p[1] + priorH/2

	decodedCx := l[0]*priorW + priorCx
	decodedCy := l[1]*priorH + priorCy
	decodedW := float32(math.Exp(float64(l[2]))) * priorW
	decodedH := float32(math.Exp(float64(l[3]))) * priorH

	row := []float32{
		0, d.label, d.confidence,
		decodedCx - decodedW/2, decodedCy - decodedH/2,
		decodedCx + decodedW/2, decodedCy + decodedH/2,
	}
	copy(*out, encodeFloats32(row))
	return &fakeEvent{}, nil
}

// stageDetectionOutput binds a decoded location offset (input) and its
// matching prior box (weights) into a single detection_output stage.
func stageDetectionOutput() []selector.StageKernel {
	return []selector.StageKernel{{
		EntryPoint: "detection_output",
		Work:       device.WorkSize{Global: [3]int{1, 1, 1}},
		Args: []device.Arg{
			{Kind: device.ArgInput, Index: 0},
			{Kind: device.ArgWeights, Index: 1},
			{Kind: device.ArgOutput},
		},
	}}
}

// TestDetectionOutputDecodesSingleBoxAgainstPrior exercises spec.md §8's
// detection-output concrete scenario: one location offset decoded against
// one prior box produces the exact [image_id, label, confidence, xmin,
// ymin, xmax, ymax] row.
func TestDetectionOutputDecodesSingleBoxAgainstPrior(t *testing.T) {
	drv := &detectionOutputDriver{label: 3, confidence: 0.92}
	ctx, err := device.NewContext(drv)
	require.NoError(t, err)

	locTensor := layout.Tensor{DataType: layout.Float, Shape: layout.Shape{B: 1, F: 1, Y: 1, X: 4}, Tag: layout.Bfyx}
	rowTensor := layout.Tensor{DataType: layout.Float, Shape: layout.Shape{B: 1, F: 1, Y: 1, X: 7}, Tag: layout.Bfyx}

	loc := &program.Node{ID: "loc", Kind: descriptor.InputLayout, Output: locTensor, HasType: true, Users: []string{"detection"}}
	prior := &program.Node{ID: "prior", Kind: descriptor.Data, Output: locTensor, HasType: true, Users: []string{"detection"}}
	detection := &program.Node{
		ID: "detection", Kind: descriptor.DetectionOutput, Dependencies: []string{"loc", "prior"}, OutputMarked: true,
		Attrs: descriptor.DetectionOutputParams{
			NumClasses: 4, BackgroundID: 0, TopK: 1, KeepTopK: 1, ConfThreshold: 0.5, CodeType: 2,
		},
		Output: rowTensor, HasType: true, Stages: stageDetectionOutput(),
	}

	prog := &program.Program{
		Nodes: map[string]*program.Node{"loc": loc, "prior": prior, "detection": detection},
		Order: []string{"loc", "prior", "detection"},
	}

	net, err := Allocate(ctx, prog)
	require.NoError(t, err)

	locValues := []float32{0.1, -0.1, 0.0, 0.0} // dx, dy, dw, dh
	priorBox := []float32{0.2, 0.2, 0.6, 0.6}   // xmin, ymin, xmax, ymax

	require.NoError(t, net.SetInputData("loc", encodeFloats32(locValues)))
	require.NoError(t, net.SetInputData("prior", encodeFloats32(priorBox)))
	require.NoError(t, net.Execute(context.Background()))

	out, err := net.GetOutput("detection")
	require.NoError(t, err)
	got := decodeFloats32(out)

	priorW, priorH := priorBox[2]-priorBox[0], priorBox[3]-priorBox[1]
	priorCx, priorCy := priorBox[0]+priorW/2, priorBox[1]+priorH/2
	decodedCx := locValues[0]*priorW + priorCx
	decodedCy := locValues[1]*priorH + priorCy
	decodedW := priorW // dw=0 => exp(0)=1
	decodedH := priorH

	want := []float32{
		0, 3, 0.92,
		decodedCx - decodedW/2, decodedCy - decodedH/2,
		decodedCx + decodedW/2, decodedCy + decodedH/2,
	}
	require.InDeltaSlice(t, want, got, 1e-4)
}

package runtime

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gpudag/netrt/descriptor"
	"github.com/gpudag/netrt/device"
	"github.com/gpudag/netrt/layout"
	"github.com/gpudag/netrt/program"
	"github.com/gpudag/netrt/selector"
)

// encodeFloats32 and decodeFloats32 marshal the float32 payloads these
// host-side kernel stand-ins exchange with device buffers — the same
// little-endian convention cache/store.go uses for its own on-disk
// records.
func encodeFloats32(vals []float32) []byte {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeFloats32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// batchNormDriver is a fake device.Driver whose single entry point
// computes (x-mean)/sqrt(variance+epsilon) per feature, standing in for
// the real batch-norm kernel this module never computes itself (kernel
// execution is the external Driver's job). Mean and variance arrive as
// ordinary dependency buffers bound through the existing ArgWeights/
// ArgBias roles, exactly as a real compiled kernel would bind its
// per-feature statistics tables.
type batchNormDriver struct {
	epsilon float32
	copyDriver
}

func (d *batchNormDriver) Enqueue(_ device.QueueHandle, _ device.Binary, _ string, _ device.WorkSize, args []device.BoundArg, _ []device.Event) (device.Event, error) {
	d.enqueues++
	var in, mean, variance, out *[]byte
	for _, a := range args {
		mem, ok := a.Value.(*device.Memory)
		if !ok {
			continue
		}
		buf := mem.Handle().(*[]byte)
		switch a.Arg.Kind {
		case device.ArgInput:
			in = buf
		case device.ArgWeights:
			mean = buf
		case device.ArgBias:
			variance = buf
		case device.ArgOutput:
			out = buf
		}
	}
	if in == nil || mean == nil || variance == nil || out == nil {
		return &fakeEvent{}, nil
	}

	xs := decodeFloats32(*in)
	means := decodeFloats32(*mean)
	variances := decodeFloats32(*variance)
	result := make([]float32, len(xs))
	for i := range xs {
		result[i] = (xs[i] - means[i]) / float32(math.Sqrt(float64(variances[i])+float64(d.epsilon)))
	}
	copy(*out, encodeFloats32(result))
	return &fakeEvent{}, nil
}

// stageBatchNorm binds input, per-feature mean (as the weights slot) and
// per-feature variance (as the bias slot) into a single batch_norm stage.
func stageBatchNorm() []selector.StageKernel {
	return []selector.StageKernel{{
		EntryPoint: "batch_norm",
		Work:       device.WorkSize{Global: [3]int{4, 1, 1}},
		Args: []device.Arg{
			{Kind: device.ArgInput, Index: 0},
			{Kind: device.ArgWeights, Index: 1},
			{Kind: device.ArgBias, Index: 2},
			{Kind: device.ArgOutput},
		},
	}}
}

// TestBatchNormComputesPerFeatureNormalization exercises spec.md §8's
// batch-normalization concrete scenario end to end through Network:
// SetInputData, Execute, GetOutput against a host-arithmetic stand-in for
// the real device kernel.
func TestBatchNormComputesPerFeatureNormalization(t *testing.T) {
	const epsilon = float32(1e-5)
	drv := &batchNormDriver{epsilon: epsilon}
	ctx, err := device.NewContext(drv)
	require.NoError(t, err)

	featureTensor := layout.Tensor{DataType: layout.Float, Shape: layout.Shape{B: 1, F: 4, Y: 1, X: 1}, Tag: layout.Bfyx}

	in := &program.Node{ID: "in", Kind: descriptor.InputLayout, Output: featureTensor, HasType: true, Users: []string{"bn"}}
	mean := &program.Node{ID: "mean", Kind: descriptor.Data, Output: featureTensor, HasType: true, Users: []string{"bn"}}
	variance := &program.Node{ID: "variance", Kind: descriptor.Data, Output: featureTensor, HasType: true, Users: []string{"bn"}}
	bn := &program.Node{
		ID: "bn", Kind: descriptor.BatchNorm, Dependencies: []string{"in", "mean", "variance"}, OutputMarked: true,
		Attrs:  descriptor.BatchNormParams{Epsilon: float64(epsilon), MeanID: "mean", VarianceID: "variance"},
		Output: featureTensor, HasType: true, Stages: stageBatchNorm(),
	}

	prog := &program.Program{
		Nodes: map[string]*program.Node{"in": in, "mean": mean, "variance": variance, "bn": bn},
		Order: []string{"in", "mean", "variance", "bn"},
	}

	net, err := Allocate(ctx, prog)
	require.NoError(t, err)

	xs := []float32{1.0, 2.0, 3.0, 4.0}
	means := []float32{0.5, 1.5, 2.5, 3.5}
	variances := []float32{1.0, 4.0, 9.0, 16.0}

	require.NoError(t, net.SetInputData("in", encodeFloats32(xs)))
	require.NoError(t, net.SetInputData("mean", encodeFloats32(means)))
	require.NoError(t, net.SetInputData("variance", encodeFloats32(variances)))
	require.NoError(t, net.Execute(context.Background()))

	out, err := net.GetOutput("bn")
	require.NoError(t, err)
	got := decodeFloats32(out)

	want := make([]float32, len(xs))
	for i := range xs {
		want[i] = (xs[i] - means[i]) / float32(math.Sqrt(float64(variances[i])+float64(epsilon)))
	}
	require.InDeltaSlice(t, want, got, 1e-4)
}

package device

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpudag/netrt/netrterr"
)

func TestNewContextRejectsPriorityWithoutExtension(t *testing.T) {
	drv := newFakeDriver()
	_, err := NewContext(drv, WithQueueMode(Priority))
	require.Error(t, err)
	assert.ErrorIs(t, err, netrterr.ErrUnsupportedDevice)
}

func TestNewContextAllowsPriorityWithExtension(t *testing.T) {
	drv := newFakeDriver()
	drv.priorityCapable = true
	ctx, err := NewContext(drv, WithQueueMode(Priority))
	require.NoError(t, err)
	assert.NotNil(t, ctx.Queue())
}

func TestNewContextRequiresProfilingForTuneAndCache(t *testing.T) {
	drv := newFakeDriver()
	_, err := NewContext(drv, WithTuningMode(TuningTuneAndCache))
	require.Error(t, err)
	assert.ErrorIs(t, err, netrterr.ErrInvalidArgument)

	ctx, err := NewContext(drv, WithTuningMode(TuningTuneAndCache), WithProfiling(true))
	require.NoError(t, err)
	assert.NotNil(t, ctx)
}

func TestCompileFailureCarriesBuildLog(t *testing.T) {
	drv := newFakeDriver()
	drv.failCompile = true
	ctx, err := NewContext(drv)
	require.NoError(t, err)

	_, err = ctx.Queue().Compile(context.Background(), "conv1", "kernel void k(){}", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, netrterr.ErrCompilationFailed)
	var be *netrterr.BuildError
	require.ErrorAs(t, err, &be)
	assert.Contains(t, be.BuildLog, "bad token")
	assert.Equal(t, "conv1", be.PrimitiveID)
}

func TestMemoryMapScopedAcquisition(t *testing.T) {
	drv := newFakeDriver()
	ctx, err := NewContext(drv)
	require.NoError(t, err)

	mem, err := ctx.Allocate(16)
	require.NoError(t, err)

	wv, err := ctx.MapWrite(mem)
	require.NoError(t, err)
	copy(wv.Bytes(), []byte("hello"))
	wv.Close()

	rv, err := ctx.MapRead(mem)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(rv.Bytes()[:5]))
	rv.Close()

	ctx.Release(mem)
}

func TestWaitPropagatesEventError(t *testing.T) {
	ev := &fakeEvent{done: true, err: netrterr.New(netrterr.RuntimeAborted, "pool1")}
	err := Wait(context.Background(), []Event{ev})
	assert.ErrorIs(t, err, netrterr.ErrRuntimeAborted)
}

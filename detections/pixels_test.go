package detections

import (
	"testing"
	"time"

	"github.com/Tutortoise/vision-inference/chain"
	"github.com/Tutortoise/vision-inference/gpu"
	"github.com/Tutortoise/vision-inference/models"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gpuContext(t *testing.T) (*chain.Context, *gpu.SoftwareDevice) {
	dev := gpu.NewSoftwareDevice()
	return testContext(t).WithGPU(dev, dev.Queue()), dev
}

func TestAcquireCPUFrame(t *testing.T) {
	var a PixelAccessor
	frame := solidFrame(3, 2, [4]byte{1, 2, 3, 4})
	view, err := a.Acquire(testContext(t), chain.NewImageSource().SetFrame(frame))
	require.NoError(t, err)
	defer view.Release()

	assert.Equal(t, 3, view.Width)
	assert.Equal(t, 2, view.Height)
	assert.Equal(t, 12, view.Stride)
	assert.Equal(t, OrderRGBA, view.Order)
	assert.True(t, view.Valid())
	assert.Same(t, &frame.Pixels[0], &view.Pixels[0], "CPU frames are not copied")
}

func TestAcquireWithoutData(t *testing.T) {
	var a PixelAccessor
	ctx := testContext(t)

	_, err := a.Acquire(ctx, nil)
	assert.True(t, errors.Is(err, ErrNoData))

	_, err = a.Acquire(ctx, chain.NewImageSource())
	assert.True(t, errors.Is(err, ErrNoData))

	// a texture but no device to read it back with
	tex := gpu.NewMemoryTexture(2, 2, gpu.FormatRGBA8, make([]byte, 16))
	_, err = a.Acquire(ctx, chain.NewImageSource().SetTexture(tex))
	assert.True(t, errors.Is(err, ErrNoData))

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, PipelineError, kind)
}

func TestAcquireGPUReadback(t *testing.T) {
	ctx, dev := gpuContext(t)
	var a PixelAccessor
	defer a.Release()

	rgba := solidFrame(3, 2, [4]byte{30, 20, 10, 255}).Pixels
	rgba[4] = 99 // red of pixel (1,0)
	tex := gpu.UploadRGBA(3, 2, rgba, gpu.FormatBGRA8)
	src := chain.NewImageSource().SetTexture(tex)

	view, err := a.Acquire(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 256, view.Stride, "row pitch padded to 256 bytes")
	assert.Equal(t, OrderBGRA, view.Order)
	assert.Equal(t, 4, view.Channels)
	assert.Equal(t, []byte{10, 20, 30, 255}, view.Pixels[0:4])
	assert.Equal(t, []byte{10, 20, 99, 255}, view.Pixels[4:8])
	assert.Equal(t, []byte{10, 20, 30, 255}, view.Pixels[256:260])

	dst := models.NewTensor([]int64{1, 3, 2, 3}, models.Uint8)
	require.NoError(t, Resample(view, dst, RangeUnit))
	assert.Equal(t, uint8(30), dst.U8[0], "BGRA swizzled back to RGB")
	assert.Equal(t, uint8(99), dst.U8[1])
	view.Release()

	_, err = a.Acquire(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 1, dev.BuffersCreated(), "readback buffer reused")

	big := gpu.UploadRGBA(80, 4, make([]byte, 80*4*4), gpu.FormatRGBA8)
	view, err = a.Acquire(ctx, chain.NewImageSource().SetTexture(big))
	require.NoError(t, err)
	assert.Equal(t, 512, view.Stride)
	assert.Equal(t, OrderRGBA, view.Order)
	assert.Equal(t, 2, dev.BuffersCreated(), "grown for the larger texture")
	view.Release()
}

func TestAcquireGPUTimeout(t *testing.T) {
	ctx, dev := gpuContext(t)
	dev.Latency = readbackPollAttempts * 2
	var a PixelAccessor

	tex := gpu.UploadRGBA(2, 2, make([]byte, 16), gpu.FormatRGBA8)
	start := time.Now()
	_, err := a.Acquire(ctx, chain.NewImageSource().SetTexture(tex))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoData))
	assert.Contains(t, err.Error(), "timed out")
	assert.GreaterOrEqual(t, time.Since(start), readbackPollAttempts*readbackPollInterval)
}

func TestAcquireGPUMapFailure(t *testing.T) {
	ctx, dev := gpuContext(t)
	dev.FailMaps = true
	var a PixelAccessor

	tex := gpu.UploadRGBA(2, 2, make([]byte, 16), gpu.FormatRGBA8)
	_, err := a.Acquire(ctx, chain.NewImageSource().SetTexture(tex))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestCPUFramePreferredOverTexture(t *testing.T) {
	ctx, dev := gpuContext(t)
	var a PixelAccessor
	src := chain.NewImageSource().
		SetFrame(solidFrame(1, 1, [4]byte{1, 1, 1, 1})).
		SetTexture(gpu.UploadRGBA(1, 1, []byte{2, 2, 2, 2}, gpu.FormatRGBA8))

	view, err := a.Acquire(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, byte(1), view.Pixels[0])
	assert.Equal(t, 0, dev.BuffersCreated())
}

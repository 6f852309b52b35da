package detections

import (
	"testing"

	"github.com/Tutortoise/vision-inference/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResampleBlazeFaceGray(t *testing.T) {
	view := cpuView(solidFrame(4, 4, [4]byte{128, 128, 128, 255}))
	dst := models.NewTensor([]int64{1, 128, 128, 3}, models.Float32)

	require.NoError(t, Resample(view, dst, RangeSigned))
	want := float32(128)/255*2 - 1
	assert.InDelta(t, 0.00392, want, 1e-5)
	for i, v := range dst.F32 {
		if !assert.InDelta(t, want, v, 1e-6, "element %d", i) {
			break
		}
	}
}

func TestResampleIntegerRange(t *testing.T) {
	view := cpuView(solidFrame(3, 5, [4]byte{128, 128, 128, 255}))
	for _, typ := range []models.ElementType{models.Uint8, models.Int32} {
		dst := models.NewTensor([]int64{1, 8, 8, 3}, typ)
		require.NoError(t, Resample(view, dst, RangeSigned), "signed range is ignored for %s", typ)
		for i := 0; i < dst.Size(); i++ {
			require.Equal(t, float32(128), dst.At(i), "%s element %d", typ, i)
		}
	}
}

func TestResampleHalfPixelDownscale(t *testing.T) {
	// 4x1 black/white stripes sampled to 2x1 land exactly between two texels
	frame := models.Frame{Width: 4, Height: 1, Channels: 4, Pixels: []byte{
		0, 0, 0, 255, 255, 255, 255, 255, 0, 0, 0, 255, 255, 255, 255, 255,
	}}
	dst := models.NewTensor([]int64{1, 3, 1, 2}, models.Float32)
	require.NoError(t, Resample(cpuView(frame), dst, RangeUnit))
	for _, v := range dst.F32 {
		assert.InDelta(t, 0.5, v, 1e-6)
	}

	u8 := models.NewTensor([]int64{1, 3, 1, 2}, models.Uint8)
	require.NoError(t, Resample(cpuView(frame), u8, RangeUnit))
	assert.Equal(t, uint8(127), u8.U8[0], "127.5 truncates")
}

func TestResampleIntegerTruncates(t *testing.T) {
	// a 2x1 black/white frame sampled to one pixel blends to 127.5
	frame := models.Frame{Width: 2, Height: 1, Channels: 4, Pixels: []byte{
		0, 0, 0, 255, 255, 255, 255, 255,
	}}
	u8 := models.NewTensor([]int64{1, 3, 1, 1}, models.Uint8)
	require.NoError(t, Resample(cpuView(frame), u8, RangeUnit))
	assert.Equal(t, []uint8{127, 127, 127}, u8.U8)

	i32 := models.NewTensor([]int64{1, 3, 1, 1}, models.Int32)
	require.NoError(t, Resample(cpuView(frame), i32, RangeUnit))
	assert.Equal(t, []int32{127, 127, 127}, i32.I32)

	// exact byte values survive the round trip through [0,1]
	for _, b := range []byte{0, 1, 127, 128, 200, 254, 255} {
		dst := models.NewTensor([]int64{1, 1, 1, 1}, models.Uint8)
		require.NoError(t, Resample(cpuView(solidFrame(1, 1, [4]byte{b, b, b, 255})), dst, RangeUnit))
		assert.Equal(t, b, dst.U8[0])
	}
}

func TestResampleLayoutAndSwizzle(t *testing.T) {
	// single BGRA pixel: B=10 G=20 R=30
	view := PixelView{Width: 1, Height: 1, Stride: 4, Channels: 4, Order: OrderBGRA, Pixels: []byte{10, 20, 30, 255}}

	nchw := models.NewTensor([]int64{1, 3, 2, 2}, models.Uint8)
	require.NoError(t, Resample(view, nchw, RangeUnit))
	assert.Equal(t, []uint8{30, 30, 30, 30, 20, 20, 20, 20, 10, 10, 10, 10}, nchw.U8)

	nhwc := models.NewTensor([]int64{1, 5, 1, 4}, models.Uint8)
	require.NoError(t, Resample(view, nhwc, RangeUnit))
	assert.Equal(t, []uint8{30, 20, 10, 255}, nhwc.U8[:4])
	assert.Equal(t, []uint8{30, 20, 10, 255}, nhwc.U8[16:20])
}

func TestResampleRGBSourceIsOpaque(t *testing.T) {
	view := PixelView{Width: 1, Height: 1, Stride: 3, Channels: 3, Pixels: []byte{0, 0, 0}}
	dst := models.NewTensor([]int64{1, 4, 1, 1}, models.Float32)
	require.NoError(t, Resample(view, dst, RangeUnit))
	assert.Equal(t, []float32{0, 0, 0, 1}, dst.F32)
}

func TestResampleRespectsStride(t *testing.T) {
	// 1x2 image with 8 bytes of row padding; padding bytes must never be sampled
	view := PixelView{Width: 1, Height: 2, Stride: 12, Channels: 4, Pixels: []byte{
		100, 100, 100, 255, 9, 9, 9, 9, 9, 9, 9, 9,
		100, 100, 100, 255,
	}}
	dst := models.NewTensor([]int64{1, 6, 6, 3}, models.Uint8)
	require.NoError(t, Resample(view, dst, RangeUnit))
	for _, v := range dst.U8 {
		require.Equal(t, uint8(100), v)
	}
}

func TestResampleFailureFillsNeutral(t *testing.T) {
	cases := []struct {
		typ  models.ElementType
		rng  ValueRange
		want float32
	}{
		{models.Float32, RangeUnit, 0.5},
		{models.Float32, RangeSigned, 0},
		{models.Uint8, RangeUnit, 128},
		{models.Int32, RangeSigned, 128},
	}
	for _, c := range cases {
		dst := models.NewTensor([]int64{1, 8, 8, 3}, c.typ)
		err := Resample(PixelView{}, dst, c.rng)
		require.Error(t, err)
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, PipelineError, kind)
		for i := 0; i < dst.Size(); i++ {
			require.Equal(t, c.want, dst.At(i))
		}
	}

	bad := models.NewTensor([]int64{8, 8, 3}, models.Float32)
	err := Resample(cpuView(solidFrame(2, 2, [4]byte{})), bad, RangeUnit)
	require.Error(t, err)
	assert.Equal(t, float32(0.5), bad.F32[0])
}

func TestSamplePositionsClampAtEdges(t *testing.T) {
	pos := samplePositions(2, 4)
	require.Len(t, pos, 4)
	assert.Equal(t, samplePos{i0: 0, i1: 0, t: 0.75}, pos[0])
	assert.Equal(t, 1, pos[3].i0)
	assert.Equal(t, 1, pos[3].i1)
}

func TestTensorGeometry(t *testing.T) {
	layout, w, h, c, err := tensorGeometry([]int64{1, 192, 256, 3})
	require.NoError(t, err)
	assert.Equal(t, NHWC, layout)
	assert.Equal(t, []int{256, 192, 3}, []int{w, h, c})

	layout, w, h, c, err = tensorGeometry([]int64{1, 3, 128, 64})
	require.NoError(t, err)
	assert.Equal(t, NCHW, layout)
	assert.Equal(t, []int{64, 128, 3}, []int{w, h, c})

	_, _, _, _, err = tensorGeometry([]int64{1, 0, 4, 4})
	assert.Error(t, err)
}

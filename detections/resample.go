package detections

import (
	"github.com/Tutortoise/vision-inference/models"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// ValueRange selects the float32 encoding of a [0,1] sample.
type ValueRange int

const (
	// RangeUnit writes samples as-is, in [0,1].
	RangeUnit ValueRange = iota
	// RangeSigned writes v*2-1, in [-1,1].
	RangeSigned
)

// Resample scales view to the tensor's spatial size with half-pixel bilinear
// sampling and writes it in the tensor's layout and element type. Integer
// tensors always receive 0..255. When the view cannot be read the tensor is
// filled with a neutral gray and an error is returned.
func Resample(view PixelView, dst *models.Tensor, rng ValueRange) error {
	layout, tw, th, tc, err := tensorGeometry(dst.Shape)
	if err != nil {
		fillNeutral(dst, rng)
		return newError(UsageError, "resample", err)
	}
	if dst.Size() < tw*th*tc {
		fillNeutral(dst, rng)
		return newError(UsageError, "resample", errors.Errorf("tensor storage too small for %dx%dx%d", tw, th, tc))
	}
	if !view.Valid() {
		fillNeutral(dst, rng)
		return newError(PipelineError, "resample", errors.New("unreadable pixel view"))
	}

	xs := samplePositions(view.Width, tw)
	ys := samplePositions(view.Height, th)

	srcChans := make([]int, tc)
	for c := range srcChans {
		srcChans[c] = sourceChannel(c, view.Order, view.Channels)
	}

	for dy, sy := range ys {
		row0 := view.Pixels[sy.i0*view.Stride:]
		row1 := view.Pixels[sy.i1*view.Stride:]
		for dx, sx := range xs {
			p00 := sx.i0 * view.Channels
			p01 := sx.i1 * view.Channels
			for c, sc := range srcChans {
				var v float32 = 1
				if sc >= 0 {
					top := lerp(float32(row0[p00+sc]), float32(row0[p01+sc]), sx.t)
					bottom := lerp(float32(row1[p00+sc]), float32(row1[p01+sc]), sx.t)
					v = lerp(top, bottom, sy.t) / 255
				}
				store(dst, elementIndex(layout, dx, dy, c, tw, th, tc), v, rng)
			}
		}
	}
	return nil
}

type samplePos struct {
	i0, i1 int
	t      float32
}

// samplePositions maps each destination index to its two source neighbours
// using half-pixel centers.
func samplePositions(srcSize, dstSize int) []samplePos {
	scale := float32(srcSize) / float32(dstSize)
	out := make([]samplePos, dstSize)
	last := srcSize - 1
	for d := range out {
		f := (float32(d)+0.5)*scale - 0.5
		f0 := math32.Floor(f)
		i0 := int(f0)
		out[d] = samplePos{
			i0: clampInt(i0, 0, last),
			i1: clampInt(i0+1, 0, last),
			t:  f - f0,
		}
	}
	return out
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp32(v, lo, hi float32) float32 {
	return math32.Max(lo, math32.Min(hi, v))
}

// quantize truncates v*255 into 0..255.
func quantize(v float32) float32 {
	return math32.Floor(clamp32(v*255, 0, 255))
}

func store(dst *models.Tensor, i int, v float32, rng ValueRange) {
	switch dst.Type {
	case models.Float32:
		if rng == RangeSigned {
			v = v*2 - 1
		}
		dst.F32[i] = v
	case models.Uint8:
		dst.U8[i] = uint8(quantize(v))
	case models.Int32:
		dst.I32[i] = int32(quantize(v))
	}
}

func neutralValue(typ models.ElementType, rng ValueRange) float32 {
	switch {
	case typ != models.Float32:
		return 128
	case rng == RangeSigned:
		return 0
	default:
		return 0.5
	}
}

func fillNeutral(dst *models.Tensor, rng ValueRange) {
	dst.Fill(neutralValue(dst.Type, rng))
}

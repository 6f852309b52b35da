package detections

import (
	"time"

	"github.com/Tutortoise/vision-inference/chain"
	"github.com/Tutortoise/vision-inference/gpu"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// PixelView is a borrowed CPU view of one frame. Pixels stays valid until
// Release is called.
type PixelView struct {
	Width    int
	Height   int
	Stride   int
	Channels int
	Order    ChannelOrder
	Pixels   []byte

	release func()
}

func (v PixelView) Release() {
	if v.release != nil {
		v.release()
	}
}

func (v PixelView) Valid() bool {
	if v.Width <= 0 || v.Height <= 0 || (v.Channels != 3 && v.Channels != 4) {
		return false
	}
	row := v.Width * v.Channels
	if v.Stride < row {
		return false
	}
	return len(v.Pixels) >= v.Stride*(v.Height-1)+row
}

// PixelAccessor turns an upstream source into a PixelView, reading GPU
// textures back when the source has no CPU pixels. It owns one readback
// buffer which is reused across frames.
type PixelAccessor struct {
	buffer gpu.Buffer
}

func (a *PixelAccessor) Acquire(ctx *chain.Context, src chain.Source) (PixelView, error) {
	if src == nil {
		return PixelView{}, errors.Wrap(ErrNoData, "no input source")
	}
	if frame, ok := src.CPUPixels(); ok && !frame.Empty() {
		return PixelView{
			Width:    frame.Width,
			Height:   frame.Height,
			Stride:   frame.Stride(),
			Channels: frame.Channels,
			Order:    OrderRGBA,
			Pixels:   frame.Pixels,
		}, nil
	}

	tex := src.OutputTexture()
	if tex == nil || tex.Width() <= 0 || tex.Height() <= 0 {
		return PixelView{}, errors.Wrap(ErrNoData, "source has neither CPU pixels nor a texture")
	}
	if ctx == nil || ctx.Device == nil || ctx.Queue == nil {
		return PixelView{}, errors.Wrap(ErrNoData, "no GPU device for texture readback")
	}
	return a.readback(ctx, tex)
}

func (a *PixelAccessor) readback(ctx *chain.Context, tex gpu.Texture) (PixelView, error) {
	width, height := tex.Width(), tex.Height()
	pitch := gpu.AlignedRowPitch(width)
	size := pitch * height

	if a.buffer == nil || a.buffer.Size() < size {
		if a.buffer != nil {
			a.buffer.Release()
			a.buffer = nil
		}
		buf, err := ctx.Device.CreateReadbackBuffer(size)
		if err != nil {
			return PixelView{}, errors.Wrapf(ErrNoData, "create readback buffer: %v", err)
		}
		ctx.Log().Debug("allocated readback buffer", zap.Int("bytes", size), zap.Int("row_pitch", pitch))
		a.buffer = buf
	}
	buf := a.buffer

	if err := ctx.Queue.CopyTextureToBuffer(tex, buf, pitch); err != nil {
		return PixelView{}, errors.Wrapf(ErrNoData, "copy texture: %v", err)
	}
	ctx.Queue.Submit()

	copied := false
	ctx.Queue.OnSubmittedWorkDone(func() { copied = true })
	if !pollUntil(ctx.Device, &copied) {
		return PixelView{}, errors.Wrap(ErrNoData, "timed out waiting for texture copy")
	}

	mapped := false
	status := gpu.MapError
	buf.MapRead(func(s gpu.MapStatus) {
		status = s
		mapped = true
	})
	if !pollUntil(ctx.Device, &mapped) {
		buf.Unmap()
		return PixelView{}, errors.Wrap(ErrNoData, "timed out mapping readback buffer")
	}
	if status != gpu.MapSuccess {
		return PixelView{}, errors.Wrapf(ErrNoData, "map readback buffer: status %d", status)
	}

	data := buf.MappedRange()
	if len(data) < size {
		buf.Unmap()
		return PixelView{}, errors.Wrap(ErrNoData, "mapped range too small")
	}

	order := OrderRGBA
	if tex.Format() == gpu.FormatBGRA8 {
		order = OrderBGRA
	}
	return PixelView{
		Width:    width,
		Height:   height,
		Stride:   pitch,
		Channels: 4,
		Order:    order,
		Pixels:   data[:size],
		release:  buf.Unmap,
	}, nil
}

// Release frees the readback buffer.
func (a *PixelAccessor) Release() {
	if a.buffer != nil {
		a.buffer.Release()
		a.buffer = nil
	}
}

func pollUntil(dev gpu.Device, done *bool) bool {
	for i := 0; i < readbackPollAttempts; i++ {
		dev.Poll()
		if *done {
			return true
		}
		time.Sleep(readbackPollInterval)
	}
	return false
}

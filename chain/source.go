package chain

import (
	"image"

	"github.com/Tutortoise/vision-inference/gpu"
	"github.com/Tutortoise/vision-inference/models"

	"github.com/disintegration/imaging"
)

// ImageSource publishes a still frame, on the CPU, as a texture, or both.
type ImageSource struct {
	frame   models.Frame
	texture gpu.Texture
}

func NewImageSource() *ImageSource {
	return &ImageSource{}
}

func (s *ImageSource) SetFrame(f models.Frame) *ImageSource {
	s.frame = f
	return s
}

func (s *ImageSource) SetTexture(t gpu.Texture) *ImageSource {
	s.texture = t
	return s
}

func (s *ImageSource) SetImage(img image.Image) *ImageSource {
	return s.SetFrame(FrameFromImage(img))
}

func (s *ImageSource) CPUPixels() (models.Frame, bool) {
	if s.frame.Empty() {
		return models.Frame{}, false
	}
	return s.frame, true
}

func (s *ImageSource) OutputTexture() gpu.Texture {
	return s.texture
}

func (s *ImageSource) Name() string            { return "Image" }
func (s *ImageSource) Init(ctx *Context) error { return nil }
func (s *ImageSource) Process(ctx *Context)    {}
func (s *ImageSource) Cleanup()                {}

// FrameFromImage converts any image to a tightly packed RGBA frame.
func FrameFromImage(img image.Image) models.Frame {
	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()
	return models.Frame{
		Width:    b.Dx(),
		Height:   b.Dy(),
		Channels: 4,
		Pixels:   nrgba.Pix,
	}
}

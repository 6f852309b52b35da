package models

// Frame is a CPU-resident 8-bit image, row-major and tightly packed.
// Channels is 4 (RGBA) or 3 (RGB).
type Frame struct {
	Width    int
	Height   int
	Channels int
	Pixels   []byte
}

func (f Frame) Stride() int {
	return f.Width * f.Channels
}

// Empty reports whether the frame has no usable pixels.
func (f Frame) Empty() bool {
	return f.Width <= 0 || f.Height <= 0 || f.Channels <= 0 || len(f.Pixels) < f.Stride()*f.Height
}

// Package gpu describes the small slice of a GPU API the inference
// operators need to read textures back to the CPU.
package gpu

type TextureFormat int

const (
	FormatRGBA8 TextureFormat = iota
	FormatBGRA8
)

func (f TextureFormat) String() string {
	switch f {
	case FormatRGBA8:
		return "rgba8"
	case FormatBGRA8:
		return "bgra8"
	}
	return "unknown"
}

type Texture interface {
	Width() int
	Height() int
	Format() TextureFormat
}

type MapStatus int

const (
	MapSuccess MapStatus = iota
	MapError
	MapAborted
)

// Buffer is a host-mappable readback buffer.
type Buffer interface {
	Size() int
	// MapRead requests a read mapping. The callback fires from Device.Poll.
	MapRead(callback func(MapStatus))
	// MappedRange is valid between a successful map and Unmap.
	MappedRange() []byte
	Unmap()
	Release()
}

type Device interface {
	CreateReadbackBuffer(size int) (Buffer, error)
	// Poll processes pending callbacks without blocking.
	Poll()
}

type Queue interface {
	// CopyTextureToBuffer records a copy with the given row pitch.
	CopyTextureToBuffer(src Texture, dst Buffer, bytesPerRow int) error
	Submit()
	// OnSubmittedWorkDone fires from Device.Poll once submitted work has finished.
	OnSubmittedWorkDone(callback func())
}

// RowPitchAlignment is the required alignment of bytesPerRow in texture copies.
const RowPitchAlignment = 256

// AlignedRowPitch rounds width*4 up to RowPitchAlignment.
func AlignedRowPitch(width int) int {
	return (width*4 + RowPitchAlignment - 1) / RowPitchAlignment * RowPitchAlignment
}

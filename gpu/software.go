package gpu

import (
	"unsafe"

	"github.com/pkg/errors"
)

// MemoryTexture is a CPU-backed texture with tightly packed 4-byte texels
// stored in the order given by its format.
type MemoryTexture struct {
	width, height int
	format        TextureFormat
	texels        []byte
}

func NewMemoryTexture(width, height int, format TextureFormat, texels []byte) *MemoryTexture {
	return &MemoryTexture{width: width, height: height, format: format, texels: texels}
}

func (t *MemoryTexture) Width() int            { return t.width }
func (t *MemoryTexture) Height() int           { return t.height }
func (t *MemoryTexture) Format() TextureFormat { return t.format }

type scheduled struct {
	due int
	fn  func()
}

// SoftwareDevice emulates an asynchronous GPU: copies execute on Submit but
// completion and map callbacks only fire from Poll, Latency polls later.
type SoftwareDevice struct {
	// Latency is the number of extra polls before callbacks fire.
	Latency int
	// FailMaps makes every MapRead report MapError.
	FailMaps bool

	tick           int
	pending        []scheduled
	buffersCreated int
	queue          *SoftwareQueue
}

func NewSoftwareDevice() *SoftwareDevice {
	d := &SoftwareDevice{}
	d.queue = &SoftwareQueue{dev: d}
	return d
}

func (d *SoftwareDevice) Queue() *SoftwareQueue {
	return d.queue
}

// BuffersCreated counts readback buffer allocations.
func (d *SoftwareDevice) BuffersCreated() int {
	return d.buffersCreated
}

func (d *SoftwareDevice) CreateReadbackBuffer(size int) (Buffer, error) {
	if size <= 0 {
		return nil, errors.Errorf("invalid readback buffer size %d", size)
	}
	d.buffersCreated++
	return &softwareBuffer{dev: d, data: pageAlignedBytes(size)}, nil
}

func (d *SoftwareDevice) Poll() {
	d.tick++
	var keep []scheduled
	var ready []func()
	for _, s := range d.pending {
		if s.due <= d.tick {
			ready = append(ready, s.fn)
		} else {
			keep = append(keep, s)
		}
	}
	d.pending = keep
	for _, fn := range ready {
		fn()
	}
}

func (d *SoftwareDevice) schedule(fn func()) {
	d.pending = append(d.pending, scheduled{due: d.tick + 1 + d.Latency, fn: fn})
}

type copyOp struct {
	src         *MemoryTexture
	dst         *softwareBuffer
	bytesPerRow int
}

type SoftwareQueue struct {
	dev      *SoftwareDevice
	recorded []copyOp
}

func (q *SoftwareQueue) CopyTextureToBuffer(src Texture, dst Buffer, bytesPerRow int) error {
	tex, ok := src.(*MemoryTexture)
	if !ok {
		return errors.Errorf("unsupported texture type %T", src)
	}
	buf, ok := dst.(*softwareBuffer)
	if !ok {
		return errors.Errorf("unsupported buffer type %T", dst)
	}
	if bytesPerRow%RowPitchAlignment != 0 || bytesPerRow < tex.width*4 {
		return errors.Errorf("bytesPerRow %d invalid for width %d", bytesPerRow, tex.width)
	}
	if buf.Size() < bytesPerRow*tex.height {
		return errors.Errorf("buffer too small: %d < %d", buf.Size(), bytesPerRow*tex.height)
	}
	q.recorded = append(q.recorded, copyOp{src: tex, dst: buf, bytesPerRow: bytesPerRow})
	return nil
}

func (q *SoftwareQueue) Submit() {
	for _, op := range q.recorded {
		row := op.src.width * 4
		for y := 0; y < op.src.height; y++ {
			copy(op.dst.data[y*op.bytesPerRow:y*op.bytesPerRow+row], op.src.texels[y*row:(y+1)*row])
		}
	}
	q.recorded = q.recorded[:0]
}

func (q *SoftwareQueue) OnSubmittedWorkDone(callback func()) {
	q.dev.schedule(callback)
}

type softwareBuffer struct {
	dev        *SoftwareDevice
	data       []byte
	mapped     bool
	mapPending bool
	released   bool
}

func (b *softwareBuffer) Size() int {
	return len(b.data)
}

func (b *softwareBuffer) MapRead(callback func(MapStatus)) {
	b.mapPending = true
	b.dev.schedule(func() {
		if !b.mapPending {
			callback(MapAborted)
			return
		}
		b.mapPending = false
		if b.released || b.dev.FailMaps {
			callback(MapError)
			return
		}
		b.mapped = true
		callback(MapSuccess)
	})
}

func (b *softwareBuffer) MappedRange() []byte {
	if !b.mapped {
		return nil
	}
	return b.data
}

func (b *softwareBuffer) Unmap() {
	b.mapped = false
	b.mapPending = false
}

func (b *softwareBuffer) Release() {
	b.Unmap()
	b.released = true
}

func pageAlignedBytes(size int) []byte {
	page := pageSize()
	raw := make([]byte, size+page)
	off := 0
	if rem := int(uintptr(unsafe.Pointer(&raw[0])) % uintptr(page)); rem != 0 {
		off = page - rem
	}
	return raw[off : off+size : off+size]
}

// UploadRGBA copies tightly packed RGBA pixels into a new texture, swizzling
// to BGRA when the format asks for it.
func UploadRGBA(width, height int, rgba []byte, format TextureFormat) *MemoryTexture {
	texels := make([]byte, width*height*4)
	copy(texels, rgba)
	if format == FormatBGRA8 {
		for i := 0; i+3 < len(texels); i += 4 {
			texels[i], texels[i+2] = texels[i+2], texels[i]
		}
	}
	return NewMemoryTexture(width, height, format, texels)
}

package detections

import (
	"github.com/pkg/errors"
)

type Layout int

const (
	NHWC Layout = iota
	NCHW
)

func (l Layout) String() string {
	if l == NCHW {
		return "NCHW"
	}
	return "NHWC"
}

type ChannelOrder int

const (
	OrderRGBA ChannelOrder = iota
	OrderBGRA
)

// tensorGeometry derives layout and target size from a 4-D image tensor shape.
// A second dimension above 4 can only be a spatial size, so the tensor is NHWC.
func tensorGeometry(shape []int64) (layout Layout, width, height, channels int, err error) {
	if len(shape) != 4 {
		return 0, 0, 0, 0, errors.Errorf("expected a 4-D image tensor, got shape %v", shape)
	}
	if shape[1] > 4 {
		layout = NHWC
		height, width, channels = int(shape[1]), int(shape[2]), int(shape[3])
	} else {
		layout = NCHW
		channels, height, width = int(shape[1]), int(shape[2]), int(shape[3])
	}
	if width <= 0 || height <= 0 || channels <= 0 {
		return 0, 0, 0, 0, errors.Errorf("image tensor shape %v has empty dimensions", shape)
	}
	return layout, width, height, channels, nil
}

// elementIndex returns the flat offset of (x, y, c) in a width x height x channels image.
func elementIndex(layout Layout, x, y, c, width, height, channels int) int {
	if layout == NCHW {
		return c*width*height + y*width + x
	}
	return (y*width+x)*channels + c
}

// sourceChannel maps a destination channel (RGBA order) to the byte offset
// within a source pixel. -1 means the channel is absent and reads as opaque.
func sourceChannel(c int, order ChannelOrder, srcChannels int) int {
	if c >= srcChannels {
		if c == 3 {
			return -1
		}
		return 0
	}
	if order == OrderBGRA && (c == 0 || c == 2) {
		return 2 - c
	}
	return c
}

// imageShape builds a batch-of-one image tensor shape in the given layout.
func imageShape(layout Layout, width, height, channels int) []int64 {
	if layout == NCHW {
		return []int64{1, int64(channels), int64(height), int64(width)}
	}
	return []int64{1, int64(height), int64(width), int64(channels)}
}

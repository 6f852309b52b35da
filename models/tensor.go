package models

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrShapeMismatch is returned when a reshape would change the element count.
var ErrShapeMismatch = errors.New("shape mismatch")

type ElementType int

const (
	Float32 ElementType = iota
	Uint8
	Int32
)

func (t ElementType) String() string {
	switch t {
	case Float32:
		return "float32"
	case Uint8:
		return "uint8"
	case Int32:
		return "int32"
	}
	return fmt.Sprintf("ElementType(%d)", int(t))
}

// Tensor is a dense row-major buffer. Exactly one of F32, U8 or I32 holds
// the data, selected by Type.
type Tensor struct {
	Shape []int64
	Type  ElementType
	F32   []float32
	U8    []uint8
	I32   []int32
}

// ShapeSize is the product of the dimensions. An empty shape, or any
// non-positive dimension, yields 0.
func ShapeSize(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0
		}
		n *= int(d)
	}
	return n
}

func NewTensor(shape []int64, typ ElementType) *Tensor {
	t := &Tensor{Type: typ}
	t.Resize(shape)
	return t
}

func (t *Tensor) Size() int {
	return ShapeSize(t.Shape)
}

// Reshape rebinds the shape without touching the data. The new shape must
// describe the same number of elements.
func (t *Tensor) Reshape(shape []int64) error {
	if ShapeSize(shape) != t.Size() {
		return errors.Wrapf(ErrShapeMismatch, "cannot reshape %v (%d elements) to %v (%d elements)",
			t.Shape, t.Size(), shape, ShapeSize(shape))
	}
	t.Shape = append(t.Shape[:0:0], shape...)
	return nil
}

// Resize binds a new shape and sizes the storage to match, reusing the
// existing allocation when it is large enough.
func (t *Tensor) Resize(shape []int64) {
	t.Shape = append(t.Shape[:0:0], shape...)
	n := ShapeSize(shape)
	switch t.Type {
	case Float32:
		t.F32 = growFloat32(t.F32, n)
		t.U8, t.I32 = nil, nil
	case Uint8:
		t.U8 = growUint8(t.U8, n)
		t.F32, t.I32 = nil, nil
	case Int32:
		t.I32 = growInt32(t.I32, n)
		t.F32, t.U8 = nil, nil
	}
}

// At reads element i as float32. Out of range reads return 0.
func (t *Tensor) At(i int) float32 {
	if i < 0 || i >= t.Size() {
		return 0
	}
	switch t.Type {
	case Float32:
		if i < len(t.F32) {
			return t.F32[i]
		}
	case Uint8:
		if i < len(t.U8) {
			return float32(t.U8[i])
		}
	case Int32:
		if i < len(t.I32) {
			return float32(t.I32[i])
		}
	}
	return 0
}

// SetFloat32 makes t a float32 tensor holding a copy of data with the given shape.
func (t *Tensor) SetFloat32(shape []int64, data []float32) {
	t.Type = Float32
	t.Resize(shape)
	copy(t.F32, data)
}

// Fill sets every element to v, converted to the element type.
func (t *Tensor) Fill(v float32) {
	switch t.Type {
	case Float32:
		for i := range t.F32 {
			t.F32[i] = v
		}
	case Uint8:
		u := uint8(v)
		for i := range t.U8 {
			t.U8[i] = u
		}
	case Int32:
		n := int32(v)
		for i := range t.I32 {
			t.I32[i] = n
		}
	}
}

func (t *Tensor) Clone() *Tensor {
	c := &Tensor{
		Shape: append([]int64(nil), t.Shape...),
		Type:  t.Type,
	}
	if t.F32 != nil {
		c.F32 = append([]float32(nil), t.F32...)
	}
	if t.U8 != nil {
		c.U8 = append([]uint8(nil), t.U8...)
	}
	if t.I32 != nil {
		c.I32 = append([]int32(nil), t.I32...)
	}
	return c
}

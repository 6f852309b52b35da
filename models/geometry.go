package models

import "github.com/chewxy/math32"

type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

func (p Point) Distance(b Point) float32 {
	return math32.Hypot(p.X-b.X, p.Y-b.Y)
}

// Rect is an axis-aligned box with a top-left origin, in normalized image coordinates.
type Rect struct {
	X      float32 `json:"x"`
	Y      float32 `json:"y"`
	Width  float32 `json:"width"`
	Height float32 `json:"height"`
}

func (r Rect) X2() float32 { return r.X + r.Width }
func (r Rect) Y2() float32 { return r.Y + r.Height }

func (r Rect) Area() float32 {
	return r.Width * r.Height
}

func (r Rect) Intersection(b Rect) Rect {
	x1 := max(r.X, b.X)
	y1 := max(r.Y, b.Y)
	x2 := min(r.X2(), b.X2())
	y2 := min(r.Y2(), b.Y2())
	return Rect{
		X:      x1,
		Y:      y1,
		Width:  max(0, x2-x1),
		Height: max(0, y2-y1),
	}
}

// IOU returns intersection over union, or 0 when the union is empty.
func (r Rect) IOU(b Rect) float32 {
	inter := r.Intersection(b).Area()
	union := r.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

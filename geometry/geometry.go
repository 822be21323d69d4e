package geometry

import "math"

// Vec2D is used for both positions and displacements.
type Vec2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func NewVec2D(x, y float64) Vec2D {
	return Vec2D{X: x, Y: y}
}

func (v Vec2D) Add(o Vec2D) Vec2D {
	return Vec2D{v.X + o.X, v.Y + o.Y}
}

func (v Vec2D) Sub(o Vec2D) Vec2D {
	return Vec2D{v.X - o.X, v.Y - o.Y}
}

func (v Vec2D) Mul(s float64) Vec2D {
	return Vec2D{v.X * s, v.Y * s}
}

func (v Vec2D) Div(s float64) Vec2D {
	return Vec2D{v.X / s, v.Y / s}
}

func (v Vec2D) Dot(o Vec2D) float64 {
	return v.X*o.X + v.Y*o.Y
}

func (v Vec2D) Mag() float64 {
	return math.Sqrt(v.Dot(v))
}

func (v Vec2D) Dist(o Vec2D) float64 {
	return v.Sub(o).Mag()
}

// Normalize returns the unit vector pointing in v's direction. The zero
// vector is returned unchanged.
func (v Vec2D) Normalize() Vec2D {
	mag := v.Mag()
	if mag == 0 {
		return v
	}
	return v.Div(mag)
}

// ClampMag returns v shortened to max when its magnitude exceeds max.
func (v Vec2D) ClampMag(max float64) Vec2D {
	if v.Mag() > max {
		return v.Normalize().Mul(max)
	}
	return v
}

// Clamp limits both components to the given rectangle.
func (v Vec2D) Clamp(bounds Rect) Vec2D {
	return Vec2D{
		X: math.Min(math.Max(v.X, bounds.Min.X), bounds.Max.X),
		Y: math.Min(math.Max(v.Y, bounds.Min.Y), bounds.Max.Y),
	}
}

func (v Vec2D) IsNaN() bool {
	return math.IsNaN(v.X) || math.IsNaN(v.Y)
}

// Rect is an axis-aligned rectangle given by its min and max corners.
// Min.X <= Max.X and Min.Y <= Max.Y always hold for rects built with NewRect.
type Rect struct {
	Min Vec2D `json:"min"`
	Max Vec2D `json:"max"`
}

// NewRect builds a Rect from two opposite corners in any order.
func NewRect(a, b Vec2D) Rect {
	return Rect{
		Min: Vec2D{math.Min(a.X, b.X), math.Min(a.Y, b.Y)},
		Max: Vec2D{math.Max(a.X, b.X), math.Max(a.Y, b.Y)},
	}
}

// NewRectCentered builds a Rect from its center and full side lengths.
func NewRectCentered(center, sides Vec2D) Rect {
	half := sides.Div(2)
	return NewRect(center.Sub(half), center.Add(half))
}

func (r Rect) Center() Vec2D {
	return r.Min.Add(r.Max).Div(2)
}

func (r Rect) Width() float64 {
	return r.Max.X - r.Min.X
}

func (r Rect) Height() float64 {
	return r.Max.Y - r.Min.Y
}

// Contains reports whether the point lies inside the rectangle. All four
// edges are inclusive.
func (r Rect) Contains(p Vec2D) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X &&
		p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// Intersects reports whether the two rectangles overlap. Rectangles that
// only touch on an edge count as intersecting.
func (r Rect) Intersects(o Rect) bool {
	return !(r.Min.X > o.Max.X ||
		o.Min.X > r.Max.X ||
		r.Min.Y > o.Max.Y ||
		o.Min.Y > r.Max.Y)
}

// Quadrant finds which quadrant of the rectangle a point is in. Points on a
// center line belong to the right/top side. The result is valid even for
// points outside the rectangle, as if the quadrants extended to infinity.
// Quadrants are numbered by the following system:
//
//	+---+---+
//	| 0 | 1 |
//	+---+---+
//	| 2 | 3 |
//	+---+---+
//
// where the top row has the larger Y values.
func (r Rect) Quadrant(p Vec2D) int {
	center := r.Center()
	x := 0
	if p.X >= center.X {
		x = 1
	}
	y := 0
	if p.Y >= center.Y {
		y = 1
	}
	return 2 - 2*y + x
}

// Quarter splits the rectangle into its four quadrants, indexed to match
// Quadrant. Shared edges overlap.
func (r Rect) Quarter() [4]Rect {
	center := r.Center()
	return [4]Rect{
		NewRect(Vec2D{r.Min.X, center.Y}, Vec2D{center.X, r.Max.Y}),
		NewRect(center, r.Max),
		NewRect(r.Min, center),
		NewRect(Vec2D{center.X, r.Min.Y}, Vec2D{r.Max.X, center.Y}),
	}
}

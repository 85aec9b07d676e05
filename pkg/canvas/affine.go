package canvas

import (
	"math"

	"github.com/deadsy/sdfx/sdf"
	v2 "github.com/deadsy/sdfx/vec/v2"
)

// Affine is a 2D affine transform stored as a homogeneous 3x3 matrix.
type Affine struct {
	m sdf.M33
}

// Identity returns the transform that leaves points unchanged.
func Identity() Affine {
	return Affine{m: sdf.Identity2d()}
}

// Translate returns a translation by t.
func Translate(t Vec2) Affine {
	return Affine{m: sdf.Translate2d(v2.Vec{X: t.X, Y: t.Y})}
}

// Rotate returns a counter-clockwise rotation by rad radians about the origin.
func Rotate(rad float64) Affine {
	return Affine{m: sdf.Rotate2d(rad)}
}

// Scale returns a non-uniform scale about the origin.
func Scale(s Vec2) Affine {
	return Affine{m: sdf.Scale2d(v2.Vec{X: s.X, Y: s.Y})}
}

// Then returns the transform that applies a first and b second.
func (a Affine) Then(b Affine) Affine {
	return Affine{m: b.m.Mul(a.m)}
}

// Inverse returns the inverse transform.
func (a Affine) Inverse() Affine {
	return Affine{m: a.m.Inverse()}
}

// Apply transforms a single position.
func (a Affine) Apply(v Vec2) Vec2 {
	r := a.m.MulPosition(v2.Vec{X: v.X, Y: v.Y})
	return Vec2{r.X, r.Y}
}

// PivotTransform builds translate-to-origin, rotate, scale, then
// translate-back-and-offset. rotation is in degrees.
func PivotTransform(pivot, translate Vec2, rotation float64, scale Vec2) Affine {
	return Translate(Vec2{-pivot.X, -pivot.Y}).
		Then(Rotate(rotation * math.Pi / 180)).
		Then(Scale(scale)).
		Then(Translate(pivot.Add(translate)))
}

// Apply transforms every point of the canvas in place.
func (c *Canvas) Apply(a Affine) {
	for i := range c.Points {
		p := a.Apply(c.Points[i].Pos())
		c.Points[i].X, c.Points[i].Y = p.X, p.Y
	}
}

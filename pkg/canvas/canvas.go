package canvas

import (
	"fmt"
	"math"
)

const (
	// DefaultBackground is used when a canvas is created without a color.
	DefaultBackground = "#ffffff"
	// DefaultLineColor is the stroke color of lines created without a style.
	DefaultLineColor = "#000000"
	// DefaultThickness is the stroke width of lines created without a style.
	DefaultThickness = 1.0
)

// Attributes is a free-form key/value bag attached to points and lines.
type Attributes map[string]any

// Clone returns a shallow copy of the map. Values are expected to be
// scalars or small value types.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Point is a vertex of the drawing. Its identity is its index in
// Canvas.Points.
type Point struct {
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	Attributes Attributes `json:"attributes"`
}

// Pos returns the point's coordinates.
func (p Point) Pos() Vec2 {
	return Vec2{p.X, p.Y}
}

// Line is an ordered chain of point indices drawn with a single stroke.
type Line struct {
	Points     []int      `json:"points"`
	Color      string     `json:"color"`
	Thickness  float64    `json:"thickness"`
	Attributes Attributes `json:"attributes,omitempty"`
}

// First returns the first point index of the line.
func (l Line) First() int { return l.Points[0] }

// Last returns the last point index of the line.
func (l Line) Last() int { return l.Points[len(l.Points)-1] }

func (l Line) clone() Line {
	out := Line{
		Points:    append([]int(nil), l.Points...),
		Color:     l.Color,
		Thickness: l.Thickness,
	}
	if l.Attributes != nil {
		out.Attributes = l.Attributes.Clone()
	}
	return out
}

// LineStyle holds the visual properties of a new line. Zero fields fall
// back to DefaultLineColor and DefaultThickness.
type LineStyle struct {
	Color     string
	Thickness float64
}

func (s LineStyle) normalize() LineStyle {
	if s.Color == "" {
		s.Color = DefaultLineColor
	}
	if s.Thickness <= 0 {
		s.Thickness = DefaultThickness
	}
	return s
}

// Canvas is the evaluated value passed between nodes.
type Canvas struct {
	Size            Vec2    `json:"size"`
	BackgroundColor string  `json:"backgroundColor"`
	Points          []Point `json:"points"`
	Lines           []Line  `json:"lines"`
}

// New creates an empty canvas of the given size.
func New(width, height float64, background string) *Canvas {
	if background == "" {
		background = DefaultBackground
	}
	return &Canvas{
		Size:            Vec2{width, height},
		BackgroundColor: background,
		Points:          []Point{},
		Lines:           []Line{},
	}
}

// Point appends a point and returns its index.
func (c *Canvas) Point(x, y float64, attrs Attributes) int {
	c.Points = append(c.Points, Point{X: x, Y: y, Attributes: attrs.Clone()})
	return len(c.Points) - 1
}

// PointAt returns the point at index i.
func (c *Canvas) PointAt(i int) (Point, bool) {
	if i < 0 || i >= len(c.Points) {
		return Point{}, false
	}
	return c.Points[i], true
}

// SetPointAttributes merges attrs into the attributes of point i.
func (c *Canvas) SetPointAttributes(i int, attrs Attributes) bool {
	if i < 0 || i >= len(c.Points) {
		return false
	}
	p := &c.Points[i]
	if p.Attributes == nil {
		p.Attributes = Attributes{}
	}
	for k, v := range attrs {
		p.Attributes[k] = v
	}
	return true
}

// PointAttribute returns a single attribute of point i.
func (c *Canvas) PointAttribute(i int, key string) (any, bool) {
	if i < 0 || i >= len(c.Points) {
		return nil, false
	}
	v, ok := c.Points[i].Attributes[key]
	return v, ok
}

// Line adds a line through existing points. It fails if any index does not
// reference a point of this canvas or fewer than two indices are given.
func (c *Canvas) Line(ids []int, style LineStyle) (int, error) {
	if len(ids) < 2 {
		return -1, fmt.Errorf("line needs at least 2 points, got %d", len(ids))
	}
	for _, id := range ids {
		if id < 0 || id >= len(c.Points) {
			return -1, fmt.Errorf("point with index %d does not exist", id)
		}
	}
	style = style.normalize()
	c.Lines = append(c.Lines, Line{
		Points:    append([]int(nil), ids...),
		Color:     style.Color,
		Thickness: style.Thickness,
	})
	return len(c.Lines) - 1, nil
}

// Polyline creates one point per coordinate and a line through them.
// It returns the line index and the new point indices.
func (c *Canvas) Polyline(coords []Vec2, attrs Attributes, style LineStyle) (int, []int, error) {
	ids := make([]int, 0, len(coords))
	for _, v := range coords {
		ids = append(ids, c.Point(v.X, v.Y, attrs))
	}
	lineID, err := c.Line(ids, style)
	if err != nil {
		c.Points = c.Points[:len(c.Points)-len(ids)]
		return -1, nil, err
	}
	return lineID, ids, nil
}

// Segment adds a two-point line from a to b. Points already present at
// exactly those coordinates are reused.
func (c *Canvas) Segment(a, b Vec2, style LineStyle) int {
	ia := c.findOrAdd(a)
	ib := c.findOrAdd(b)
	style = style.normalize()
	c.Lines = append(c.Lines, Line{
		Points:    []int{ia, ib},
		Color:     style.Color,
		Thickness: style.Thickness,
	})
	return len(c.Lines) - 1
}

func (c *Canvas) findOrAdd(v Vec2) int {
	for i, p := range c.Points {
		if p.X == v.X && p.Y == v.Y {
			return i
		}
	}
	return c.Point(v.X, v.Y, nil)
}

// Circle tessellates a circle into ceil(circumference/maxEdgeLength) equal
// angular steps, never fewer than three. The returned ids exclude the
// closing repeat; the line itself ends on its first point.
func (c *Canvas) Circle(center Vec2, radius, maxEdgeLength float64, attrs Attributes, style LineStyle) ([]int, int, error) {
	if radius <= 0 {
		return nil, -1, fmt.Errorf("circle radius must be positive, got %g", radius)
	}
	if maxEdgeLength <= 0 {
		return nil, -1, fmt.Errorf("circle max edge length must be positive, got %g", maxEdgeLength)
	}
	n := int(math.Ceil(2 * math.Pi * radius / maxEdgeLength))
	if n < 3 {
		n = 3
	}
	step := 2 * math.Pi / float64(n)
	ids := make([]int, 0, n+1)
	for i := 0; i < n; i++ {
		sin, cos := math.Sincos(float64(i) * step)
		ids = append(ids, c.Point(center.X+radius*cos, center.Y+radius*sin, attrs))
	}
	lineID, err := c.Line(append(ids, ids[0]), style)
	if err != nil {
		return nil, -1, err
	}
	return ids, lineID, nil
}

// LinePoints returns the points of line i in order, or nil if the line
// does not exist.
func (c *Canvas) LinePoints(i int) []Point {
	if i < 0 || i >= len(c.Lines) {
		return nil
	}
	pts := make([]Point, 0, len(c.Lines[i].Points))
	for _, id := range c.Lines[i].Points {
		pts = append(pts, c.Points[id])
	}
	return pts
}

// Clone deep-copies the canvas, including point attributes.
func (c *Canvas) Clone() *Canvas {
	out := &Canvas{
		Size:            c.Size,
		BackgroundColor: c.BackgroundColor,
		Points:          make([]Point, len(c.Points)),
		Lines:           make([]Line, len(c.Lines)),
	}
	for i, p := range c.Points {
		out.Points[i] = Point{X: p.X, Y: p.Y, Attributes: p.Attributes.Clone()}
	}
	for i, l := range c.Lines {
		out.Lines[i] = l.clone()
	}
	return out
}

// Merge returns a new canvas holding the points and lines of c followed by
// those of other. Line indices of other are offset by len(c.Points). The
// result takes the larger of each dimension and keeps c's background.
func (c *Canvas) Merge(other *Canvas) *Canvas {
	out := c.Clone()
	out.Size = Vec2{math.Max(c.Size.X, other.Size.X), math.Max(c.Size.Y, other.Size.Y)}
	offset := len(c.Points)
	for _, p := range other.Points {
		out.Points = append(out.Points, Point{X: p.X, Y: p.Y, Attributes: p.Attributes.Clone()})
	}
	for _, l := range other.Lines {
		nl := l.clone()
		for i := range nl.Points {
			nl.Points[i] += offset
		}
		out.Lines = append(out.Lines, nl)
	}
	return out
}

// Bounds returns the bounding rectangle of all points, or the zero
// rectangle when the canvas has none.
func (c *Canvas) Bounds() Bounds {
	if len(c.Points) == 0 {
		return Bounds{}
	}
	b := Bounds{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	for _, p := range c.Points {
		b.MinX = math.Min(b.MinX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MaxY = math.Max(b.MaxY, p.Y)
	}
	return b
}

// UnconnectedIndices returns the indices of points not referenced by any
// line, in ascending order.
func (c *Canvas) UnconnectedIndices() []int {
	used := c.connected()
	var out []int
	for i := range c.Points {
		if !used[i] {
			out = append(out, i)
		}
	}
	return out
}

// UnconnectedPoints returns the points not referenced by any line.
func (c *Canvas) UnconnectedPoints() []Point {
	ids := c.UnconnectedIndices()
	out := make([]Point, 0, len(ids))
	for _, i := range ids {
		out = append(out, c.Points[i])
	}
	return out
}

func (c *Canvas) connected() map[int]bool {
	used := make(map[int]bool)
	for _, l := range c.Lines {
		for _, id := range l.Points {
			used[id] = true
		}
	}
	return used
}

// Center returns the midpoint of the canvas area.
func (c *Canvas) Center() Vec2 {
	return Vec2{c.Size.X / 2, c.Size.Y / 2}
}

// PointsCenter returns the centroid of all points, falling back to the
// canvas midpoint when there are none.
func (c *Canvas) PointsCenter() Vec2 {
	if len(c.Points) == 0 {
		return c.Center()
	}
	var sum Vec2
	for _, p := range c.Points {
		sum.X += p.X
		sum.Y += p.Y
	}
	n := float64(len(c.Points))
	return Vec2{sum.X / n, sum.Y / n}
}

// RemovePoints deletes every point for which drop returns true, re-indexes
// all lines and discards lines left with fewer than two points. It returns
// the number of points removed.
func (c *Canvas) RemovePoints(drop func(i int, p Point) bool) int {
	remap := make([]int, len(c.Points))
	kept := c.Points[:0:0]
	for i, p := range c.Points {
		if drop(i, p) {
			remap[i] = -1
			continue
		}
		remap[i] = len(kept)
		kept = append(kept, p)
	}
	removed := len(c.Points) - len(kept)
	if removed == 0 {
		return 0
	}
	c.Points = kept

	lines := c.Lines[:0]
	for _, l := range c.Lines {
		pts := l.Points[:0]
		for _, id := range l.Points {
			if n := remap[id]; n >= 0 {
				pts = append(pts, n)
			}
		}
		l.Points = pts
		if len(l.Points) >= 2 {
			lines = append(lines, l)
		}
	}
	c.Lines = lines
	return removed
}

// Validate checks that every line has at least two points and that every
// referenced index exists.
func (c *Canvas) Validate() error {
	for li, l := range c.Lines {
		if len(l.Points) < 2 {
			return fmt.Errorf("line %d has %d points, need at least 2", li, len(l.Points))
		}
		for _, id := range l.Points {
			if id < 0 || id >= len(c.Points) {
				return fmt.Errorf("line %d references missing point %d", li, id)
			}
		}
	}
	return nil
}

package ops

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/dsedov/penpal-studio/pkg/canvas"
	"github.com/dsedov/penpal-studio/pkg/graph"
	"github.com/dsedov/penpal-studio/pkg/registry"
)

func transformSpecs() []registry.PropertySpec {
	return []registry.PropertySpec{
		{Name: "translate", Kind: graph.KindVec2, Label: "Translate", Default: canvas.V(0, 0), Min: registry.Ptr(-10000), Max: registry.Ptr(10000)},
		{Name: "rotate", Kind: graph.KindFloat, Label: "Rotate (degrees)", Default: 0.0, Min: registry.Ptr(-360), Max: registry.Ptr(360)},
		{Name: "scale", Kind: graph.KindVec2, Label: "Scale", Default: canvas.V(1, 1), Min: registry.Ptr(-100), Max: registry.Ptr(100)},
		{Name: "uniformScale", Kind: graph.KindBoolean, Label: "Uniform scale", Default: true},
	}
}

// ---------------------------------------------------------------------------
// transform
// ---------------------------------------------------------------------------

func transformType() *registry.NodeType {
	return &registry.NodeType{
		Tag:         "transform",
		Label:       "Transform",
		Category:    CategoryModify,
		Description: "Translates, rotates and scales around a pivot",
		Inputs:      inputHandles,
		Outputs:     outputHandles,
		Properties: append(transformSpecs(),
			registry.PropertySpec{
				Name: "pivotMode", Kind: graph.KindMenu, Label: "Pivot", Default: "center",
				Options: []graph.Option{{Value: "center", Label: "Center"}, {Value: "custom", Label: "Custom"}},
			},
			registry.PropertySpec{Name: "pivot", Kind: graph.KindVec2, Label: "Pivot point", Default: canvas.V(0, 0), Min: registry.Ptr(-10000), Max: registry.Ptr(10000)},
		),
		Compute: computeTransform,
	}
}

func computeTransform(_ context.Context, in registry.Inputs, p registry.Properties) (*canvas.Canvas, error) {
	src := in.Primary()
	if src == nil {
		return nil, missingInput("Transform")
	}
	pivot := p.Vec2("pivot")
	if p.String("pivotMode") != "custom" {
		pivot = src.Bounds().Center()
	}
	out := src.Clone()
	out.Apply(canvas.PivotTransform(pivot, p.Vec2("translate"), p.Float("rotate"), scaleOf(p)))
	return out, nil
}

// ---------------------------------------------------------------------------
// softTransform
// ---------------------------------------------------------------------------

func softTransformType() *registry.NodeType {
	return &registry.NodeType{
		Tag:         "softTransform",
		Label:       "Soft Transform",
		Category:    CategoryModify,
		Description: "Transforms with a distance-based falloff from a pivot",
		Inputs:      inputHandles,
		Outputs:     outputHandles,
		Properties: append(transformSpecs(),
			registry.PropertySpec{Name: "pivot", Kind: graph.KindVec2, Label: "Pivot point", Default: canvas.V(0, 0), Min: registry.Ptr(-10000), Max: registry.Ptr(10000)},
			registry.PropertySpec{Name: "radius", Kind: graph.KindFloat, Label: "Radius", Default: 100.0, Min: registry.Ptr(0), Max: registry.Ptr(10000)},
			registry.PropertySpec{Name: "decayFunction", Kind: graph.KindMenu, Label: "Decay function", Default: "linear", Options: decayOptions()},
			registry.PropertySpec{Name: "inverse", Kind: graph.KindBoolean, Label: "Inverse effect", Default: false},
		),
		Compute: computeSoftTransform,
	}
}

// computeSoftTransform scales every component of the transform by the
// point's strength: translate and rotation linearly, scale towards 1.
func computeSoftTransform(_ context.Context, in registry.Inputs, p registry.Properties) (*canvas.Canvas, error) {
	src := in.Primary()
	if src == nil {
		return nil, missingInput("Soft Transform")
	}
	name := p.String("decayFunction")
	decay, ok := Decay(name)
	if !ok {
		return nil, fmt.Errorf("unknown decay function %q", name)
	}
	translate := p.Vec2("translate")
	rotate := p.Float("rotate")
	scale := scaleOf(p)
	pivot := p.Vec2("pivot")
	radius := p.Float("radius")
	inverse := p.Bool("inverse")

	out := src.Clone()
	for i := range out.Points {
		pt := &out.Points[i]
		s := Strength(pt.Pos().Dist(pivot), radius, decay, inverse)
		if s == 0 {
			continue
		}
		a := canvas.PivotTransform(
			pivot,
			translate.Scale(s),
			rotate*s,
			canvas.V(1+(scale.X-1)*s, 1+(scale.Y-1)*s),
		)
		pos := a.Apply(pt.Pos())
		pt.X, pt.Y = pos.X, pos.Y
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// crop
// ---------------------------------------------------------------------------

func cropType() *registry.NodeType {
	return &registry.NodeType{
		Tag:         "crop",
		Label:       "Crop",
		Category:    CategoryModify,
		Description: "Removes points outside a rectangle",
		Inputs:      inputHandles,
		Outputs:     outputHandles,
		Properties: []registry.PropertySpec{
			{Name: "x", Kind: graph.KindFloat, Label: "X", Default: 0.0, Min: registry.Ptr(-10000), Max: registry.Ptr(10000)},
			{Name: "y", Kind: graph.KindFloat, Label: "Y", Default: 0.0, Min: registry.Ptr(-10000), Max: registry.Ptr(10000)},
			{Name: "width", Kind: graph.KindFloat, Label: "Width", Default: 100.0, Min: registry.Ptr(0), Max: registry.Ptr(10000)},
			{Name: "height", Kind: graph.KindFloat, Label: "Height", Default: 100.0, Min: registry.Ptr(0), Max: registry.Ptr(10000)},
		},
		Compute: func(_ context.Context, in registry.Inputs, p registry.Properties) (*canvas.Canvas, error) {
			src := in.Primary()
			if src == nil {
				return nil, missingInput("Crop")
			}
			x, y := p.Float("x"), p.Float("y")
			keep := canvas.Bounds{MinX: x, MinY: y, MaxX: x + p.Float("width"), MaxY: y + p.Float("height")}
			out := src.Clone()
			out.RemovePoints(func(_ int, pt canvas.Point) bool {
				return !keep.Contains(pt.Pos())
			})
			return out, nil
		},
	}
}

// ---------------------------------------------------------------------------
// cleanup
// ---------------------------------------------------------------------------

func cleanupType() *registry.NodeType {
	return &registry.NodeType{
		Tag:         "cleanup",
		Label:       "Cleanup",
		Category:    CategoryModify,
		Description: "Removes duplicate lines and duplicate loose points",
		Inputs:      inputHandles,
		Outputs:     outputHandles,
		Properties: []registry.PropertySpec{
			{Name: "tolerance", Kind: graph.KindFloat, Label: "Tolerance", Default: 0.0001, Min: registry.Ptr(0.00001), Max: registry.Ptr(1)},
		},
		Compute: func(_ context.Context, in registry.Inputs, p registry.Properties) (*canvas.Canvas, error) {
			src := in.Primary()
			if src == nil {
				return nil, missingInput("Cleanup")
			}
			out := src.Clone()
			Cleanup(out, p.Float("tolerance"))
			return out, nil
		},
	}
}

// Cleanup removes, in place, lines that duplicate a later line and then
// unconnected points that duplicate a later unconnected point. Two lines
// are duplicates when their point positions match within tol, in the same
// or reversed order. The later copy always survives.
func Cleanup(c *canvas.Canvas, tol float64) {
	lines := c.Lines[:0]
	for i, l := range c.Lines {
		dup := false
		for _, later := range c.Lines[i+1:] {
			if sameLine(c, l, later, tol) {
				dup = true
				break
			}
		}
		if !dup {
			lines = append(lines, l)
		}
	}
	c.Lines = lines

	loose := c.UnconnectedIndices()
	drop := make(map[int]bool)
	for k, i := range loose {
		for _, j := range loose[k+1:] {
			if c.Points[i].Pos().Near(c.Points[j].Pos(), tol) {
				drop[i] = true
				break
			}
		}
	}
	if len(drop) > 0 {
		c.RemovePoints(func(i int, _ canvas.Point) bool { return drop[i] })
	}
}

func sameLine(c *canvas.Canvas, a, b canvas.Line, tol float64) bool {
	n := len(a.Points)
	if n != len(b.Points) {
		return false
	}
	at := func(l canvas.Line, k int) canvas.Vec2 { return c.Points[l.Points[k]].Pos() }
	forward, backward := true, true
	for k := 0; k < n && (forward || backward); k++ {
		if forward && !at(a, k).Near(at(b, k), tol) {
			forward = false
		}
		if backward && !at(a, k).Near(at(b, n-1-k), tol) {
			backward = false
		}
	}
	return forward || backward
}

// ---------------------------------------------------------------------------
// subdivide
// ---------------------------------------------------------------------------

func subdivideType() *registry.NodeType {
	return &registry.NodeType{
		Tag:         "subdivide",
		Label:       "Subdivide",
		Category:    CategoryModify,
		Description: "Splits line segments longer than a maximum length",
		Inputs:      inputHandles,
		Outputs:     outputHandles,
		Properties: []registry.PropertySpec{
			{Name: "maxLength", Kind: graph.KindFloat, Label: "Max length", Default: 1.0, Min: registry.Ptr(0.1), Max: registry.Ptr(1000)},
		},
		Compute: func(_ context.Context, in registry.Inputs, p registry.Properties) (*canvas.Canvas, error) {
			src := in.Primary()
			if src == nil {
				return nil, missingInput("Subdivide")
			}
			maxLen := p.Float("maxLength")
			if maxLen <= 0 {
				return nil, fmt.Errorf("max length must be positive, got %g", maxLen)
			}
			out := src.Clone()
			Subdivide(out, maxLen)
			return out, nil
		},
	}
}

// Subdivide splits every segment longer than maxLen into ceil(len/maxLen)
// equal parts. Inserted points copy the attributes of the segment's first
// point.
func Subdivide(c *canvas.Canvas, maxLen float64) {
	for li := range c.Lines {
		src := c.Lines[li].Points
		ids := make([]int, 0, len(src))
		ids = append(ids, src[0])
		for k := 1; k < len(src); k++ {
			a, b := c.Points[src[k-1]], c.Points[src[k]]
			d := a.Pos().Dist(b.Pos())
			if n := int(math.Ceil(d / maxLen)); n > 1 {
				step := b.Pos().Sub(a.Pos()).Scale(1 / float64(n))
				for s := 1; s < n; s++ {
					pos := a.Pos().Add(step.Scale(float64(s)))
					ids = append(ids, c.Point(pos.X, pos.Y, a.Attributes))
				}
			}
			ids = append(ids, src[k])
		}
		c.Lines[li].Points = ids
	}
}

// ---------------------------------------------------------------------------
// fuse
// ---------------------------------------------------------------------------

func fuseType() *registry.NodeType {
	return &registry.NodeType{
		Tag:         "fuse",
		Label:       "Fuse",
		Category:    CategoryModify,
		Description: "Joins lines that share an endpoint and a style",
		Inputs:      inputHandles,
		Outputs:     outputHandles,
		Compute: func(_ context.Context, in registry.Inputs, _ registry.Properties) (*canvas.Canvas, error) {
			src := in.Primary()
			if src == nil {
				return nil, missingInput("Fuse")
			}
			out := src.Clone()
			Fuse(out)
			return out, nil
		},
	}
}

// Fuse merges pairs of lines with a shared endpoint and identical color and
// thickness into one polyline until no such pair is left.
func Fuse(c *canvas.Canvas) {
	for {
		i, j, joined, ok := findFusable(c.Lines)
		if !ok {
			return
		}
		c.Lines[i].Points = joined
		c.Lines = slices.Delete(c.Lines, j, j+1)
	}
}

func findFusable(lines []canvas.Line) (i, j int, joined []int, ok bool) {
	for i = range lines {
		for j = i + 1; j < len(lines); j++ {
			if joined, ok = fuseLines(lines[i], lines[j]); ok {
				return i, j, joined, true
			}
		}
	}
	return 0, 0, nil, false
}

// fuseLines joins b onto a, reversing b where needed.
func fuseLines(a, b canvas.Line) ([]int, bool) {
	if a.Color != b.Color || a.Thickness != b.Thickness {
		return nil, false
	}
	switch {
	case a.Last() == b.First():
		return concat(a.Points, b.Points[1:]), true
	case a.Last() == b.Last():
		return concat(a.Points, reversed(b.Points)[1:]), true
	case a.First() == b.Last():
		return concat(b.Points, a.Points[1:]), true
	case a.First() == b.First():
		return concat(reversed(b.Points), a.Points[1:]), true
	}
	return nil, false
}

func concat(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	return append(append(out, a...), b...)
}

func reversed(ids []int) []int {
	out := slices.Clone(ids)
	slices.Reverse(out)
	return out
}

// ---------------------------------------------------------------------------
// close
// ---------------------------------------------------------------------------

func closeType() *registry.NodeType {
	return &registry.NodeType{
		Tag:         "close",
		Label:       "Close",
		Category:    CategoryModify,
		Description: "Closes open polylines back onto their first point",
		Inputs:      inputHandles,
		Outputs:     outputHandles,
		Compute: func(_ context.Context, in registry.Inputs, _ registry.Properties) (*canvas.Canvas, error) {
			src := in.Primary()
			if src == nil {
				return nil, missingInput("Close")
			}
			out := src.Clone()
			for i, l := range out.Lines {
				if len(l.Points) > 2 && l.First() != l.Last() {
					out.Lines[i].Points = append(l.Points, l.First())
				}
			}
			return out, nil
		},
	}
}

// ---------------------------------------------------------------------------
// attributes
// ---------------------------------------------------------------------------

func attributesType() *registry.NodeType {
	return &registry.NodeType{
		Tag:         "attributes",
		Label:       "Attributes",
		Category:    CategoryModify,
		Description: "Sets a named attribute on points, lines or both",
		Inputs:      inputHandles,
		Outputs:     outputHandles,
		Properties: []registry.PropertySpec{
			{
				Name: "target", Kind: graph.KindMenu, Label: "Target", Default: "points",
				Options: []graph.Option{{Value: "points", Label: "Points"}, {Value: "lines", Label: "Lines"}, {Value: "all", Label: "All"}},
			},
			{Name: "attributeName", Kind: graph.KindString, Label: "Attribute name", Default: ""},
			{
				Name: "attributeType", Kind: graph.KindMenu, Label: "Attribute type", Default: "float",
				Options: []graph.Option{
					{Value: "float", Label: "Float"},
					{Value: "int", Label: "Integer"},
					{Value: "vec2", Label: "Vector 2D"},
					{Value: "color", Label: "Color"},
					{Value: "string", Label: "String"},
				},
			},
			{Name: "floatValue", Kind: graph.KindFloat, Label: "Value", Default: 0.0, Hidden: true},
			{Name: "intValue", Kind: graph.KindInt, Label: "Value", Default: 0, Hidden: true},
			{Name: "vec2Value", Kind: graph.KindVec2, Label: "Value", Default: canvas.V(0, 0), Hidden: true},
			{Name: "colorValue", Kind: graph.KindColor, Label: "Value", Default: canvas.DefaultLineColor, Hidden: true},
			{Name: "stringValue", Kind: graph.KindString, Label: "Value", Default: "", Hidden: true},
		},
		Compute: computeAttributes,
	}
}

func computeAttributes(_ context.Context, in registry.Inputs, p registry.Properties) (*canvas.Canvas, error) {
	src := in.Primary()
	if src == nil {
		return nil, missingInput("Attributes")
	}
	name := p.String("attributeName")
	if name == "" {
		return nil, fmt.Errorf("Attribute name cannot be empty")
	}
	var value any
	switch p.String("attributeType") {
	case "float":
		value = p.Float("floatValue")
	case "int":
		value = p.Int("intValue")
	case "vec2":
		value = p.Vec2("vec2Value")
	case "color":
		value = p.String("colorValue")
	case "string":
		value = p.String("stringValue")
	default:
		return nil, fmt.Errorf("Invalid attribute type")
	}

	target := p.String("target")
	out := src.Clone()
	if target == "points" || target == "all" {
		for i := range out.Points {
			out.SetPointAttributes(i, canvas.Attributes{name: value})
		}
	}
	if target == "lines" || target == "all" {
		for i := range out.Lines {
			if out.Lines[i].Attributes == nil {
				out.Lines[i].Attributes = canvas.Attributes{}
			}
			out.Lines[i].Attributes[name] = value
		}
	}
	return out, nil
}

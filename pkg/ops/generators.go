package ops

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/dsedov/penpal-studio/pkg/canvas"
	"github.com/dsedov/penpal-studio/pkg/graph"
	"github.com/dsedov/penpal-studio/pkg/registry"
)

func colorSpec(name, label string) registry.PropertySpec {
	return registry.PropertySpec{Name: name, Kind: graph.KindColor, Label: label, Default: canvas.DefaultLineColor}
}

func thicknessSpec(name, label string) registry.PropertySpec {
	return registry.PropertySpec{
		Name: name, Kind: graph.KindFloat, Label: label,
		Default: canvas.DefaultThickness, Min: registry.Ptr(0.1), Max: registry.Ptr(100),
	}
}

func styleOf(p registry.Properties, color, thickness string) canvas.LineStyle {
	return canvas.LineStyle{Color: p.String(color), Thickness: p.Float(thickness)}
}

// ---------------------------------------------------------------------------
// canvas
// ---------------------------------------------------------------------------

func canvasType() *registry.NodeType {
	return &registry.NodeType{
		Tag:         "canvas",
		Label:       "Canvas",
		Category:    CategoryGenerate,
		Description: "Blank drawing surface",
		Outputs:     outputHandles,
		Properties: []registry.PropertySpec{
			{Name: "size", Kind: graph.KindVec2, Label: "Size", Default: canvas.V(800, 600), Min: registry.Ptr(1), Max: registry.Ptr(10000)},
			{Name: "backgroundColor", Kind: graph.KindColor, Label: "Background color", Default: canvas.DefaultBackground},
		},
		Compute: func(_ context.Context, _ registry.Inputs, p registry.Properties) (*canvas.Canvas, error) {
			size := p.Vec2("size")
			return canvas.New(size.X, size.Y, p.String("backgroundColor")), nil
		},
	}
}

// ---------------------------------------------------------------------------
// pointGrid
// ---------------------------------------------------------------------------

func pointGridType() *registry.NodeType {
	return &registry.NodeType{
		Tag:         "pointGrid",
		Label:       "Point Grid",
		Category:    CategoryGenerate,
		Description: "Fills the canvas with a regular grid of points",
		Inputs:      inputHandles,
		Outputs:     outputHandles,
		Properties: []registry.PropertySpec{
			{Name: "spacing", Kind: graph.KindFloat, Label: "Spacing", Default: 20.0, Min: registry.Ptr(0.1), Max: registry.Ptr(100)},
		},
		Compute: computePointGrid,
	}
}

// computePointGrid adds points row by row, from the top-left corner, at
// every multiple of spacing strictly inside the canvas size.
func computePointGrid(_ context.Context, in registry.Inputs, p registry.Properties) (*canvas.Canvas, error) {
	src := in.Primary()
	if src == nil {
		return nil, missingInput("Point Grid")
	}
	spacing := p.Float("spacing")
	if spacing <= 0 {
		return nil, fmt.Errorf("spacing must be positive, got %g", spacing)
	}
	out := src.Clone()
	for j := 0; float64(j)*spacing < out.Size.Y; j++ {
		for i := 0; float64(i)*spacing < out.Size.X; i++ {
			out.Point(float64(i)*spacing, float64(j)*spacing, nil)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// line
// ---------------------------------------------------------------------------

func lineType() *registry.NodeType {
	return &registry.NodeType{
		Tag:         "line",
		Label:       "Line",
		Category:    CategoryGenerate,
		Description: "Draws a straight line between two points",
		Inputs:      inputHandles,
		Outputs:     outputHandles,
		Properties: []registry.PropertySpec{
			{Name: "start", Kind: graph.KindVec2, Label: "Start", Default: canvas.V(0, 0), Min: registry.Ptr(-10000), Max: registry.Ptr(10000)},
			{Name: "end", Kind: graph.KindVec2, Label: "End", Default: canvas.V(100, 100), Min: registry.Ptr(-10000), Max: registry.Ptr(10000)},
			colorSpec("color", "Color"),
			thicknessSpec("thickness", "Thickness"),
		},
		Compute: func(_ context.Context, in registry.Inputs, p registry.Properties) (*canvas.Canvas, error) {
			src := in.Primary()
			if src == nil {
				return nil, missingInput("Line")
			}
			out := src.Clone()
			out.Segment(p.Vec2("start"), p.Vec2("end"), styleOf(p, "color", "thickness"))
			return out, nil
		},
	}
}

// ---------------------------------------------------------------------------
// circle
// ---------------------------------------------------------------------------

func circleType() *registry.NodeType {
	return &registry.NodeType{
		Tag:         "circle",
		Label:       "Circle",
		Category:    CategoryGenerate,
		Description: "Draws a closed circle tessellated into short edges",
		Inputs:      inputHandles,
		Outputs:     outputHandles,
		Properties: []registry.PropertySpec{
			{Name: "center", Kind: graph.KindVec2, Label: "Center", Default: canvas.V(100, 100), Min: registry.Ptr(-10000), Max: registry.Ptr(10000)},
			{Name: "radius", Kind: graph.KindFloat, Label: "Radius", Default: 50.0, Min: registry.Ptr(0.1), Max: registry.Ptr(10000)},
			{Name: "maxEdgeLength", Kind: graph.KindFloat, Label: "Max edge length", Default: 5.0, Min: registry.Ptr(0.1), Max: registry.Ptr(1000)},
			colorSpec("color", "Color"),
			thicknessSpec("thickness", "Thickness"),
		},
		Compute: func(_ context.Context, in registry.Inputs, p registry.Properties) (*canvas.Canvas, error) {
			src := in.Primary()
			if src == nil {
				return nil, missingInput("Circle")
			}
			out := src.Clone()
			_, _, err := out.Circle(p.Vec2("center"), p.Float("radius"), p.Float("maxEdgeLength"), nil, styleOf(p, "color", "thickness"))
			if err != nil {
				return nil, err
			}
			return out, nil
		},
	}
}

// ---------------------------------------------------------------------------
// connect
// ---------------------------------------------------------------------------

// PointProbability is the point attribute read by Connect when
// usePointProbability is set. Points without it count as 1.
const PointProbability = "pprob"

func connectType() *registry.NodeType {
	return &registry.NodeType{
		Tag:         "connect",
		Label:       "Connect Nearby",
		Category:    CategoryGenerate,
		Description: "Connects every pair of points closer than a radius",
		Inputs:      inputHandles,
		Outputs:     outputHandles,
		Properties: []registry.PropertySpec{
			{Name: "radius", Kind: graph.KindFloat, Label: "Radius", Default: 50.0, Min: registry.Ptr(0.1), Max: registry.Ptr(1000)},
			{Name: "probability", Kind: graph.KindFloat, Label: "Probability", Default: 1.0, Min: registry.Ptr(0), Max: registry.Ptr(1)},
			{Name: "seed", Kind: graph.KindInt, Label: "Seed", Default: 1, Min: registry.Ptr(0), Max: registry.Ptr(10000)},
			{Name: "usePointProbability", Kind: graph.KindBoolean, Label: "Use point probability", Default: false},
			colorSpec("lineColor", "Line color"),
			thicknessSpec("lineThickness", "Line thickness"),
		},
		Compute: computeConnect,
	}
}

func computeConnect(_ context.Context, in registry.Inputs, p registry.Properties) (*canvas.Canvas, error) {
	src := in.Primary()
	if src == nil {
		return nil, missingInput("Connect Nearby")
	}
	out := src.Clone()
	radius := p.Float("radius")
	probability := p.Float("probability")
	usePoint := p.Bool("usePointProbability")
	style := styleOf(p, "lineColor", "lineThickness")
	rng := rand.New(rand.NewPCG(uint64(p.Int("seed")), 0))

	n := len(src.Points)
	for i := 0; i < n; i++ {
		a := src.Points[i]
		for j := i + 1; j < n; j++ {
			b := src.Points[j]
			if a.Pos().Dist(b.Pos()) > radius {
				continue
			}
			if probability < 1 && rng.Float64() >= probability {
				continue
			}
			if usePoint {
				pp := math.Min(pointProbability(a), pointProbability(b))
				if rng.Float64() >= pp {
					continue
				}
			}
			if _, err := out.Line([]int{i, j}, style); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func pointProbability(p canvas.Point) float64 {
	v, ok := p.Attributes[PointProbability]
	if !ok {
		return 1
	}
	f, ok := registry.ToFloat(v)
	if !ok {
		return 1
	}
	return f
}

// ---------------------------------------------------------------------------
// clone
// ---------------------------------------------------------------------------

func cloneType() *registry.NodeType {
	return &registry.NodeType{
		Tag:         "clone",
		Label:       "Clone",
		Category:    CategoryGenerate,
		Description: "Stamps the source geometry onto every target point",
		Inputs: []registry.Handle{
			{ID: "source", Label: "Source"},
			{ID: "target", Label: "Target"},
		},
		Outputs: outputHandles,
		Compute: computeClone,
	}
}

// computeClone copies the source's unconnected points and lines once per
// target point, centered on it. Point attributes are kept.
func computeClone(_ context.Context, in registry.Inputs, _ registry.Properties) (*canvas.Canvas, error) {
	source, target := in.Canvas("source"), in.Canvas("target")
	if source == nil || target == nil {
		return nil, fmt.Errorf("Clone requires both source and target canvas inputs")
	}
	out := target.Clone()
	if len(source.Points) == 0 {
		return out, nil
	}
	center := source.PointsCenter()
	loose := source.UnconnectedIndices()

	for _, tp := range target.Points {
		offset := tp.Pos().Sub(center)
		remap := make(map[int]int)
		place := func(i int) int {
			if id, ok := remap[i]; ok {
				return id
			}
			sp := source.Points[i]
			pos := sp.Pos().Add(offset)
			id := out.Point(pos.X, pos.Y, sp.Attributes)
			remap[i] = id
			return id
		}
		for _, i := range loose {
			place(i)
		}
		for _, l := range source.Lines {
			ids := make([]int, len(l.Points))
			for k, i := range l.Points {
				ids[k] = place(i)
			}
			li, err := out.Line(ids, canvas.LineStyle{Color: l.Color, Thickness: l.Thickness})
			if err != nil {
				return nil, err
			}
			if l.Attributes != nil {
				out.Lines[li].Attributes = l.Attributes.Clone()
			}
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// duplicate
// ---------------------------------------------------------------------------

func duplicateType() *registry.NodeType {
	return &registry.NodeType{
		Tag:         "duplicate",
		Label:       "Duplicate",
		Category:    CategoryGenerate,
		Description: "Merges progressively transformed copies of the input",
		Inputs:      inputHandles,
		Outputs:     outputHandles,
		Properties: []registry.PropertySpec{
			{Name: "copies", Kind: graph.KindInt, Label: "Copies", Default: 1, Min: registry.Ptr(1), Max: registry.Ptr(100)},
			{Name: "translate", Kind: graph.KindVec2, Label: "Translate", Default: canvas.V(10, 0), Min: registry.Ptr(-10000), Max: registry.Ptr(10000)},
			{Name: "rotate", Kind: graph.KindFloat, Label: "Rotate (degrees)", Default: 0.0, Min: registry.Ptr(-360), Max: registry.Ptr(360)},
			{Name: "scale", Kind: graph.KindVec2, Label: "Scale", Default: canvas.V(1, 1), Min: registry.Ptr(-100), Max: registry.Ptr(100)},
			{Name: "uniformScale", Kind: graph.KindBoolean, Label: "Uniform scale", Default: true},
		},
		Compute: computeDuplicate,
	}
}

// computeDuplicate merges copies 1..N-1 into a clone of the input. Copy i
// is rotated by i*rotate and scaled by scale^i about its own bounds center,
// then moved by i*translate.
func computeDuplicate(_ context.Context, in registry.Inputs, p registry.Properties) (*canvas.Canvas, error) {
	src := in.Primary()
	if src == nil {
		return nil, missingInput("Duplicate")
	}
	copies := p.Int("copies")
	translate := p.Vec2("translate")
	rotate := p.Float("rotate")
	scale := scaleOf(p)
	pivot := src.Bounds().Center()

	out := src.Clone()
	for i := 1; i < copies; i++ {
		k := float64(i)
		dup := src.Clone()
		dup.Apply(canvas.PivotTransform(
			pivot,
			translate.Scale(k),
			rotate*k,
			canvas.V(math.Pow(scale.X, k), math.Pow(scale.Y, k)),
		))
		out = out.Merge(dup)
	}
	return out, nil
}

// scaleOf reads the scale property, copying x into y when uniformScale is set.
func scaleOf(p registry.Properties) canvas.Vec2 {
	s := p.Vec2("scale")
	if p.Bool("uniformScale") {
		s.Y = s.X
	}
	return s
}

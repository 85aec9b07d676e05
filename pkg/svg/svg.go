// Package svg renders a canvas as an SVG document and writes it to a local
// file or an S3-compatible bucket.
//
// Lines are grouped by stroke color into one <g> layer per color, in order of
// first appearance, so plotter software can map layers to pens. Two-point
// lines become <line> elements and longer chains become <polyline>.
package svg

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"

	svgo "github.com/ajstarks/svgo"

	"github.com/dsedov/penpal-studio/pkg/canvas"
)

// MMToPx converts millimeters to CSS pixels at 96 DPI.
const MMToPx = 3.7795275591

// Options controls rendering.
type Options struct {
	// Units is "px" (canvas units are pixels) or "mm" (canvas units are
	// millimeters and are scaled by MMToPx).
	Units string
	// MMToPx overrides the millimeter factor. Zero uses the MMToPx constant.
	MMToPx float64
	// Precision is the number of decimal digits kept in coordinates.
	Precision int
	// Background draws a rectangle in the canvas background color.
	Background bool
}

// DefaultOptions returns pixel units, two decimals and a background.
func DefaultOptions() Options {
	return Options{Units: "px", MMToPx: MMToPx, Precision: 2, Background: true}
}

func (o Options) scale() float64 {
	if o.Units != "mm" {
		return 1
	}
	if o.MMToPx > 0 {
		return o.MMToPx
	}
	return MMToPx
}

// errWriter remembers the first write error so it can be reported after
// svgo, which ignores write errors, has finished.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return len(p), nil
	}
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}

// Layer is the set of lines sharing a stroke color.
type Layer struct {
	Color string
	Lines []int
}

// Layers groups line indices by color in order of first appearance.
func Layers(c *canvas.Canvas) []Layer {
	var layers []Layer
	byColor := make(map[string]int)
	for i, l := range c.Lines {
		color := l.Color
		if color == "" {
			color = canvas.DefaultLineColor
		}
		idx, ok := byColor[color]
		if !ok {
			idx = len(layers)
			byColor[color] = idx
			layers = append(layers, Layer{Color: color})
		}
		layers[idx].Lines = append(layers[idx].Lines, i)
	}
	return layers
}

// Write renders c to w.
//
// svgo works in integer user units, so coordinates are stored as fixed point
// with Precision decimals and the viewBox scales them back down.
func Write(w io.Writer, c *canvas.Canvas, opts Options) error {
	if c == nil {
		return fmt.Errorf("svg: nil canvas")
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("svg: %w", err)
	}
	if opts.Precision < 0 {
		opts.Precision = 0
	}
	scale := opts.scale()
	q := math.Pow10(opts.Precision)
	fixed := func(v float64) int { return int(math.Round(v * scale * q)) }

	ew := &errWriter{w: w}
	doc := svgo.New(ew)
	width := int(math.Round(c.Size.X * scale))
	height := int(math.Round(c.Size.Y * scale))
	doc.Startview(width, height, 0, 0, fixed(c.Size.X), fixed(c.Size.Y))

	if opts.Background && c.BackgroundColor != "" {
		doc.Rect(0, 0, fixed(c.Size.X), fixed(c.Size.Y), "fill:"+c.BackgroundColor)
	}

	for n, layer := range Layers(c) {
		doc.Group(
			fmt.Sprintf(`id="layer-%d"`, n+1),
			fmt.Sprintf(`stroke=%q`, layer.Color),
			`fill="none"`,
			`stroke-linecap="round"`,
			`stroke-linejoin="round"`,
		)
		for _, li := range layer.Lines {
			line := c.Lines[li]
			style := "stroke-width:" + strconv.Itoa(fixed(line.Thickness))
			if len(line.Points) == 2 {
				a, b := c.Points[line.Points[0]], c.Points[line.Points[1]]
				doc.Line(fixed(a.X), fixed(a.Y), fixed(b.X), fixed(b.Y), style)
				continue
			}
			xs := make([]int, len(line.Points))
			ys := make([]int, len(line.Points))
			for i, id := range line.Points {
				xs[i] = fixed(c.Points[id].X)
				ys[i] = fixed(c.Points[id].Y)
			}
			doc.Polyline(xs, ys, style)
		}
		doc.Gend()
	}
	doc.End()

	if ew.err != nil {
		return fmt.Errorf("svg: write: %w", ew.err)
	}
	return nil
}

// Render returns the SVG document for c.
func Render(c *canvas.Canvas, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, c, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

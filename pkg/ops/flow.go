package ops

import (
	"context"
	"fmt"

	"github.com/dsedov/penpal-studio/pkg/canvas"
	"github.com/dsedov/penpal-studio/pkg/graph"
	"github.com/dsedov/penpal-studio/pkg/registry"
	"github.com/dsedov/penpal-studio/pkg/svg"
)

// ---------------------------------------------------------------------------
// merge
// ---------------------------------------------------------------------------

func mergeType() *registry.NodeType {
	return &registry.NodeType{
		Tag:                 "merge",
		Label:               "Merge",
		Category:            CategoryFlow,
		Description:         "Combines every connected canvas into one",
		Inputs:              []registry.Handle{{ID: registry.PrimaryHandle, Label: "Inputs", Multiple: true}},
		Outputs:             outputHandles,
		TolerateInputErrors: true,
		Compute: func(_ context.Context, in registry.Inputs, _ registry.Properties) (*canvas.Canvas, error) {
			canvases := in.Canvases()
			if len(canvases) == 0 {
				return nil, fmt.Errorf("Merge requires at least one canvas input")
			}
			out := canvases[0].Clone()
			for _, c := range canvases[1:] {
				out = out.Merge(c)
			}
			return out, nil
		},
	}
}

// ---------------------------------------------------------------------------
// loop
// ---------------------------------------------------------------------------

// Loop handles. The body hangs off LoopOut and feeds back into LoopIn.
const (
	LoopInitial = "initial"
	LoopIn      = "loopIn"
	LoopOut     = "loopOut"
	LoopResult  = "result"
)

// LoopTag is the type tag the evaluator runs loops for.
const LoopTag = "loop"

// loopType has no compute function: the evaluator re-runs the loop body
// itself, once per iteration.
func loopType() *registry.NodeType {
	return &registry.NodeType{
		Tag:         LoopTag,
		Label:       "Loop",
		Category:    CategoryFlow,
		Description: "Feeds a sub-graph its own output a fixed number of times",
		Inputs: []registry.Handle{
			{ID: LoopInitial, Label: "Initial"},
			{ID: LoopIn, Label: "Loop in"},
		},
		Outputs: []registry.Handle{
			{ID: LoopOut, Label: "Loop out"},
			{ID: LoopResult, Label: "Result"},
		},
		Properties: []registry.PropertySpec{
			{Name: "iterations", Kind: graph.KindInt, Label: "Iterations", Default: 5, Min: registry.Ptr(1), Max: registry.Ptr(1000)},
		},
		FeedbackHandle: LoopIn,
	}
}

// ---------------------------------------------------------------------------
// exportSVG
// ---------------------------------------------------------------------------

func exportSVGType(opts Options) *registry.NodeType {
	log := opts.logger()
	base := opts.SVG
	if base == (svg.Options{}) {
		base = svg.DefaultOptions()
	}
	return &registry.NodeType{
		Tag:         "exportSVG",
		Label:       "Export SVG",
		Category:    CategoryOutput,
		Description: "Writes the canvas to an SVG file or s3:// object",
		Inputs:      inputHandles,
		Outputs:     outputHandles,
		Properties: []registry.PropertySpec{
			{Name: "filePath", Kind: graph.KindFile, Label: "File", Default: ""},
			{
				Name: "units", Kind: graph.KindMenu, Label: "Units", Default: "px",
				Options: []graph.Option{{Value: "px", Label: "Pixels"}, {Value: "mm", Label: "Millimeters"}},
			},
		},
		Compute: func(ctx context.Context, in registry.Inputs, p registry.Properties) (*canvas.Canvas, error) {
			src := in.Primary()
			if src == nil {
				return nil, fmt.Errorf("Input must be a canvas")
			}
			target := p.String("filePath")
			if target == "" {
				return nil, fmt.Errorf("No output file specified")
			}
			dest, err := svg.Open(ctx, target, opts.S3)
			if err != nil {
				return nil, fmt.Errorf("export %s: %w", target, err)
			}
			svgOpts := base
			svgOpts.Units = p.String("units")
			if err := svg.Export(ctx, src, dest, svgOpts); err != nil {
				return nil, fmt.Errorf("export %s: %w", target, err)
			}
			log.Info("exported svg", "target", target, "points", len(src.Points), "lines", len(src.Lines))
			return src.Clone(), nil
		},
	}
}

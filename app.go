package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/dsedov/penpal-studio/pkg/canvas"
	"github.com/dsedov/penpal-studio/pkg/config"
	"github.com/dsedov/penpal-studio/pkg/engine"
	"github.com/dsedov/penpal-studio/pkg/graph"
	"github.com/dsedov/penpal-studio/pkg/ops"
	"github.com/dsedov/penpal-studio/pkg/registry"
	"github.com/dsedov/penpal-studio/pkg/svg"
)

// App is the editor backend. It exposes methods to the frontend via bindings
// and backs the CLI commands.
type App struct {
	ctx    context.Context
	cfg    config.Config
	log    *slog.Logger
	engine *engine.Engine
}

// ErrorData is a JSON-serializable error or warning for the frontend.
type ErrorData struct {
	NodeID  string `json:"nodeId,omitempty"`
	EdgeID  string `json:"edgeId,omitempty"`
	Message string `json:"message"`
}

// EvalResult is the full result returned to the frontend.
type EvalResult struct {
	PassID   string                     `json:"passId,omitempty"`
	Results  map[string]registry.Result `json:"results"`
	Output   *canvas.Canvas             `json:"output"`
	Errors   []ErrorData                `json:"errors"`
	Warnings []ErrorData                `json:"warnings"`
}

// NodeTypeData describes one node type for the editor palette.
type NodeTypeData struct {
	Tag         string                    `json:"tag"`
	Label       string                    `json:"label"`
	Category    string                    `json:"category"`
	Description string                    `json:"description,omitempty"`
	Inputs      []registry.Handle         `json:"inputs"`
	Outputs     []registry.Handle         `json:"outputs"`
	Properties  map[string]graph.Property `json:"properties"`
	Schema      *jsonschema.Schema        `json:"schema,omitempty"`
}

// NewApp creates an App with the built-in node types configured from cfg.
func NewApp(cfg config.Config, log *slog.Logger) *App {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	reg := ops.NewRegistry(ops.Options{
		CodeTimeout: cfg.Eval.CodeTimeout,
		SVG:         cfg.SVGOptions(),
		S3:          cfg.S3Options(),
		Logger:      log,
	})
	return &App{
		cfg:    cfg,
		log:    log,
		engine: engine.NewEngine(reg, engine.WithTimeout(cfg.Eval.Timeout), engine.WithLogger(log)),
	}
}

// startup is called by the host on app startup. The context is saved so
// evaluations stop when the host shuts down.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
}

func (a *App) context() context.Context {
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

// Evaluate takes a project document and returns every node's result plus
// the output node's canvas. This is the primary binding called by the
// frontend editor.
func (a *App) Evaluate(projectJSON string) EvalResult {
	p, err := graph.LoadProject(strings.NewReader(projectJSON))
	if err != nil {
		return EvalResult{
			Results:  map[string]registry.Result{},
			Errors:   []ErrorData{{Message: err.Error()}},
			Warnings: []ErrorData{},
		}
	}
	return a.EvaluateProject(p)
}

// EvaluateProject evaluates an already decoded project. A later call
// supersedes one still running.
func (a *App) EvaluateProject(p *graph.Project) EvalResult {
	res, err := a.engine.EvaluateProject(a.context(), p)
	return a.report(p, res, err)
}

// report converts an engine pass into the frontend result shape.
func (a *App) report(p *graph.Project, res *engine.EvalResult, err error) EvalResult {
	result := EvalResult{
		Results:  map[string]registry.Result{},
		Errors:   []ErrorData{},
		Warnings: []ErrorData{},
	}

	// Step 1: Fatal pass errors.
	if err != nil {
		// Fatal error (panic, timeout, superseded).
		a.log.Error("evaluate failed", "error", err)
		result.Errors = append(result.Errors, ErrorData{Message: err.Error()})
		return result
	}
	result.PassID = res.PassID
	result.Results = res.Results

	// Step 2: Structural findings.
	for _, issue := range res.Issues {
		d := ErrorData{NodeID: issue.NodeID, EdgeID: issue.EdgeID, Message: issue.Message}
		if issue.Severity == graph.SeverityError {
			result.Errors = append(result.Errors, d)
		} else {
			result.Warnings = append(result.Warnings, d)
		}
	}

	// Step 3: Per-node failures, in editor order.
	for _, n := range p.Nodes {
		if r, ok := res.Results[n.ID]; ok && r.Failed() {
			result.Errors = append(result.Errors, ErrorData{NodeID: n.ID, Message: r.Err})
		}
	}

	if out, ok := res.OutputResult(); ok {
		result.Output = out.Canvas
	}
	return result
}

// NodeTypes lists every node type for the editor palette.
func (a *App) NodeTypes() []NodeTypeData {
	types := a.engine.Registry().Types()
	out := make([]NodeTypeData, 0, len(types))
	for _, t := range types {
		out = append(out, NodeTypeData{
			Tag:         t.Tag,
			Label:       t.Label,
			Category:    t.Category,
			Description: t.Description,
			Inputs:      t.Inputs,
			Outputs:     t.Outputs,
			Properties:  t.DefaultProperties(),
			Schema:      t.JSONSchema(),
		})
	}
	return out
}

// NewNode returns a node of the given type with default properties.
func (a *App) NewNode(tag string) (graph.Node, error) {
	t, ok := a.engine.Registry().Lookup(tag)
	if !ok {
		return graph.Node{}, fmt.Errorf("unknown node type %q", tag)
	}
	return t.NewNode()
}

// ExportSVG evaluates the project and writes its output canvas to target, a
// file path or s3://bucket/key. Exports run as independent passes, so
// several may run at once without superseding each other.
func (a *App) ExportSVG(p *graph.Project, target string) error {
	res, err := a.engine.EvaluateProjectIndependent(a.context(), p)
	result := a.report(p, res, err)
	if result.Output == nil {
		if len(result.Errors) > 0 {
			return fmt.Errorf("no output canvas: %s", result.Errors[0].Message)
		}
		return fmt.Errorf("no output canvas: project has no output node")
	}
	ctx := a.context()
	dest, err := svg.Open(ctx, target, a.cfg.S3Options())
	if err != nil {
		return err
	}
	if err := svg.Export(ctx, result.Output, dest, a.cfg.SVGOptions()); err != nil {
		return fmt.Errorf("export %s: %w", target, err)
	}
	a.log.Info("rendered project", "target", target, "points", len(result.Output.Points), "lines", len(result.Output.Lines))
	return nil
}

// StarterProject returns a small canvas -> point grid -> connect project
// with connect as the output node.
func (a *App) StarterProject() (*graph.Project, error) {
	p := graph.NewProject()
	var prev string
	for i, tag := range []string{"canvas", "pointGrid", "connect"} {
		n, err := a.NewNode(tag)
		if err != nil {
			return nil, err
		}
		n.Position = graph.Position{X: float64(i) * 250, Y: 100}
		n.IsOutput = tag == "connect"
		if prev != "" {
			id, err := graph.NewEdgeID()
			if err != nil {
				return nil, err
			}
			p.Edges = append(p.Edges, graph.Edge{ID: id, Source: prev, Target: n.ID, TargetHandle: registry.PrimaryHandle})
		}
		p.Nodes = append(p.Nodes, n)
		prev = n.ID
	}
	return p, nil
}

// Validate loads the project at path and returns its structural findings
// plus any node property that fails its type's schema.
func (a *App) Validate(path string) ([]graph.ValidationError, error) {
	p, err := graph.LoadProjectFile(path)
	if err != nil {
		return nil, err
	}
	reg := a.engine.Registry()
	g := p.Graph()
	findings := graph.Validate(g, reg.ValidateOptions(g))
	for _, n := range g.Nodes() {
		t, ok := reg.Lookup(n.Type)
		if !ok {
			continue
		}
		if err := t.ValidateProperties(n.Properties); err != nil {
			findings = append(findings, graph.ValidationError{
				NodeID:   n.ID,
				Message:  err.Error(),
				Severity: graph.SeverityError,
			})
		}
	}
	return findings, nil
}

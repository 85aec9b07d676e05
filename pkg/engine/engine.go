// Package engine runs evaluation passes for the editor. Each call to
// Evaluate snapshots the graph, validates it and computes it on a separate
// goroutine under a hard time limit. A newer Evaluate request supersedes an
// older one: the older pass's results are discarded when it finishes.
// EvaluateIndependent passes are outside that ordering.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dsedov/penpal-studio/pkg/eval"
	"github.com/dsedov/penpal-studio/pkg/graph"
	"github.com/dsedov/penpal-studio/pkg/registry"
)

// EvalResult bundles the full output of a pass for use by UI bindings.
type EvalResult struct {
	PassID  string                  `json:"passId"`
	Results eval.Results            `json:"results"`
	Output  string                  `json:"output,omitempty"` // id of the output node
	Issues  []graph.ValidationError `json:"issues,omitempty"`
}

// OutputResult returns the output node's result.
func (r *EvalResult) OutputResult() (registry.Result, bool) {
	if r == nil || r.Output == "" {
		return registry.Result{}, false
	}
	res, ok := r.Results[r.Output]
	return res, ok
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout overrides EvalTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the engine's logger. Each pass logs with a pass attribute.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// Engine evaluates graphs against a registry. It is safe for concurrent
// use; each pass gets a fresh Evaluator.
type Engine struct {
	reg     *registry.Registry
	log     *slog.Logger
	timeout time.Duration

	mu         sync.Mutex
	generation uint64
}

// NewEngine creates an Engine for the node types in reg.
func NewEngine(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		reg:     reg,
		log:     slog.New(slog.DiscardHandler),
		timeout: EvalTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the node types the engine evaluates with.
func (e *Engine) Registry() *registry.Registry {
	return e.reg
}

// Evaluate computes every node of the graph formed by nodes and edges.
//
// Return semantics:
//   - On success: per-node results (which may themselves carry errors) and
//     validation findings, nil error
//   - On fatal failure (timeout, superseded, panic): nil + error
func (e *Engine) Evaluate(ctx context.Context, nodes []graph.Node, edges []graph.Edge) (*EvalResult, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	return e.run(ctx, nodes, edges, func(ch <-chan passResult) (*EvalResult, error) {
		return waitWithTimeout(ctx, ch, gen, &e.mu, &e.generation, e.timeout)
	})
}

// EvaluateIndependent computes a graph in a pass that neither supersedes
// nor can be superseded by other passes. Batch callers such as the render
// command use it to run several projects at once on one Engine. Timeout
// and cancellation still apply.
func (e *Engine) EvaluateIndependent(ctx context.Context, nodes []graph.Node, edges []graph.Edge) (*EvalResult, error) {
	return e.run(ctx, nodes, edges, func(ch <-chan passResult) (*EvalResult, error) {
		return waitWithTimeout(ctx, ch, 0, nil, nil, e.timeout)
	})
}

func (e *Engine) run(ctx context.Context, nodes []graph.Node, edges []graph.Edge, wait func(<-chan passResult) (*EvalResult, error)) (*EvalResult, error) {
	passID := uuid.NewString()
	log := e.log.With("pass", passID)
	g := graph.Snapshot(nodes, edges)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan passResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic during evaluation", "panic", r)
				ch <- passResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()
		ch <- passResult{res: e.evaluate(ctx, g, passID, log)}
	}()

	res, err := wait(ch)
	if err != nil {
		log.Warn("evaluation abandoned", "error", err)
	}
	return res, err
}

// EvaluateProject evaluates a loaded project document.
func (e *Engine) EvaluateProject(ctx context.Context, p *graph.Project) (*EvalResult, error) {
	return e.Evaluate(ctx, p.Nodes, p.Edges)
}

// EvaluateProjectIndependent evaluates a project outside the supersede
// ordering. See EvaluateIndependent.
func (e *Engine) EvaluateProjectIndependent(ctx context.Context, p *graph.Project) (*EvalResult, error) {
	return e.EvaluateIndependent(ctx, p.Nodes, p.Edges)
}

// evaluate performs one pass over g.
func (e *Engine) evaluate(ctx context.Context, g *graph.Graph, passID string, log *slog.Logger) *EvalResult {
	start := time.Now()
	issues := graph.Validate(g, e.reg.ValidateOptions(g))
	for _, issue := range issues {
		log.Debug("validation finding", "severity", issue.Severity.String(), "message", issue.Message)
	}

	results := eval.New(g, e.reg, eval.WithLogger(log)).Run(ctx)

	out := &EvalResult{PassID: passID, Results: results, Issues: issues}
	if n, ok := g.Output(); ok {
		out.Output = n.ID
	}
	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	log.Info("evaluation finished", "nodes", g.NodeCount(), "failed", failed, "elapsed", time.Since(start))
	return out
}

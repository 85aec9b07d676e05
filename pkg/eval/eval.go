// Package eval computes a node graph. An Evaluator walks the graph in
// dependency order, memoizes one result per node for the duration of a
// pass, and turns every failure into an error result: no panic or Go error
// escapes Run.
package eval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dsedov/penpal-studio/pkg/graph"
	"github.com/dsedov/penpal-studio/pkg/registry"
)

// Results maps node ids to the result of one evaluation pass.
type Results map[string]registry.Result

// Output returns the result of the graph's output node.
func (r Results) Output(g *graph.Graph) (registry.Result, bool) {
	n, ok := g.Output()
	if !ok {
		return registry.Result{}, false
	}
	res, ok := r[n.ID]
	return res, ok
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger that receives per-node debug records and
// recovered panics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.log = l
		}
	}
}

// Evaluator holds the state of one pass over a graph snapshot. It is not
// safe for concurrent use; run independent passes on separate Evaluators.
type Evaluator struct {
	g   *graph.Graph
	reg *registry.Registry
	log *slog.Logger

	memo     map[string]registry.Result
	visiting map[string]bool

	// Set on loop-body evaluators only.
	parent *Evaluator
	body   map[string]bool
	pinned map[string]registry.Result
}

// New returns an Evaluator for g whose node types come from reg.
func New(g *graph.Graph, reg *registry.Registry, opts ...Option) *Evaluator {
	e := &Evaluator{
		g:        g,
		reg:      reg,
		log:      slog.New(slog.DiscardHandler),
		memo:     make(map[string]registry.Result),
		visiting: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComputeGraph snapshots nodes and edges and evaluates every node.
func ComputeGraph(ctx context.Context, nodes []graph.Node, edges []graph.Edge, reg *registry.Registry, opts ...Option) Results {
	return New(graph.Snapshot(nodes, edges), reg, opts...).Run(ctx)
}

// Run evaluates every node in editor order and returns all results.
func (e *Evaluator) Run(ctx context.Context) Results {
	out := make(Results, e.g.NodeCount())
	for _, n := range e.g.Nodes() {
		out[n.ID] = e.Resolve(ctx, n.ID)
	}
	return out
}

// Resolve returns the result of node id, computing it and its inputs on
// first use.
func (e *Evaluator) Resolve(ctx context.Context, id string) registry.Result {
	if r, ok := e.pinned[id]; ok {
		return r
	}
	if e.parent != nil && !e.body[id] {
		return e.parent.Resolve(ctx, id)
	}
	if r, ok := e.memo[id]; ok {
		return r
	}
	n, ok := e.g.Node(id)
	if !ok {
		return registry.Fail(fmt.Sprintf("node %s does not exist", id))
	}
	if e.visiting[id] {
		return registry.Fail(fmt.Sprintf("cycle detected at node %s", id))
	}
	if err := ctx.Err(); err != nil {
		return registry.Fail(fmt.Sprintf("evaluation cancelled: %v", err))
	}

	e.visiting[id] = true
	res := e.compute(ctx, n)
	delete(e.visiting, id)

	e.memo[id] = res
	if res.Failed() {
		e.log.Debug("node failed", "node", id, "type", n.Type, "error", res.Err)
	} else {
		e.log.Debug("node evaluated", "node", id, "type", n.Type)
	}
	return res
}

// inputs resolves every non-feedback edge into n, in edge order. The
// upstream canvas is read from the edge's source handle. Edges from missing
// nodes are skipped.
func (e *Evaluator) inputs(ctx context.Context, n graph.Node) registry.Inputs {
	var in registry.Inputs
	for _, edge := range e.g.Incoming(n.ID) {
		if e.reg.IsFeedback(e.g, edge) {
			continue
		}
		if _, ok := e.g.Node(edge.Source); !ok {
			continue
		}
		up := e.Resolve(ctx, edge.Source)
		in = append(in, registry.Input{
			Handle: edge.InputHandle(),
			Source: edge.Source,
			Result: registry.Result{Canvas: up.Output(edge.SourceHandle), Err: up.Err},
		})
	}
	return in
}

func (e *Evaluator) compute(ctx context.Context, n graph.Node) registry.Result {
	in := e.inputs(ctx, n)

	if n.Bypass {
		if len(in) == 0 {
			return registry.Result{}
		}
		return in[0].Result
	}

	typ, ok := e.reg.Lookup(n.Type)
	if !ok {
		return registry.Fail(fmt.Sprintf("unknown node type %q", n.Type))
	}

	if !typ.TolerateInputErrors {
		if bad, failed := in.FirstError(); failed {
			return registry.Fail("Input error: " + bad.Result.Err)
		}
	}

	props := typ.Resolve(n.Properties)
	if typ.Compute == nil {
		return e.runLoop(ctx, n, typ, in, props)
	}
	return e.call(ctx, n, typ, in, props)
}

// call runs the node's compute function, converting errors and panics into
// error results.
func (e *Evaluator) call(ctx context.Context, n graph.Node, typ *registry.NodeType, in registry.Inputs, props registry.Properties) (res registry.Result) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("recovered panic in node", "node", n.ID, "type", n.Type, "panic", r)
			res = registry.Fail(fmt.Sprintf("panic in %s: %v", typ.Label, r))
		}
	}()
	c, err := typ.Compute(ctx, in, props)
	if err != nil {
		return registry.Fail(err.Error())
	}
	return registry.Ok(c)
}

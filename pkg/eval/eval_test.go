package eval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dsedov/penpal-studio/pkg/canvas"
	"github.com/dsedov/penpal-studio/pkg/graph"
	"github.com/dsedov/penpal-studio/pkg/ops"
	"github.com/dsedov/penpal-studio/pkg/registry"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func node(id, typ string, props map[string]any) graph.Node {
	stored := make(map[string]graph.Property, len(props))
	for name, v := range props {
		stored[name] = graph.Property{Value: v}
	}
	return graph.Node{ID: id, Type: typ, Properties: stored}
}

func edge(src, dst string) graph.Edge {
	return graph.Edge{ID: src + "->" + dst, Source: src, Target: dst}
}

func handleEdge(src, srcHandle, dst, dstHandle string) graph.Edge {
	return graph.Edge{
		ID:           src + "." + srcHandle + "->" + dst + "." + dstHandle,
		Source:       src,
		SourceHandle: srcHandle,
		Target:       dst,
		TargetHandle: dstHandle,
	}
}

func vec(x, y float64) map[string]any {
	return map[string]any{"x": x, "y": y}
}

func xs(c *canvas.Canvas) []float64 {
	out := make([]float64, len(c.Points))
	for i, p := range c.Points {
		out[i] = p.X
	}
	return out
}

// spyRegistry returns the built-in registry plus test-only types: "fail"
// always errors, "boom" panics and "spy" counts its calls and passes its
// input through.
func spyRegistry(calls *int) *registry.Registry {
	reg := ops.NewRegistry(ops.DefaultOptions())
	reg.MustRegister(
		&registry.NodeType{
			Tag: "fail", Label: "Fail",
			Compute: func(context.Context, registry.Inputs, registry.Properties) (*canvas.Canvas, error) {
				return nil, errors.New("boom")
			},
		},
		&registry.NodeType{
			Tag: "boom", Label: "Boom",
			Compute: func(context.Context, registry.Inputs, registry.Properties) (*canvas.Canvas, error) {
				panic("kaboom")
			},
		},
		&registry.NodeType{
			Tag: "spy", Label: "Spy",
			Compute: func(_ context.Context, in registry.Inputs, _ registry.Properties) (*canvas.Canvas, error) {
				*calls++
				if c := in.Primary(); c != nil {
					return c.Clone(), nil
				}
				return canvas.New(10, 10, ""), nil
			},
		},
	)
	return reg
}

// ---------------------------------------------------------------------------
// Basic evaluation
// ---------------------------------------------------------------------------

func gridConnect() ([]graph.Node, []graph.Edge) {
	out := node("connect", "connect", map[string]any{"radius": 51.0})
	out.IsOutput = true
	return []graph.Node{
			node("canvas", "canvas", map[string]any{"size": vec(100, 100)}),
			node("grid", "pointGrid", map[string]any{"spacing": 50.0}),
			out,
		}, []graph.Edge{
			edge("canvas", "grid"),
			edge("grid", "connect"),
		}
}

func TestComputeGraphGridConnect(t *testing.T) {
	nodes, edges := gridConnect()
	reg := ops.NewRegistry(ops.DefaultOptions())
	results := ComputeGraph(context.Background(), nodes, edges, reg)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	out, ok := results.Output(graph.Snapshot(nodes, edges))
	if !ok || out.Failed() {
		t.Fatalf("output result = %+v, %v", out, ok)
	}
	if len(out.Canvas.Points) != 4 || len(out.Canvas.Lines) != 4 {
		t.Errorf("expected 4 points and 4 lines, got %d and %d", len(out.Canvas.Points), len(out.Canvas.Lines))
	}
}

func TestComputeGraphDeterministic(t *testing.T) {
	nodes, edges := gridConnect()
	nodes[2].Properties["probability"] = graph.Property{Value: 0.5}
	reg := ops.NewRegistry(ops.DefaultOptions())

	a := ComputeGraph(context.Background(), nodes, edges, reg)
	b := ComputeGraph(context.Background(), nodes, edges, reg)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("two passes differ:\n%s", diff)
	}
}

func TestMemoizedWithinPass(t *testing.T) {
	var calls int
	reg := spyRegistry(&calls)
	nodes := []graph.Node{
		node("shared", "spy", nil),
		node("a", "transform", nil),
		node("b", "transform", nil),
		node("merge", "merge", nil),
	}
	edges := []graph.Edge{
		edge("shared", "a"),
		edge("shared", "b"),
		handleEdge("a", "", "merge", registry.PrimaryHandle),
		handleEdge("b", "", "merge", registry.PrimaryHandle),
	}
	results := ComputeGraph(context.Background(), nodes, edges, reg)
	if calls != 1 {
		t.Errorf("shared node computed %d times, want 1", calls)
	}
	if results["merge"].Failed() {
		t.Errorf("merge failed: %s", results["merge"].Err)
	}
}

func TestUnknownTypeAndMissingNode(t *testing.T) {
	reg := ops.NewRegistry(ops.DefaultOptions())
	g := graph.Snapshot([]graph.Node{node("x", "teleport", nil)}, nil)
	e := New(g, reg)

	if got := e.Resolve(context.Background(), "x").Err; !strings.Contains(got, `unknown node type "teleport"`) {
		t.Errorf("unexpected error %q", got)
	}
	if got := e.Resolve(context.Background(), "ghost").Err; got == "" {
		t.Error("expected error for missing node")
	}
}

// ---------------------------------------------------------------------------
// Bypass
// ---------------------------------------------------------------------------

func TestBypassPassesFirstInputThrough(t *testing.T) {
	nodes, edges := gridConnect()
	nodes[1].Bypass = true
	reg := ops.NewRegistry(ops.DefaultOptions())
	results := ComputeGraph(context.Background(), nodes, edges, reg)

	if results["grid"].Canvas != results["canvas"].Canvas {
		t.Error("bypassed node should return its input result unchanged")
	}
	if n := len(results["connect"].Canvas.Points); n != 0 {
		t.Errorf("expected no points downstream of bypassed grid, got %d", n)
	}
}

func TestBypassWithoutInput(t *testing.T) {
	n := node("lonely", "pointGrid", nil)
	n.Bypass = true
	results := ComputeGraph(context.Background(), []graph.Node{n}, nil, ops.NewRegistry(ops.DefaultOptions()))
	if r := results["lonely"]; r.Canvas != nil || r.Failed() {
		t.Errorf("expected empty result, got %+v", r)
	}
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func TestInputErrorShortCircuits(t *testing.T) {
	var calls int
	reg := spyRegistry(&calls)
	nodes := []graph.Node{node("bad", "fail", nil), node("spy", "spy", nil)}
	results := ComputeGraph(context.Background(), nodes, []graph.Edge{edge("bad", "spy")}, reg)

	if calls != 0 {
		t.Errorf("downstream compute ran %d times after input error", calls)
	}
	if got := results["spy"].Err; got != "Input error: boom" {
		t.Errorf("error = %q", got)
	}
}

func TestMergeToleratesFailedInput(t *testing.T) {
	var calls int
	reg := spyRegistry(&calls)
	nodes := []graph.Node{
		node("canvas", "canvas", nil),
		node("grid", "pointGrid", map[string]any{"spacing": 100.0}),
		node("bad", "fail", nil),
		node("merge", "merge", nil),
	}
	edges := []graph.Edge{
		edge("canvas", "grid"),
		handleEdge("bad", "", "merge", registry.PrimaryHandle),
		handleEdge("grid", "", "merge", registry.PrimaryHandle),
	}
	results := ComputeGraph(context.Background(), nodes, edges, reg)
	merged := results["merge"]
	if merged.Failed() {
		t.Fatalf("merge failed: %s", merged.Err)
	}
	if len(merged.Canvas.Points) != len(results["grid"].Canvas.Points) {
		t.Errorf("merge lost points")
	}
}

func TestPanicBecomesError(t *testing.T) {
	var calls int
	reg := spyRegistry(&calls)
	nodes := []graph.Node{node("boom", "boom", nil), node("after", "spy", nil)}
	results := ComputeGraph(context.Background(), nodes, []graph.Edge{edge("boom", "after")}, reg)

	if got := results["boom"].Err; !strings.Contains(got, "kaboom") {
		t.Errorf("panic not reported: %q", got)
	}
	if !strings.HasPrefix(results["after"].Err, "Input error: ") {
		t.Errorf("downstream error = %q", results["after"].Err)
	}
}

func TestCycleDetected(t *testing.T) {
	reg := ops.NewRegistry(ops.DefaultOptions())
	nodes := []graph.Node{node("a", "transform", nil), node("b", "transform", nil)}
	edges := []graph.Edge{edge("a", "b"), edge("b", "a")}
	results := ComputeGraph(context.Background(), nodes, edges, reg)

	for _, id := range []string{"a", "b"} {
		if !strings.Contains(results[id].Err, "cycle detected at node") {
			t.Errorf("%s: error = %q", id, results[id].Err)
		}
	}
}

func TestCancelledContext(t *testing.T) {
	nodes, edges := gridConnect()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := ComputeGraph(ctx, nodes, edges, ops.NewRegistry(ops.DefaultOptions()))
	for id, r := range results {
		if !r.Failed() {
			t.Errorf("%s succeeded after cancellation", id)
		}
	}
}

// ---------------------------------------------------------------------------
// Loop
// ---------------------------------------------------------------------------

// loopGraph wires canvas -> grid -> loop.initial, loop.loopOut -> step ->
// loop.loopIn and loop.result -> after.
func loopGraph(iterations int) ([]graph.Node, []graph.Edge) {
	after := node("after", "transform", nil)
	after.IsOutput = true
	return []graph.Node{
			node("canvas", "canvas", map[string]any{"size": vec(100, 100)}),
			node("grid", "pointGrid", map[string]any{"spacing": 50.0}),
			node("loop", ops.LoopTag, map[string]any{"iterations": iterations}),
			node("step", "transform", map[string]any{"translate": vec(10, 0)}),
			after,
		}, []graph.Edge{
			edge("canvas", "grid"),
			handleEdge("grid", "", "loop", ops.LoopInitial),
			handleEdge("loop", ops.LoopOut, "step", registry.PrimaryHandle),
			handleEdge("step", "", "loop", ops.LoopIn),
			handleEdge("loop", ops.LoopResult, "after", registry.PrimaryHandle),
		}
}

func TestLoopIteratesBody(t *testing.T) {
	nodes, edges := loopGraph(3)
	reg := ops.NewRegistry(ops.DefaultOptions())
	g := graph.Snapshot(nodes, edges)
	if errs := graph.Validate(g, reg.ValidateOptions(g)); graph.HasErrors(errs) {
		t.Fatalf("loop graph should validate: %v", errs)
	}
	results := New(g, reg).Run(context.Background())

	out, ok := results.Output(g)
	if !ok || out.Failed() {
		t.Fatalf("output = %+v", out)
	}
	if diff := cmp.Diff([]float64{30, 80, 30, 80}, xs(out.Canvas)); diff != "" {
		t.Errorf("result after 3 iterations (-want +got):\n%s", diff)
	}

	loop := results["loop"]
	if diff := cmp.Diff([]float64{20, 70, 20, 70}, xs(loop.Output(ops.LoopOut))); diff != "" {
		t.Errorf("last offered canvas (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{30, 80, 30, 80}, xs(results["step"].Canvas)); diff != "" {
		t.Errorf("body node in outer pass (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0, 50, 0, 50}, xs(results["grid"].Canvas)); diff != "" {
		t.Errorf("initial canvas mutated (-want +got):\n%s", diff)
	}
}

// A nested loop whose body also reads the enclosing loop's loopOut must not
// pull the enclosing loop into its own body.
func TestNestedLoopReadingOuterLoop(t *testing.T) {
	nodes := []graph.Node{
		node("canvas", "canvas", map[string]any{"size": vec(100, 100)}),
		node("grid", "pointGrid", map[string]any{"spacing": 50.0}),
		node("outer", ops.LoopTag, map[string]any{"iterations": 2}),
		node("inner", ops.LoopTag, map[string]any{"iterations": 2}),
		node("step", "merge", nil),
		node("ostep", "transform", map[string]any{"translate": vec(1, 0)}),
	}
	edges := []graph.Edge{
		edge("canvas", "grid"),
		handleEdge("grid", "", "outer", ops.LoopInitial),
		handleEdge("outer", ops.LoopOut, "inner", ops.LoopInitial),
		handleEdge("inner", ops.LoopOut, "step", registry.PrimaryHandle),
		handleEdge("outer", ops.LoopOut, "step", registry.PrimaryHandle),
		handleEdge("step", "", "inner", ops.LoopIn),
		handleEdge("step", "", "ostep", registry.PrimaryHandle),
		handleEdge("ostep", "", "outer", ops.LoopIn),
	}

	done := make(chan Results, 1)
	go func() {
		done <- ComputeGraph(context.Background(), nodes, edges, ops.NewRegistry(ops.DefaultOptions()))
	}()
	var results Results
	select {
	case results = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("nested loop evaluation did not finish")
	}

	for _, id := range []string{"outer", "inner", "step", "ostep"} {
		if results[id].Failed() {
			t.Errorf("%s failed: %s", id, results[id].Err)
		}
	}
	// Each outer iteration merges the inner loop's last offered canvas (2n
	// points) with the outer canvas (n points): 4 -> 12 -> 36.
	if got := len(results["outer"].Canvas.Points); got != 36 {
		t.Errorf("outer result has %d points, want 36", got)
	}
}

func TestLoopBodySkipsFeedbackEdges(t *testing.T) {
	nodes := []graph.Node{
		node("outer", ops.LoopTag, nil),
		node("inner", ops.LoopTag, nil),
		node("step", "merge", nil),
		node("ostep", "transform", nil),
	}
	edges := []graph.Edge{
		handleEdge("outer", ops.LoopOut, "inner", ops.LoopInitial),
		handleEdge("inner", ops.LoopOut, "step", registry.PrimaryHandle),
		handleEdge("outer", ops.LoopOut, "step", registry.PrimaryHandle),
		handleEdge("step", "", "inner", ops.LoopIn),
		handleEdge("step", "", "ostep", registry.PrimaryHandle),
		handleEdge("ostep", "", "outer", ops.LoopIn),
	}
	e := New(graph.Snapshot(nodes, edges), ops.NewRegistry(ops.DefaultOptions()))

	if diff := cmp.Diff(map[string]bool{"step": true}, e.loopBody("inner", "step")); diff != "" {
		t.Errorf("inner body (-want +got):\n%s", diff)
	}
	want := map[string]bool{"inner": true, "step": true, "ostep": true}
	if diff := cmp.Diff(want, e.loopBody("outer", "ostep")); diff != "" {
		t.Errorf("outer body (-want +got):\n%s", diff)
	}
}

func TestLoopReentryIsCycle(t *testing.T) {
	reg := ops.NewRegistry(ops.DefaultOptions())
	g := graph.Snapshot([]graph.Node{node("loop", ops.LoopTag, nil)}, nil)
	parent := New(g, reg)
	parent.pinned = map[string]registry.Result{"loop": registry.Ok(canvas.New(10, 10, ""))}
	child := &Evaluator{
		g: g, reg: reg, log: parent.log, parent: parent,
		memo: make(map[string]registry.Result), visiting: make(map[string]bool),
		body: map[string]bool{"loop": true},
	}

	typ, _ := reg.Lookup(ops.LoopTag)
	n, _ := g.Node("loop")
	in := registry.Inputs{{Handle: ops.LoopInitial, Result: registry.Ok(canvas.New(10, 10, ""))}}
	res := child.runLoop(context.Background(), n, typ, in, typ.Resolve(nil))
	if res.Err != "cycle detected at node loop" {
		t.Errorf("error = %q", res.Err)
	}
}

func TestLoopWithoutFeedbackPassesThrough(t *testing.T) {
	nodes, edges := loopGraph(3)
	edges = append(edges[:3], edges[4])
	results := ComputeGraph(context.Background(), nodes, edges, ops.NewRegistry(ops.DefaultOptions()))
	if diff := cmp.Diff([]float64{0, 50, 0, 50}, xs(results["after"].Canvas)); diff != "" {
		t.Errorf("passthrough (-want +got):\n%s", diff)
	}
}

func TestLoopBodyFailure(t *testing.T) {
	var calls int
	reg := spyRegistry(&calls)
	nodes, edges := loopGraph(2)
	nodes[3] = node("step", "fail", nil)
	results := ComputeGraph(context.Background(), nodes, edges, reg)

	if got := results["loop"].Err; got != "loop body failed at iteration 1: boom" {
		t.Errorf("error = %q", got)
	}
}

func TestLoopRequiresInitial(t *testing.T) {
	nodes := []graph.Node{node("loop", ops.LoopTag, nil)}
	results := ComputeGraph(context.Background(), nodes, nil, ops.NewRegistry(ops.DefaultOptions()))
	if !results["loop"].Failed() {
		t.Error("expected error without initial input")
	}
}

func TestDanglingEdgeSkipped(t *testing.T) {
	nodes := []graph.Node{node("canvas", "canvas", nil), node("grid", "pointGrid", nil)}
	edges := []graph.Edge{edge("ghost", "grid"), edge("canvas", "grid")}
	results := ComputeGraph(context.Background(), nodes, edges, ops.NewRegistry(ops.DefaultOptions()))
	if r := results["grid"]; r.Failed() || r.Canvas == nil {
		t.Errorf("grid = %+v", r)
	}
}

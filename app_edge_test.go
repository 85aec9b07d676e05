package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/dsedov/penpal-studio/pkg/graph"
)

// projectJSON encodes nodes and edges as a project document.
func projectJSON(t *testing.T, nodes []graph.Node, edges []graph.Edge) string {
	t.Helper()
	p := graph.NewProject()
	p.Nodes = nodes
	p.Edges = edges
	var b strings.Builder
	if err := p.Save(&b); err != nil {
		t.Fatal(err)
	}
	return b.String()
}

func n(id, typ string, props map[string]any) graph.Node {
	stored := make(map[string]graph.Property, len(props))
	for name, v := range props {
		stored[name] = graph.Property{Value: v}
	}
	return graph.Node{ID: id, Type: typ, Properties: stored}
}

func e(src, dst string) graph.Edge {
	return graph.Edge{ID: src + "-" + dst, Source: src, Target: dst, TargetHandle: "input"}
}

func errorFor(result EvalResult, nodeID string) string {
	for _, d := range result.Errors {
		if d.NodeID == nodeID {
			return d.Message
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// 1. Empty project: no nodes -> no output, no errors, non-nil slices.
// ---------------------------------------------------------------------------

func TestE2EEmptyProjectExtended(t *testing.T) {
	app := newTestApp()
	result := app.Evaluate(projectJSON(t, nil, nil))

	if len(result.Errors) != 0 || len(result.Warnings) != 0 {
		t.Errorf("expected no findings, got %v / %v", result.Errors, result.Warnings)
	}
	// Ensure slices and maps are non-nil (JSON should serialize as [] not null).
	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"errors":[]`, `"warnings":[]`, `"results":{}`, `"output":null`} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("encoded result %s missing %s", raw, want)
		}
	}
}

// ---------------------------------------------------------------------------
// 2. Unknown node type: validation error plus an error result, other nodes
//    still evaluate.
// ---------------------------------------------------------------------------

func TestE2EUnknownNodeType(t *testing.T) {
	app := newTestApp()
	out := n("grid", "pointGrid", nil)
	out.IsOutput = true
	result := app.Evaluate(projectJSON(t,
		[]graph.Node{n("mystery", "teleport", nil), n("canvas", "canvas", nil), out},
		[]graph.Edge{e("canvas", "grid")},
	))

	if msg := errorFor(result, "mystery"); !strings.Contains(msg, "unknown node type") {
		t.Errorf("expected unknown type error, got %q", msg)
	}
	if result.Output == nil || len(result.Output.Points) == 0 {
		t.Error("independent branch should still render")
	}
}

// ---------------------------------------------------------------------------
// 3. Error propagation: a failing node poisons its consumers with
//    "Input error", merge tolerates it.
// ---------------------------------------------------------------------------

func TestE2EErrorPropagation(t *testing.T) {
	app := newTestApp()
	out := n("merge", "merge", nil)
	out.IsOutput = true
	result := app.Evaluate(projectJSON(t,
		[]graph.Node{
			n("canvas", "canvas", nil),
			n("attrs", "attributes", map[string]any{"attributeName": ""}),
			n("after", "transform", nil),
			n("grid", "pointGrid", map[string]any{"spacing": 100.0}),
			out,
		},
		[]graph.Edge{e("canvas", "attrs"), e("attrs", "after"), e("canvas", "grid"), e("after", "merge"), e("grid", "merge")},
	))

	if msg := errorFor(result, "attrs"); msg != "Attribute name cannot be empty" {
		t.Errorf("attrs error = %q", msg)
	}
	if msg := errorFor(result, "after"); msg != "Input error: Attribute name cannot be empty" {
		t.Errorf("after error = %q", msg)
	}
	if errorFor(result, "merge") != "" || result.Output == nil {
		t.Error("merge should tolerate the failed input")
	}
}

// ---------------------------------------------------------------------------
// 4. Cycles: reported by validation and as node errors, never a hang.
// ---------------------------------------------------------------------------

func TestE2ECycle(t *testing.T) {
	app := newTestApp()
	result := app.Evaluate(projectJSON(t,
		[]graph.Node{n("a", "transform", nil), n("b", "transform", nil)},
		[]graph.Edge{e("a", "b"), e("b", "a")},
	))

	found := false
	for _, d := range result.Errors {
		found = found || strings.Contains(d.Message, "cycle")
	}
	if !found {
		t.Errorf("expected a cycle error, got %v", result.Errors)
	}
}

// ---------------------------------------------------------------------------
// 5. Dangling edge: validation warning, the node evaluates without it.
// ---------------------------------------------------------------------------

func TestE2EDanglingEdge(t *testing.T) {
	app := newTestApp()
	result := app.Evaluate(projectJSON(t,
		[]graph.Node{n("canvas", "canvas", nil)},
		[]graph.Edge{e("ghost", "canvas")},
	))

	if len(result.Warnings) == 0 {
		t.Error("expected a validation warning for the dangling edge")
	}
	if len(result.Errors) != 0 {
		t.Errorf("unexpected errors: %v", result.Errors)
	}
	if r := result.Results["canvas"]; r.Failed() || r.Canvas == nil {
		t.Errorf("canvas should evaluate without the dangling edge: %+v", r)
	}
}

// ---------------------------------------------------------------------------
// 6. Bypass: bypassed nodes pass their first input through.
// ---------------------------------------------------------------------------

func TestE2EBypass(t *testing.T) {
	app := newTestApp()
	grid := n("grid", "pointGrid", map[string]any{"spacing": 100.0})
	grid.Bypass = true
	grid.IsOutput = true
	result := app.Evaluate(projectJSON(t,
		[]graph.Node{n("canvas", "canvas", nil), grid},
		[]graph.Edge{e("canvas", "grid")},
	))

	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if result.Output == nil || len(result.Output.Points) != 0 {
		t.Error("bypassed grid should pass the blank canvas through")
	}
}

// ---------------------------------------------------------------------------
// 7. Code node failures keep their error class.
// ---------------------------------------------------------------------------

func TestE2ECodeErrors(t *testing.T) {
	tests := []struct {
		code   string
		prefix string
	}{
		{"(set-background \"#000000\"", "Code compilation error"},
		{"(point-x 5000)", "Runtime error"},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			app := newTestApp()
			result := app.Evaluate(projectJSON(t,
				[]graph.Node{n("canvas", "canvas", nil), n("code", "code", map[string]any{"code": tt.code})},
				[]graph.Edge{e("canvas", "code")},
			))
			if msg := errorFor(result, "code"); !strings.HasPrefix(msg, tt.prefix) {
				t.Errorf("code error = %q, want prefix %q", msg, tt.prefix)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// 8. Rapid evaluation (live update simulation): no panics, no data races.
//    Run with `go test -race` to detect data races.
// ---------------------------------------------------------------------------

func TestE2ERapidEvaluation(t *testing.T) {
	app := newTestApp()

	docs := []string{
		readExample(t, "grid.penpal"),
		`{"version": "1.0", "nodes": [], "edges": []}`,
		`not json`,
		readExample(t, "star.penpal"),
		projectJSON(t, []graph.Node{n("x", "teleport", nil)}, nil),
		readExample(t, "grid.penpal"),
	}

	for i, doc := range docs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("iteration %d panicked: %v", i, r)
				}
			}()
			_ = app.Evaluate(doc)
		}()
	}
}

// ---------------------------------------------------------------------------
// 9. Node palette: every type has defaults that validate and a schema.
// ---------------------------------------------------------------------------

func TestNodeTypesPalette(t *testing.T) {
	app := newTestApp()
	types := app.NodeTypes()
	if len(types) == 0 {
		t.Fatal("no node types")
	}
	for _, nt := range types {
		if nt.Schema == nil {
			t.Errorf("%s: missing schema", nt.Tag)
		}
		node, err := app.NewNode(nt.Tag)
		if err != nil {
			t.Errorf("%s: NewNode: %v", nt.Tag, err)
			continue
		}
		if !strings.HasPrefix(node.ID, nt.Tag) {
			t.Errorf("%s: id %q should carry the type prefix", nt.Tag, node.ID)
		}
	}
	if _, err := app.NewNode("teleport"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestRenderTarget(t *testing.T) {
	tests := []struct {
		project string
		out     string
		single  bool
		want    string
	}{
		{"art/grid.penpal", "out.svg", true, "out.svg"},
		{"art/grid.penpal", "renders", true, "renders/grid.svg"},
		{"art/grid.penpal", "out.svg", false, "out.svg/grid.svg"},
		{"grid.penpal", "s3://bucket/plots/", false, "s3://bucket/plots/grid.svg"},
	}
	for _, tt := range tests {
		if got := renderTarget(tt.project, tt.out, tt.single); got != tt.want {
			t.Errorf("renderTarget(%q, %q, %v) = %q, want %q", tt.project, tt.out, tt.single, got, tt.want)
		}
	}
}

package ops

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dsedov/penpal-studio/pkg/canvas"
	"github.com/dsedov/penpal-studio/pkg/registry"
)

// ---------------------------------------------------------------------------
// merge
// ---------------------------------------------------------------------------

func TestMergeSkipsFailedInputs(t *testing.T) {
	a := canvas.New(100, 100, "")
	a.Point(1, 1, nil)
	b := canvas.New(100, 100, "")
	b.Point(2, 2, nil)
	b.Point(3, 3, nil)
	_, _ = b.Line([]int{0, 1}, canvas.LineStyle{})

	in := registry.Inputs{
		{Handle: registry.PrimaryHandle, Source: "a", Result: registry.Ok(a)},
		{Handle: registry.PrimaryHandle, Source: "bad", Result: registry.Fail("boom")},
		{Handle: registry.PrimaryHandle, Source: "b", Result: registry.Ok(b)},
	}
	out := mustCompute(t, "merge", in, nil)
	if len(out.Points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(out.Points))
	}
	if len(out.Lines) != 1 || out.Lines[0].Points[0] != 1 || out.Lines[0].Points[1] != 2 {
		t.Errorf("line indices not offset: %v", linePoints(out))
	}
	if len(a.Points) != 1 {
		t.Error("input canvas was mutated")
	}
}

func TestMergeWithoutInputs(t *testing.T) {
	in := registry.Inputs{{Handle: registry.PrimaryHandle, Source: "bad", Result: registry.Fail("boom")}}
	if _, err := compute(t, "merge", in, nil); err == nil {
		t.Error("expected error when no input succeeded")
	}
}

// ---------------------------------------------------------------------------
// loop
// ---------------------------------------------------------------------------

func TestLoopTypeIsEvaluatorNative(t *testing.T) {
	typ, ok := testRegistry.Lookup(LoopTag)
	if !ok {
		t.Fatal("loop not registered")
	}
	if typ.Compute != nil {
		t.Error("loop should not have a compute function")
	}
	if typ.FeedbackHandle != LoopIn {
		t.Errorf("feedback handle = %q, want %q", typ.FeedbackHandle, LoopIn)
	}
	if got := typ.Resolve(nil).Int("iterations"); got != 5 {
		t.Errorf("default iterations = %d, want 5", got)
	}
}

// ---------------------------------------------------------------------------
// exportSVG
// ---------------------------------------------------------------------------

func TestExportSVGWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.svg")
	src := fourPoints()
	out := mustCompute(t, "exportSVG", input(src), map[string]any{"filePath": path, "units": "mm"})
	if out == src {
		t.Error("expected a clone of the input")
	}
	if len(out.Points) != len(src.Points) {
		t.Errorf("export changed the canvas")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(data), "<svg") {
		t.Errorf("unexpected document:\n%s", data)
	}
}

func TestExportSVGErrors(t *testing.T) {
	tests := []struct {
		name  string
		in    registry.Inputs
		props map[string]any
		want  string
	}{
		{"no input", nil, map[string]any{"filePath": "x.svg"}, "Input must be a canvas"},
		{"no path", input(fourPoints()), nil, "No output file specified"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compute(t, "exportSVG", tt.in, tt.props)
			if err == nil || err.Error() != tt.want {
				t.Errorf("got %v, want %q", err, tt.want)
			}
		})
	}
}

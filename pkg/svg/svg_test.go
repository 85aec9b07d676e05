package svg

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dsedov/penpal-studio/pkg/canvas"
)

func testCanvas() *canvas.Canvas {
	c := canvas.New(100, 50, "#ffffff")
	c.Segment(canvas.V(0, 0), canvas.V(10, 10), canvas.LineStyle{Color: "#ff0000", Thickness: 1})
	c.Polyline([]canvas.Vec2{canvas.V(1, 1), canvas.V(2, 2), canvas.V(3, 1)}, nil, canvas.LineStyle{Color: "#0000ff", Thickness: 0.5})
	c.Segment(canvas.V(20, 20), canvas.V(30, 20), canvas.LineStyle{Color: "#ff0000", Thickness: 2})
	return c
}

func TestLayersGroupByColor(t *testing.T) {
	layers := Layers(testCanvas())
	if len(layers) != 2 {
		t.Fatalf("expected 2 layers, got %d", len(layers))
	}
	if layers[0].Color != "#ff0000" || len(layers[0].Lines) != 2 {
		t.Errorf("unexpected first layer %+v", layers[0])
	}
	if layers[1].Color != "#0000ff" || len(layers[1].Lines) != 1 {
		t.Errorf("unexpected second layer %+v", layers[1])
	}
}

func TestRenderElements(t *testing.T) {
	data, err := Render(testCanvas(), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc := string(data)

	checks := []struct {
		name string
		sub  string
		n    int
	}{
		{"groups", "<g ", 2},
		{"lines", "<line ", 2},
		{"polylines", "<polyline ", 1},
		{"background", "fill:#ffffff", 1},
		{"viewbox", `viewBox="0 0 10000 5000"`, 1},
		{"size", `width="100"`, 1},
	}
	for _, tt := range checks {
		t.Run(tt.name, func(t *testing.T) {
			if got := strings.Count(doc, tt.sub); got != tt.n {
				t.Errorf("expected %d occurrences of %q, got %d\n%s", tt.n, tt.sub, got, doc)
			}
		})
	}
}

func TestRenderMillimeters(t *testing.T) {
	c := canvas.New(100, 100, "")
	opts := DefaultOptions()
	opts.Units = "mm"
	opts.Background = false
	data, err := Render(c, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(data), `width="378"`) {
		t.Errorf("expected 100mm to be 378px wide:\n%s", data)
	}
	if strings.Contains(string(data), "<rect") {
		t.Error("background disabled but rect rendered")
	}
}

func TestRenderRejectsInvalidCanvas(t *testing.T) {
	c := canvas.New(10, 10, "")
	c.Lines = append(c.Lines, canvas.Line{Points: []int{0, 1}})
	if _, err := Render(c, DefaultOptions()); err == nil {
		t.Error("expected error for dangling line indices")
	}
	if _, err := Render(nil, DefaultOptions()); err == nil {
		t.Error("expected error for nil canvas")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteReportsWriterError(t *testing.T) {
	err := Write(failingWriter{}, testCanvas(), DefaultOptions())
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("expected writer error, got %v", err)
	}
}

func TestParseS3(t *testing.T) {
	tests := []struct {
		target      string
		bucket, key string
		isS3        bool
		wantErr     bool
	}{
		{"out/drawing.svg", "", "", false, false},
		{"s3://plots/2024/a.svg", "plots", "2024/a.svg", true, false},
		{"s3://plots", "", "", true, true},
		{"s3:///a.svg", "", "", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			bucket, key, isS3, err := ParseS3(tt.target)
			if (err != nil) != tt.wantErr || isS3 != tt.isS3 || bucket != tt.bucket || key != tt.key {
				t.Errorf("ParseS3(%q) = %q, %q, %v, %v", tt.target, bucket, key, isS3, err)
			}
		})
	}
}

func TestOpenAndExportToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.svg")
	dest, err := Open(context.Background(), path, S3Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := dest.(FileDestination); !ok {
		t.Fatalf("expected FileDestination, got %T", dest)
	}
	if err := Export(context.Background(), testCanvas(), dest, DefaultOptions()); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("<?xml")) {
		t.Errorf("expected an XML document, got %q", data[:20])
	}
}

func TestOpenEmptyTarget(t *testing.T) {
	if _, err := Open(context.Background(), "", S3Config{}); err == nil || !strings.Contains(err.Error(), "no output file") {
		t.Errorf("expected missing target error, got %v", err)
	}
}

func TestOpenS3(t *testing.T) {
	dest, err := Open(context.Background(), "s3://plots/a.svg", S3Config{Region: "us-east-1", Endpoint: "http://localhost:9000"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s3dest, ok := dest.(*S3Destination)
	if !ok {
		t.Fatalf("expected *S3Destination, got %T", dest)
	}
	if s3dest.Bucket() != "plots" || s3dest.Key() != "a.svg" {
		t.Errorf("unexpected target %s/%s", s3dest.Bucket(), s3dest.Key())
	}
}

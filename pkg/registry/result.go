package registry

import (
	"encoding/json"

	"github.com/dsedov/penpal-studio/pkg/canvas"
	"github.com/dsedov/penpal-studio/pkg/graph"
)

// Result is the outcome of evaluating one node. Err is empty on success.
// Outputs holds extra named outputs for nodes with several output handles.
type Result struct {
	Canvas  *canvas.Canvas
	Err     string
	Outputs map[string]*canvas.Canvas
}

// Ok wraps a successful canvas.
func Ok(c *canvas.Canvas) Result {
	return Result{Canvas: c}
}

// Fail wraps an error message.
func Fail(msg string) Result {
	return Result{Err: msg}
}

// Failed reports whether the result carries an error.
func (r Result) Failed() bool {
	return r.Err != ""
}

// Output returns the canvas on a named output handle. Unknown or empty
// handles fall back to the main canvas.
func (r Result) Output(handle string) *canvas.Canvas {
	if handle != "" {
		if c, ok := r.Outputs[handle]; ok {
			return c
		}
	}
	return r.Canvas
}

type resultJSON struct {
	Result  *canvas.Canvas            `json:"result"`
	Error   *string                   `json:"error"`
	Outputs map[string]*canvas.Canvas `json:"outputs,omitempty"`
}

// MarshalJSON encodes {result, error, outputs?} with null for absent values.
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{Result: r.Canvas, Outputs: r.Outputs}
	if r.Err != "" {
		out.Error = &r.Err
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Result) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.Canvas = in.Result
	r.Outputs = in.Outputs
	r.Err = ""
	if in.Error != nil {
		r.Err = *in.Error
	}
	return nil
}

// Input is one resolved incoming edge.
type Input struct {
	Handle string // target handle, or graph.DefaultHandle
	Source string // upstream node id
	Result Result
}

// Inputs lists a node's resolved inputs in edge order.
type Inputs []Input

// PrimaryHandle is the input handle read by single-input operators.
const PrimaryHandle = "input"

// Get returns the first input on handle.
func (in Inputs) Get(handle string) (Input, bool) {
	for _, i := range in {
		if i.Handle == handle {
			return i, true
		}
	}
	return Input{}, false
}

// Canvas returns the canvas on handle, or nil.
func (in Inputs) Canvas(handle string) *canvas.Canvas {
	i, ok := in.Get(handle)
	if !ok || i.Result.Failed() {
		return nil
	}
	return i.Result.Canvas
}

// Primary returns the canvas on the "input" handle, falling back to the
// default handle used by edges without a target handle.
func (in Inputs) Primary() *canvas.Canvas {
	if c := in.Canvas(PrimaryHandle); c != nil {
		return c
	}
	return in.Canvas(graph.DefaultHandle)
}

// Canvases returns every successful non-nil input canvas in edge order.
func (in Inputs) Canvases() []*canvas.Canvas {
	var out []*canvas.Canvas
	for _, i := range in {
		if !i.Result.Failed() && i.Result.Canvas != nil {
			out = append(out, i.Result.Canvas)
		}
	}
	return out
}

// FirstError returns the first failed input.
func (in Inputs) FirstError() (Input, bool) {
	for _, i := range in {
		if i.Result.Failed() {
			return i, true
		}
	}
	return Input{}, false
}

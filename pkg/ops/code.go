package ops

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/dsedov/penpal-studio/pkg/canvas"
	"github.com/dsedov/penpal-studio/pkg/graph"
	"github.com/dsedov/penpal-studio/pkg/registry"
)

// Code node execution modes.
const (
	ModeGlobal = "global"
	ModePoint  = "point"
	ModeLine   = "line"
)

// bodyName is the function user code is compiled into.
const bodyName = "user_body"

// sandboxMu serializes sandbox construction; zygomys keeps package-level
// state that is not safe for concurrent environment setup.
var sandboxMu sync.Mutex

// ErrCodeTimeout is returned when user code runs longer than allowed.
var ErrCodeTimeout = errors.New("code timed out")

// errHalted unwinds a run whose caller has given up on it.
var errHalted = errors.New("code run halted")

// MaxCodeRuns bounds the user code runs alive at once, counting runs that
// timed out but have not reached a function call since.
const MaxCodeRuns = 32

var codeRuns = make(chan struct{}, MaxCodeRuns)

func codeType(opts Options) *registry.NodeType {
	timeout := opts.codeTimeout()
	return &registry.NodeType{
		Tag:         "code",
		Label:       "Code",
		Category:    CategoryModify,
		Description: "Runs Lisp code over the canvas, each point or each line",
		Inputs:      inputHandles,
		Outputs:     outputHandles,
		Properties: []registry.PropertySpec{
			{
				Name: "mode", Kind: graph.KindMenu, Label: "Execution mode", Default: ModeGlobal,
				Options: []graph.Option{
					{Value: ModeGlobal, Label: "Global"},
					{Value: ModePoint, Label: "Per point"},
					{Value: ModeLine, Label: "Per line"},
				},
			},
			{Name: "code", Kind: graph.KindCode, Label: "Code", Default: ";; (set-background \"#ffffff\")\n"},
		},
		Compute: func(ctx context.Context, in registry.Inputs, p registry.Properties) (*canvas.Canvas, error) {
			src := in.Primary()
			if src == nil {
				return nil, fmt.Errorf("Code node requires a canvas input")
			}
			return RunCode(ctx, src, p.String("mode"), p.String("code"), timeout)
		},
	}
}

type codeResult struct {
	canvas *canvas.Canvas
	err    error
}

// RunCode executes source against a clone of src in a fresh zygomys
// sandbox. Compile failures are reported as "Code compilation error" and
// failures while running as "Runtime error". A run exceeding timeout is
// halted at its next function call; its result is discarded.
func RunCode(ctx context.Context, src *canvas.Canvas, mode, source string, timeout time.Duration) (*canvas.Canvas, error) {
	switch mode {
	case ModeGlobal, ModePoint, ModeLine:
	default:
		return nil, fmt.Errorf("Code compilation error: invalid mode %q", mode)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("Runtime error: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case codeRuns <- struct{}{}:
	case <-timer.C:
		return nil, fmt.Errorf("Runtime error: %w after %s", ErrCodeTimeout, timeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("Runtime error: %w", ctx.Err())
	}

	runCtx, halt := context.WithCancel(ctx)
	defer halt()

	ch := make(chan codeResult, 1)
	go func() {
		defer func() { <-codeRuns }()
		defer func() {
			if r := recover(); r != nil {
				if r == errHalted {
					ch <- codeResult{err: fmt.Errorf("Runtime error: %w", runCtx.Err())}
					return
				}
				ch <- codeResult{err: fmt.Errorf("Runtime error: panic: %v", r)}
			}
		}()
		c, err := runCode(runCtx, src.Clone(), mode, source)
		ch <- codeResult{canvas: c, err: err}
	}()

	select {
	case res := <-ch:
		return res.canvas, res.err
	case <-timer.C:
		return nil, fmt.Errorf("Runtime error: %w after %s", ErrCodeTimeout, timeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("Runtime error: %w", ctx.Err())
	}
}

func runCode(ctx context.Context, c *canvas.Canvas, mode, source string) (*canvas.Canvas, error) {
	if strings.TrimSpace(source) == "" {
		return c, nil
	}

	sandboxMu.Lock()
	env := zygo.NewZlispSandbox()
	s := &session{c: c, mode: mode, index: -1}
	s.install(env)
	sandboxMu.Unlock()
	defer env.Stop()

	// Every call checks ctx, so an abandoned run stops at its next call.
	env.AddPreHook(func(*zygo.Zlisp, string, []zygo.Sexp) {
		if ctx.Err() != nil {
			panic(errHalted)
		}
	})

	// The wrapper adds one line before the user's first line.
	wrapped := "(defn " + bodyName + " []\n" + preprocessSource(source) + "\nnil)"
	if err := env.LoadString(wrapped); err != nil {
		return nil, fmt.Errorf("Code compilation error: %s", describeError(err, -1))
	}
	if _, err := env.Run(); err != nil {
		return nil, fmt.Errorf("Code compilation error: %s", describeError(err, -1))
	}

	call := func() error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("Runtime error: %w", err)
		}
		if _, err := env.EvalString("(" + bodyName + ")"); err != nil {
			return fmt.Errorf("Runtime error: %s", describeError(err, -1))
		}
		return nil
	}

	var n int
	switch mode {
	case ModeGlobal:
		if err := call(); err != nil {
			return nil, err
		}
		return c, nil
	case ModePoint:
		n = len(c.Points)
	case ModeLine:
		n = len(c.Lines)
	}
	for i := 0; i < n; i++ {
		s.index = i
		if err := call(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Builtins
// ---------------------------------------------------------------------------

// session is the state user code can reach: the canvas being edited and,
// in point and line mode, the index of the current element.
type session struct {
	c     *canvas.Canvas
	mode  string
	index int
}

type builtin func(args []zygo.Sexp) (zygo.Sexp, error)

// install registers the canvas builtins. Names use snake_case; user code
// may write them in kebab-case.
func (s *session) install(env *zygo.Zlisp) {
	add := func(name string, fn builtin) {
		env.AddFunction(name, func(_ *zygo.Zlisp, _ string, args []zygo.Sexp) (zygo.Sexp, error) {
			out, err := fn(args)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", strings.ReplaceAll(name, "_", "-"), err)
			}
			return out, nil
		})
	}
	num := func(f float64) zygo.Sexp { return &zygo.SexpFloat{Val: f} }
	integer := func(i int) zygo.Sexp { return &zygo.SexpInt{Val: int64(i)} }

	// ---- queries ----

	add("index", func(args []zygo.Sexp) (zygo.Sexp, error) {
		return integer(s.index), nil
	})
	add("point_count", func(args []zygo.Sexp) (zygo.Sexp, error) {
		return integer(len(s.c.Points)), nil
	})
	add("line_count", func(args []zygo.Sexp) (zygo.Sexp, error) {
		return integer(len(s.c.Lines)), nil
	})
	add("width", func(args []zygo.Sexp) (zygo.Sexp, error) {
		return num(s.c.Size.X), nil
	})
	add("height", func(args []zygo.Sexp) (zygo.Sexp, error) {
		return num(s.c.Size.Y), nil
	})
	add("point_x", func(args []zygo.Sexp) (zygo.Sexp, error) {
		i, _, err := s.point(args, 0)
		if err != nil {
			return nil, err
		}
		return num(s.c.Points[i].X), nil
	})
	add("point_y", func(args []zygo.Sexp) (zygo.Sexp, error) {
		i, _, err := s.point(args, 0)
		if err != nil {
			return nil, err
		}
		return num(s.c.Points[i].Y), nil
	})
	add("line_points", func(args []zygo.Sexp) (zygo.Sexp, error) {
		i, _, err := s.line(args, 0)
		if err != nil {
			return nil, err
		}
		return intArray(env, s.c.Lines[i].Points), nil
	})
	add("line_color", func(args []zygo.Sexp) (zygo.Sexp, error) {
		i, _, err := s.line(args, 0)
		if err != nil {
			return nil, err
		}
		return &zygo.SexpStr{S: s.c.Lines[i].Color}, nil
	})
	add("line_thickness", func(args []zygo.Sexp) (zygo.Sexp, error) {
		i, _, err := s.line(args, 0)
		if err != nil {
			return nil, err
		}
		return num(s.c.Lines[i].Thickness), nil
	})
	add("attr", func(args []zygo.Sexp) (zygo.Sexp, error) {
		attrs, rest, err := s.attributes(args, 1, false)
		if err != nil {
			return nil, err
		}
		key, err := toKeywordString(rest[0])
		if err != nil {
			return nil, err
		}
		return toSexp(env, attrs[key]), nil
	})

	// ---- setters ----

	add("set_x", func(args []zygo.Sexp) (zygo.Sexp, error) {
		i, rest, err := s.point(args, 1)
		if err != nil {
			return nil, err
		}
		x, err := toFloat64(rest[0])
		if err != nil {
			return nil, err
		}
		s.c.Points[i].X = x
		return rest[0], nil
	})
	add("set_y", func(args []zygo.Sexp) (zygo.Sexp, error) {
		i, rest, err := s.point(args, 1)
		if err != nil {
			return nil, err
		}
		y, err := toFloat64(rest[0])
		if err != nil {
			return nil, err
		}
		s.c.Points[i].Y = y
		return rest[0], nil
	})
	add("move_to", func(args []zygo.Sexp) (zygo.Sexp, error) {
		i, rest, err := s.point(args, 2)
		if err != nil {
			return nil, err
		}
		x, err := toFloat64(rest[0])
		if err != nil {
			return nil, err
		}
		y, err := toFloat64(rest[1])
		if err != nil {
			return nil, err
		}
		s.c.Points[i].X, s.c.Points[i].Y = x, y
		return integer(i), nil
	})
	add("set_attr", func(args []zygo.Sexp) (zygo.Sexp, error) {
		attrs, rest, err := s.attributes(args, 2, true)
		if err != nil {
			return nil, err
		}
		key, err := toKeywordString(rest[0])
		if err != nil {
			return nil, err
		}
		v, err := toGo(rest[1])
		if err != nil {
			return nil, err
		}
		attrs[key] = v
		return rest[1], nil
	})
	add("set_color", func(args []zygo.Sexp) (zygo.Sexp, error) {
		i, rest, err := s.line(args, 1)
		if err != nil {
			return nil, err
		}
		color, err := toString(rest[0])
		if err != nil {
			return nil, err
		}
		s.c.Lines[i].Color = color
		return rest[0], nil
	})
	add("set_thickness", func(args []zygo.Sexp) (zygo.Sexp, error) {
		i, rest, err := s.line(args, 1)
		if err != nil {
			return nil, err
		}
		t, err := toFloat64(rest[0])
		if err != nil {
			return nil, err
		}
		if t <= 0 {
			return nil, fmt.Errorf("thickness must be positive, got %g", t)
		}
		s.c.Lines[i].Thickness = t
		return rest[0], nil
	})
	add("set_background", func(args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("expected 1 argument, got %d", len(args))
		}
		color, err := toString(args[0])
		if err != nil {
			return nil, err
		}
		s.c.BackgroundColor = color
		return args[0], nil
	})

	// ---- creation ----

	add("add_point", func(args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("expected x and y, got %d arguments", len(args))
		}
		x, err := toFloat64(args[0])
		if err != nil {
			return nil, err
		}
		y, err := toFloat64(args[1])
		if err != nil {
			return nil, err
		}
		return integer(s.c.Point(x, y, nil)), nil
	})
	add("add_line", func(args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return nil, fmt.Errorf("expected a list of point indices")
		}
		items, err := sexpListToSlice(pa.positional[0])
		if err != nil {
			return nil, err
		}
		ids := make([]int, len(items))
		for k, item := range items {
			if ids[k], err = toInt(item); err != nil {
				return nil, err
			}
		}
		var style canvas.LineStyle
		if v, ok := pa.kw["color"]; ok {
			if style.Color, err = toString(v); err != nil {
				return nil, fmt.Errorf("color: %w", err)
			}
		}
		if v, ok := pa.kw["thickness"]; ok {
			if style.Thickness, err = toFloat64(v); err != nil {
				return nil, fmt.Errorf("thickness: %w", err)
			}
		}
		li, err := s.c.Line(ids, style)
		if err != nil {
			return nil, err
		}
		return integer(li), nil
	})
}

// point resolves the point a builtin acts on. With want+1 arguments the
// first is an explicit index; with want arguments the current point is
// used, which only exists in point mode.
func (s *session) point(args []zygo.Sexp, want int) (int, []zygo.Sexp, error) {
	i, rest, err := s.target(args, want, ModePoint)
	if err != nil {
		return 0, nil, err
	}
	if i < 0 || i >= len(s.c.Points) {
		return 0, nil, fmt.Errorf("point with index %d does not exist", i)
	}
	return i, rest, nil
}

// line is point for lines.
func (s *session) line(args []zygo.Sexp, want int) (int, []zygo.Sexp, error) {
	i, rest, err := s.target(args, want, ModeLine)
	if err != nil {
		return 0, nil, err
	}
	if i < 0 || i >= len(s.c.Lines) {
		return 0, nil, fmt.Errorf("line with index %d does not exist", i)
	}
	return i, rest, nil
}

func (s *session) target(args []zygo.Sexp, want int, mode string) (int, []zygo.Sexp, error) {
	switch len(args) {
	case want + 1:
		i, err := toInt(args[0])
		if err != nil {
			return 0, nil, fmt.Errorf("index: %w", err)
		}
		return i, args[1:], nil
	case want:
		if s.mode != mode {
			return 0, nil, fmt.Errorf("no current %s in %s mode, pass an index", mode, s.mode)
		}
		return s.index, args, nil
	}
	return 0, nil, fmt.Errorf("expected %d or %d arguments, got %d", want, want+1, len(args))
}

// attributes returns the attribute map of the current element, or of the
// point or line with an explicit index. Lines are targeted in line mode.
func (s *session) attributes(args []zygo.Sexp, want int, create bool) (canvas.Attributes, []zygo.Sexp, error) {
	if s.mode == ModeLine {
		i, rest, err := s.line(args, want)
		if err != nil {
			return nil, nil, err
		}
		l := &s.c.Lines[i]
		if l.Attributes == nil && create {
			l.Attributes = canvas.Attributes{}
		}
		return l.Attributes, rest, nil
	}
	i, rest, err := s.point(args, want)
	if err != nil {
		return nil, nil, err
	}
	p := &s.c.Points[i]
	if p.Attributes == nil && create {
		p.Attributes = canvas.Attributes{}
	}
	return p.Attributes, rest, nil
}

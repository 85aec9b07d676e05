package ops

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dsedov/penpal-studio/pkg/registry"
	"github.com/dsedov/penpal-studio/pkg/svg"
)

// Node categories, in the order the editor menu lists them.
const (
	CategoryGenerate = "Generate"
	CategoryModify   = "Modify"
	CategoryFlow     = "Flow"
	CategoryOutput   = "Output"
)

// DefaultCodeTimeout bounds a single Code node run.
const DefaultCodeTimeout = 2 * time.Second

// ErrNoCanvas is wrapped by operators whose primary input is missing.
var ErrNoCanvas = errors.New("requires a canvas input")

func missingInput(label string) error {
	return fmt.Errorf("%s %w", label, ErrNoCanvas)
}

// Options configures operators that touch the outside world.
type Options struct {
	// CodeTimeout bounds each run of user code. Zero uses DefaultCodeTimeout.
	CodeTimeout time.Duration
	// SVG is the base rendering setup for exportSVG; the node's units
	// property overrides SVG.Units.
	SVG svg.Options
	// S3 configures s3:// export targets.
	S3 svg.S3Config
	// Logger receives export notices. Nil discards them.
	Logger *slog.Logger
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{CodeTimeout: DefaultCodeTimeout, SVG: svg.DefaultOptions()}
}

func (o Options) codeTimeout() time.Duration {
	if o.CodeTimeout <= 0 {
		return DefaultCodeTimeout
	}
	return o.CodeTimeout
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

var (
	inputHandles  = []registry.Handle{{ID: registry.PrimaryHandle, Label: "Input"}}
	outputHandles = []registry.Handle{{ID: "output", Label: "Output"}}
)

// Types returns every built-in node type configured with opts.
func Types(opts Options) []*registry.NodeType {
	return []*registry.NodeType{
		canvasType(),
		pointGridType(),
		lineType(),
		circleType(),
		connectType(),
		cloneType(),
		duplicateType(),

		transformType(),
		softTransformType(),
		cropType(),
		cleanupType(),
		subdivideType(),
		fuseType(),
		closeType(),
		attributesType(),

		editType(),
		codeType(opts),
		mergeType(),
		loopType(),

		exportSVGType(opts),
	}
}

// Register installs the built-in node types into reg.
func Register(reg *registry.Registry, opts Options) error {
	for _, t := range Types(opts) {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the built-in node types.
func NewRegistry(opts Options) *registry.Registry {
	reg := registry.New()
	reg.MustRegister(Types(opts)...)
	return reg
}

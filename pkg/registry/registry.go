// Package registry maps node type tags to their property schema and compute
// function. The set of node types is closed: operators register themselves
// once at startup and the evaluator only looks them up.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dsedov/penpal-studio/pkg/canvas"
	"github.com/dsedov/penpal-studio/pkg/graph"
)

// Handle is a named input or output port.
type Handle struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
	// Multiple marks inputs that accept any number of edges, like Merge's.
	Multiple bool `json:"multiple,omitempty"`
}

// ComputeFunc produces a node's canvas from its upstream results and its
// resolved properties. It must not mutate any input canvas and reports
// recoverable failures as errors. Panics are recovered by the evaluator.
type ComputeFunc func(ctx context.Context, in Inputs, props Properties) (*canvas.Canvas, error)

// NodeType describes one operator.
type NodeType struct {
	Tag         string
	Label       string
	Category    string
	Description string
	Inputs      []Handle
	Outputs     []Handle
	Properties  []PropertySpec

	// Compute is nil for node types the evaluator implements itself.
	Compute ComputeFunc

	// TolerateInputErrors lets Compute run even when some inputs failed.
	// Failed inputs are still passed in so the operator can skip them.
	TolerateInputErrors bool

	// FeedbackHandle names the input handle that closes a loop back into
	// this node. Edges into it are not dependencies of the node.
	FeedbackHandle string
}

// Spec returns the property spec with the given name.
func (t *NodeType) Spec(name string) (PropertySpec, bool) {
	for _, s := range t.Properties {
		if s.Name == name {
			return s, true
		}
	}
	return PropertySpec{}, false
}

// DefaultProperties returns a fresh property map holding every default.
func (t *NodeType) DefaultProperties() map[string]graph.Property {
	out := make(map[string]graph.Property, len(t.Properties))
	for _, s := range t.Properties {
		out[s.Name] = s.Property()
	}
	return out
}

// Resolve merges a node's stored properties over the type defaults. Stored
// values win; bounds and kind missing from the stored property are taken
// from the spec. Stored properties unknown to the spec are kept.
func (t *NodeType) Resolve(stored map[string]graph.Property) Properties {
	merged := t.DefaultProperties()
	for name, p := range stored {
		def, ok := merged[name]
		if !ok {
			merged[name] = p
			continue
		}
		if p.Value != nil {
			def.Value = p.Value
		}
		if p.Min != nil {
			def.Min = p.Min
		}
		if p.Max != nil {
			def.Max = p.Max
		}
		if p.Hidden {
			def.Hidden = true
		}
		merged[name] = def
	}
	return NewProperties(merged)
}

// NewNode returns a node of this type with default properties and a fresh id.
func (t *NodeType) NewNode() (graph.Node, error) {
	id, err := graph.NewNodeID(t.Tag)
	if err != nil {
		return graph.Node{}, err
	}
	return graph.Node{
		ID:         id,
		Type:       t.Tag,
		Label:      t.Label,
		Properties: t.DefaultProperties(),
	}, nil
}

// IsFeedback reports whether e is the feedback edge of a node of this type.
func (t *NodeType) IsFeedback(e graph.Edge) bool {
	return t.FeedbackHandle != "" && e.TargetHandle == t.FeedbackHandle
}

// Registry is a lookup table of node types keyed by tag.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*NodeType
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{types: make(map[string]*NodeType)}
}

// Register adds a node type. Tags must be unique and non-empty.
func (r *Registry) Register(t *NodeType) error {
	if t == nil || t.Tag == "" {
		return fmt.Errorf("registry: node type has no tag")
	}
	if t.Compute == nil && t.FeedbackHandle == "" {
		return fmt.Errorf("registry: node type %q has no compute function", t.Tag)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[t.Tag]; exists {
		return fmt.Errorf("registry: node type %q already registered", t.Tag)
	}
	r.types[t.Tag] = t
	return nil
}

// MustRegister is Register that panics on error, for init-time tables.
func (r *Registry) MustRegister(types ...*NodeType) {
	for _, t := range types {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the node type with the given tag.
func (r *Registry) Lookup(tag string) (*NodeType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[tag]
	return t, ok
}

// Known reports whether tag is registered.
func (r *Registry) Known(tag string) bool {
	_, ok := r.Lookup(tag)
	return ok
}

// IsFeedback reports whether e enters the feedback handle of its target.
// It needs the graph to resolve the target's type.
func (r *Registry) IsFeedback(g *graph.Graph, e graph.Edge) bool {
	n, ok := g.Node(e.Target)
	if !ok {
		return false
	}
	t, ok := r.Lookup(n.Type)
	return ok && t.IsFeedback(e)
}

// ValidateOptions returns graph validation options backed by this registry.
func (r *Registry) ValidateOptions(g *graph.Graph) graph.ValidateOptions {
	return graph.ValidateOptions{
		KnownType: r.Known,
		Feedback:  func(e graph.Edge) bool { return r.IsFeedback(g, e) },
	}
}

// Types returns every registered type sorted by category, then tag.
func (r *Registry) Types() []*NodeType {
	r.mu.RLock()
	out := make([]*NodeType, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

package graph

// PropertyKind tells the editor which control renders a property and tells
// operators how to coerce its value.
type PropertyKind string

const (
	KindFloat         PropertyKind = "float"
	KindInt           PropertyKind = "int"
	KindVec2          PropertyKind = "vec2"
	KindColor         PropertyKind = "color"
	KindString        PropertyKind = "string"
	KindCode          PropertyKind = "code"
	KindFile          PropertyKind = "file"
	KindMenu          PropertyKind = "menu"
	KindBoolean       PropertyKind = "boolean"
	KindModifications PropertyKind = "modifications"
	KindInternal      PropertyKind = "internal" // operator state, not user editable
)

// Option is one entry of a menu property.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Property is a single typed configuration field of a node.
type Property struct {
	Kind    PropertyKind `json:"type"`
	Label   string       `json:"label,omitempty"`
	Value   any          `json:"value"`
	Min     *float64     `json:"min,omitempty"`
	Max     *float64     `json:"max,omitempty"`
	Options []Option     `json:"options,omitempty"`
	Hidden  bool         `json:"hidden,omitempty"`
}

// Visible reports whether the editor shows the property.
func (p Property) Visible() bool {
	return !p.Hidden && p.Kind != KindInternal
}

// Position is the editor location of a node. It has no effect on evaluation.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a typed operator instance.
type Node struct {
	ID         string              `json:"id"`
	Type       string              `json:"type"`
	Label      string              `json:"label,omitempty"`
	Position   Position            `json:"position"`
	Properties map[string]Property `json:"properties"`
	Bypass     bool                `json:"bypass,omitempty"`
	IsOutput   bool                `json:"isOutput,omitempty"`
}

// Value returns the value of a property, or nil if the node has none.
func (n Node) Value(name string) any {
	return n.Properties[name].Value
}

func (n Node) clone() Node {
	out := n
	if n.Properties != nil {
		out.Properties = make(map[string]Property, len(n.Properties))
		for k, p := range n.Properties {
			if p.Options != nil {
				p.Options = append([]Option(nil), p.Options...)
			}
			out.Properties[k] = p
		}
	}
	return out
}

// DefaultHandle is the handle name used when an edge carries no explicit
// target or source handle.
const DefaultHandle = "default"

// Edge connects an output handle of Source to an input handle of Target.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// InputHandle returns the target handle, or DefaultHandle when unset.
func (e Edge) InputHandle() string {
	if e.TargetHandle == "" {
		return DefaultHandle
	}
	return e.TargetHandle
}

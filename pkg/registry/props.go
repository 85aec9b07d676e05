package registry

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/dsedov/penpal-studio/pkg/canvas"
	"github.com/dsedov/penpal-studio/pkg/graph"
)

// PropertySpec declares a configurable field of a node type.
type PropertySpec struct {
	Name    string
	Kind    graph.PropertyKind
	Label   string
	Default any
	Min     *float64
	Max     *float64
	Options []graph.Option
	Hidden  bool
}

// Ptr returns a pointer to f, for PropertySpec.Min and Max.
func Ptr(f float64) *float64 {
	return &f
}

// Property returns the default graph property for the spec.
func (s PropertySpec) Property() graph.Property {
	p := graph.Property{
		Kind:   s.Kind,
		Label:  s.Label,
		Value:  s.Default,
		Min:    s.Min,
		Max:    s.Max,
		Hidden: s.Hidden,
	}
	if s.Options != nil {
		p.Options = append([]graph.Option(nil), s.Options...)
	}
	return p
}

// Properties gives operators typed access to a node's resolved property
// values. Numeric accessors clamp to the property's bounds.
type Properties struct {
	props map[string]graph.Property
}

// NewProperties wraps a property map. The map is not copied.
func NewProperties(props map[string]graph.Property) Properties {
	return Properties{props: props}
}

// Has reports whether the property exists.
func (p Properties) Has(name string) bool {
	_, ok := p.props[name]
	return ok
}

// Value returns the raw value of a property, or nil.
func (p Properties) Value(name string) any {
	return p.props[name].Value
}

// Property returns the full property.
func (p Properties) Property(name string) (graph.Property, bool) {
	prop, ok := p.props[name]
	return prop, ok
}

// Float returns a numeric property as float64, clamped to its bounds.
// Missing or non-numeric values yield 0.
func (p Properties) Float(name string) float64 {
	prop := p.props[name]
	f, _ := ToFloat(prop.Value)
	return clamp(f, prop.Min, prop.Max)
}

// Int returns a numeric property rounded to the nearest integer and clamped.
func (p Properties) Int(name string) int {
	return int(math.Round(p.Float(name)))
}

// Vec2 returns a vec2 property with each component clamped.
func (p Properties) Vec2(name string) canvas.Vec2 {
	prop := p.props[name]
	v, _ := ToVec2(prop.Value)
	return canvas.Vec2{X: clamp(v.X, prop.Min, prop.Max), Y: clamp(v.Y, prop.Min, prop.Max)}
}

// String returns a string property. Non-string values are formatted.
func (p Properties) String(name string) string {
	switch v := p.props[name].Value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Bool returns a boolean property. Strings "true" and "1" count as true.
func (p Properties) Bool(name string) bool {
	switch v := p.props[name].Value.(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		f, ok := ToFloat(v)
		return ok && f != 0
	}
}

func clamp(f float64, lo, hi *float64) float64 {
	if lo != nil && f < *lo {
		f = *lo
	}
	if hi != nil && f > *hi {
		f = *hi
	}
	return f
}

// ToFloat coerces the numeric shapes found in property values, including
// json.Number from decoded project files.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ToVec2 coerces {"x":..,"y":..} maps, two-element slices and canvas.Vec2.
func ToVec2(v any) (canvas.Vec2, bool) {
	switch t := v.(type) {
	case canvas.Vec2:
		return t, true
	case *canvas.Vec2:
		if t == nil {
			return canvas.Vec2{}, false
		}
		return *t, true
	case map[string]any:
		x, okx := ToFloat(t["x"])
		y, oky := ToFloat(t["y"])
		return canvas.Vec2{X: x, Y: y}, okx && oky
	case map[string]float64:
		return canvas.Vec2{X: t["x"], Y: t["y"]}, true
	case []any:
		if len(t) != 2 {
			return canvas.Vec2{}, false
		}
		x, okx := ToFloat(t[0])
		y, oky := ToFloat(t[1])
		return canvas.Vec2{X: x, Y: y}, okx && oky
	case []float64:
		if len(t) != 2 {
			return canvas.Vec2{}, false
		}
		return canvas.Vec2{X: t[0], Y: t[1]}, true
	case [2]float64:
		return canvas.Vec2{X: t[0], Y: t[1]}, true
	default:
		return canvas.Vec2{}, false
	}
}

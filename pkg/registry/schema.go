package registry

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/dsedov/penpal-studio/pkg/graph"
)

const colorPattern = `^(#[0-9a-fA-F]{3}|#[0-9a-fA-F]{6}|#[0-9a-fA-F]{8}|[a-zA-Z]+)$`

// JSONSchema describes the node type's property values as a JSON Schema
// object. Hidden and internal properties are marked read-only.
func (t *NodeType) JSONSchema() *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:        "object",
		Title:       t.Label,
		Description: t.Description,
		Properties:  make(map[string]*jsonschema.Schema, len(t.Properties)),
	}
	for _, spec := range t.Properties {
		s.Properties[spec.Name] = spec.schema()
	}
	return s
}

func (s PropertySpec) schema() *jsonschema.Schema {
	out := &jsonschema.Schema{Title: s.Label}
	switch s.Kind {
	case graph.KindFloat:
		out.Type = "number"
		out.Minimum, out.Maximum = s.Min, s.Max
	case graph.KindInt:
		out.Type = "integer"
		out.Minimum, out.Maximum = s.Min, s.Max
	case graph.KindVec2:
		component := &jsonschema.Schema{Type: "number", Minimum: s.Min, Maximum: s.Max}
		out.Type = "object"
		out.Properties = map[string]*jsonschema.Schema{"x": component, "y": component}
		out.Required = []string{"x", "y"}
	case graph.KindColor:
		out.Type = "string"
		out.Pattern = colorPattern
	case graph.KindMenu:
		out.Type = "string"
		for _, o := range s.Options {
			out.Enum = append(out.Enum, o.Value)
		}
	case graph.KindBoolean:
		out.Type = "boolean"
	case graph.KindModifications:
		out.Type = "array"
		out.Items = &jsonschema.Schema{Type: "object", Required: []string{"type"}}
	case graph.KindInternal:
		out.ReadOnly = true
	default:
		out.Type = "string"
	}
	if s.Hidden {
		out.ReadOnly = true
	}
	return out
}

// ValidateProperties checks a node's stored property values against the
// type's JSON Schema. Values are normalized through JSON first so decoded
// project files and Go literals validate the same way.
func (t *NodeType) ValidateProperties(stored map[string]graph.Property) error {
	values := make(map[string]any, len(stored))
	for name, p := range stored {
		if p.Value != nil {
			values[name] = p.Value
		}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("%s: encode properties: %w", t.Tag, err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("%s: decode properties: %w", t.Tag, err)
	}

	resolved, err := t.JSONSchema().Resolve(nil)
	if err != nil {
		return fmt.Errorf("%s: resolve schema: %w", t.Tag, err)
	}
	if err := resolved.Validate(instance); err != nil {
		return fmt.Errorf("%s: %w", t.Tag, err)
	}
	return nil
}

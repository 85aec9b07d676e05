package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/dsedov/penpal-studio/pkg/canvas"
	"github.com/dsedov/penpal-studio/pkg/graph"
	"github.com/dsedov/penpal-studio/pkg/registry"
)

// ModificationType tags an entry of an edit log.
type ModificationType string

const (
	TypeMovePoint           ModificationType = "MOVE_POINT"
	TypeAddPoint            ModificationType = "ADD_POINT"
	TypeDeletePoint         ModificationType = "DELETE_POINT"
	TypeCreateLine          ModificationType = "CREATE_LINE"
	TypeDeleteLine          ModificationType = "DELETE_LINE"
	TypeAddPointToLine      ModificationType = "ADD_POINT_TO_LINE"
	TypeRemovePointFromLine ModificationType = "REMOVE_POINT_FROM_LINE"
)

// EditLineThickness is the stroke width of lines created by an edit log
// entry that does not specify one.
const EditLineThickness = 2.0

// Modification is one recorded manual edit. Apply skips entries whose
// indices do not exist in c.
type Modification interface {
	Type() ModificationType
	Apply(c *canvas.Canvas)
}

// MovePoint moves a point. From records where it was, for undo.
type MovePoint struct {
	Index int         `json:"pointIndex"`
	From  canvas.Vec2 `json:"oldPos"`
	To    canvas.Vec2 `json:"newPos"`
}

func (MovePoint) Type() ModificationType { return TypeMovePoint }

func (m MovePoint) Apply(c *canvas.Canvas) {
	if m.Index < 0 || m.Index >= len(c.Points) {
		return
	}
	c.Points[m.Index].X, c.Points[m.Index].Y = m.To.X, m.To.Y
}

// AddPoint appends an unconnected point.
type AddPoint struct {
	Position canvas.Vec2 `json:"position"`
}

func (AddPoint) Type() ModificationType { return TypeAddPoint }

func (m AddPoint) Apply(c *canvas.Canvas) {
	c.Point(m.Position.X, m.Position.Y, nil)
}

// DeletePoint removes a point, re-indexing lines and dropping those left
// with fewer than two points.
type DeletePoint struct {
	Index int `json:"pointIndex"`
}

func (DeletePoint) Type() ModificationType { return TypeDeletePoint }

func (m DeletePoint) Apply(c *canvas.Canvas) {
	c.RemovePoints(func(i int, _ canvas.Point) bool { return i == m.Index })
}

// CreateLine adds a line through existing points.
type CreateLine struct {
	Points    []int   `json:"points"`
	Color     string  `json:"color,omitempty"`
	Thickness float64 `json:"thickness,omitempty"`
}

func (CreateLine) Type() ModificationType { return TypeCreateLine }

func (m CreateLine) Apply(c *canvas.Canvas) {
	style := canvas.LineStyle{Color: m.Color, Thickness: m.Thickness}
	if style.Thickness <= 0 {
		style.Thickness = EditLineThickness
	}
	_, _ = c.Line(m.Points, style)
}

// DeleteLine removes a line. Its points stay.
type DeleteLine struct {
	Line int `json:"lineIndex"`
}

func (DeleteLine) Type() ModificationType { return TypeDeleteLine }

func (m DeleteLine) Apply(c *canvas.Canvas) {
	if m.Line < 0 || m.Line >= len(c.Lines) {
		return
	}
	c.Lines = slices.Delete(c.Lines, m.Line, m.Line+1)
}

// AddPointToLine inserts a point reference into a line at position At.
// Out of range positions append.
type AddPointToLine struct {
	Line  int `json:"lineIndex"`
	Point int `json:"pointIndex"`
	At    int `json:"insertAt"`
}

func (AddPointToLine) Type() ModificationType { return TypeAddPointToLine }

func (m AddPointToLine) Apply(c *canvas.Canvas) {
	if m.Line < 0 || m.Line >= len(c.Lines) || m.Point < 0 || m.Point >= len(c.Points) {
		return
	}
	l := &c.Lines[m.Line]
	at := m.At
	if at < 0 || at > len(l.Points) {
		at = len(l.Points)
	}
	l.Points = slices.Insert(l.Points, at, m.Point)
}

// RemovePointFromLine drops every reference to a point from a line and
// removes the line if fewer than two points remain.
type RemovePointFromLine struct {
	Line  int `json:"lineIndex"`
	Point int `json:"pointIndex"`
}

func (RemovePointFromLine) Type() ModificationType { return TypeRemovePointFromLine }

func (m RemovePointFromLine) Apply(c *canvas.Canvas) {
	if m.Line < 0 || m.Line >= len(c.Lines) {
		return
	}
	l := &c.Lines[m.Line]
	l.Points = slices.DeleteFunc(l.Points, func(id int) bool { return id == m.Point })
	if len(l.Points) < 2 {
		c.Lines = slices.Delete(c.Lines, m.Line, m.Line+1)
	}
}

// Log is an ordered list of modifications. It encodes as a JSON array of
// objects tagged by "type".
type Log []Modification

// Apply replays every entry in order.
func (l Log) Apply(c *canvas.Canvas) {
	for _, m := range l {
		m.Apply(c)
	}
}

// MarshalJSON writes each entry's fields next to its "type" tag.
func (l Log) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(l))
	for _, m := range l {
		fields, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(fields, &obj); err != nil {
			return nil, err
		}
		obj["type"], _ = json.Marshal(m.Type())
		raw, err := json.Marshal(obj)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes tagged entries. Entries with an unknown or missing
// type are skipped.
func (l *Log) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	log := make(Log, 0, len(raws))
	for i, raw := range raws {
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			continue
		}
		var head struct {
			Type ModificationType `json:"type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return fmt.Errorf("modification %d: %w", i, err)
		}
		m, err := decodeModification(head.Type, raw)
		if err != nil {
			return fmt.Errorf("modification %d: %w", i, err)
		}
		if m != nil {
			log = append(log, m)
		}
	}
	*l = log
	return nil
}

func decodeModification(t ModificationType, raw []byte) (Modification, error) {
	var err error
	switch t {
	case TypeMovePoint:
		var m MovePoint
		err = json.Unmarshal(raw, &m)
		return m, err
	case TypeAddPoint:
		var m AddPoint
		err = json.Unmarshal(raw, &m)
		return m, err
	case TypeDeletePoint:
		var m DeletePoint
		err = json.Unmarshal(raw, &m)
		return m, err
	case TypeCreateLine:
		var m CreateLine
		err = json.Unmarshal(raw, &m)
		return m, err
	case TypeDeleteLine:
		var m DeleteLine
		err = json.Unmarshal(raw, &m)
		return m, err
	case TypeAddPointToLine:
		var m AddPointToLine
		err = json.Unmarshal(raw, &m)
		return m, err
	case TypeRemovePointFromLine:
		var m RemovePointFromLine
		err = json.Unmarshal(raw, &m)
		return m, err
	}
	return nil, nil
}

// ParseLog converts a modifications property value into a Log. It accepts
// a Log, a JSON string, or the generic slice produced by decoding a
// project file.
func ParseLog(v any) (Log, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case Log:
		return t, nil
	case []Modification:
		return Log(t), nil
	case string:
		if t == "" {
			return nil, nil
		}
		var l Log
		if err := json.Unmarshal([]byte(t), &l); err != nil {
			return nil, fmt.Errorf("invalid modifications: %w", err)
		}
		return l, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("invalid modifications: %w", err)
		}
		var l Log
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("invalid modifications: %w", err)
		}
		return l, nil
	}
}

// ---------------------------------------------------------------------------
// edit
// ---------------------------------------------------------------------------

func editType() *registry.NodeType {
	return &registry.NodeType{
		Tag:         "edit",
		Label:       "Edit",
		Category:    CategoryModify,
		Description: "Replays manual point and line edits",
		Inputs:      inputHandles,
		Outputs:     outputHandles,
		Properties: []registry.PropertySpec{
			{Name: "modifications", Kind: graph.KindModifications, Label: "Modifications", Default: Log{}},
		},
		Compute: func(_ context.Context, in registry.Inputs, p registry.Properties) (*canvas.Canvas, error) {
			src := in.Primary()
			if src == nil {
				return nil, missingInput("Edit")
			}
			log, err := ParseLog(p.Value("modifications"))
			if err != nil {
				return nil, err
			}
			out := src.Clone()
			log.Apply(out)
			return out, nil
		},
	}
}

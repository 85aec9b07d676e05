package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ProjectVersion is the only project document version this package writes
// and accepts.
const ProjectVersion = "1.0"

// ErrInvalidProject is returned when a project document is missing its
// version, nodes or edges.
var ErrInvalidProject = errors.New("invalid project file format")

// Viewport is the editor camera.
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// CanvasSettings are editor display preferences stored with the project.
type CanvasSettings struct {
	Mode       string `json:"mode,omitempty"`
	ShowPoints bool   `json:"showPoints"`
	LiveUpdate bool   `json:"liveUpdate"`
}

// Project is the persisted form of a graph. Nodes carry only data; compute
// behavior is looked up by node type when the graph is evaluated.
type Project struct {
	Version        string         `json:"version"`
	Nodes          []Node         `json:"nodes"`
	Edges          []Edge         `json:"edges"`
	Viewport       Viewport       `json:"viewport"`
	CanvasSettings CanvasSettings `json:"canvasSettings"`
}

// NewProject returns an empty project at the current version.
func NewProject() *Project {
	return &Project{
		Version:  ProjectVersion,
		Nodes:    []Node{},
		Edges:    []Edge{},
		Viewport: Viewport{Zoom: 1},
		CanvasSettings: CanvasSettings{
			Mode:       "fit",
			ShowPoints: true,
			LiveUpdate: true,
		},
	}
}

// Graph returns an immutable snapshot of the project's nodes and edges.
func (p *Project) Graph() *Graph {
	return Snapshot(p.Nodes, p.Edges)
}

// LoadProject decodes a project document. Numbers inside property values
// are kept as json.Number so ints and floats survive unchanged.
func LoadProject(r io.Reader) (*Project, error) {
	var raw struct {
		Version        string          `json:"version"`
		Nodes          *[]Node         `json:"nodes"`
		Edges          *[]Edge         `json:"edges"`
		Viewport       *Viewport       `json:"viewport"`
		CanvasSettings *CanvasSettings `json:"canvasSettings"`
	}
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	if raw.Version == "" || raw.Nodes == nil || raw.Edges == nil {
		return nil, ErrInvalidProject
	}
	if raw.Version != ProjectVersion {
		return nil, fmt.Errorf("unsupported project version %q (want %q)", raw.Version, ProjectVersion)
	}

	p := NewProject()
	p.Nodes = *raw.Nodes
	p.Edges = *raw.Edges
	if raw.Viewport != nil {
		p.Viewport = *raw.Viewport
	}
	if raw.CanvasSettings != nil {
		p.CanvasSettings = *raw.CanvasSettings
	}
	return p, nil
}

// LoadProjectFile reads a project document from disk.
func LoadProjectFile(path string) (*Project, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := LoadProject(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Save writes the project as indented JSON.
func (p *Project) Save(w io.Writer) error {
	if p.Version == "" {
		p.Version = ProjectVersion
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

// SaveFile writes the project to path, replacing any existing file.
func (p *Project) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

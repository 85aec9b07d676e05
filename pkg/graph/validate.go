package graph

import "fmt"

// ValidationSeverity indicates whether a validation finding leaves part of
// the graph without a result or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // affected nodes evaluate to errors
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	NodeID   string             // which node has the problem (empty if graph-level)
	EdgeID   string             // which edge has the problem, if any
	Message  string             // human-readable description
	Severity ValidationSeverity // error or warning
}

func (e ValidationError) Error() string {
	switch {
	case e.NodeID != "":
		return fmt.Sprintf("[%s] node %s: %s", e.Severity, e.NodeID, e.Message)
	case e.EdgeID != "":
		return fmt.Sprintf("[%s] edge %s: %s", e.Severity, e.EdgeID, e.Message)
	default:
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
}

// ValidateOptions supplies knowledge that lives outside the graph package.
type ValidateOptions struct {
	// KnownType reports whether a node type tag is registered. Nil skips
	// the check.
	KnownType func(tag string) bool
	// Feedback reports whether an edge is a sanctioned feedback edge, such
	// as the edge into a Loop node's loopIn handle. Feedback edges are
	// ignored by cycle detection.
	Feedback func(Edge) bool
}

// Validate runs the structural checks and returns every finding. An empty
// slice means the graph can be evaluated. It never mutates the graph.
func Validate(g *Graph, opts ValidateOptions) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateIDs(g)...)
	errs = append(errs, validateReferences(g)...)
	errs = append(errs, validateTypes(g, opts.KnownType)...)
	errs = append(errs, validateDAG(g, opts.Feedback)...)
	errs = append(errs, validateOutput(g)...)
	return errs
}

// HasErrors reports whether any finding is error severity.
func HasErrors(errs []ValidationError) bool {
	for _, e := range errs {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}

func validateIDs(g *Graph) []ValidationError {
	var errs []ValidationError
	for _, id := range g.dups {
		errs = append(errs, ValidationError{
			NodeID:   id,
			Message:  "duplicate node id",
			Severity: SeverityError,
		})
	}
	for _, n := range g.nodes {
		if n.ID == "" {
			errs = append(errs, ValidationError{
				Message:  fmt.Sprintf("node of type %q has an empty id", n.Type),
				Severity: SeverityError,
			})
		}
	}
	return errs
}

// validateReferences checks that every edge endpoint names an existing node.
// The evaluator skips dangling edges, so these are warnings.
func validateReferences(g *Graph) []ValidationError {
	var errs []ValidationError
	for _, e := range g.edges {
		if _, ok := g.index[e.Source]; !ok {
			errs = append(errs, ValidationError{
				EdgeID:   e.ID,
				Message:  fmt.Sprintf("source node %q does not exist", e.Source),
				Severity: SeverityWarning,
			})
		}
		if _, ok := g.index[e.Target]; !ok {
			errs = append(errs, ValidationError{
				EdgeID:   e.ID,
				Message:  fmt.Sprintf("target node %q does not exist", e.Target),
				Severity: SeverityWarning,
			})
		}
	}
	return errs
}

func validateTypes(g *Graph, known func(string) bool) []ValidationError {
	if known == nil {
		return nil
	}
	var errs []ValidationError
	for _, n := range g.nodes {
		if !known(n.Type) {
			errs = append(errs, ValidationError{
				NodeID:   n.ID,
				Message:  fmt.Sprintf("unknown node type %q", n.Type),
				Severity: SeverityError,
			})
		}
	}
	return errs
}

// validateDAG checks for cycles using DFS with 3-color marking.
// White (0) = unvisited, gray (1) = in current DFS path, black (2) = fully explored.
// If we encounter a gray node during traversal, we have found a cycle.
func validateDAG(g *Graph, feedback func(Edge) bool) []ValidationError {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int)
	var errs []ValidationError

	var visit func(id string) bool // returns true if cycle found
	visit = func(id string) bool {
		switch color[id] {
		case black:
			return false
		case gray:
			errs = append(errs, ValidationError{
				NodeID:   id,
				Message:  "cycle detected: node is part of a cycle",
				Severity: SeverityError,
			})
			return true
		}

		color[id] = gray
		for _, e := range g.Outgoing(id) {
			if feedback != nil && feedback(e) {
				continue
			}
			if _, ok := g.index[e.Target]; !ok {
				// Dangling reference; handled by validateReferences.
				continue
			}
			if visit(e.Target) {
				return true
			}
		}
		color[id] = black
		return false
	}

	for _, n := range g.nodes {
		if color[n.ID] == white {
			if visit(n.ID) {
				// One cycle error is sufficient; stop early.
				break
			}
		}
	}
	return errs
}

// validateOutput warns when more than one node claims to be the output.
func validateOutput(g *Graph) []ValidationError {
	var ids []string
	for _, n := range g.nodes {
		if n.IsOutput {
			ids = append(ids, n.ID)
		}
	}
	if len(ids) <= 1 {
		return nil
	}
	return []ValidationError{{
		Message:  fmt.Sprintf("%d nodes are flagged as output %v; the first one is used", len(ids), ids),
		Severity: SeverityWarning,
	}}
}

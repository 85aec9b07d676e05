package graph

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// IDAlphabet is the character set of the random part of generated ids.
var IDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// IDLength is the number of random characters in a generated id.
var IDLength = 10

// NewNodeID returns a fresh id for a node of the given type, e.g. "pointGrid-Xk3…".
func NewNodeID(nodeType string) (string, error) {
	return newID(nodeType + "-")
}

// NewEdgeID returns a fresh edge id.
func NewEdgeID() (string, error) {
	return newID("e-")
}

func newID(prefix string) (string, error) {
	id, err := nanoid.Generate(IDAlphabet, IDLength)
	if err != nil {
		return "", fmt.Errorf("graph: generate id: %w", err)
	}
	return prefix + id, nil
}

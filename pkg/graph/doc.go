// Package graph defines the node graph that describes a drawing: typed
// operator nodes with property bags, and edges between their handles.
//
// The editor owns a mutable graph. Evaluation works on an immutable Graph
// produced by Snapshot, so edits made while a pass is running cannot affect
// it. The package also holds structural validation and the project file
// format.
package graph

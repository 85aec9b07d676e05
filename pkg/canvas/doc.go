// Package canvas defines the vector drawing value that flows along graph
// edges: a sized canvas holding points with free-form attributes and lines
// that reference those points by index.
//
// Canvas values are treated as values. Operators clone their input before
// mutating it, so a canvas returned by one node is never changed by another.
package canvas

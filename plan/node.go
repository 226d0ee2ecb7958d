// Package plan implements the two kinds of plan entries — File Segment and
// Fill Segment — that together make up an aggregation Plan: the ordered
// sequence the Plan Builder assembles and the Plan Evaluator executes.
//
// File Segment and Fill Segment share a small interface (Node) rather than
// a base class, the same duck-typed shape the original aggregator's
// SegmentBase/FileSegment/FillSegment hierarchy had, expressed here as a Go
// interface with two concrete implementations instead of inheritance.
package plan

import "github.com/ctessum/sparse"

// Node is one entry in a Plan: either a File Segment (a planned read from
// one input) or a Fill Segment (synthesized padding for a gap).
type Node interface {
	// SizeAlong reports this node's length along dim after its internal
	// coverage and external slice are applied. When strict is false the
	// result may be negative, a signal from the Plan Builder that this
	// node should be dropped from the plan entirely.
	SizeAlong(dim string, strict bool) int

	// DataFor produces the output array for the named variable: real data
	// read from the input for a File Segment, or synthesized fill/ramp
	// values for a Fill Segment (and for any internal gap spliced into a
	// File Segment's coverage).
	DataFor(variable string) (*sparse.DenseArray, error)

	// CallbackWithFile invokes fn with this node's source path and global
	// attributes, if it has one — a File Segment invokes fn once per
	// call; a Fill Segment has no backing file and never calls fn.
	CallbackWithFile(fn func(path string, attrs map[string]interface{})) error
}

// Plan is the ordered sequence of segments the Plan Evaluator executes.
type Plan []Node

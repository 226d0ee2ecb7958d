package plan

import "fmt"

// ErrUnindexableFile reports that every value of a File Segment's indexing
// variable was missing or invalid; the Plan Builder excludes the file and
// logs this as a diagnostic rather than aborting the run.
type ErrUnindexableFile struct {
	Path string
	Dim  string
}

func (e *ErrUnindexableFile) Error() string {
	return fmt.Sprintf("plan: %s: every %s index value is missing or invalid", e.Path, e.Dim)
}

// ErrBoundsOutOfRange reports that a File Segment's coverage lies entirely
// outside the primary dimension's configured [min, max) bounds.
type ErrBoundsOutOfRange struct {
	Path string
	Dim  string
}

func (e *ErrBoundsOutOfRange) Error() string {
	return fmt.Sprintf("plan: %s: entirely outside %s bounds", e.Path, e.Dim)
}

// ErrVariableNotFound reports that a configured variable is absent from a
// particular input; the Plan Evaluator leaves that variable's slot in this
// segment as fill values rather than aborting.
type ErrVariableNotFound struct {
	Path     string
	Variable string
}

func (e *ErrVariableNotFound) Error() string {
	return fmt.Sprintf("plan: %s: variable %s not found", e.Path, e.Variable)
}

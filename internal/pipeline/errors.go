package pipeline

import "fmt"

// RenderError reports a failed render of a single clip.
type RenderError struct {
	// Order is the clip's position in the compilation sequence.
	Order int
	Cause error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render failed for clip %d: %v", e.Order, e.Cause)
}

func (e *RenderError) Unwrap() error { return e.Cause }

// CompileError reports a failed compilation. Partial output has already
// been discarded when this surfaces.
type CompileError struct {
	Reason string
	Cause  error
}

func (e *CompileError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("compilation failed: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("compilation failed: %s", e.Reason)
}

func (e *CompileError) Unwrap() error { return e.Cause }

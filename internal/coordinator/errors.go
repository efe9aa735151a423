package coordinator

import "fmt"

// ResolutionError wraps a failure of the external resolver service during
// the pre-resolve phase. Nothing is retried; the host pipeline owns the
// abort decision.
type ResolutionError struct {
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("loader name resolution failed: %v", e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// ClassificationError wraps a loader module that failed to load during the
// post-resolve phase.
type ClassificationError struct {
	Path string
	Err  error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("failed to load loader module %q: %v", e.Path, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// EmissionError wraps the first failure signaled by a deferred entry point.
// Other in-flight deferred calls are left to finish; their results are
// discarded.
type EmissionError struct {
	Loader string
	Err    error
}

func (e *EmissionError) Error() string {
	return fmt.Sprintf("deferred loader %q failed: %v", e.Loader, e.Err)
}

func (e *EmissionError) Unwrap() error { return e.Err }

package workflow

import "errors"

var (
	ErrPoolRequired    = errors.New("workflow: pool is required")
	ErrUnknownWorkflow = errors.New("workflow: unknown workflow")
	ErrAlreadyExists   = errors.New("workflow: name/version already registered")
	ErrRunNotFound     = errors.New("workflow: run not found")
	ErrNotResumable    = errors.New("workflow: run is not in a resumable state")
	ErrAlreadyStarted  = errors.New("workflow: already started")

	// errSuspended is returned internally by Sleep/WaitForEvent to
	// unwind the workflow function when it suspends. It is never
	// returned to callers of Start/Resume as-is; the executor
	// recognizes it and leaves the run in its already-persisted
	// waiting state instead of marking it failed.
	errSuspended = errors.New("workflow: suspended")

	// errEventTimeout is returned by WaitForEvent when its timeout
	// fires before a matching event arrives (spec.md §7 Timeout: for
	// workflows, fail and compensate).
	errEventTimeout = errors.New("workflow: wait for event timed out")
)

// IsSuspended reports whether err is the sentinel a workflow function
// returned to suspend at a Sleep or WaitForEvent call. Workflow
// functions should propagate it unchanged, same as any other error.
func IsSuspended(err error) bool {
	return errors.Is(err, errSuspended)
}

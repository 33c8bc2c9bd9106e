package engine

import "errors"

// Request-validation errors surfaced synchronously to callers of StartTask,
// CancelTask and RegenerateItem. These are never retried.
//
// Error handling principles:
// 1. Engine methods return sentinel errors for expected error conditions
// 2. Unexpected errors are wrapped with fmt.Errorf("...: %w", err)
// 3. Callers use errors.Is to branch on specific conditions
// 4. The API layer maps engine errors to appropriate HTTP status codes
var (
	// ErrForbidden indicates the requester does not own the resource or task.
	// API layer should map this to HTTP 403 Forbidden.
	ErrForbidden = errors.New("requester does not own the resource")

	// ErrEmptyResource indicates the resource has no units of work to process.
	ErrEmptyResource = errors.New("resource has no units of work")

	// ErrConflictingTask indicates another task of the same capability type
	// is already running against the resource.
	ErrConflictingTask = errors.New("a task of this type is already running for the resource")

	// ErrTaskStillRunning indicates a single-item regeneration was requested
	// while the batch task is still processing.
	ErrTaskStillRunning = errors.New("task is still running")

	// ErrItemNotRegenerable indicates the addressed item has no completed
	// result to regenerate.
	ErrItemNotRegenerable = errors.New("item has no completed result to regenerate")
)

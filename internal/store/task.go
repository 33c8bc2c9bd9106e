package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/forgeworks/genbatch/internal/domain"
)

// TaskStore defines the persistence contract for tasks and their items.
//
// Every method is atomic with respect to the task it touches: item transition
// methods adjust the task's derived counters in the same operation, and
// TransitionTask is a compare-and-set so that two racing terminal transitions
// (for example cancel versus finalize) can never both win.
type TaskStore interface {
	// CreateTask persists a new task with all of its items.
	CreateTask(ctx context.Context, task *domain.Task) error

	// GetTask retrieves a task with its items by ID.
	// Returns ErrTaskNotFound if no task exists with the given ID.
	GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// HasRunningTask reports whether any task of the given type is currently
	// running against the resource. Used to reject conflicting task starts.
	HasRunningTask(ctx context.Context, resourceID uuid.UUID, taskType string) (bool, error)

	// TransitionTask atomically moves the task from one status to another.
	// It returns false (with a nil error) when the task's current status is
	// not `from`; the caller must treat that as losing the race, not as a
	// failure. Transitions into running record StartedAt; transitions into a
	// terminal status record CompletedAt.
	TransitionTask(ctx context.Context, id uuid.UUID, from, to domain.TaskStatus) (bool, error)

	// MarkItemProcessing transitions a pending item to processing.
	MarkItemProcessing(ctx context.Context, taskID uuid.UUID, index int) error

	// SetItemExternalRef records the execution engine's reference for an
	// item's in-flight dispatch once the start call has succeeded.
	SetItemExternalRef(ctx context.Context, taskID uuid.UUID, index int, externalRef string) error

	// MarkItemCompleted transitions a processing item to completed, records
	// the result reference and increments the task's completed counter.
	MarkItemCompleted(ctx context.Context, taskID uuid.UUID, index int, resultRef string) error

	// MarkItemRetry transitions a processing item back to pending,
	// incrementing its retry count and recording the triggering error.
	MarkItemRetry(ctx context.Context, taskID uuid.UUID, index int, errMsg string) error

	// MarkItemFailed transitions a processing item to terminal failure and
	// increments the task's failed counter.
	MarkItemFailed(ctx context.Context, taskID uuid.UUID, index int, errMsg string) error
}

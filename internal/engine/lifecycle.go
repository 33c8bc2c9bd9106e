package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forgeworks/genbatch/internal/domain"
	"github.com/forgeworks/genbatch/internal/events"
	"github.com/forgeworks/genbatch/internal/store"
)

// StartResult is returned to the caller of StartTask.
type StartResult struct {
	TaskID            uuid.UUID
	ResultContainerID uuid.UUID
	TotalItems        int
}

// TaskSnapshot is the progress view of a task returned by GetTaskProgress.
// ActiveAges reports, per in-flight item index, how long ago it was
// dispatched; a large age flags a potentially stuck item.
type TaskSnapshot struct {
	Task       *domain.Task
	ActiveAges map[int]time.Duration
}

// StartTask validates the request, creates the task with every item pending,
// transitions it to running and triggers the first admission pass.
//
// Preconditions, checked in order: the method must resolve to a capability
// (capability.ErrMethodNotCapable), the resource must exist
// (store.ErrResourceNotFound) and be owned by the requester (ErrForbidden),
// the resource must have at least one unit of work (ErrEmptyResource), and
// no task of the same capability type may currently be running against the
// resource (ErrConflictingTask).
func (e *Engine) StartTask(
	ctx context.Context,
	resourceID uuid.UUID,
	method string,
	ownerID uuid.UUID,
	params map[string]any,
) (*StartResult, error) {
	desc, err := e.registry.Resolve(method)
	if err != nil {
		return nil, err
	}

	resource, err := e.resources.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if resource.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	if len(resource.Units) == 0 {
		return nil, ErrEmptyResource
	}

	running, err := e.tasks.HasRunningTask(ctx, resourceID, desc.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to check for conflicting tasks: %w", err)
	}
	if running {
		return nil, fmt.Errorf("%w: %s", ErrConflictingTask, desc.Type)
	}

	containerID, err := e.resources.CreateResultContainer(ctx, resourceID, store.ContainerSpec{
		Type:   desc.Type,
		Method: method,
		Size:   len(resource.Units),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create result container: %w", err)
	}

	task, err := domain.NewTask(resourceID, ownerID, desc.Type, method, params, len(resource.Units))
	if err != nil {
		return nil, err
	}
	task.ResultContainerID = containerID

	if err := e.tasks.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	swapped, err := e.tasks.TransitionTask(ctx, task.ID, domain.TaskStatusCreated, domain.TaskStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to start task: %w", err)
	}
	if !swapped {
		return nil, fmt.Errorf("task %s was mutated before it could start", task.ID)
	}

	e.logger.Info("task started",
		"task_id", task.ID,
		"resource_id", resourceID,
		"method", method,
		"total_items", task.TotalItems)

	task.Status = domain.TaskStatusRunning
	e.notify(ctx, events.ProgressStarted, task, nil, "", "")

	e.AdmitNext(ctx, task.ID)

	return &StartResult{
		TaskID:            task.ID,
		ResultContainerID: containerID,
		TotalItems:        task.TotalItems,
	}, nil
}

// CancelTask cancels a running task. Only the task owner may cancel.
//
// The cancellation itself is a compare-and-set: the status moves to
// cancelled only if it is currently running. When the condition fails the
// method returns false with a nil error; the task already finished or was
// already cancelled and the caller must treat this as a no-op.
func (e *Engine) CancelTask(ctx context.Context, taskID, requesterID uuid.UUID) (bool, error) {
	task, err := e.tasks.GetTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	if task.OwnerID != requesterID {
		return false, ErrForbidden
	}

	swapped, err := e.tasks.TransitionTask(ctx, taskID, domain.TaskStatusRunning, domain.TaskStatusCancelled)
	if err != nil {
		return false, fmt.Errorf("failed to cancel task: %w", err)
	}
	if !swapped {
		return false, nil
	}

	e.active.drop(taskID)

	if err := e.resources.SetContainerStatus(ctx, task.ResourceID, task.ResultContainerID,
		domain.ContainerStatusFailed, "cancelled by user"); err != nil {
		e.logger.Error("failed to mark result container cancelled",
			"task_id", taskID,
			"container_id", task.ResultContainerID,
			"error", err)
	}

	e.logger.Info("task cancelled", "task_id", taskID, "requester_id", requesterID)

	task.Status = domain.TaskStatusCancelled
	e.notify(ctx, events.ProgressCancelled, task, nil, "", "")

	return true, nil
}

// GetTaskProgress returns a snapshot of the task and its in-flight item
// ages. Returns store.ErrTaskNotFound when the task does not exist.
func (e *Engine) GetTaskProgress(ctx context.Context, taskID uuid.UUID) (*TaskSnapshot, error) {
	task, err := e.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &TaskSnapshot{
		Task:       task,
		ActiveAges: e.active.ages(taskID),
	}, nil
}

// finalize moves a running task whose items have all resolved to its
// terminal status: completed when no item failed, failed otherwise. It is
// idempotent; the compare-and-set rejects the second of two concurrent
// finalization attempts, and a concurrent cancellation wins the same race.
func (e *Engine) finalize(ctx context.Context, taskID uuid.UUID) {
	task, err := e.tasks.GetTask(ctx, taskID)
	if err != nil {
		e.logger.Error("failed to load task for finalization", "task_id", taskID, "error", err)
		return
	}
	if !task.Resolved() {
		e.logger.Warn("finalization requested before all items resolved",
			"task_id", taskID,
			"completed", task.CompletedItems,
			"failed", task.FailedItems,
			"total", task.TotalItems)
		return
	}

	terminal := domain.TaskStatusCompleted
	kind := events.ProgressCompleted
	containerStatus := domain.ContainerStatusCompleted
	detail := ""
	if task.FailedItems > 0 {
		terminal = domain.TaskStatusFailed
		kind = events.ProgressFailed
		containerStatus = domain.ContainerStatusFailed
		detail = fmt.Sprintf("%d of %d items failed", task.FailedItems, task.TotalItems)
	}

	swapped, err := e.tasks.TransitionTask(ctx, taskID, domain.TaskStatusRunning, terminal)
	if err != nil {
		e.logger.Error("failed to finalize task", "task_id", taskID, "error", err)
		return
	}
	if !swapped {
		// Already finalized or cancelled by a concurrent caller.
		return
	}

	e.active.drop(taskID)

	if err := e.resources.SetContainerStatus(ctx, task.ResourceID, task.ResultContainerID,
		containerStatus, detail); err != nil {
		e.logger.Error("failed to propagate terminal status to result container",
			"task_id", taskID,
			"container_id", task.ResultContainerID,
			"error", err)
	}

	e.logger.Info("task finalized",
		"task_id", taskID,
		"status", string(terminal),
		"completed", task.CompletedItems,
		"failed", task.FailedItems)

	task.Status = terminal
	e.notify(ctx, kind, task, nil, "", detail)
}

// notify emits one progress event for the task.
func (e *Engine) notify(
	ctx context.Context,
	kind events.ProgressKind,
	task *domain.Task,
	itemIndex *int,
	value, errMsg string,
) {
	e.notifier.Notify(ctx, events.ProgressEvent{
		Kind:           kind,
		TaskID:         task.ID,
		ResourceID:     task.ResourceID,
		CapabilityType: task.Type,
		Status:         task.Status,
		Progress:       task.Progress(),
		ItemIndex:      itemIndex,
		Value:          value,
		Error:          errMsg,
		At:             time.Now().UTC(),
	})
}

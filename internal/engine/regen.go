package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forgeworks/genbatch/internal/domain"
	"github.com/forgeworks/genbatch/internal/events"
	"github.com/forgeworks/genbatch/internal/extract"
)

// regenRequest tracks one in-flight single-item regeneration. Regenerations
// live outside the batch machinery: no active set, no retry budget, one
// best-effort attempt reported directly to the requester.
type regenRequest struct {
	taskID      uuid.UUID
	resourceID  uuid.UUID
	containerID uuid.UUID
	index       int
	capType     string
	method      string
}

// RegenerateItem re-runs the capability for one already-completed item of a
// finished task and returns the regeneration's tracking ID. Only the task
// owner may regenerate. A synchronous dispatch rejection is returned to the
// caller; there is no retry queue — the caller may simply invoke again.
func (e *Engine) RegenerateItem(
	ctx context.Context,
	taskID uuid.UUID,
	index int,
	requesterID uuid.UUID,
) (uuid.UUID, error) {
	task, err := e.tasks.GetTask(ctx, taskID)
	if err != nil {
		return uuid.Nil, err
	}
	if task.OwnerID != requesterID {
		return uuid.Nil, ErrForbidden
	}
	if task.Status == domain.TaskStatusRunning {
		return uuid.Nil, ErrTaskStillRunning
	}

	item, err := task.Item(index)
	if err != nil {
		return uuid.Nil, err
	}
	if item.Status != domain.ItemStatusCompleted {
		return uuid.Nil, fmt.Errorf("%w: item %d is %s", ErrItemNotRegenerable, index, item.Status)
	}

	desc, err := e.registry.Resolve(task.Method)
	if err != nil {
		return uuid.Nil, err
	}

	resource, err := e.resources.GetResource(ctx, task.ResourceID)
	if err != nil {
		return uuid.Nil, err
	}
	if index >= len(resource.Units) {
		return uuid.Nil, fmt.Errorf("%w: no unit reference for item %d", ErrItemNotRegenerable, index)
	}

	regenID := uuid.New()
	dispatch := Dispatch{
		Unit:   resource.Units[index],
		Params: task.Params,
		Correlation: events.Correlation{
			TaskID:     task.ID,
			ResourceID: task.ResourceID,
			ItemIndex:  index,
			Type:       task.Type,
			Method:     task.Method,
			RegenID:    regenID,
		},
	}

	e.regenMu.Lock()
	e.regens[regenID] = regenRequest{
		taskID:      task.ID,
		resourceID:  task.ResourceID,
		containerID: task.ResultContainerID,
		index:       index,
		capType:     task.Type,
		method:      task.Method,
	}
	e.regenMu.Unlock()

	if _, err := e.exec.StartExecution(ctx, desc.ExecutionID, dispatch); err != nil {
		e.takeRegen(regenID)
		return uuid.Nil, fmt.Errorf("regeneration dispatch failed: %w", err)
	}

	e.logger.Info("item regeneration dispatched",
		"task_id", taskID,
		"item_index", index,
		"regen_id", regenID)

	return regenID, nil
}

// handleRegenCompletion finishes a single-item regeneration: extract the
// value, write it into the result container and notify the requester.
// Success or failure, the attempt is consumed; duplicates are dropped.
func (e *Engine) handleRegenCompletion(ctx context.Context, event *events.CompletionEvent) {
	c := event.Correlation

	req, ok := e.takeRegen(c.RegenID)
	if !ok {
		e.logger.Debug("dropping completion for unknown regeneration", "regen_id", c.RegenID)
		return
	}

	logger := e.logger.With("task_id", req.taskID, "item_index", req.index, "regen_id", c.RegenID)

	desc, err := e.registry.Resolve(req.method)
	if err != nil {
		logger.Warn("method no longer resolves for regeneration", "method", req.method, "error", err)
		e.notifyRegen(ctx, req, "", fmt.Sprintf("method no longer resolves: %v", err))
		return
	}

	payload, err := e.resultPayload(ctx, event)
	if err != nil {
		logger.Warn("regeneration result unavailable", "error", err)
		e.notifyRegen(ctx, req, "", err.Error())
		return
	}

	value, ok := extract.Value(payload, desc.Extraction)
	if !ok {
		logger.Warn("regeneration extraction yielded no value")
		e.notifyRegen(ctx, req, "", "extraction failed: no value in result payload")
		return
	}

	if err := e.resources.WriteResultAtIndex(ctx, req.resourceID, req.containerID,
		req.index, value); err != nil {
		logger.Error("failed to write regenerated result", "error", err)
		e.notifyRegen(ctx, req, "", fmt.Sprintf("failed to store result: %v", err))
		return
	}

	logger.Info("item regenerated")
	e.notifyRegen(ctx, req, value, "")
}

// takeRegen removes and returns the tracked regeneration, consuming the
// single attempt.
func (e *Engine) takeRegen(regenID uuid.UUID) (regenRequest, bool) {
	e.regenMu.Lock()
	defer e.regenMu.Unlock()

	req, ok := e.regens[regenID]
	if ok {
		delete(e.regens, regenID)
	}
	return req, ok
}

// notifyRegen reports a regeneration outcome directly to the requester.
// Task counters are untouched; regenerations never contribute to aggregate
// progress.
func (e *Engine) notifyRegen(ctx context.Context, req regenRequest, value, errMsg string) {
	kind := events.ProgressItemCompleted
	if errMsg != "" {
		kind = events.ProgressItemFailed
	}
	idx := req.index
	e.notifier.Notify(ctx, events.ProgressEvent{
		Kind:           kind,
		TaskID:         req.taskID,
		ResourceID:     req.resourceID,
		CapabilityType: req.capType,
		ItemIndex:      &idx,
		Value:          value,
		Error:          errMsg,
		At:             time.Now().UTC(),
	})
}

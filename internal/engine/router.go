package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/forgeworks/genbatch/internal/domain"
	"github.com/forgeworks/genbatch/internal/events"
	"github.com/forgeworks/genbatch/internal/extract"
)

// HandleCompletion routes a completion event from the execution engine to
// the task and item it belongs to. Events may arrive at arbitrary times
// relative to admission passes, in duplicate, or after the task has been
// cancelled; every step re-checks persisted status before acting so the
// handler stays idempotent.
//
// Engine implements events.CompletionHandler.
func (e *Engine) HandleCompletion(ctx context.Context, event *events.CompletionEvent) error {
	if event.Correlation == nil {
		// The stream is shared; events without correlation belong to some
		// other consumer.
		return nil
	}
	c := event.Correlation

	if c.RegenID != uuid.Nil {
		e.handleRegenCompletion(ctx, event)
		return nil
	}

	logger := e.logger.With("task_id", c.TaskID, "item_index", c.ItemIndex)

	desc, err := e.registry.Resolve(c.Method)
	if err != nil {
		// Method definitions can change after a task was started; drop the
		// event rather than failing the stream.
		logger.Warn("dropping completion for unknown method", "method", c.Method, "error", err)
		return nil
	}

	task, err := e.tasks.GetTask(ctx, c.TaskID)
	if err != nil {
		logger.Debug("dropping completion for missing task", "error", err)
		e.active.drop(c.TaskID)
		return nil
	}
	if task.Status != domain.TaskStatusRunning {
		logger.Debug("discarding late completion for non-running task", "status", string(task.Status))
		e.active.drop(c.TaskID)
		return nil
	}

	item, err := task.Item(c.ItemIndex)
	if err != nil {
		logger.Error("completion addresses unknown item", "error", err)
		return nil
	}
	if item.Status != domain.ItemStatusProcessing {
		// Duplicate delivery or an event that raced a retry decision.
		logger.Debug("discarding completion for non-processing item", "status", string(item.Status))
		return nil
	}

	payload, err := e.resultPayload(ctx, event)
	if err != nil {
		e.OnItemFailure(ctx, c.TaskID, c.ItemIndex, err.Error())
		return nil
	}

	value, ok := extract.Value(payload, desc.Extraction)
	if !ok {
		e.OnItemFailure(ctx, c.TaskID, c.ItemIndex, "extraction failed: no value in result payload")
		return nil
	}

	resultRef := event.ResultRef
	if resultRef == "" {
		resultRef = event.ExternalRef
	}

	if err := e.tasks.MarkItemCompleted(ctx, c.TaskID, c.ItemIndex, resultRef); err != nil {
		logger.Error("failed to mark item completed", "error", err)
		e.active.remove(c.TaskID, c.ItemIndex)
		e.AdmitNext(ctx, c.TaskID)
		return nil
	}
	e.active.remove(c.TaskID, c.ItemIndex)

	if err := e.resources.WriteResultAtIndex(ctx, task.ResourceID, task.ResultContainerID,
		c.ItemIndex, value); err != nil {
		logger.Error("failed to write result to container",
			"container_id", task.ResultContainerID,
			"error", err)
	}

	logger.Info("item completed", "result_ref", resultRef)

	if updated, err := e.tasks.GetTask(ctx, c.TaskID); err == nil {
		task = updated
	}
	idx := c.ItemIndex
	e.notify(ctx, events.ProgressItemCompleted, task, &idx, value, "")

	e.AdmitNext(ctx, c.TaskID)
	return nil
}

// resultPayload locates the completion payload: the inline snapshot when the
// event carries one, otherwise a single fallback fetch of the persisted
// result by its reference. There is no retry loop here; a fetch failure is
// an item failure.
func (e *Engine) resultPayload(ctx context.Context, event *events.CompletionEvent) (json.RawMessage, error) {
	if len(event.Snapshot) > 0 {
		return event.Snapshot, nil
	}
	if event.ResultRef == "" {
		return nil, fmt.Errorf("completion event carries neither snapshot nor result reference")
	}
	payload, err := e.exec.GetResult(ctx, event.ResultRef)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch result %s: %w", event.ResultRef, err)
	}
	return payload, nil
}

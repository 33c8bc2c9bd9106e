package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/forgeworks/genbatch/internal/domain"
	"github.com/forgeworks/genbatch/internal/events"
)

// OnItemFailure applies the retry policy to a failed item. Dispatch failures
// and extraction failures land here alike and draw on the same per-item
// retry budget.
//
// Under budget, the item returns to pending and an admission pass is
// scheduled after the retry delay. Over budget, the item fails terminally
// and the next admission pass runs immediately so one bad item never stalls
// its siblings.
func (e *Engine) OnItemFailure(ctx context.Context, taskID uuid.UUID, index int, errMsg string) {
	logger := e.logger.With("task_id", taskID, "item_index", index)

	task, err := e.tasks.GetTask(ctx, taskID)
	if err != nil {
		logger.Debug("ignoring failure for missing task", "error", err)
		e.active.remove(taskID, index)
		return
	}
	if task.Status != domain.TaskStatusRunning {
		// Late failure for a cancelled or finished task.
		logger.Debug("discarding failure for non-running task", "status", string(task.Status))
		e.active.remove(taskID, index)
		return
	}

	item, err := task.Item(index)
	if err != nil {
		logger.Error("failure for unknown item", "error", err)
		e.active.remove(taskID, index)
		return
	}

	if item.RetryCount < e.cfg.MaxRetries {
		if err := e.tasks.MarkItemRetry(ctx, taskID, index, errMsg); err != nil {
			logger.Error("failed to mark item for retry", "error", err)
			e.active.remove(taskID, index)
			return
		}
		e.active.remove(taskID, index)

		logger.Info("item scheduled for retry",
			"retry_count", item.RetryCount+1,
			"max_retries", e.cfg.MaxRetries,
			"delay", e.cfg.RetryDelay,
			"error", errMsg)

		scheduled := e.afterRetryDelay(func() {
			e.AdmitNext(context.Background(), taskID)
		})
		if !scheduled {
			logger.Debug("engine closed, retry not scheduled")
		}
		return
	}

	if err := e.tasks.MarkItemFailed(ctx, taskID, index, errMsg); err != nil {
		logger.Error("failed to mark item failed", "error", err)
		e.active.remove(taskID, index)
		return
	}
	e.active.remove(taskID, index)

	logger.Warn("item failed terminally",
		"retry_count", item.RetryCount,
		"error", errMsg)

	// Re-read for fresh aggregate counts in the notification.
	if updated, err := e.tasks.GetTask(ctx, taskID); err == nil {
		task = updated
	}
	idx := index
	e.notify(ctx, events.ProgressItemFailed, task, &idx, "", errMsg)

	e.AdmitNext(ctx, taskID)
}

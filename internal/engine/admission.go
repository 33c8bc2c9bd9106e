package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/forgeworks/genbatch/internal/domain"
	"github.com/forgeworks/genbatch/internal/events"
)

// AdmitNext runs one admission pass for the task: it fills the task's free
// concurrency slots with pending items in index order and dispatches them.
// It is invoked once at task start and then exactly once per item resolution
// (success, retry re-admission or terminal failure), which guarantees
// forward progress without timers or polling.
//
// Safe to invoke concurrently and repeatedly for the same task: admission
// passes for one task are serialized, and the active set is the
// authoritative record of in-flight work, so a pass can never over-admit.
func (e *Engine) AdmitNext(ctx context.Context, taskID uuid.UUID) {
	act := e.active.activity(taskID)
	act.admitMu.Lock()

	task, err := e.tasks.GetTask(ctx, taskID)
	if err != nil || task.Status != domain.TaskStatusRunning {
		act.admitMu.Unlock()
		e.active.drop(taskID)
		if err != nil {
			e.logger.Debug("dropping admission tracking for missing task", "task_id", taskID)
		}
		return
	}

	var pending []int
	for _, item := range task.Items {
		if item.Status == domain.ItemStatusPending && !e.active.has(taskID, item.Index) {
			pending = append(pending, item.Index)
		}
	}

	freeSlots := e.cfg.ConcurrencyLimit - e.active.count(taskID)

	if freeSlots <= 0 || len(pending) == 0 {
		done := e.active.count(taskID) == 0 && len(pending) == 0
		act.admitMu.Unlock()
		if done {
			e.finalize(ctx, taskID)
		}
		return
	}

	// FIFO by index; no priority reordering.
	admit := pending
	if len(admit) > freeSlots {
		admit = admit[:freeSlots]
	}
	for _, index := range admit {
		e.active.add(taskID, index)
	}
	act.admitMu.Unlock()

	e.logger.Debug("admitting items",
		"task_id", taskID,
		"indices", admit,
		"free_slots", freeSlots,
		"pending", len(pending))

	for _, index := range admit {
		e.dispatchItem(ctx, task, index)
	}
}

// dispatchItem marks one item processing and hands it to the execution
// engine. A synchronous start failure is routed straight into the retry
// policy; no completion event will ever arrive for it.
func (e *Engine) dispatchItem(ctx context.Context, task *domain.Task, index int) {
	logger := e.logger.With("task_id", task.ID, "item_index", index)

	if err := e.tasks.MarkItemProcessing(ctx, task.ID, index); err != nil {
		// The item is still pending and nothing downstream will resolve it,
		// so a deferred admission pass must pick it up again or the task
		// stalls with the slot freed.
		logger.Error("failed to mark item processing", "error", err)
		e.active.remove(task.ID, index)
		if !e.afterRetryDelay(func() {
			e.AdmitNext(context.Background(), task.ID)
		}) {
			logger.Debug("engine closed, re-admission not scheduled")
		}
		return
	}

	desc, err := e.registry.Resolve(task.Method)
	if err != nil {
		e.OnItemFailure(ctx, task.ID, index, fmt.Sprintf("method no longer resolves: %v", err))
		return
	}

	resource, err := e.resources.GetResource(ctx, task.ResourceID)
	if err != nil {
		e.OnItemFailure(ctx, task.ID, index, fmt.Sprintf("failed to load resource: %v", err))
		return
	}
	if index >= len(resource.Units) {
		e.OnItemFailure(ctx, task.ID, index, "unit reference missing from resource")
		return
	}

	dispatch := Dispatch{
		Unit:   resource.Units[index],
		Params: task.Params,
		Correlation: events.Correlation{
			TaskID:     task.ID,
			ResourceID: task.ResourceID,
			ItemIndex:  index,
			Type:       task.Type,
			Method:     task.Method,
		},
	}

	externalRef, err := e.exec.StartExecution(ctx, desc.ExecutionID, dispatch)
	if err != nil {
		logger.Warn("dispatch rejected synchronously", "error", err)
		e.OnItemFailure(ctx, task.ID, index, fmt.Sprintf("dispatch failed: %v", err))
		return
	}

	if err := e.tasks.SetItemExternalRef(ctx, task.ID, index, externalRef); err != nil {
		// The item may already have resolved if the completion event raced
		// the ref write; losing the ref is harmless because routing uses
		// correlation metadata, not the ref.
		logger.Debug("could not record external ref", "external_ref", externalRef, "error", err)
	}

	logger.Debug("item dispatched", "external_ref", externalRef, "execution_id", desc.ExecutionID)
}

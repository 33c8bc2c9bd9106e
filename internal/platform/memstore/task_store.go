// Package memstore provides in-memory implementations of the store
// interfaces. They carry the same atomicity guarantees as the SQL stores
// (per-task compare-and-set transitions, counter maintenance inside the same
// mutation) and back the engine tests and database-less runs.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgeworks/genbatch/internal/domain"
	"github.com/forgeworks/genbatch/internal/store"
)

// TaskStore is an in-memory store.TaskStore implementation guarded by a
// single mutex. Tasks are stored by value-deep clones so callers can never
// alias persisted state.
type TaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task
}

// NewTaskStore creates an empty in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

// CreateTask persists a new task with all of its items.
func (s *TaskStore) CreateTask(_ context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return store.NewStoreError("task", "create", "validation failed", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task.Clone()
	return nil
}

// GetTask retrieves a task with its items by ID.
func (s *TaskStore) GetTask(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return task.Clone(), nil
}

// HasRunningTask reports whether any task of the given type is currently
// running against the resource.
func (s *TaskStore) HasRunningTask(_ context.Context, resourceID uuid.UUID, taskType string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range s.tasks {
		if task.ResourceID == resourceID && task.Type == taskType && task.Status == domain.TaskStatusRunning {
			return true, nil
		}
	}
	return false, nil
}

// TransitionTask atomically moves the task from one status to another.
// Returns false when the current status is not `from`.
func (s *TaskStore) TransitionTask(_ context.Context, id uuid.UUID, from, to domain.TaskStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return false, store.ErrTaskNotFound
	}
	if task.Status != from {
		return false, nil
	}

	now := time.Now().UTC()
	task.Status = to
	switch to {
	case domain.TaskStatusRunning:
		task.StartedAt = &now
	case domain.TaskStatusCompleted, domain.TaskStatusFailed, domain.TaskStatusCancelled:
		task.CompletedAt = &now
	}
	return true, nil
}

// MarkItemProcessing transitions a pending item to processing.
func (s *TaskStore) MarkItemProcessing(_ context.Context, taskID uuid.UUID, index int) error {
	return s.mutateItem(taskID, func(task *domain.Task) error {
		return task.MarkItemProcessing(index)
	})
}

// SetItemExternalRef records the dispatch reference for a processing item.
func (s *TaskStore) SetItemExternalRef(_ context.Context, taskID uuid.UUID, index int, externalRef string) error {
	return s.mutateItem(taskID, func(task *domain.Task) error {
		return task.SetItemExternalRef(index, externalRef)
	})
}

// MarkItemCompleted transitions a processing item to completed.
func (s *TaskStore) MarkItemCompleted(_ context.Context, taskID uuid.UUID, index int, resultRef string) error {
	return s.mutateItem(taskID, func(task *domain.Task) error {
		return task.MarkItemCompleted(index, resultRef)
	})
}

// MarkItemRetry transitions a processing item back to pending.
func (s *TaskStore) MarkItemRetry(_ context.Context, taskID uuid.UUID, index int, errMsg string) error {
	return s.mutateItem(taskID, func(task *domain.Task) error {
		return task.MarkItemRetry(index, errMsg)
	})
}

// MarkItemFailed transitions a processing item to terminal failure.
func (s *TaskStore) MarkItemFailed(_ context.Context, taskID uuid.UUID, index int, errMsg string) error {
	return s.mutateItem(taskID, func(task *domain.Task) error {
		return task.MarkItemFailed(index, errMsg)
	})
}

// mutateItem applies an item transition to the stored task under the lock,
// so the item status change and the counter adjustment are one atomic step.
func (s *TaskStore) mutateItem(taskID uuid.UUID, fn func(*domain.Task) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return store.ErrTaskNotFound
	}
	return fn(task)
}

var _ store.TaskStore = (*TaskStore)(nil)

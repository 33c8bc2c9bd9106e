package memstore

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/genbatch/internal/domain"
	"github.com/forgeworks/genbatch/internal/store"
)

func createTask(t *testing.T, s *TaskStore, unitCount int) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(uuid.New(), uuid.New(), "caption", "caption-v2", nil, unitCount)
	require.NoError(t, err)
	require.NoError(t, s.CreateTask(context.Background(), task))
	return task
}

func TestTaskStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()
	task := createTask(t, s, 3)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	assert.Len(t, got.Items, 3)

	// Mutating the returned copy must not affect the stored task.
	got.Items[0].Status = domain.ItemStatusFailed
	again, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusPending, again.Items[0].Status)
}

func TestTaskStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()

	_, err := s.GetTask(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrTaskNotFound)

	err = s.MarkItemProcessing(ctx, uuid.New(), 0)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)

	_, err = s.TransitionTask(ctx, uuid.New(), domain.TaskStatusRunning, domain.TaskStatusCancelled)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestTransitionTask(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()
	task := createTask(t, s, 1)

	t.Run("successful transition records timestamps", func(t *testing.T) {
		swapped, err := s.TransitionTask(ctx, task.ID, domain.TaskStatusCreated, domain.TaskStatusRunning)
		require.NoError(t, err)
		assert.True(t, swapped)

		got, err := s.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusRunning, got.Status)
		assert.NotNil(t, got.StartedAt)
	})

	t.Run("stale precondition loses", func(t *testing.T) {
		swapped, err := s.TransitionTask(ctx, task.ID, domain.TaskStatusCreated, domain.TaskStatusRunning)
		require.NoError(t, err)
		assert.False(t, swapped, "task is no longer in created status")
	})

	t.Run("exactly one terminal transition wins", func(t *testing.T) {
		var wg sync.WaitGroup
		results := make([]bool, 2)
		transitions := []domain.TaskStatus{domain.TaskStatusCancelled, domain.TaskStatusCompleted}

		for i, to := range transitions {
			wg.Add(1)
			go func(i int, to domain.TaskStatus) {
				defer wg.Done()
				swapped, err := s.TransitionTask(ctx, task.ID, domain.TaskStatusRunning, to)
				require.NoError(t, err)
				results[i] = swapped
			}(i, to)
		}
		wg.Wait()

		assert.NotEqual(t, results[0], results[1], "exactly one of the racing transitions must win")

		got, err := s.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.True(t, got.IsTerminal())
		assert.NotNil(t, got.CompletedAt)
	})
}

func TestItemMutations(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()
	task := createTask(t, s, 2)

	require.NoError(t, s.MarkItemProcessing(ctx, task.ID, 0))
	require.NoError(t, s.MarkItemCompleted(ctx, task.ID, 0, "artifact-0"))

	require.NoError(t, s.MarkItemProcessing(ctx, task.ID, 1))
	require.NoError(t, s.MarkItemRetry(ctx, task.ID, 1, "transient"))
	require.NoError(t, s.MarkItemProcessing(ctx, task.ID, 1))
	require.NoError(t, s.MarkItemFailed(ctx, task.ID, 1, "permanent"))

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CompletedItems)
	assert.Equal(t, 1, got.FailedItems)
	assert.Equal(t, domain.ItemStatusCompleted, got.Items[0].Status)
	assert.Equal(t, "artifact-0", got.Items[0].ResultRef)
	assert.Equal(t, domain.ItemStatusFailed, got.Items[1].Status)
	assert.Equal(t, 1, got.Items[1].RetryCount)
	assert.NotNil(t, got.Items[0].CompletedAt)
	assert.Nil(t, got.Items[1].CompletedAt, "failed items carry no completion timestamp")
	assert.True(t, got.Resolved())

	// Invalid transitions surface the domain error.
	err = s.MarkItemCompleted(ctx, task.ID, 0, "again")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestHasRunningTask(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()
	task := createTask(t, s, 1)

	running, err := s.HasRunningTask(ctx, task.ResourceID, "caption")
	require.NoError(t, err)
	assert.False(t, running, "created tasks do not count as running")

	_, err = s.TransitionTask(ctx, task.ID, domain.TaskStatusCreated, domain.TaskStatusRunning)
	require.NoError(t, err)

	running, err = s.HasRunningTask(ctx, task.ResourceID, "caption")
	require.NoError(t, err)
	assert.True(t, running)

	running, err = s.HasRunningTask(ctx, task.ResourceID, "control-image")
	require.NoError(t, err)
	assert.False(t, running, "only the same capability type conflicts")

	running, err = s.HasRunningTask(ctx, uuid.New(), "caption")
	require.NoError(t, err)
	assert.False(t, running, "other resources never conflict")
}

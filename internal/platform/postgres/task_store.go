package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/forgeworks/genbatch/internal/domain"
	"github.com/forgeworks/genbatch/internal/platform/logger"
	"github.com/forgeworks/genbatch/internal/store"
)

// TaskStore implements the store.TaskStore interface using PostgreSQL.
//
// Item transitions are single statements (a CTE updates the item row and the
// task's derived counters together), so the atomicity the contract requires
// comes from the database, not from application locking.
type TaskStore struct {
	db *sql.DB
}

// NewTaskStore creates a new TaskStore.
func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

// CreateTask persists a task and all of its items in one transaction.
func (s *TaskStore) CreateTask(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return store.NewStoreError("task", "create", "validation failed", err)
	}

	params, err := json.Marshal(task.Params)
	if err != nil {
		return store.NewStoreError("task", "create", "failed to encode params", err)
	}

	return store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		taskQuery := `
			INSERT INTO tasks (id, resource_id, owner_id, type, method, params,
			                   status, total_items, completed_items, failed_items,
			                   result_container_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`
		_, err := tx.ExecContext(ctx, taskQuery,
			task.ID,
			task.ResourceID,
			task.OwnerID,
			task.Type,
			task.Method,
			params,
			task.Status,
			task.TotalItems,
			task.CompletedItems,
			task.FailedItems,
			task.ResultContainerID,
			task.CreatedAt,
		)
		if err != nil {
			log.Error("failed to insert task", "task_id", task.ID, "error", err)
			return MapError(err)
		}

		itemQuery := `
			INSERT INTO task_items (task_id, item_index, status, retry_count)
			VALUES ($1, $2, $3, $4)
		`
		for _, item := range task.Items {
			if _, err := tx.ExecContext(ctx, itemQuery,
				task.ID, item.Index, item.Status, item.RetryCount); err != nil {
				log.Error("failed to insert task item",
					"task_id", task.ID,
					"item_index", item.Index,
					"error", err)
				return MapError(err)
			}
		}
		return nil
	})
}

// GetTask retrieves a task with its items by ID.
func (s *TaskStore) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	log := logger.FromContext(ctx)

	taskQuery := `
		SELECT id, resource_id, owner_id, type, method, params, status,
		       total_items, completed_items, failed_items, result_container_id,
		       created_at, started_at, completed_at
		FROM tasks
		WHERE id = $1
	`

	var task domain.Task
	var params []byte
	var startedAt, completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, taskQuery, id).Scan(
		&task.ID,
		&task.ResourceID,
		&task.OwnerID,
		&task.Type,
		&task.Method,
		&params,
		&task.Status,
		&task.TotalItems,
		&task.CompletedItems,
		&task.FailedItems,
		&task.ResultContainerID,
		&task.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to query task", "task_id", id, "error", err)
		return nil, MapError(err)
	}

	if startedAt.Valid {
		t := startedAt.Time
		task.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &task.Params); err != nil {
			return nil, store.NewStoreError("task", "get", "failed to decode params", err)
		}
	}

	items, err := s.getItems(ctx, id)
	if err != nil {
		return nil, err
	}
	task.Items = items

	return &task, nil
}

func (s *TaskStore) getItems(ctx context.Context, taskID uuid.UUID) ([]domain.Item, error) {
	log := logger.FromContext(ctx)

	itemQuery := `
		SELECT item_index, external_ref, result_ref, status, retry_count,
		       error, completed_at
		FROM task_items
		WHERE task_id = $1
		ORDER BY item_index
	`

	rows, err := s.db.QueryContext(ctx, itemQuery, taskID)
	if err != nil {
		log.Error("failed to query task items", "task_id", taskID, "error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var items []domain.Item
	for rows.Next() {
		var item domain.Item
		var completedAt sql.NullTime
		if err := rows.Scan(
			&item.Index,
			&item.ExternalRef,
			&item.ResultRef,
			&item.Status,
			&item.RetryCount,
			&item.Error,
			&completedAt,
		); err != nil {
			log.Error("failed to scan task item", "task_id", taskID, "error", err)
			return nil, MapError(err)
		}
		if completedAt.Valid {
			t := completedAt.Time
			item.CompletedAt = &t
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return items, nil
}

// HasRunningTask reports whether any task of the given type is currently
// running against the resource.
func (s *TaskStore) HasRunningTask(ctx context.Context, resourceID uuid.UUID, taskType string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM tasks
			WHERE resource_id = $1 AND type = $2 AND status = 'running'
		)
	`

	var running bool
	if err := s.db.QueryRowContext(ctx, query, resourceID, taskType).Scan(&running); err != nil {
		return false, MapError(err)
	}
	return running, nil
}

// TransitionTask atomically moves the task from one status to another. The
// WHERE clause carries the compare-and-set; zero rows affected with the task
// present means the caller lost the race.
func (s *TaskStore) TransitionTask(ctx context.Context, id uuid.UUID, from, to domain.TaskStatus) (bool, error) {
	log := logger.FromContext(ctx)

	query := `
		UPDATE tasks
		SET status = $3,
		    started_at = CASE WHEN $3 = 'running' THEN now() ELSE started_at END,
		    completed_at = CASE WHEN $3 IN ('completed', 'failed', 'cancelled')
		                        THEN now() ELSE completed_at END
		WHERE id = $1 AND status = $2
	`

	result, err := s.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		log.Error("failed to transition task",
			"task_id", id,
			"from", from,
			"to", to,
			"error", err)
		return false, MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, MapError(err)
	}
	if affected > 0 {
		return true, nil
	}

	// Distinguish a lost compare-and-set from a missing task.
	var exists bool
	existsQuery := `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`
	if err := s.db.QueryRowContext(ctx, existsQuery, id).Scan(&exists); err != nil {
		return false, MapError(err)
	}
	if !exists {
		return false, store.ErrTaskNotFound
	}
	return false, nil
}

// MarkItemProcessing transitions a pending item to processing and clears any
// stale dispatch reference from a previous attempt.
func (s *TaskStore) MarkItemProcessing(ctx context.Context, taskID uuid.UUID, index int) error {
	query := `
		UPDATE task_items
		SET status = 'processing', external_ref = ''
		WHERE task_id = $1 AND item_index = $2 AND status = 'pending'
	`
	return s.execItemUpdate(ctx, "mark processing", query, taskID, index)
}

// SetItemExternalRef records the dispatch reference for a processing item.
func (s *TaskStore) SetItemExternalRef(ctx context.Context, taskID uuid.UUID, index int, externalRef string) error {
	query := `
		UPDATE task_items
		SET external_ref = $3
		WHERE task_id = $1 AND item_index = $2 AND status = 'processing'
	`
	return s.execItemUpdate(ctx, "set external ref", query, taskID, index, externalRef)
}

// MarkItemCompleted transitions a processing item to completed and increments
// the task's completed counter in the same statement.
func (s *TaskStore) MarkItemCompleted(ctx context.Context, taskID uuid.UUID, index int, resultRef string) error {
	query := `
		WITH resolved AS (
			UPDATE task_items
			SET status = 'completed', result_ref = $3, error = '', completed_at = now()
			WHERE task_id = $1 AND item_index = $2 AND status = 'processing'
			RETURNING task_id
		)
		UPDATE tasks
		SET completed_items = completed_items + 1
		WHERE id IN (SELECT task_id FROM resolved)
	`
	return s.execItemUpdate(ctx, "mark completed", query, taskID, index, resultRef)
}

// MarkItemRetry transitions a processing item back to pending, incrementing
// its retry count and recording the triggering error.
func (s *TaskStore) MarkItemRetry(ctx context.Context, taskID uuid.UUID, index int, errMsg string) error {
	query := `
		UPDATE task_items
		SET status = 'pending', retry_count = retry_count + 1,
		    error = $3, external_ref = ''
		WHERE task_id = $1 AND item_index = $2 AND status = 'processing'
	`
	return s.execItemUpdate(ctx, "mark retry", query, taskID, index, errMsg)
}

// MarkItemFailed transitions a processing item to terminal failure and
// increments the task's failed counter in the same statement.
func (s *TaskStore) MarkItemFailed(ctx context.Context, taskID uuid.UUID, index int, errMsg string) error {
	query := `
		WITH resolved AS (
			UPDATE task_items
			SET status = 'failed', error = $3
			WHERE task_id = $1 AND item_index = $2 AND status = 'processing'
			RETURNING task_id
		)
		UPDATE tasks
		SET failed_items = failed_items + 1
		WHERE id IN (SELECT task_id FROM resolved)
	`
	return s.execItemUpdate(ctx, "mark failed", query, taskID, index, errMsg)
}

// execItemUpdate runs an item transition statement and turns "zero rows
// affected" into an error: either the item is missing or it was not in the
// status the transition requires.
func (s *TaskStore) execItemUpdate(ctx context.Context, operation, query string, taskID uuid.UUID, index int, extra ...any) error {
	log := logger.FromContext(ctx)

	args := append([]any{taskID, index}, extra...)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("item update failed",
			"operation", operation,
			"task_id", taskID,
			"item_index", index,
			"error", err)
		return MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return MapError(err)
	}
	if affected == 0 {
		var exists bool
		existsQuery := `SELECT EXISTS (SELECT 1 FROM task_items WHERE task_id = $1 AND item_index = $2)`
		if err := s.db.QueryRowContext(ctx, existsQuery, taskID, index).Scan(&exists); err != nil {
			return MapError(err)
		}
		if !exists {
			return fmt.Errorf("%w: task %s index %d", store.ErrItemNotFound, taskID, index)
		}
		return fmt.Errorf("%w: %s on task %s index %d: %v",
			store.ErrUpdateFailed, operation, taskID, index, domain.ErrInvalidTransition)
	}
	return nil
}

var _ store.TaskStore = (*TaskStore)(nil)

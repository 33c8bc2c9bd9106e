package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a batch task.
type TaskStatus string

// Possible task status values
const (
	TaskStatusCreated   TaskStatus = "created"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// ItemStatus represents the lifecycle state of a single item within a task.
type ItemStatus string

// Possible item status values. A retried item goes back to pending; there is
// no distinct "retrying" state.
const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
)

// Common validation errors for Task and Item
var (
	ErrEmptyTaskID        = errors.New("task ID cannot be empty")
	ErrEmptyResourceID    = errors.New("resource ID cannot be empty")
	ErrEmptyOwnerID       = errors.New("owner ID cannot be empty")
	ErrEmptyTaskType      = errors.New("task type cannot be empty")
	ErrEmptyTaskMethod    = errors.New("task method cannot be empty")
	ErrNoItems            = errors.New("task must contain at least one item")
	ErrInvalidTaskStatus  = errors.New("invalid task status")
	ErrInvalidItemStatus  = errors.New("invalid item status")
	ErrItemIndexOutOfRange = errors.New("item index out of range")
	ErrInvalidTransition  = errors.New("invalid status transition")
)

// Item is one unit of work within a task. Items are created all at once when
// the task is created and addressed by their stable index; they are never
// reordered or removed.
type Item struct {
	Index       int        `json:"index"`
	ExternalRef string     `json:"external_ref,omitempty"`
	ResultRef   string     `json:"result_ref,omitempty"`
	Status      ItemStatus `json:"status"`
	RetryCount  int        `json:"retry_count"`
	Error       string     `json:"error,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Task is one batch job applying a capability to every unit of work in a
// resource. The counter fields are derived and mutated only through the
// item transition methods below, never set directly.
type Task struct {
	ID                uuid.UUID      `json:"id"`
	ResourceID        uuid.UUID      `json:"resource_id"`
	OwnerID           uuid.UUID      `json:"owner_id"`
	Type              string         `json:"type"`
	Method            string         `json:"method"`
	Params            map[string]any `json:"params,omitempty"`
	Items             []Item         `json:"items"`
	TotalItems        int            `json:"total_items"`
	CompletedItems    int            `json:"completed_items"`
	FailedItems       int            `json:"failed_items"`
	Status            TaskStatus     `json:"status"`
	ResultContainerID uuid.UUID      `json:"result_container_id"`
	CreatedAt         time.Time      `json:"created_at"`
	StartedAt         *time.Time     `json:"started_at,omitempty"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
}

// Progress holds the aggregate item counts reported in notifications and
// progress snapshots.
type Progress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// NewTask creates a new Task with the given identity fields and one pending
// item per unit of work. It generates a new UUID for the task ID and sets the
// creation timestamp. Returns an error if validation fails.
func NewTask(
	resourceID, ownerID uuid.UUID,
	taskType, method string,
	params map[string]any,
	unitCount int,
) (*Task, error) {
	items := make([]Item, unitCount)
	for i := range items {
		items[i] = Item{Index: i, Status: ItemStatusPending}
	}

	task := &Task{
		ID:         uuid.New(),
		ResourceID: resourceID,
		OwnerID:    ownerID,
		Type:       taskType,
		Method:     method,
		Params:     params,
		Items:      items,
		TotalItems: unitCount,
		Status:     TaskStatusCreated,
		CreatedAt:  time.Now().UTC(),
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}
	if t.ResourceID == uuid.Nil {
		return ErrEmptyResourceID
	}
	if t.OwnerID == uuid.Nil {
		return ErrEmptyOwnerID
	}
	if t.Type == "" {
		return ErrEmptyTaskType
	}
	if t.Method == "" {
		return ErrEmptyTaskMethod
	}
	if len(t.Items) == 0 {
		return ErrNoItems
	}
	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}
	for i := range t.Items {
		if !isValidItemStatus(t.Items[i].Status) {
			return ErrInvalidItemStatus
		}
	}
	return nil
}

// Item returns a pointer to the item at the given index, or an error if the
// index is out of range.
func (t *Task) Item(index int) (*Item, error) {
	if index < 0 || index >= len(t.Items) {
		return nil, ErrItemIndexOutOfRange
	}
	return &t.Items[index], nil
}

// Progress returns the aggregate item counts for the task.
func (t *Task) Progress() Progress {
	return Progress{
		Total:     t.TotalItems,
		Completed: t.CompletedItems,
		Failed:    t.FailedItems,
	}
}

// IsTerminal reports whether the task has reached a terminal status.
func (t *Task) IsTerminal() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Resolved reports whether every item has reached a terminal state, i.e. the
// task is eligible for finalization.
func (t *Task) Resolved() bool {
	return t.CompletedItems+t.FailedItems == t.TotalItems
}

// MarkItemProcessing transitions the item at index from pending to
// processing. Counters are unchanged; processing is not a terminal state.
// The external reference is recorded separately once the dispatch succeeds.
func (t *Task) MarkItemProcessing(index int) error {
	item, err := t.Item(index)
	if err != nil {
		return err
	}
	if item.Status != ItemStatusPending {
		return ErrInvalidTransition
	}
	item.Status = ItemStatusProcessing
	item.ExternalRef = ""
	return nil
}

// SetItemExternalRef records the execution engine's reference for an item's
// in-flight dispatch. Only valid while the item is processing.
func (t *Task) SetItemExternalRef(index int, externalRef string) error {
	item, err := t.Item(index)
	if err != nil {
		return err
	}
	if item.Status != ItemStatusProcessing {
		return ErrInvalidTransition
	}
	item.ExternalRef = externalRef
	return nil
}

// MarkItemCompleted transitions the item at index from processing to
// completed, records the result reference, clears any previous error and
// increments the completed counter.
func (t *Task) MarkItemCompleted(index int, resultRef string) error {
	item, err := t.Item(index)
	if err != nil {
		return err
	}
	if item.Status != ItemStatusProcessing {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	item.Status = ItemStatusCompleted
	item.ResultRef = resultRef
	item.Error = ""
	item.CompletedAt = &now
	t.CompletedItems++
	return nil
}

// MarkItemRetry transitions the item at index from processing back to
// pending, increments its retry count and records the error that caused the
// retry. The error is kept until a later success clears it.
func (t *Task) MarkItemRetry(index int, errMsg string) error {
	item, err := t.Item(index)
	if err != nil {
		return err
	}
	if item.Status != ItemStatusProcessing {
		return ErrInvalidTransition
	}
	item.Status = ItemStatusPending
	item.RetryCount++
	item.Error = errMsg
	item.ExternalRef = ""
	return nil
}

// MarkItemFailed transitions the item at index from processing to failed,
// records the error and increments the failed counter. Failed is terminal;
// the item never re-enters pending.
func (t *Task) MarkItemFailed(index int, errMsg string) error {
	item, err := t.Item(index)
	if err != nil {
		return err
	}
	if item.Status != ItemStatusProcessing {
		return ErrInvalidTransition
	}
	item.Status = ItemStatusFailed
	item.Error = errMsg
	t.FailedItems++
	return nil
}

// Clone returns a deep copy of the task. Stores hand out clones so callers
// can never mutate persisted state in place.
func (t *Task) Clone() *Task {
	clone := *t
	clone.Items = make([]Item, len(t.Items))
	copy(clone.Items, t.Items)
	if t.Params != nil {
		clone.Params = make(map[string]any, len(t.Params))
		for k, v := range t.Params {
			clone.Params[k] = v
		}
	}
	if t.StartedAt != nil {
		started := *t.StartedAt
		clone.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		clone.CompletedAt = &completed
	}
	for i := range t.Items {
		if t.Items[i].CompletedAt != nil {
			at := *t.Items[i].CompletedAt
			clone.Items[i].CompletedAt = &at
		}
	}
	return &clone
}

// isValidTaskStatus checks if the given status is a valid TaskStatus.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusCreated, TaskStatusRunning, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// isValidItemStatus checks if the given status is a valid ItemStatus.
func isValidItemStatus(status ItemStatus) bool {
	switch status {
	case ItemStatusPending, ItemStatusProcessing, ItemStatusCompleted,
		ItemStatusFailed:
		return true
	default:
		return false
	}
}

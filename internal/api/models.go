package api

import (
	"time"

	"github.com/forgeworks/genbatch/internal/domain"
)

// StartTaskRequest is the body of POST /api/tasks.
type StartTaskRequest struct {
	ResourceID string         `json:"resource_id" validate:"required,uuid"`
	Method     string         `json:"method"      validate:"required"`
	Params     map[string]any `json:"params,omitempty"`
}

// StartTaskResponse is returned when a task has been created and started.
type StartTaskResponse struct {
	TaskID            string `json:"task_id"`
	ResultContainerID string `json:"result_container_id"`
	TotalItems        int    `json:"total_items"`
	Status            string `json:"status"`
}

// CancelTaskResponse reports whether the cancellation took effect. Cancelled
// is false when the task had already reached a terminal status.
type CancelTaskResponse struct {
	TaskID    string `json:"task_id"`
	Cancelled bool   `json:"cancelled"`
}

// ItemResponse is one item's state in the task progress view.
type ItemResponse struct {
	Index       int        `json:"index"`
	Status      string     `json:"status"`
	ResultRef   string     `json:"result_ref,omitempty"`
	RetryCount  int        `json:"retry_count"`
	Error       string     `json:"error,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TaskResponse is the progress snapshot of a task. ActiveForMs reports, per
// in-flight item index, how long ago the item was dispatched.
type TaskResponse struct {
	ID                string          `json:"id"`
	ResourceID        string          `json:"resource_id"`
	Type              string          `json:"type"`
	Method            string          `json:"method"`
	Status            string          `json:"status"`
	Progress          domain.Progress `json:"progress"`
	Items             []ItemResponse  `json:"items"`
	ResultContainerID string          `json:"result_container_id"`
	CreatedAt         time.Time       `json:"created_at"`
	StartedAt         *time.Time      `json:"started_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	ActiveForMs       map[int]int64   `json:"active_for_ms,omitempty"`
}

// RegenerateItemResponse is returned when a single-item regeneration has
// been dispatched.
type RegenerateItemResponse struct {
	TaskID    string `json:"task_id"`
	ItemIndex int    `json:"item_index"`
	RegenID   string `json:"regen_id"`
}

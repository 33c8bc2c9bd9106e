// Package events carries the asynchronous signals the orchestrator consumes
// and emits: completion events arriving from the execution engine, routed by
// correlation metadata, and progress events published to interested clients.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/forgeworks/genbatch/internal/domain"
)

// Correlation is the metadata embedded in every dispatch so that the
// eventual completion event can be routed back to the task and item (or
// regeneration request) that produced it. Events without correlation belong
// to some other consumer and are ignored.
type Correlation struct {
	TaskID     uuid.UUID `json:"task_id"`
	ResourceID uuid.UUID `json:"resource_id"`
	ItemIndex  int       `json:"item_index"`
	Type       string    `json:"type"`
	Method     string    `json:"method"`

	// RegenID is set only on single-item regeneration dispatches, which are
	// tracked outside the batch machinery.
	RegenID uuid.UUID `json:"regen_id,omitempty"`
}

// CompletionEvent is delivered by the execution engine when an asynchronous
// execution finishes. The snapshot is an inline copy of the result payload;
// when it is absent or incomplete the full result is fetched once by its
// reference.
type CompletionEvent struct {
	Correlation *Correlation    `json:"correlation,omitempty"`
	ExternalRef string          `json:"external_ref"`
	ResultRef   string          `json:"result_ref,omitempty"`
	Snapshot    json.RawMessage `json:"snapshot,omitempty"`
}

// CompletionHandler processes completion events. Handlers must be idempotent:
// the stream may deliver at-least-once and out of order relative to task
// mutations.
type CompletionHandler interface {
	HandleCompletion(ctx context.Context, event *CompletionEvent) error
}

// ProgressKind names the progress notifications a task emits over its life.
type ProgressKind string

// Progress notification kinds
const (
	ProgressStarted       ProgressKind = "started"
	ProgressItemCompleted ProgressKind = "item_completed"
	ProgressItemFailed    ProgressKind = "item_failed"
	ProgressCompleted     ProgressKind = "completed"
	ProgressFailed        ProgressKind = "failed"
	ProgressCancelled     ProgressKind = "cancelled"
)

// ProgressEvent is one progress notification. ItemIndex, Value and Error are
// populated only for the kinds they apply to.
type ProgressEvent struct {
	Kind           ProgressKind      `json:"kind"`
	TaskID         uuid.UUID         `json:"task_id"`
	ResourceID     uuid.UUID         `json:"resource_id"`
	CapabilityType string            `json:"capability_type"`
	Status         domain.TaskStatus `json:"status"`
	Progress       domain.Progress   `json:"progress"`
	ItemIndex      *int              `json:"item_index,omitempty"`
	Value          string            `json:"value,omitempty"`
	Error          string            `json:"error,omitempty"`
	At             time.Time         `json:"at"`
}

// Notifier delivers progress events to whatever transport carries them to
// clients. Delivery is best-effort; the orchestrator never blocks on it.
type Notifier interface {
	Notify(ctx context.Context, event ProgressEvent)
}

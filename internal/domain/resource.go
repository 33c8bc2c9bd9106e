package domain

import (
	"github.com/google/uuid"
)

// Resource is the orchestrator's view of the parent resource a task runs
// against. The resource itself is owned by the resource store; only the
// fields needed for admission decisions are surfaced here.
type Resource struct {
	ID      uuid.UUID `json:"id"`
	OwnerID uuid.UUID `json:"owner_id"`

	// Units are the references to the individual units of work, in order.
	// Item N of a task processes Units[N].
	Units []string `json:"units"`
}

// ContainerStatus represents the state of a result container in the resource
// store. It mirrors the task lifecycle but is owned by the external store.
type ContainerStatus string

// Possible container status values
const (
	ContainerStatusPending   ContainerStatus = "pending"
	ContainerStatusCompleted ContainerStatus = "completed"
	ContainerStatusFailed    ContainerStatus = "failed"
)

package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/forgeworks/genbatch/internal/domain"
)

// ContainerSpec describes the result container to create for a task: one
// slot per unit of work, annotated with the capability that fills it.
type ContainerSpec struct {
	Type   string // capability category, e.g. "caption"
	Method string // capability method the results come from
	Size   int    // number of result slots, equal to the task's item count
}

// ResourceStore is the orchestrator's view of the collection/document store
// that owns the parent resource and its embedded result placeholders. The
// store itself lives outside this service; implementations here adapt it.
type ResourceStore interface {
	// GetResource retrieves the resource with its ordered unit-of-work
	// references. Returns ErrResourceNotFound if it does not exist.
	GetResource(ctx context.Context, id uuid.UUID) (*domain.Resource, error)

	// CreateResultContainer creates a placeholder result holder on the
	// resource with one slot per unit of work, and returns its identifier.
	CreateResultContainer(ctx context.Context, resourceID uuid.UUID, spec ContainerSpec) (uuid.UUID, error)

	// WriteResultAtIndex stores one extracted value into the container slot
	// for the given item index.
	WriteResultAtIndex(ctx context.Context, resourceID, containerID uuid.UUID, index int, value string) error

	// SetContainerStatus records the container's terminal state. The detail
	// string carries human-readable context such as "cancelled by user".
	SetContainerStatus(ctx context.Context, resourceID, containerID uuid.UUID, status domain.ContainerStatus, detail string) error
}

package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/forgeworks/genbatch/internal/domain"
	"github.com/forgeworks/genbatch/internal/store"
)

// container is one result placeholder on a resource: a fixed-size slot list
// plus a status and optional detail.
type container struct {
	resourceID uuid.UUID
	spec       store.ContainerSpec
	values     []string
	status     domain.ContainerStatus
	detail     string
}

// ResourceStore is an in-memory store.ResourceStore implementation.
type ResourceStore struct {
	mu         sync.Mutex
	resources  map[uuid.UUID]*domain.Resource
	containers map[uuid.UUID]*container
}

// NewResourceStore creates an empty in-memory resource store.
func NewResourceStore() *ResourceStore {
	return &ResourceStore{
		resources:  make(map[uuid.UUID]*domain.Resource),
		containers: make(map[uuid.UUID]*container),
	}
}

// PutResource seeds a resource. Resources are owned externally in
// production; tests and dev runs create them here.
func (s *ResourceStore) PutResource(resource *domain.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()

	units := make([]string, len(resource.Units))
	copy(units, resource.Units)
	s.resources[resource.ID] = &domain.Resource{
		ID:      resource.ID,
		OwnerID: resource.OwnerID,
		Units:   units,
	}
}

// GetResource retrieves the resource with its ordered unit references.
func (s *ResourceStore) GetResource(_ context.Context, id uuid.UUID) (*domain.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resource, ok := s.resources[id]
	if !ok {
		return nil, store.ErrResourceNotFound
	}

	units := make([]string, len(resource.Units))
	copy(units, resource.Units)
	return &domain.Resource{ID: resource.ID, OwnerID: resource.OwnerID, Units: units}, nil
}

// CreateResultContainer creates a placeholder result holder on the resource.
func (s *ResourceStore) CreateResultContainer(_ context.Context, resourceID uuid.UUID, spec store.ContainerSpec) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resources[resourceID]; !ok {
		return uuid.Nil, store.ErrResourceNotFound
	}

	id := uuid.New()
	s.containers[id] = &container{
		resourceID: resourceID,
		spec:       spec,
		values:     make([]string, spec.Size),
		status:     domain.ContainerStatusPending,
	}
	return id, nil
}

// WriteResultAtIndex stores one extracted value into the container slot.
func (s *ResourceStore) WriteResultAtIndex(_ context.Context, resourceID, containerID uuid.UUID, index int, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.containers[containerID]
	if !ok || c.resourceID != resourceID {
		return store.ErrContainerNotFound
	}
	if index < 0 || index >= len(c.values) {
		return store.NewStoreError("container", "write", "slot index out of range", nil)
	}
	c.values[index] = value
	return nil
}

// SetContainerStatus records the container's terminal state.
func (s *ResourceStore) SetContainerStatus(_ context.Context, resourceID, containerID uuid.UUID, status domain.ContainerStatus, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.containers[containerID]
	if !ok || c.resourceID != resourceID {
		return store.ErrContainerNotFound
	}
	c.status = status
	c.detail = detail
	return nil
}

// ContainerState reports a container's values, status and detail. Test and
// inspection helper; not part of the store.ResourceStore contract.
func (s *ResourceStore) ContainerState(containerID uuid.UUID) (values []string, status domain.ContainerStatus, detail string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, found := s.containers[containerID]
	if !found {
		return nil, "", "", false
	}
	values = make([]string, len(c.values))
	copy(values, c.values)
	return values, c.status, c.detail, true
}

var _ store.ResourceStore = (*ResourceStore)(nil)

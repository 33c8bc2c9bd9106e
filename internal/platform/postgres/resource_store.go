package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/forgeworks/genbatch/internal/domain"
	"github.com/forgeworks/genbatch/internal/platform/logger"
	"github.com/forgeworks/genbatch/internal/store"
)

// ResourceStore implements the store.ResourceStore interface using
// PostgreSQL. Result container slots are a jsonb array of strings, one slot
// per task item, written in place by index.
type ResourceStore struct {
	db *sql.DB
}

// NewResourceStore creates a new ResourceStore.
func NewResourceStore(db *sql.DB) *ResourceStore {
	return &ResourceStore{db: db}
}

// GetResource retrieves the resource with its ordered unit references.
func (s *ResourceStore) GetResource(ctx context.Context, id uuid.UUID) (*domain.Resource, error) {
	log := logger.FromContext(ctx)

	query := `
		SELECT id, owner_id, units
		FROM resources
		WHERE id = $1
	`

	var resource domain.Resource
	var units []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(&resource.ID, &resource.OwnerID, &units)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrResourceNotFound
		}
		log.Error("failed to query resource", "resource_id", id, "error", err)
		return nil, MapError(err)
	}

	if err := json.Unmarshal(units, &resource.Units); err != nil {
		return nil, store.NewStoreError("resource", "get", "failed to decode units", err)
	}
	return &resource, nil
}

// CreateResource persists a resource with its ordered unit references.
// Resources are created by the surrounding product, not by the orchestrator;
// this exists for seeding and development runs.
func (s *ResourceStore) CreateResource(ctx context.Context, resource *domain.Resource) error {
	log := logger.FromContext(ctx)

	units, err := json.Marshal(resource.Units)
	if err != nil {
		return store.NewStoreError("resource", "create", "failed to encode units", err)
	}

	query := `
		INSERT INTO resources (id, owner_id, units, created_at)
		VALUES ($1, $2, $3, now())
	`
	if _, err := s.db.ExecContext(ctx, query, resource.ID, resource.OwnerID, units); err != nil {
		log.Error("failed to insert resource", "resource_id", resource.ID, "error", err)
		return MapError(err)
	}
	return nil
}

// CreateResultContainer creates a placeholder result holder on the resource
// with one empty slot per unit of work.
func (s *ResourceStore) CreateResultContainer(ctx context.Context, resourceID uuid.UUID, spec store.ContainerSpec) (uuid.UUID, error) {
	log := logger.FromContext(ctx)

	slots := make([]string, spec.Size)
	encoded, err := json.Marshal(slots)
	if err != nil {
		return uuid.Nil, store.NewStoreError("container", "create", "failed to encode slots", err)
	}

	id := uuid.New()
	query := `
		INSERT INTO result_containers (id, resource_id, type, method, slots, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`
	_, err = s.db.ExecContext(ctx, query,
		id, resourceID, spec.Type, spec.Method, encoded, domain.ContainerStatusPending)
	if err != nil {
		log.Error("failed to insert result container",
			"resource_id", resourceID,
			"type", spec.Type,
			"error", err)
		return uuid.Nil, MapError(err)
	}
	return id, nil
}

// WriteResultAtIndex stores one extracted value into the container slot.
func (s *ResourceStore) WriteResultAtIndex(ctx context.Context, resourceID, containerID uuid.UUID, index int, value string) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE result_containers
		SET slots = jsonb_set(slots, ARRAY[$3::text], to_jsonb($4::text))
		WHERE id = $1 AND resource_id = $2
		  AND jsonb_array_length(slots) > $3
	`

	result, err := s.db.ExecContext(ctx, query, containerID, resourceID, index, value)
	if err != nil {
		log.Error("failed to write result slot",
			"container_id", containerID,
			"item_index", index,
			"error", err)
		return MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return MapError(err)
	}
	if affected == 0 {
		return store.ErrContainerNotFound
	}
	return nil
}

// SetContainerStatus records the container's terminal state.
func (s *ResourceStore) SetContainerStatus(ctx context.Context, resourceID, containerID uuid.UUID, status domain.ContainerStatus, detail string) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE result_containers
		SET status = $3, detail = $4
		WHERE id = $1 AND resource_id = $2
	`

	result, err := s.db.ExecContext(ctx, query, containerID, resourceID, status, detail)
	if err != nil {
		log.Error("failed to set container status",
			"container_id", containerID,
			"status", status,
			"error", err)
		return MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return MapError(err)
	}
	if affected == 0 {
		return store.ErrContainerNotFound
	}
	return nil
}

var _ store.ResourceStore = (*ResourceStore)(nil)

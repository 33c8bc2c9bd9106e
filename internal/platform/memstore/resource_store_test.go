package memstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/genbatch/internal/domain"
	"github.com/forgeworks/genbatch/internal/store"
)

func TestResourceStore(t *testing.T) {
	ctx := context.Background()
	s := NewResourceStore()

	resource := &domain.Resource{
		ID:      uuid.New(),
		OwnerID: uuid.New(),
		Units:   []string{"images/0.png", "images/1.png"},
	}
	s.PutResource(resource)

	t.Run("get resource", func(t *testing.T) {
		got, err := s.GetResource(ctx, resource.ID)
		require.NoError(t, err)
		assert.Equal(t, resource.OwnerID, got.OwnerID)
		assert.Equal(t, []string{"images/0.png", "images/1.png"}, got.Units)

		_, err = s.GetResource(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrResourceNotFound)
	})

	t.Run("container lifecycle", func(t *testing.T) {
		containerID, err := s.CreateResultContainer(ctx, resource.ID, store.ContainerSpec{
			Type:   "caption",
			Method: "caption-v2",
			Size:   2,
		})
		require.NoError(t, err)

		require.NoError(t, s.WriteResultAtIndex(ctx, resource.ID, containerID, 1, "a caption"))
		require.NoError(t, s.SetContainerStatus(ctx, resource.ID, containerID, domain.ContainerStatusCompleted, ""))

		values, status, _, ok := s.ContainerState(containerID)
		require.True(t, ok)
		assert.Equal(t, []string{"", "a caption"}, values)
		assert.Equal(t, domain.ContainerStatusCompleted, status)
	})

	t.Run("container errors", func(t *testing.T) {
		containerID, err := s.CreateResultContainer(ctx, resource.ID, store.ContainerSpec{Size: 1})
		require.NoError(t, err)

		assert.Error(t, s.WriteResultAtIndex(ctx, resource.ID, containerID, 5, "x"))
		assert.ErrorIs(t, s.WriteResultAtIndex(ctx, uuid.New(), containerID, 0, "x"), store.ErrContainerNotFound)

		_, err = s.CreateResultContainer(ctx, uuid.New(), store.ContainerSpec{Size: 1})
		assert.ErrorIs(t, err, store.ErrResourceNotFound)
	})
}

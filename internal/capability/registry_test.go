package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/genbatch/internal/extract"
)

func TestRegistryResolve(t *testing.T) {
	t.Run("resolves built-in methods", func(t *testing.T) {
		r := NewDefaultRegistry()

		d, err := r.Resolve("caption-v2")
		require.NoError(t, err)
		assert.Equal(t, "caption", d.Type)
		assert.Equal(t, extract.ValueTypeText, d.Extraction.ValueType)
	})

	t.Run("unknown method", func(t *testing.T) {
		r := NewDefaultRegistry()

		_, err := r.Resolve("does-not-exist")
		assert.ErrorIs(t, err, ErrMethodNotCapable)
	})
}

func TestRegistryRegister(t *testing.T) {
	t.Run("registers and resolves", func(t *testing.T) {
		r := NewRegistry()
		d := Descriptor{
			Method:      "upscale-x4",
			Type:        "upscale",
			ExecutionID: "recipes/upscale-x4",
			Extraction:  extract.Descriptor{Path: "data.image_url", ValueType: extract.ValueTypeURL},
		}
		require.NoError(t, r.Register(d))

		got, err := r.Resolve("upscale-x4")
		require.NoError(t, err)
		assert.Equal(t, d, got)
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		r := NewDefaultRegistry()
		err := r.Register(Descriptor{Method: "caption-v2", Type: "caption"})
		assert.ErrorIs(t, err, ErrDuplicateMethod)
	})

	t.Run("rejects empty method", func(t *testing.T) {
		r := NewRegistry()
		assert.Error(t, r.Register(Descriptor{Type: "caption"}))
	})
}

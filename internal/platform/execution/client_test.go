package execution

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/genbatch/internal/config"
	"github.com/forgeworks/genbatch/internal/engine"
	"github.com/forgeworks/genbatch/internal/events"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(
		config.ExecutorConfig{URL: server.URL, TimeoutMs: 2000},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func TestStartExecution(t *testing.T) {
	dispatch := engine.Dispatch{
		Unit: "unit-0",
		Correlation: events.Correlation{
			TaskID:    uuid.New(),
			ItemIndex: 0,
			Method:    "caption-v2",
		},
	}

	t.Run("accepted", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/executions", r.URL.Path)

			var req startRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "recipes/caption-v2", req.ExecutionID)
			assert.Equal(t, "unit-0", req.Dispatch.Unit)

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"external_ref":"exec-abc"}`))
		})

		ref, err := client.StartExecution(context.Background(), "recipes/caption-v2", dispatch)
		require.NoError(t, err)
		assert.Equal(t, "exec-abc", ref)
	})

	t.Run("rejected", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "over capacity", http.StatusServiceUnavailable)
		})

		_, err := client.StartExecution(context.Background(), "recipes/caption-v2", dispatch)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 503")
	})

	t.Run("empty reference", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		})

		_, err := client.StartExecution(context.Background(), "recipes/caption-v2", dispatch)
		assert.Error(t, err)
	})
}

func TestGetResult(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/results/res-1", r.URL.Path)
			_, _ = w.Write([]byte(`{"result":"a caption"}`))
		})

		payload, err := client.GetResult(context.Background(), "res-1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"result":"a caption"}`, string(payload))
	})

	t.Run("missing", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		})

		_, err := client.GetResult(context.Background(), "res-gone")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 404")
	})
}

package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/genbatch/internal/api"
	apimiddleware "github.com/forgeworks/genbatch/internal/api/middleware"
	"github.com/forgeworks/genbatch/internal/capability"
	"github.com/forgeworks/genbatch/internal/domain"
	"github.com/forgeworks/genbatch/internal/engine"
	"github.com/forgeworks/genbatch/internal/events"
	"github.com/forgeworks/genbatch/internal/platform/memstore"
)

// stubExec accepts every dispatch and records it so tests can feed
// completions back through the engine.
type stubExec struct {
	mu         sync.Mutex
	dispatches []engine.Dispatch
}

func (s *stubExec) StartExecution(_ context.Context, _ string, d engine.Dispatch) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatches = append(s.dispatches, d)
	return fmt.Sprintf("exec-%d", len(s.dispatches)), nil
}

func (s *stubExec) GetResult(_ context.Context, ref string) (json.RawMessage, error) {
	return nil, fmt.Errorf("no result stored under %s", ref)
}

func (s *stubExec) dispatched() []engine.Dispatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]engine.Dispatch, len(s.dispatches))
	copy(out, s.dispatches)
	return out
}

type apiHarness struct {
	router   *chi.Mux
	engine   *engine.Engine
	exec     *stubExec
	owner    uuid.UUID
	resource *domain.Resource
}

func newAPIHarness(t *testing.T, unitCount int) *apiHarness {
	t.Helper()

	owner := uuid.New()
	units := make([]string, unitCount)
	for i := range units {
		units[i] = fmt.Sprintf("unit-%d", i)
	}
	resource := &domain.Resource{ID: uuid.New(), OwnerID: owner, Units: units}

	resources := memstore.NewResourceStore()
	resources.PutResource(resource)

	exec := &stubExec{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(engine.DefaultConfig(), memstore.NewTaskStore(), resources,
		exec, capability.NewDefaultRegistry(), events.NewLogNotifier(log), log)
	t.Cleanup(eng.Close)

	handler := api.NewTaskHandler(eng, log)

	router := chi.NewRouter()
	router.Use(apimiddleware.TraceMiddleware)
	router.Route("/api/tasks", func(r chi.Router) {
		r.Get("/{id}", handler.GetTask)
		r.Group(func(r chi.Router) {
			r.Use(apimiddleware.RequesterMiddleware)
			r.Post("/", handler.StartTask)
			r.Post("/{id}/cancel", handler.CancelTask)
			r.Post("/{id}/items/{index}/regenerate", handler.RegenerateItem)
		})
	})

	return &apiHarness{
		router:   router,
		engine:   eng,
		exec:     exec,
		owner:    owner,
		resource: resource,
	}
}

func (h *apiHarness) request(t *testing.T, method, path, body string, requester uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if requester != uuid.Nil {
		req.Header.Set(apimiddleware.RequesterIDHeader, requester.String())
	}

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *apiHarness) startTask(t *testing.T) string {
	t.Helper()

	body := fmt.Sprintf(`{"resource_id":%q,"method":"caption-v2"}`, h.resource.ID)
	rec := h.request(t, http.MethodPost, "/api/tasks", body, h.owner)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp api.StartTaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.TaskID
}

// finishTask drives every item to completion through the engine's event path.
func (h *apiHarness) finishTask(t *testing.T, total int) {
	t.Helper()
	for done := 0; done < total; done++ {
		dispatches := h.exec.dispatched()
		require.Greater(t, len(dispatches), done)
		c := dispatches[done].Correlation
		require.NoError(t, h.engine.HandleCompletion(context.Background(), &events.CompletionEvent{
			Correlation: &c,
			Snapshot:    json.RawMessage(`{"result":"a caption"}`),
		}))
	}
}

func TestStartTaskEndpoint(t *testing.T) {
	t.Run("creates and starts a task", func(t *testing.T) {
		h := newAPIHarness(t, 3)
		body := fmt.Sprintf(`{"resource_id":%q,"method":"caption-v2"}`, h.resource.ID)
		rec := h.request(t, http.MethodPost, "/api/tasks", body, h.owner)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp api.StartTaskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.TotalItems)
		assert.Equal(t, "running", resp.Status)
		assert.NotEmpty(t, resp.TaskID)
		assert.NotEmpty(t, resp.ResultContainerID)

		// Admission started immediately, bounded by the concurrency limit.
		assert.Len(t, h.exec.dispatched(), 2)
	})

	t.Run("unknown method", func(t *testing.T) {
		h := newAPIHarness(t, 3)
		body := fmt.Sprintf(`{"resource_id":%q,"method":"no-such-method"}`, h.resource.ID)
		rec := h.request(t, http.MethodPost, "/api/tasks", body, h.owner)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("resource owned by someone else", func(t *testing.T) {
		h := newAPIHarness(t, 3)
		body := fmt.Sprintf(`{"resource_id":%q,"method":"caption-v2"}`, h.resource.ID)
		rec := h.request(t, http.MethodPost, "/api/tasks", body, uuid.New())
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unknown resource", func(t *testing.T) {
		h := newAPIHarness(t, 3)
		body := fmt.Sprintf(`{"resource_id":%q,"method":"caption-v2"}`, uuid.New())
		rec := h.request(t, http.MethodPost, "/api/tasks", body, h.owner)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("conflicting task", func(t *testing.T) {
		h := newAPIHarness(t, 3)
		h.startTask(t)
		body := fmt.Sprintf(`{"resource_id":%q,"method":"caption-v2"}`, h.resource.ID)
		rec := h.request(t, http.MethodPost, "/api/tasks", body, h.owner)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("missing requester header", func(t *testing.T) {
		h := newAPIHarness(t, 3)
		body := fmt.Sprintf(`{"resource_id":%q,"method":"caption-v2"}`, h.resource.ID)
		rec := h.request(t, http.MethodPost, "/api/tasks", body, uuid.Nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		h := newAPIHarness(t, 3)
		rec := h.request(t, http.MethodPost, "/api/tasks", `{"resource_id":`, h.owner)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("validation failure", func(t *testing.T) {
		h := newAPIHarness(t, 3)
		rec := h.request(t, http.MethodPost, "/api/tasks", `{"resource_id":"not-a-uuid","method":"caption-v2"}`, h.owner)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCancelTaskEndpoint(t *testing.T) {
	t.Run("cancels a running task", func(t *testing.T) {
		h := newAPIHarness(t, 3)
		taskID := h.startTask(t)

		rec := h.request(t, http.MethodPost, "/api/tasks/"+taskID+"/cancel", "", h.owner)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp api.CancelTaskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Cancelled)
	})

	t.Run("cancel of finished task is a reported no-op", func(t *testing.T) {
		h := newAPIHarness(t, 2)
		taskID := h.startTask(t)
		h.finishTask(t, 2)

		rec := h.request(t, http.MethodPost, "/api/tasks/"+taskID+"/cancel", "", h.owner)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp api.CancelTaskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Cancelled)
	})

	t.Run("forbidden for non-owner", func(t *testing.T) {
		h := newAPIHarness(t, 2)
		taskID := h.startTask(t)
		rec := h.request(t, http.MethodPost, "/api/tasks/"+taskID+"/cancel", "", uuid.New())
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unknown task", func(t *testing.T) {
		h := newAPIHarness(t, 2)
		rec := h.request(t, http.MethodPost, "/api/tasks/"+uuid.NewString()+"/cancel", "", h.owner)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed task ID", func(t *testing.T) {
		h := newAPIHarness(t, 2)
		rec := h.request(t, http.MethodPost, "/api/tasks/not-a-uuid/cancel", "", h.owner)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetTaskEndpoint(t *testing.T) {
	t.Run("progress snapshot", func(t *testing.T) {
		h := newAPIHarness(t, 4)
		taskID := h.startTask(t)

		c := h.exec.dispatched()[0].Correlation
		require.NoError(t, h.engine.HandleCompletion(context.Background(), &events.CompletionEvent{
			Correlation: &c,
			Snapshot:    json.RawMessage(`{"result":"a caption"}`),
		}))

		rec := h.request(t, http.MethodGet, "/api/tasks/"+taskID, "", uuid.Nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp api.TaskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "running", resp.Status)
		assert.Equal(t, domain.Progress{Total: 4, Completed: 1, Failed: 0}, resp.Progress)
		require.Len(t, resp.Items, 4)
		assert.Equal(t, "completed", resp.Items[0].Status)
		assert.Len(t, resp.ActiveForMs, 2)
	})

	t.Run("unknown task", func(t *testing.T) {
		h := newAPIHarness(t, 2)
		rec := h.request(t, http.MethodGet, "/api/tasks/"+uuid.NewString(), "", uuid.Nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRegenerateItemEndpoint(t *testing.T) {
	t.Run("regenerates a completed item", func(t *testing.T) {
		h := newAPIHarness(t, 2)
		taskID := h.startTask(t)
		h.finishTask(t, 2)

		rec := h.request(t, http.MethodPost, "/api/tasks/"+taskID+"/items/1/regenerate", "", h.owner)
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

		var resp api.RegenerateItemResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.ItemIndex)
		assert.NotEmpty(t, resp.RegenID)

		dispatches := h.exec.dispatched()
		require.Len(t, dispatches, 3)
		assert.Equal(t, "unit-1", dispatches[2].Unit)
	})

	t.Run("conflict while task is running", func(t *testing.T) {
		h := newAPIHarness(t, 2)
		taskID := h.startTask(t)
		rec := h.request(t, http.MethodPost, "/api/tasks/"+taskID+"/items/0/regenerate", "", h.owner)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("item index out of range", func(t *testing.T) {
		h := newAPIHarness(t, 2)
		taskID := h.startTask(t)
		h.finishTask(t, 2)
		rec := h.request(t, http.MethodPost, "/api/tasks/"+taskID+"/items/9/regenerate", "", h.owner)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("forbidden for non-owner", func(t *testing.T) {
		h := newAPIHarness(t, 2)
		taskID := h.startTask(t)
		h.finishTask(t, 2)
		rec := h.request(t, http.MethodPost, "/api/tasks/"+taskID+"/items/0/regenerate", "", uuid.New())
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("negative index rejected", func(t *testing.T) {
		h := newAPIHarness(t, 2)
		taskID := h.startTask(t)
		h.finishTask(t, 2)
		rec := h.request(t, http.MethodPost, "/api/tasks/"+taskID+"/items/-1/regenerate", "", h.owner)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

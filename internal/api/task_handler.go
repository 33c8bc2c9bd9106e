// Package api provides HTTP handlers for the API.
package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/forgeworks/genbatch/internal/api/shared"
	"github.com/forgeworks/genbatch/internal/engine"
	"github.com/forgeworks/genbatch/internal/platform/logger"
)

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(eng *engine.Engine, log *slog.Logger) *TaskHandler {
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}

	return &TaskHandler{
		engine: eng,
		logger: log.With(slog.String("component", "task_handler")),
	}
}

// StartTask handles POST /tasks requests.
// It creates a task for the given resource and method and starts it.
func (h *TaskHandler) StartTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	requesterID, ok := getRequesterIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Missing requester identity")
		return
	}

	var req StartTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request", err)
		return
	}

	// Format is guaranteed by the uuid validate tag.
	resourceID := uuid.MustParse(req.ResourceID)

	result, err := h.engine.StartTask(r.Context(), resourceID, req.Method, requesterID, req.Params)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Info("task start accepted",
		"task_id", result.TaskID,
		"resource_id", resourceID,
		"method", req.Method)

	shared.RespondWithJSON(w, r, http.StatusCreated, StartTaskResponse{
		TaskID:            result.TaskID.String(),
		ResultContainerID: result.ResultContainerID.String(),
		TotalItems:        result.TotalItems,
		Status:            "running",
	})
}

// CancelTask handles POST /tasks/{id}/cancel requests.
// Cancelling a task that already finished is a no-op reported in the body,
// not an error.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := getRequesterIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Missing requester identity")
		return
	}

	taskID, err := getPathUUID(r, "id")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	cancelled, err := h.engine.CancelTask(r.Context(), taskID, requesterID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, CancelTaskResponse{
		TaskID:    taskID.String(),
		Cancelled: cancelled,
	})
}

// GetTask handles GET /tasks/{id} requests, returning the progress snapshot.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := getPathUUID(r, "id")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	snapshot, err := h.engine.GetTaskProgress(r.Context(), taskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, toTaskResponse(snapshot))
}

// RegenerateItem handles POST /tasks/{id}/items/{index}/regenerate requests.
func (h *TaskHandler) RegenerateItem(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	requesterID, ok := getRequesterIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Missing requester identity")
		return
	}

	taskID, err := getPathUUID(r, "id")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}
	index, err := getPathIndex(r, "index")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid item index")
		return
	}

	regenID, err := h.engine.RegenerateItem(r.Context(), taskID, index, requesterID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Info("item regeneration accepted",
		"task_id", taskID,
		"item_index", index,
		"regen_id", regenID)

	shared.RespondWithJSON(w, r, http.StatusAccepted, RegenerateItemResponse{
		TaskID:    taskID.String(),
		ItemIndex: index,
		RegenID:   regenID.String(),
	})
}

// toTaskResponse converts an engine snapshot into the API representation.
func toTaskResponse(snapshot *engine.TaskSnapshot) TaskResponse {
	task := snapshot.Task

	items := make([]ItemResponse, len(task.Items))
	for i, item := range task.Items {
		items[i] = ItemResponse{
			Index:       item.Index,
			Status:      string(item.Status),
			ResultRef:   item.ResultRef,
			RetryCount:  item.RetryCount,
			Error:       item.Error,
			CompletedAt: item.CompletedAt,
		}
	}

	var activeFor map[int]int64
	if len(snapshot.ActiveAges) > 0 {
		activeFor = make(map[int]int64, len(snapshot.ActiveAges))
		for index, age := range snapshot.ActiveAges {
			activeFor[index] = age.Milliseconds()
		}
	}

	return TaskResponse{
		ID:                task.ID.String(),
		ResourceID:        task.ResourceID.String(),
		Type:              task.Type,
		Method:            task.Method,
		Status:            string(task.Status),
		Progress:          task.Progress(),
		Items:             items,
		ResultContainerID: task.ResultContainerID.String(),
		CreatedAt:         task.CreatedAt,
		StartedAt:         task.StartedAt,
		CompletedAt:       task.CompletedAt,
		ActiveForMs:       activeFor,
	}
}

package api

import (
	"log/slog"
	"net/http"

	"github.com/forgeworks/genbatch/internal/api/shared"
	"github.com/forgeworks/genbatch/internal/events"
	"github.com/forgeworks/genbatch/internal/platform/logger"
)

// EventHandler receives completion callbacks from the execution engine and
// publishes them on the completion bus.
type EventHandler struct {
	bus    *events.Bus
	logger *slog.Logger
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(bus *events.Bus, log *slog.Logger) *EventHandler {
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for EventHandler")
	}

	return &EventHandler{
		bus:    bus,
		logger: log.With(slog.String("component", "event_handler")),
	}
}

// Completion handles POST /events/completion requests. The executor calls
// this once per finished execution; delivery is at-least-once, so downstream
// handlers are idempotent and a duplicate is a 202 like any other event.
func (h *EventHandler) Completion(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var event events.CompletionEvent
	if err := shared.DecodeJSON(r, &event); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid event body")
		return
	}

	if err := h.bus.Publish(r.Context(), &event); err != nil {
		// Handler errors mean the event was seen but could not be applied;
		// the executor will redeliver.
		log.Error("completion event processing failed", "error", err)
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Event processing failed", err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/forgeworks/genbatch/internal/api"
	apiMiddleware "github.com/forgeworks/genbatch/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes
// and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	taskHandler := api.NewTaskHandler(app.engine, app.logger)
	eventHandler := api.NewEventHandler(app.bus, app.logger)

	r.Route("/api", func(r chi.Router) {
		// Executor callback; authenticated upstream, no requester identity.
		r.Post("/events/completion", eventHandler.Completion)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/{id}", taskHandler.GetTask)

			// Mutating endpoints require the requester identity header.
			r.Group(func(r chi.Router) {
				r.Use(apiMiddleware.RequesterMiddleware)
				r.Post("/", taskHandler.StartTask)
				r.Post("/{id}/cancel", taskHandler.CancelTask)
				r.Post("/{id}/items/{index}/regenerate", taskHandler.RegenerateItem)
			})
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}

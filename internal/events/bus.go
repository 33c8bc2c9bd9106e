package events

import (
	"context"
	"log/slog"
	"sync"
)

// Bus is a process-wide publish/subscribe channel for completion events.
// The execution engine adapter publishes onto it; the orchestrator's
// completion router subscribes. Handlers are invoked synchronously in
// registration order.
type Bus struct {
	handlers []CompletionHandler
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewBus creates a new completion event bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		handlers: make([]CompletionHandler, 0),
		logger:   logger.With("component", "completion_bus"),
	}
}

// Subscribe adds a handler to receive completion events.
func (b *Bus) Subscribe(handler CompletionHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
	b.logger.Debug("registered completion handler", "handler_count", len(b.handlers))
}

// Publish delivers the event to all subscribed handlers. If a handler
// returns an error the event is still delivered to the remaining handlers
// and the first error is returned.
func (b *Bus) Publish(ctx context.Context, event *CompletionEvent) error {
	b.mu.RLock()
	handlers := make([]CompletionHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	b.logger.Debug("publishing completion event",
		"external_ref", event.ExternalRef,
		"handler_count", len(handlers))

	if len(handlers) == 0 {
		b.logger.Warn("no handlers subscribed for completion event",
			"external_ref", event.ExternalRef)
		return nil
	}

	var firstErr error
	for i, handler := range handlers {
		if err := handler.HandleCompletion(ctx, event); err != nil {
			b.logger.Error("handler failed to process completion event",
				"error", err,
				"handler_index", i,
				"external_ref", event.ExternalRef)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

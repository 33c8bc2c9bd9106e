package events

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler captures the events it receives and optionally fails.
type recordingHandler struct {
	events []*CompletionEvent
	err    error
}

func (h *recordingHandler) HandleCompletion(_ context.Context, event *CompletionEvent) error {
	h.events = append(h.events, event)
	return h.err
}

func TestBusPublish(t *testing.T) {
	t.Run("delivers to all handlers", func(t *testing.T) {
		bus := NewBus(slog.Default())
		first := &recordingHandler{}
		second := &recordingHandler{}
		bus.Subscribe(first)
		bus.Subscribe(second)

		event := &CompletionEvent{ExternalRef: "exec-1"}
		require.NoError(t, bus.Publish(context.Background(), event))

		assert.Len(t, first.events, 1)
		assert.Len(t, second.events, 1)
		assert.Same(t, event, first.events[0])
	})

	t.Run("no handlers is not an error", func(t *testing.T) {
		bus := NewBus(slog.Default())
		assert.NoError(t, bus.Publish(context.Background(), &CompletionEvent{ExternalRef: "exec-1"}))
	})

	t.Run("handler error does not stop delivery", func(t *testing.T) {
		bus := NewBus(slog.Default())
		failing := &recordingHandler{err: errors.New("handler broke")}
		healthy := &recordingHandler{}
		bus.Subscribe(failing)
		bus.Subscribe(healthy)

		err := bus.Publish(context.Background(), &CompletionEvent{ExternalRef: "exec-1"})

		assert.EqualError(t, err, "handler broke")
		assert.Len(t, healthy.events, 1, "later handlers still receive the event")
	})
}

func TestFanoutNotifier(t *testing.T) {
	t.Run("delivers to subscribers", func(t *testing.T) {
		n := NewFanoutNotifier(4, slog.Default())
		ch, cancel := n.Subscribe()
		defer cancel()

		n.Notify(context.Background(), ProgressEvent{Kind: ProgressStarted})

		event := <-ch
		assert.Equal(t, ProgressStarted, event.Kind)
	})

	t.Run("drops events for full subscriber", func(t *testing.T) {
		n := NewFanoutNotifier(1, slog.Default())
		ch, cancel := n.Subscribe()
		defer cancel()

		n.Notify(context.Background(), ProgressEvent{Kind: ProgressStarted})
		n.Notify(context.Background(), ProgressEvent{Kind: ProgressItemCompleted})

		assert.Equal(t, ProgressStarted, (<-ch).Kind)
		select {
		case extra := <-ch:
			t.Fatalf("expected second event to be dropped, got %q", extra.Kind)
		default:
		}
	})

	t.Run("unsubscribe closes channel", func(t *testing.T) {
		n := NewFanoutNotifier(1, slog.Default())
		ch, cancel := n.Subscribe()
		cancel()

		_, open := <-ch
		assert.False(t, open)

		// Notifying after unsubscribe must not panic.
		n.Notify(context.Background(), ProgressEvent{Kind: ProgressCompleted})
	})
}

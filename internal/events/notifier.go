package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// LogNotifier writes progress events to the structured log. It is the
// default notifier when no delivery transport is attached.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs progress events.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "progress_notifier")}
}

// Notify logs the progress event.
func (n *LogNotifier) Notify(_ context.Context, event ProgressEvent) {
	attrs := []any{
		"kind", string(event.Kind),
		"task_id", event.TaskID,
		"resource_id", event.ResourceID,
		"capability_type", event.CapabilityType,
		"status", string(event.Status),
		"completed", event.Progress.Completed,
		"failed", event.Progress.Failed,
		"total", event.Progress.Total,
	}
	if event.ItemIndex != nil {
		attrs = append(attrs, "item_index", *event.ItemIndex)
	}
	if event.Error != "" {
		attrs = append(attrs, "error", event.Error)
	}
	n.logger.Info("task progress", attrs...)
}

// FanoutNotifier delivers progress events to per-subscriber buffered
// channels. Delivery never blocks: a subscriber that falls behind loses
// events rather than stalling the engine.
type FanoutNotifier struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]chan ProgressEvent
	buffer int
	logger *slog.Logger
}

// NewFanoutNotifier creates a fan-out notifier whose subscriber channels
// buffer up to the given number of events.
func NewFanoutNotifier(buffer int, logger *slog.Logger) *FanoutNotifier {
	if buffer <= 0 {
		buffer = 16
	}
	return &FanoutNotifier{
		subs:   make(map[uuid.UUID]chan ProgressEvent),
		buffer: buffer,
		logger: logger.With("component", "fanout_notifier"),
	}
}

// Subscribe registers a new subscriber and returns its channel along with an
// unsubscribe function. The channel is closed on unsubscribe.
func (n *FanoutNotifier) Subscribe() (<-chan ProgressEvent, func()) {
	id := uuid.New()
	ch := make(chan ProgressEvent, n.buffer)

	n.mu.Lock()
	n.subs[id] = ch
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		if existing, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(existing)
		}
		n.mu.Unlock()
	}
	return ch, cancel
}

// Notify delivers the event to every subscriber whose buffer has room.
func (n *FanoutNotifier) Notify(_ context.Context, event ProgressEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for id, ch := range n.subs {
		select {
		case ch <- event:
		default:
			n.logger.Warn("dropping progress event for slow subscriber",
				"subscriber_id", id,
				"kind", string(event.Kind),
				"task_id", event.TaskID)
		}
	}
}

// MultiNotifier fans a progress event out to several notifiers, typically a
// LogNotifier plus a delivery transport.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier combines the given notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Notify delivers the event to each wrapped notifier in order.
func (n *MultiNotifier) Notify(ctx context.Context, event ProgressEvent) {
	for _, notifier := range n.notifiers {
		notifier.Notify(ctx, event)
	}
}

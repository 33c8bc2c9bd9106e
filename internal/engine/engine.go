// Package engine implements the bounded-concurrency task orchestration
// engine. It owns task lifecycle (creation, cancellation, finalization),
// per-task concurrency admission, bounded per-item retry, completion event
// routing and single-item regeneration. Progression is push-driven: the
// admission pass is re-invoked exactly once per item resolution, never by
// polling.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgeworks/genbatch/internal/capability"
	"github.com/forgeworks/genbatch/internal/events"
	"github.com/forgeworks/genbatch/internal/store"
)

// Dispatch is the context handed to the execution engine for one unit of
// work: the unit reference, the task's parameter overrides and the
// correlation metadata the completion event must echo back.
type Dispatch struct {
	Unit        string             `json:"unit"`
	Params      map[string]any     `json:"params,omitempty"`
	Correlation events.Correlation `json:"correlation"`
}

// ExecutionEngine is the external collaborator that actually performs units
// of work. StartExecution is an asynchronous trigger: it returns an external
// reference immediately and the result arrives later as a completion event.
// It may return an error synchronously when the capability rejects the
// dispatch outright.
type ExecutionEngine interface {
	StartExecution(ctx context.Context, executionID string, dispatch Dispatch) (string, error)

	// GetResult fetches the full persisted result payload by its reference.
	// Used as a single fallback when a completion event's inline snapshot is
	// missing.
	GetResult(ctx context.Context, resultRef string) (json.RawMessage, error)
}

// Config tunes the engine.
type Config struct {
	// ConcurrencyLimit bounds how many items of one task may be in flight at
	// once. Cross-task concurrency is unconstrained.
	ConcurrencyLimit int

	// MaxRetries is the per-item retry budget before terminal failure.
	MaxRetries int

	// RetryDelay is how long a failed item waits before re-admission.
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with the standard defaults.
func DefaultConfig() Config {
	return Config{
		ConcurrencyLimit: 2,
		MaxRetries:       3,
		RetryDelay:       2 * time.Second,
	}
}

// Engine orchestrates batch generation tasks.
type Engine struct {
	cfg       Config
	tasks     store.TaskStore
	resources store.ResourceStore
	exec      ExecutionEngine
	registry  *capability.Registry
	notifier  events.Notifier
	logger    *slog.Logger

	active *activeSet

	regenMu sync.Mutex
	regens  map[uuid.UUID]regenRequest

	timerMu sync.Mutex
	timers  map[*time.Timer]struct{}
	closed  bool
}

// New creates an Engine. Zero or negative config values fall back to the
// defaults.
func New(
	cfg Config,
	tasks store.TaskStore,
	resources store.ResourceStore,
	exec ExecutionEngine,
	registry *capability.Registry,
	notifier events.Notifier,
	logger *slog.Logger,
) *Engine {
	defaults := DefaultConfig()
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = defaults.ConcurrencyLimit
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaults.RetryDelay
	}

	return &Engine{
		cfg:       cfg,
		tasks:     tasks,
		resources: resources,
		exec:      exec,
		registry:  registry,
		notifier:  notifier,
		logger:    logger.With("component", "engine"),
		active:    newActiveSet(),
		regens:    make(map[uuid.UUID]regenRequest),
		timers:    make(map[*time.Timer]struct{}),
	}
}

// Close stops all pending retry timers. In-flight dispatches are not
// aborted; their completion events are discarded by the usual status checks.
func (e *Engine) Close() {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()

	e.closed = true
	for timer := range e.timers {
		timer.Stop()
	}
	e.timers = make(map[*time.Timer]struct{})
}

// afterRetryDelay schedules fn as a one-shot deferred call. Returns false
// when the engine is closed. The timer is deregistered when it fires so the
// registry only holds timers that are still pending.
func (e *Engine) afterRetryDelay(fn func()) bool {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()

	if e.closed {
		return false
	}

	var timer *time.Timer
	timer = time.AfterFunc(e.cfg.RetryDelay, func() {
		e.timerMu.Lock()
		delete(e.timers, timer)
		stopped := e.closed
		e.timerMu.Unlock()
		if !stopped {
			fn()
		}
	})
	e.timers[timer] = struct{}{}
	return true
}

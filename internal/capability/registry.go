// Package capability defines the registry of externally executed capabilities.
// A capability is an asynchronously executed operation identified by a string
// method key; the registry maps that key to a descriptor carrying everything
// the orchestrator needs to dispatch it and interpret its results.
package capability

import (
	"errors"
	"fmt"
	"sync"

	"github.com/forgeworks/genbatch/internal/extract"
)

// Common errors returned by the registry
var (
	// ErrMethodNotCapable is returned when a method string does not resolve
	// to a registered capability descriptor.
	ErrMethodNotCapable = errors.New("method does not resolve to a capability")

	// ErrDuplicateMethod is returned when registering a method that already exists.
	ErrDuplicateMethod = errors.New("method already registered")
)

// Descriptor describes one capability: where its work runs and how to pull a
// typed value out of whatever payload shape the provider returns.
// Polymorphism over capabilities is a lookup table of these descriptors, not
// an interface hierarchy.
type Descriptor struct {
	// Method is the registry key, e.g. "caption-v2".
	Method string

	// Type is the capability category, e.g. "caption" or "control-image".
	// At most one running task per (resource, type) pair is allowed.
	Type string

	// ExecutionID identifies the recipe the execution engine should run.
	ExecutionID string

	// Extraction is the declarative rule for pulling the result value out of
	// the execution payload.
	Extraction extract.Descriptor
}

// Registry is a concurrency-safe lookup table of capability descriptors.
type Registry struct {
	mu      sync.RWMutex
	methods map[string]Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]Descriptor)}
}

// NewDefaultRegistry creates a registry seeded with the built-in capabilities.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, d := range builtins {
		// Built-in methods are unique by construction.
		_ = r.Register(d)
	}
	return r
}

// Register adds a descriptor to the registry.
// Returns ErrDuplicateMethod if the method key is already taken.
func (r *Registry) Register(d Descriptor) error {
	if d.Method == "" {
		return errors.New("descriptor method cannot be empty")
	}
	if d.Type == "" {
		return errors.New("descriptor type cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.methods[d.Method]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateMethod, d.Method)
	}
	r.methods[d.Method] = d
	return nil
}

// Resolve looks up the descriptor for a method string.
// Returns ErrMethodNotCapable if the method is unknown.
func (r *Registry) Resolve(method string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.methods[method]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrMethodNotCapable, method)
	}
	return d, nil
}

// builtins are the capabilities every deployment knows about. Additional
// descriptors can be registered at runtime.
var builtins = []Descriptor{
	{
		Method:      "caption-v2",
		Type:        "caption",
		ExecutionID: "recipes/caption-v2",
		Extraction:  extract.Descriptor{Path: "text", ValueType: extract.ValueTypeText},
	},
	{
		Method:      "control-image-canny",
		Type:        "control-image",
		ExecutionID: "recipes/control-image-canny",
		Extraction:  extract.Descriptor{Path: "data.image_url", ValueType: extract.ValueTypeURL},
	},
	{
		Method:      "restyle-sdxl",
		Type:        "restyle",
		ExecutionID: "recipes/restyle-sdxl",
		Extraction:  extract.Descriptor{Path: "data.image_url", ValueType: extract.ValueTypeURL},
	},
}

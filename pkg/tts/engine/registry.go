package engine

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/alouette/tts/pkg/tts/platform"
)

// Constructor builds an adapter for a platform. It must not perform slow
// I/O; the factory calls IsAvailable and Initialize afterwards.
type Constructor func(p platform.Platform, caps Capabilities) (Adapter, error)

// Registry maps engine ids to constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[ID]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[ID]Constructor)}
}

// Register adds or replaces the constructor for id.
func (r *Registry) Register(id ID, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[id] = ctor
}

// Lookup returns the constructor for id.
func (r *Registry) Lookup(id ID) (Constructor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.ctors[id]
	if !ok {
		return nil, fmt.Errorf("no constructor registered for engine %q", id)
	}
	return ctor, nil
}

// IDs returns the registered engine ids, sorted.
func (r *Registry) IDs() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.ctors))
}

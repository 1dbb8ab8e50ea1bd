package comm

import "sync"

// Registry is a map from a canonical key to a lazily created, shared instance
// of T. Construction happens exactly once per key even under concurrent first
// access; every caller with the same key observes the same instance.
//
// The registry exclusively owns its entries: nothing deletes them during
// normal operation, they are released when the owning Communicator (and with
// it the registry) is dropped at the end of the training job.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries map[string]*T
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[string]*T)}
}

// GetOrCreate returns the instance registered under key, constructing it with
// factory if the key is seen for the first time. The factory runs under the
// registry lock, at most once per key; keep it cheap.
func (r *Registry[T]) GetOrCreate(key string, factory func() *T) *T {
	r.mu.RLock()
	entry, ok := r.entries[key]
	r.mu.RUnlock()
	if ok {
		return entry
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok = r.entries[key]; ok {
		// Lost the race to another creator; use its entry.
		return entry
	}
	entry = factory()
	r.entries[key] = entry
	return entry
}

// Len returns the number of registered keys.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

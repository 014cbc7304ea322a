// Package targetlayer implements the per-adapter-family opaque state
// registry: a namespaced holder keyed by a short family key (e.g. "ble",
// "zigbee") so multiple sessions of the same family share one target-layer
// state object while sessions of different families stay isolated.
//
// The source modeled this as a void** slot; in a type-safe target that is
// an aliasing hazard (§9), so here it is a family-keyed map of Any-typed
// references owned by the core. The registry never frees the values it
// holds — lifetime of each family's state is the responsibility of that
// family's adapter Exit capability.
package targetlayer

import "sync"

// Registry maps a family key to an opaque per-family state value.
//
// Every Get, Set, and Families call takes the mutex below, so the
// registry is safe to use from any goroutine.
type Registry struct {
	mu    sync.Mutex
	state map[string]any
}

// New creates an empty target-layer context registry.
func New() *Registry {
	return &Registry{state: make(map[string]any)}
}

// Get returns the family's current state and whether one was set.
func (r *Registry) Get(family string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.state[family]
	return v, ok
}

// Set installs state as the new value for family, replacing any previous
// one in place (mirroring the source's pointer-to-pointer get() that let a
// caller both read the current state and install a new one).
func (r *Registry) Set(family string, state any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state[family] = state
}

// Families returns the set of families currently holding state, for
// introspection.
func (r *Registry) Families() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.state))
	for k := range r.state {
		out = append(out, k)
	}
	return out
}

// Package mount tracks the scan-target surfaces the controller may attach
// to. A browser surface exists while at least one feed client is connected.
package mount

import "sync"

// Registry is a reference-counted set of mount ids.
type Registry struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{counts: make(map[string]int)}
}

// Acquire registers one reference to id. The returned release func drops
// it and is safe to call more than once.
func (r *Registry) Acquire(id string) (release func()) {
	r.mu.Lock()
	r.counts[id]++
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.counts[id] <= 1 {
				delete(r.counts, id)
				return
			}
			r.counts[id]--
		})
	}
}

// Exists reports whether id has at least one reference.
func (r *Registry) Exists(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[id] > 0
}

// Count returns the number of references to id.
func (r *Registry) Count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[id]
}

// Static is a fixed set of mounts that always exist, used by headless
// scanning.
type Static []string

// Exists reports whether id is in the set.
func (s Static) Exists(id string) bool {
	for _, m := range s {
		if m == id {
			return true
		}
	}
	return false
}

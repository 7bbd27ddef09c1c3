package signaling

import (
	"sort"
	"sync"
)

// Sink is the outbound half of a connected client. Enqueue must not
// block; implementations drop and return ErrSendQueueFull when the
// client cannot keep up.
type Sink interface {
	Enqueue(data []byte) error
}

// Registry maps client IDs to their outbound sinks. All methods are
// safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	clients map[string]Sink
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Sink)}
}

// Register binds id to sink. Fails with ErrDuplicateID if the id is
// taken; the existing client keeps its registration.
func (r *Registry) Register(id string, sink Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[id]; ok {
		return ErrDuplicateID
	}
	r.clients[id] = sink
	return nil
}

// Unregister removes id. Removing an absent id is a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, id)
}

func (r *Registry) Lookup(id string) (Sink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sink, ok := r.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sink, nil
}

// IDs returns the connected client IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of the current id-to-sink table.
func (r *Registry) Snapshot() map[string]Sink {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Sink, len(r.clients))
	for id, sink := range r.clients {
		out[id] = sink
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

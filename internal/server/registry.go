package server

import (
	"cmp"
	"slices"
	"sync"
)

// Registry is the set of live connections keyed by id. Entries are added on
// accept and removed by the connection's own inbound loop; removal closes the
// connection's outbound queue.
type Registry struct {
	mu    sync.RWMutex
	conns map[uint64]*Connection
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[uint64]*Connection)}
}

// Register adds c with no claimed name.
func (r *Registry) Register(c *Connection) {
	r.mu.Lock()
	r.conns[c.id] = c
	r.mu.Unlock()
}

// SetName records name as the claimed name for id, replacing any earlier
// claim. It reports false when id is not registered.
func (r *Registry) SetName(id uint64, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return false
	}
	c.setName(name)
	return true
}

// Remove deletes id and closes its outbound queue. Removing an absent id is
// a no-op; the return value reports whether this call did the removal.
func (r *Registry) Remove(id uint64) bool {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	r.mu.Unlock()

	if ok {
		c.closeQueue()
	}
	return ok
}

// Get returns the connection registered under id.
func (r *Registry) Get(id uint64) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// Others returns every live connection except id, ordered by id. The slice is
// a point-in-time copy; a connection in it may be removed concurrently, in
// which case enqueueing to it is a harmless no-op.
func (r *Registry) Others(id uint64) []*Connection {
	r.mu.RLock()
	out := make([]*Connection, 0, len(r.conns))
	for cid, c := range r.conns {
		if cid != id {
			out = append(out, c)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(out, byID)
	return out
}

// All returns every live connection ordered by id.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, byID)
	return out
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func byID(a, b *Connection) int { return cmp.Compare(a.id, b.id) }

package realtime

import (
	"sync"
)

// Registry maps users to their live connection. It is process-wide and
// transient: empty at process start, entries added on connect and removed on
// disconnect. It is a delivery hint, never a source of truth.
type Registry struct {
	mu    sync.RWMutex
	conns map[int64]Conn
}

// NewRegistry creates an empty connection registry
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[int64]Conn),
	}
}

// Register associates a connection with a user, replacing and closing any
// previous connection for the same user.
func (r *Registry) Register(userID int64, conn Conn) {
	r.mu.Lock()
	prev := r.conns[userID]
	r.conns[userID] = conn
	r.mu.Unlock()

	if prev != nil && prev != conn {
		prev.Close()
	}
}

// Unregister removes a user's connection, but only if it is still the given
// handle. A stale disconnect must not evict a newer connection.
func (r *Registry) Unregister(userID int64, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[userID] == conn {
		delete(r.conns, userID)
	}
}

// Get returns the user's live connection, or nil if none is registered
func (r *Registry) Get(userID int64) Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[userID]
}

// Len returns the number of live connections
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

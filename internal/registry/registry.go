// Package registry tracks the live connections owned by this process:
// which logical user owns which connections, and when each connection
// was last active. A user is online iff their connection set is
// non-empty.
//
// The registry is the single shared mutable structure in the relay. All
// operations are synchronous map mutations under one mutex; nothing
// here performs I/O, so callers can rely on first/last transition
// results being consistent with the map state they observed.
package registry

import (
	"sync"
	"time"
)

// Sender abstracts the transport side of a connection so the registry
// and everything above it can be exercised without a live socket.
type Sender interface {
	// Send writes one serialized event frame.
	Send(data []byte) error
	// Ping writes a transport-level heartbeat probe.
	Ping() error
	// Close terminates the transport with a close code and reason.
	Close(code int, reason string) error
}

// Conn is the registry's bookkeeping for one live connection.
type Conn struct {
	ID       string
	UserID   string
	UserName string
	Sender   Sender

	mu           sync.Mutex
	lastActivity time.Time
}

// Touch records activity on the connection.
func (c *Conn) Touch(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.lastActivity) {
		c.lastActivity = t
	}
}

// LastActivity returns the time of the most recent activity.
func (c *Conn) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Registry maps users to their live connections. Constructed once at
// process start and passed to every component that needs it.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]*Conn
	byConn map[string]*Conn
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byUser: make(map[string]map[string]*Conn),
		byConn: make(map[string]*Conn),
	}
}

// Add registers a connection and reports whether it is the user's first
// live connection (an offline -> online transition).
func (r *Registry) Add(conn *Conn) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.byUser[conn.UserID]
	if !ok {
		conns = make(map[string]*Conn)
		r.byUser[conn.UserID] = conns
	}
	first = len(conns) == 0
	conns[conn.ID] = conn
	r.byConn[conn.ID] = conn
	return first
}

// Remove deregisters a connection and reports whether it was the user's
// last live connection (an online -> offline transition). Removing an
// unknown connection is a no-op.
func (r *Registry) Remove(connID string) (conn *Conn, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byConn[connID]
	if !ok {
		return nil, false
	}
	delete(r.byConn, connID)

	conns := r.byUser[conn.UserID]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.byUser, conn.UserID)
		return conn, true
	}
	return conn, false
}

// Get returns the connection with the given ID, or nil.
func (r *Registry) Get(connID string) *Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byConn[connID]
}

// ConnectionsFor returns the live connections of a user. The slice is a
// snapshot; the caller may iterate it without holding any lock.
func (r *Registry) ConnectionsFor(userID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byUser[userID]
	if len(conns) == 0 {
		return nil
	}
	out := make([]*Conn, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// IsOnline reports whether a user has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// Snapshot returns every live connection. Used by the liveness monitor
// for heartbeat probes and idle eviction.
func (r *Registry) Snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Conn, 0, len(r.byConn))
	for _, c := range r.byConn {
		out = append(out, c)
	}
	return out
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

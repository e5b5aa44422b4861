package presence

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Conn is the registry's view of a live connection: enough to check who it
// belongs to and to enqueue an outbound frame during fan-out.
type Conn interface {
	// UserID returns the registered user id, or ok=false while the
	// connection is still unregistered.
	UserID() (int64, bool)
	// Enqueue offers a frame to the connection's send buffer. It must not
	// block; a full buffer returns false and the frame is dropped.
	Enqueue(frame []byte) bool
}

var liveConnections metric.Int64UpDownCounter

func init() {
	meter := otel.Meter("presence-registry")
	liveConnections, _ = meter.Int64UpDownCounter("relay.connections", metric.WithUnit("connections"))
}

// Registry is the process-wide map of live connections. Connection tasks
// attach on accept and detach on close; registration promotes a connection
// into the user index used for presence lookups and fan-out.
type Registry struct {
	mu    sync.RWMutex
	conns map[Conn]struct{}
	// byUser memoizes user id -> connections for O(1) presence checks.
	// Only registered connections appear here.
	byUser map[int64]map[Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[Conn]struct{}),
		byUser: make(map[int64]map[Conn]struct{}),
	}
}

// Attach inserts a fresh, unregistered connection.
func (r *Registry) Attach(c Conn) {
	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()
	liveConnections.Add(context.Background(), 1)
}

// Promote adds a connection to the user index once registration succeeds.
func (r *Registry) Promote(c Conn, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c]; !ok {
		// Lost the race with a disconnect; do not resurrect the entry.
		return
	}
	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[Conn]struct{})
		r.byUser[userID] = set
	}
	set[c] = struct{}{}
}

// Detach removes a connection on disconnect. Idempotent.
func (r *Registry) Detach(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c]; !ok {
		return
	}
	delete(r.conns, c)
	if uid, ok := c.UserID(); ok {
		if set, ok := r.byUser[uid]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(r.byUser, uid)
			}
		}
	}
	liveConnections.Add(context.Background(), -1)
}

// IsUserOnline reports whether any registered connection belongs to the user.
func (r *Registry) IsUserOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// FirstConnOf returns one live connection of the user, if any. Fan-out sends
// to a single connection per user.
func (r *Registry) FirstConnOf(userID int64) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.byUser[userID] {
		return c, true
	}
	return nil, false
}

// Snapshot returns the current connections. The slice is a momentary copy;
// connections may come and go while the caller iterates.
func (r *Registry) Snapshot() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

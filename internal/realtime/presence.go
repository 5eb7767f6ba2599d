package realtime

import "sync"

// Conn is one live client connection able to receive named events.
type Conn interface {
	Send(event string, payload any) error
	Close()
}

// Registry tracks which users currently hold a live connection. Each
// user has at most one: a newer connection replaces and closes the
// older one, so a reconnecting tab wins over a stale socket.
type Registry struct {
	mu    sync.RWMutex
	conns map[int64]Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[int64]Conn)}
}

func (r *Registry) Register(userID int64, c Conn) {
	r.mu.Lock()
	prev := r.conns[userID]
	r.conns[userID] = c
	r.mu.Unlock()
	if prev != nil && prev != c {
		prev.Close()
	}
}

// Unregister removes the connection only if it is still the current one
// for that user; a replaced connection disconnecting late must not kick
// out its successor.
func (r *Registry) Unregister(userID int64, c Conn) {
	r.mu.Lock()
	if r.conns[userID] == c {
		delete(r.conns, userID)
	}
	r.mu.Unlock()
}

// SendToUser delivers to the user's live connection, if any. Offline
// users are skipped silently.
func (r *Registry) SendToUser(userID int64, event string, payload any) {
	r.mu.RLock()
	c := r.conns[userID]
	r.mu.RUnlock()
	if c == nil {
		return
	}
	_ = c.Send(event, payload)
}

func (r *Registry) Online(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}

func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

type frame struct {
	event string
	data  []byte
}

// sseConn adapts one event-stream response into a Conn. Sends are
// buffered; a slow reader drops events rather than stalling the hub.
type sseConn struct {
	ch     chan frame
	closed chan struct{}
	once   sync.Once
}

func newSSEConn() *sseConn {
	return &sseConn{
		ch:     make(chan frame, 256),
		closed: make(chan struct{}),
	}
}

func (c *sseConn) Send(event string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	select {
	case <-c.closed:
		return fmt.Errorf("send on closed connection")
	case c.ch <- frame{event: event, data: b}:
		return nil
	default:
		// Drop if the client is too slow; prevents global backpressure.
		return nil
	}
}

func (c *sseConn) Close() {
	c.once.Do(func() { close(c.closed) })
}

// ServeSSE upgrades the response to a server-sent event stream and
// registers it as the user's live connection until the client leaves.
func ServeSSE(w http.ResponseWriter, r *http.Request, reg *Registry, userID int64) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	conn := newSSEConn()
	reg.Register(userID, conn)
	defer reg.Unregister(userID, conn)
	defer conn.Close()

	// Initial ping so clients know the stream is live.
	_, _ = fmt.Fprintf(w, "data: %s\n\n", `{"type":"connected"}`)
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.closed:
			return
		case <-keepalive.C:
			// Comment keepalive.
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case f := <-conn.ch:
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.event, string(f.data))
			flusher.Flush()
		}
	}
}

package notify

import (
	"sync"
	"time"
)

// Hub holds one Center per cart session. Centers are created on first use
// and dropped once their last toast is gone.
type Hub struct {
	ttl time.Duration

	mu      sync.Mutex
	centers map[string]*Center
	closed  bool
}

// NewHub creates a Hub whose centers expire toasts after ttl.
func NewHub(ttl time.Duration) *Hub {
	return &Hub{
		ttl:     ttl,
		centers: make(map[string]*Center),
	}
}

// Show adds a toast to the session's center and returns its id. It returns
// an empty id once the hub is closed.
func (h *Hub) Show(session, message string, severity Severity) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ""
	}
	c, ok := h.centers[session]
	if !ok {
		c = NewCenter(h.ttl)
		c.onEmpty = func() { h.drop(session, c) }
		h.centers[session] = c
	}
	return c.Show(message, severity)
}

// Dismiss removes a toast of the session early.
func (h *Hub) Dismiss(session, id string) bool {
	h.mu.Lock()
	c, ok := h.centers[session]
	h.mu.Unlock()
	if !ok {
		return false
	}
	return c.Dismiss(id)
}

// List returns the visible toasts of the session.
func (h *Hub) List(session string) []Toast {
	h.mu.Lock()
	c, ok := h.centers[session]
	h.mu.Unlock()
	if !ok {
		return []Toast{}
	}
	return c.List()
}

// Sessions returns the number of sessions with visible toasts.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.centers)
}

// Close stops every center. Later calls to Show are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for session, c := range h.centers {
		c.Close()
		delete(h.centers, session)
	}
}

// drop removes c when it is still the session's center and has no toasts.
// Lock order is hub then center.
func (h *Hub) drop(session string, c *Center) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.centers[session] != c || c.Len() > 0 {
		return
	}
	c.Close()
	delete(h.centers, session)
}

// Package notify keeps short-lived user notifications (toasts) that dismiss
// themselves after a fixed delay.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long a toast stays visible unless dismissed earlier.
const DefaultTTL = 3 * time.Second

// Severity tags a toast for presentation.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Toast is a single transient message.
type Toast struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"createdAt"`
}

// Center is one toast queue. Toasts are kept in insertion order and are
// never deduplicated.
type Center struct {
	ttl     time.Duration
	onEmpty func()

	mu     sync.Mutex
	toasts []Toast
	timers map[string]*time.Timer
	closed bool
}

// NewCenter creates a Center whose toasts expire after ttl. A non-positive
// ttl selects DefaultTTL.
func NewCenter(ttl time.Duration) *Center {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Center{
		ttl:    ttl,
		timers: make(map[string]*time.Timer),
	}
}

// Show enqueues a toast, schedules its removal and returns its id.
// It returns an empty id once the center is closed.
func (c *Center) Show(message string, severity Severity) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ""
	}

	id := uuid.NewString()
	c.toasts = append(c.toasts, Toast{
		ID:        id,
		Message:   message,
		Severity:  severity,
		CreatedAt: time.Now(),
	})
	c.timers[id] = time.AfterFunc(c.ttl, func() { c.expire(id) })
	return id
}

// Dismiss removes a toast before its timer fires. It reports whether the
// toast was still present.
func (c *Center) Dismiss(id string) bool {
	removed, empty := c.remove(id)
	if removed && empty && c.onEmpty != nil {
		c.onEmpty()
	}
	return removed
}

// List returns a snapshot of the visible toasts in insertion order.
func (c *Center) List() []Toast {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Toast, len(c.toasts))
	copy(out, c.toasts)
	return out
}

// Len returns the number of visible toasts.
func (c *Center) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.toasts)
}

// Close stops all pending timers and drops every toast.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	c.toasts = nil
	c.closed = true
}

func (c *Center) expire(id string) {
	removed, empty := c.remove(id)
	// onEmpty takes the hub lock, so it runs without c.mu held.
	if removed && empty && c.onEmpty != nil {
		c.onEmpty()
	}
}

func (c *Center) remove(id string) (removed, empty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
	for i, toast := range c.toasts {
		if toast.ID == id {
			c.toasts = append(c.toasts[:i], c.toasts[i+1:]...)
			return true, len(c.toasts) == 0
		}
	}
	return false, len(c.toasts) == 0
}

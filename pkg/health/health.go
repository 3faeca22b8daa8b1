// Package health serves liveness and readiness probes for the storefront.
//
// Every registered probe is polled in the background. A probe flips to
// failing only after FailureThreshold consecutive errors and back to passing
// after SuccessThreshold consecutive successes, so one slow ping does not
// pull the pod out of rotation.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc reports the state of one dependency. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects which endpoint a probe contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

// Thresholds used for every probe.
const (
	FailureThreshold = 3
	SuccessThreshold = 1
)

type probe struct {
	name    string
	kind    Kind
	timeout time.Duration
	check   CheckFunc

	passing atomic.Bool
	lastErr atomic.Value // string

	// Owned by the polling goroutine.
	fails, oks int
}

func (p *probe) poll(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.check(ctx); err != nil {
		p.lastErr.Store(err.Error())
		p.oks = 0
		p.fails++
		if p.fails >= FailureThreshold {
			p.passing.Store(false)
		}
		return
	}
	p.lastErr.Store("")
	p.fails = 0
	p.oks++
	if p.oks >= SuccessThreshold {
		p.passing.Store(true)
	}
}

func (p *probe) failure() string {
	if msg, _ := p.lastErr.Load().(string); msg != "" {
		return msg
	}
	return "check is unhealthy"
}

// Health aggregates probes and the manual readiness switch.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probe
	stop   context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Health that reports not-ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// Add registers a probe. Probes start out passing.
func (h *Health) Add(kind Kind, name string, timeout time.Duration, check CheckFunc) {
	p := &probe{name: name, kind: kind, timeout: timeout, check: check}
	p.passing.Store(true)

	h.mu.Lock()
	h.probes = append(h.probes, p)
	h.mu.Unlock()
}

// AddLivenessCheck registers a probe served by /livez.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.Add(Liveness, name, timeout, check)
}

// AddReadinessCheck registers a probe served by /readyz.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.Add(Readiness, name, timeout, check)
}

// Start polls every registered probe at interval until Stop or ctx is done.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	if h.stop != nil {
		h.mu.Unlock()
		cancel()
		return
	}
	h.stop = cancel
	probes := append([]*probe(nil), h.probes...)
	h.mu.Unlock()

	for _, p := range probes {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			p.poll(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					p.poll(ctx)
				}
			}
		}()
	}
}

// Stop cancels polling and waits for the pollers to exit.
func (h *Health) Stop() {
	h.mu.Lock()
	stop := h.stop
	h.stop = nil
	h.mu.Unlock()

	if stop != nil {
		stop()
	}
	h.wg.Wait()
}

// SetReady flips the manual readiness switch. The server sets it once
// dependencies are wired and clears it when shutdown begins.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the switch is on and every readiness probe passes.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

func (h *Health) failures(kind Kind) map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]string)
	for _, p := range h.probes {
		if p.kind == kind && !p.passing.Load() {
			out[p.name] = p.failure()
		}
	}
	return out
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, h.failures(Liveness))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(Readiness)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeStatus(w, failures)
}

// writeStatus renders {"status":"ok"} or {"status":"unhealthy","checks":{...}}.
func writeStatus(w http.ResponseWriter, failures map[string]string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	code := http.StatusOK
	if len(failures) == 0 {
		e.Str("ok")
	} else {
		code = http.StatusServiceUnavailable
		e.Str("unhealthy")
		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		sort.Strings(names)

		e.FieldStart("checks")
		e.ObjStart()
		for _, name := range names {
			e.FieldStart(name)
			e.Str(failures[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

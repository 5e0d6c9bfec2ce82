package poll

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Handle is the cancellation flag for one poll loop. There is no abort of
// the in-flight network request; cancellation only suppresses the resulting
// state update.
type Handle struct {
	cancelled atomic.Bool
}

func NewHandle() *Handle {
	return &Handle{}
}

func (h *Handle) Cancel() {
	h.cancelled.Store(true)
}

func (h *Handle) Cancelled() bool {
	return h.cancelled.Load()
}

// Registry enforces single-flight polling per job key: beginning a poll for
// a key cancels whatever loop was previously active for it.
type Registry struct {
	mu     sync.Mutex
	active map[string]*Handle
}

func NewRegistry() *Registry {
	return &Registry{active: make(map[string]*Handle)}
}

// Begin cancels the previous handle for key, if any, and installs a fresh
// one.
func (r *Registry) Begin(key string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.active[key]; ok {
		prev.Cancel()
	}
	h := NewHandle()
	r.active[key] = h
	return h
}

// Finish removes the handle for key if it is still the current one.
func (r *Registry) Finish(key string, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.active[key]; ok && current == h {
		delete(r.active, key)
	}
}

// Active reports whether a poll loop is currently registered for key.
func (r *Registry) Active(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[key]
	return ok
}

// CancelPrefix flips every active handle whose key starts with prefix;
// used when a proposal is deleted while its jobs are still polling.
func (r *Registry) CancelPrefix(prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, h := range r.active {
		if strings.HasPrefix(key, prefix) {
			h.Cancel()
			delete(r.active, key)
		}
	}
}

// CancelAll flips every active handle; used on shutdown so teardown never
// races a late state update.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, h := range r.active {
		h.Cancel()
		delete(r.active, key)
	}
}

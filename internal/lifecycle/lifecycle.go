// Package lifecycle runs callbacks once the application has finished
// initializing.
package lifecycle

import "sync"

// Hooks collects init callbacks.
type Hooks struct {
	mu      sync.Mutex
	done    bool
	pending []func()
}

// OnInit registers fn to run on Init. After Init has run, fn runs immediately.
func (h *Hooks) OnInit(fn func()) {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		fn()
		return
	}
	h.pending = append(h.pending, fn)
	h.mu.Unlock()
}

// Init runs the registered callbacks in registration order. Only the first
// call has any effect.
func (h *Hooks) Init() {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	h.done = true
	fns := h.pending
	h.pending = nil
	h.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

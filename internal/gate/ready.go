package gate

import (
	"context"
	"sync"
	"time"
)

// Ready is a level-triggered flag. Once granted it stays granted until
// Revoke, and every TryAcquire succeeds without clearing it.
type Ready struct {
	mu  sync.Mutex
	set bool
	ch  chan struct{} // closed while set
}

// NewReady returns a cleared ready flag.
func NewReady() *Ready {
	return &Ready{ch: make(chan struct{})}
}

func (r *Ready) Grant() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.set {
		return false
	}
	r.set = true
	close(r.ch)
	return true
}

// Revoke clears the flag. It reports whether the value changed.
func (r *Ready) Revoke() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.set {
		return false
	}
	r.set = false
	r.ch = make(chan struct{})
	return true
}

func (r *Ready) TryAcquire(ctx context.Context, timeout time.Duration) bool {
	r.mu.Lock()
	set, ch := r.set, r.ch
	r.mu.Unlock()
	if set {
		return true
	}
	return wait(ctx, ch, timeout)
}

func (r *Ready) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.set {
		return Granted
	}
	return Clear
}

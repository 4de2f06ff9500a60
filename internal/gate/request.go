package gate

import (
	"context"
	"time"
)

// Request is a single-slot request queue. Any number of grants before the
// next acquire collapse into one permit.
type Request struct {
	slot chan struct{}
}

// NewRequest returns a cleared request gate.
func NewRequest() *Request {
	return &Request{slot: make(chan struct{}, 1)}
}

func (r *Request) Grant() bool {
	select {
	case r.slot <- struct{}{}:
		return true
	default:
		return false
	}
}

// TryAcquire consumes the pending permit, waiting up to timeout for one.
func (r *Request) TryAcquire(ctx context.Context, timeout time.Duration) bool {
	select {
	case <-r.slot:
		return true
	default:
	}
	return wait(ctx, r.slot, timeout)
}

func (r *Request) State() State {
	if len(r.slot) == 1 {
		return Granted
	}
	return Clear
}

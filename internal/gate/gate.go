// Package gate implements the binary permits used to signal between the
// network dispatch task and the capture task.
//
// A gate holds a value in {0,1}. Granting an already granted gate is a no-op,
// so signals coalesce instead of queueing. Two flavours exist:
//
//   - Ready is level-triggered: acquiring observes the level and leaves it set.
//   - Request is edge-triggered: acquiring consumes the single pending permit.
package gate

import (
	"context"
	"time"
)

// State is the value of a gate.
type State uint8

const (
	Clear State = iota
	Granted
)

func (s State) String() string {
	if s == Granted {
		return "granted"
	}
	return "clear"
}

// Gate is a binary, non-queuing permit.
type Gate interface {
	// Grant sets the gate. It reports whether the value changed; false means
	// the grant coalesced with one already pending.
	Grant() bool
	// TryAcquire waits up to timeout for the gate to be granted. It never
	// blocks longer than timeout and gives up early when ctx is done.
	TryAcquire(ctx context.Context, timeout time.Duration) bool
	// State returns the current value.
	State() State
}

// Value returns the gate value as 0 or 1.
func Value(g Gate) int {
	if g.State() == Granted {
		return 1
	}
	return 0
}

// wait blocks on ch until it fires, the timeout elapses or ctx is done.
func wait(ctx context.Context, ch <-chan struct{}, timeout time.Duration) bool {
	if timeout <= 0 {
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

var (
	_ Gate = (*Request)(nil)
	_ Gate = (*Ready)(nil)
)

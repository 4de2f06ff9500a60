package capture

import "go.uber.org/atomic"

// OverrideState is the state of a ForceOverride.
type OverrideState int32

const (
	OverrideClear OverrideState = iota
	OverrideArmed
	OverrideConsumed
)

func (s OverrideState) String() string {
	switch s {
	case OverrideArmed:
		return "armed"
	case OverrideConsumed:
		return "consumed"
	default:
		return "clear"
	}
}

// Override forces one capture without a network trigger. Arming is
// idempotent and each arming is consumed at most once.
type Override struct {
	state atomic.Int32
}

// NewOverride returns a cleared override.
func NewOverride() *Override { return &Override{} }

// Arm arms the override. It reports false if it was already armed.
func (o *Override) Arm() bool {
	return OverrideState(o.state.Swap(int32(OverrideArmed))) != OverrideArmed
}

// Consume disarms an armed override and reports whether it did.
func (o *Override) Consume() bool {
	return o.state.CompareAndSwap(int32(OverrideArmed), int32(OverrideConsumed))
}

// Armed reports whether a consume would succeed.
func (o *Override) Armed() bool {
	return o.State() == OverrideArmed
}

func (o *Override) State() OverrideState {
	return OverrideState(o.state.Load())
}

// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors shared across packages. Callers wrap them with context and
// match with errors.Is.
var (
	// Packet decoding errors
	ErrPacketTooShort = errors.New("satcam: packet too short")
	ErrPacketTooLarge = errors.New("satcam: packet too large")

	// CSP-over-CAN reassembly errors
	ErrReassemblyTimeout  = errors.New("satcam: fragment reassembly timeout")
	ErrReassemblyOrdering = errors.New("satcam: fragment out of order")

	// Network stack errors
	ErrQueueFull       = errors.New("satcam: inbound queue full")
	ErrInterfaceClosed = errors.New("satcam: interface closed")

	// Image pipeline errors
	ErrEncodeFailed = errors.New("satcam: image encode failed")
	ErrNotAligned   = errors.New("satcam: bitstream not byte aligned")

	// Configuration errors
	ErrConfigInvalid = errors.New("satcam: invalid configuration")

	// Daemon errors
	ErrDaemonNotRunning = errors.New("satcam: daemon not running")
)

package core

import (
	"errors"
	"fmt"
	"testing"

	"go.uber.org/multierr"
)

// Test sentinel errors
func TestSentinelErrors(t *testing.T) {
	t.Run("ErrorMessages", func(t *testing.T) {
		tests := []struct {
			err     error
			message string
		}{
			{ErrPacketTooShort, "satcam: packet too short"},
			{ErrPacketTooLarge, "satcam: packet too large"},
			{ErrReassemblyTimeout, "satcam: fragment reassembly timeout"},
			{ErrReassemblyOrdering, "satcam: fragment out of order"},
			{ErrQueueFull, "satcam: inbound queue full"},
			{ErrInterfaceClosed, "satcam: interface closed"},
			{ErrEncodeFailed, "satcam: image encode failed"},
			{ErrNotAligned, "satcam: bitstream not byte aligned"},
			{ErrConfigInvalid, "satcam: invalid configuration"},
			{ErrDaemonNotRunning, "satcam: daemon not running"},
		}

		for _, tt := range tests {
			if tt.err.Error() != tt.message {
				t.Errorf("expected error message %q, got %q", tt.message, tt.err.Error())
			}
		}
	})

	t.Run("ErrorWrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("fragment 3 of session 1: %w", ErrReassemblyOrdering)
		if !errors.Is(wrapped, ErrReassemblyOrdering) {
			t.Error("errors.Is failed for wrapped error")
		}
		if errors.Is(wrapped, ErrReassemblyTimeout) {
			t.Error("wrapped error matched the wrong sentinel")
		}
	})

	t.Run("Aggregated", func(t *testing.T) {
		// Shutdown collects one error per component
		err := multierr.Combine(nil, ErrInterfaceClosed, fmt.Errorf("remove pid file: %w", ErrDaemonNotRunning))
		if !errors.Is(err, ErrInterfaceClosed) || !errors.Is(err, ErrDaemonNotRunning) {
			t.Errorf("aggregated error lost a sentinel: %v", err)
		}
		if n := len(multierr.Errors(err)); n != 2 {
			t.Errorf("expected 2 errors, got %d", n)
		}
	})
}

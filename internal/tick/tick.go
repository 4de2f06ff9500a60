// Package tick provides the scheduler tick counter used for capture timing.
package tick

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Tick is a free-running 32-bit tick count. Differences between two ticks
// are wrap-safe as long as the interval is shorter than one full wrap.
type Tick uint32

// Sub returns the number of ticks from earlier to t.
func (t Tick) Sub(earlier Tick) Tick {
	return t - earlier
}

// Source converts clock time into ticks of a fixed period.
type Source struct {
	clk    clock.Clock
	epoch  time.Time
	period time.Duration
}

// NewSource returns a tick source counting from the current time of clk.
// A non-positive period defaults to one millisecond.
func NewSource(clk clock.Clock, period time.Duration) *Source {
	if clk == nil {
		clk = clock.New()
	}
	if period <= 0 {
		period = time.Millisecond
	}
	return &Source{clk: clk, epoch: clk.Now(), period: period}
}

// Now returns the current tick.
func (s *Source) Now() Tick {
	return Tick(uint64(s.clk.Since(s.epoch) / s.period))
}

// Millis converts a tick count to milliseconds.
func (s *Source) Millis(t Tick) int64 {
	return int64(time.Duration(t) * s.period / time.Millisecond)
}

// Duration converts a tick count to a time.Duration.
func (s *Source) Duration(t Tick) time.Duration {
	return time.Duration(t) * s.period
}

// Clock returns the underlying clock.
func (s *Source) Clock() clock.Clock {
	return s.clk
}

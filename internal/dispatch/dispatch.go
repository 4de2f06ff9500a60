// Package dispatch implements the network dispatch task: it drains at most
// one inbound packet per period and routes it by message kind.
package dispatch

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"firestige.xyz/satcam/internal/csp"
	"firestige.xyz/satcam/internal/gate"
	"firestige.xyz/satcam/internal/log"
	"firestige.xyz/satcam/internal/metrics"
)

// PacketSource yields inbound packets.
type PacketSource interface {
	// Poll waits up to timeout for a packet. Absence is not an error.
	Poll(ctx context.Context, timeout time.Duration) (*csp.Packet, bool)
}

// ServiceHandler answers requests on the reserved service ports. It owns
// its errors.
type ServiceHandler interface {
	Handle(ctx context.Context, p *csp.Packet)
}

// Options configures a Dispatcher.
type Options struct {
	Source      PacketSource
	Services    ServiceHandler
	Capture     gate.Gate
	Period      time.Duration
	PollTimeout time.Duration
	Clock       clock.Clock
}

// Dispatcher is the network dispatch task.
type Dispatcher struct {
	opts   Options
	logger log.Logger
}

// New creates a dispatcher.
func New(opts Options) *Dispatcher {
	if opts.Period <= 0 {
		opts.Period = time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Dispatcher{
		opts:   opts,
		logger: log.GetLogger().WithField("task", "dispatch"),
	}
}

// Run executes a cycle every period until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.WithField("period", d.opts.Period).Info("network dispatcher started")
	defer d.logger.Info("network dispatcher stopped")

	t := d.opts.Clock.Ticker(d.opts.Period)
	defer t.Stop()
	for {
		d.Step(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Step polls for one packet and routes it. It returns the decoded message,
// or nil when nothing arrived.
func (d *Dispatcher) Step(ctx context.Context) csp.Message {
	p, ok := d.opts.Source.Poll(ctx, d.opts.PollTimeout)
	if !ok {
		return nil
	}

	msg := csp.Classify(p)
	metrics.PacketsReceivedTotal.WithLabelValues(msg.Kind().String()).Inc()

	switch m := msg.(type) {
	case csp.ServiceRequest:
		if d.opts.Services != nil {
			d.opts.Services.Handle(ctx, m.Packet())
		}
	case csp.CaptureTrigger:
		effect := "granted"
		if !d.opts.Capture.Grant() {
			effect = "coalesced"
		}
		metrics.CaptureGateGrantsTotal.WithLabelValues(effect, "network").Inc()
		d.logger.WithField("from", p.Source).Infof("capture trigger %s", effect)
	default:
		d.logger.WithField("packet", p.String()).Debug("ignore packet")
	}
	return msg
}

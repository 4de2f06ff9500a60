package netstack

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	"firestige.xyz/satcam/internal/core"
	"firestige.xyz/satcam/internal/csp"
	"firestige.xyz/satcam/internal/log"
	"firestige.xyz/satcam/internal/metrics"
)

// DefaultQueueSize is the inbound queue depth used when none is configured.
const DefaultQueueSize = 16

// Options configures a Stack.
type Options struct {
	Address   uint16
	QueueSize int
	// Recorder, when set, receives every packet accepted into the queue.
	Recorder *Recorder
	Clock    clock.Clock
}

// Stack owns one interface. Its receive loop keeps the packets addressed
// to this node in a bounded queue; the oldest packets win when it fills.
type Stack struct {
	iface    Interface
	addr     uint16
	queue    chan *csp.Packet
	recorder *Recorder
	clk      clock.Clock
	logger   log.Logger
}

// New creates a stack on iface.
func New(iface Interface, opts Options) *Stack {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Stack{
		iface:    iface,
		addr:     opts.Address & csp.MaxAddress,
		queue:    make(chan *csp.Packet, opts.QueueSize),
		recorder: opts.Recorder,
		clk:      opts.Clock,
		logger:   log.GetLogger().WithField("iface", iface.Name()),
	}
}

// Address returns the local CSP address.
func (s *Stack) Address() uint16 { return s.addr }

// FreeSlots returns the number of free inbound queue entries.
func (s *Stack) FreeSlots() int { return cap(s.queue) - len(s.queue) }

// Run receives until ctx is done or the interface closes.
func (s *Stack) Run(ctx context.Context) error {
	s.logger.WithField("address", s.addr).Info("csp stack started")
	defer s.logger.Info("csp stack stopped")

	for {
		p, err := s.iface.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, core.ErrInterfaceClosed) {
				return nil
			}
			return err
		}
		s.deliver(p)
	}
}

func (s *Stack) deliver(p *csp.Packet) {
	if p.Destination != s.addr && p.Destination != csp.Broadcast {
		metrics.PacketsDroppedTotal.WithLabelValues("not_local").Inc()
		return
	}
	if s.recorder != nil {
		if err := s.recorder.Record(p, s.clk.Now()); err != nil {
			s.logger.WithError(err).Warn("record packet failed")
		}
	}
	select {
	case s.queue <- p:
	default:
		metrics.PacketsDroppedTotal.WithLabelValues("queue_full").Inc()
		s.logger.WithError(core.ErrQueueFull).WithField("packet", p.String()).Warn("drop inbound packet")
	}
}

// Poll returns the next queued packet, waiting at most timeout.
func (s *Stack) Poll(ctx context.Context, timeout time.Duration) (*csp.Packet, bool) {
	select {
	case p := <-s.queue:
		return p, true
	default:
	}
	if timeout <= 0 {
		return nil, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case p := <-s.queue:
		return p, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// Send transmits p on the interface.
func (s *Stack) Send(ctx context.Context, p *csp.Packet) error {
	if err := s.iface.Send(ctx, p); err != nil {
		metrics.PacketsSentTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.PacketsSentTotal.WithLabelValues("ok").Inc()
	return nil
}

// Close closes the interface and the recorder.
func (s *Stack) Close() error {
	err := s.iface.Close()
	if s.recorder != nil {
		if rerr := s.recorder.Close(); err == nil {
			err = rerr
		}
	}
	return err
}

package netstack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"

	"firestige.xyz/satcam/internal/can"
	"firestige.xyz/satcam/internal/core"
	"firestige.xyz/satcam/internal/csp"
	"firestige.xyz/satcam/internal/log"
	"firestige.xyz/satcam/internal/metrics"
)

// CANOptions configures a CAN interface.
type CANOptions struct {
	// Address is the local CSP address. Frames for other destinations are
	// filtered in the controller when the bus supports it.
	Address           uint16
	MaxPacketSize     int
	ReassemblyTimeout time.Duration
	Clock             clock.Clock
}

// CANInterface carries CSP packets as fragmented CAN frames.
type CANInterface struct {
	bus     can.Bus
	clk     clock.Clock
	rx      *reassembler
	session atomic.Uint32
	logger  log.Logger
}

// NewCANInterface wraps bus. Destination filters for the local address and
// broadcast are installed when bus implements can.Filterable.
func NewCANInterface(bus can.Bus, opts CANOptions) (*CANInterface, error) {
	if opts.MaxPacketSize <= 0 {
		opts.MaxPacketSize = 256
	}
	if opts.ReassemblyTimeout <= 0 {
		opts.ReassemblyTimeout = time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if f, ok := bus.(can.Filterable); ok {
		filters := []can.Filter{destinationFilter(opts.Address), destinationFilter(csp.Broadcast)}
		if err := f.SetFilters(filters); err != nil {
			return nil, fmt.Errorf("set can filters: %w", err)
		}
	}
	return &CANInterface{
		bus:    bus,
		clk:    opts.Clock,
		rx:     newReassembler(opts.MaxPacketSize, opts.ReassemblyTimeout),
		logger: log.GetLogger().WithField("iface", "can"),
	}, nil
}

func (c *CANInterface) Name() string { return "can" }

// Send fragments p and writes the frames in order.
func (c *CANInterface) Send(ctx context.Context, p *csp.Packet) error {
	session := uint8(c.session.Inc()) & cfpSessionMask
	frames, err := fragment(p, session)
	if err != nil {
		return err
	}
	for _, f := range frames {
		if err := c.bus.Send(ctx, f); err != nil {
			return c.mapErr(err)
		}
		metrics.CANFramesTotal.WithLabelValues("tx").Inc()
	}
	return nil
}

// Receive reads frames until a packet is complete. Fragments that fail
// reassembly are logged and dropped.
func (c *CANInterface) Receive(ctx context.Context) (*csp.Packet, error) {
	for {
		f, err := c.bus.Receive(ctx)
		if err != nil {
			return nil, c.mapErr(err)
		}
		metrics.CANFramesTotal.WithLabelValues("rx").Inc()

		now := c.clk.Now()
		if n := c.rx.expire(now); n > 0 {
			metrics.PacketsDroppedTotal.WithLabelValues("reassembly_timeout").Add(float64(n))
		}
		p, err := c.rx.push(f, now)
		if err != nil {
			metrics.PacketsDroppedTotal.WithLabelValues(dropReason(err)).Inc()
			c.logger.WithError(err).WithField("frame", f.String()).Debug("drop can fragment")
			continue
		}
		if p != nil {
			return p, nil
		}
	}
}

func (c *CANInterface) Close() error {
	return c.bus.Close()
}

func (c *CANInterface) mapErr(err error) error {
	if errors.Is(err, can.ErrClosed) {
		return core.ErrInterfaceClosed
	}
	return err
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, core.ErrReassemblyTimeout):
		return "reassembly_timeout"
	case errors.Is(err, core.ErrReassemblyOrdering):
		return "reassembly_ordering"
	case errors.Is(err, core.ErrPacketTooLarge):
		return "too_large"
	case errors.Is(err, core.ErrPacketTooShort):
		return "too_short"
	default:
		return "malformed"
	}
}

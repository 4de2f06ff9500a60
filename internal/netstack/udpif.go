package netstack

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"firestige.xyz/satcam/internal/core"
	"firestige.xyz/satcam/internal/csp"
	"firestige.xyz/satcam/internal/log"
	"firestige.xyz/satcam/internal/metrics"
)

const udpReadTimeout = 100 * time.Millisecond

// UDPInterface carries one CSP packet per datagram: the 6-byte header
// followed by the payload.
type UDPInterface struct {
	conn    *net.UDPConn
	remote  *net.UDPAddr
	maxSize int
	logger  log.Logger
}

// ListenUDP binds listen and sends to remote.
func ListenUDP(listen, remote string, maxPacketSize int) (*UDPInterface, error) {
	laddr, err := net.ResolveUDPAddr("udp", listen)
	if err != nil {
		return nil, fmt.Errorf("resolve listen address %q: %w", listen, err)
	}
	raddr, err := net.ResolveUDPAddr("udp", remote)
	if err != nil {
		return nil, fmt.Errorf("resolve remote address %q: %w", remote, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", listen, err)
	}
	if maxPacketSize <= 0 {
		maxPacketSize = 256
	}
	return &UDPInterface{
		conn:    conn,
		remote:  raddr,
		maxSize: maxPacketSize,
		logger:  log.GetLogger().WithField("iface", "udp"),
	}, nil
}

func (u *UDPInterface) Name() string { return "udp" }

// LocalAddr returns the bound address.
func (u *UDPInterface) LocalAddr() net.Addr { return u.conn.LocalAddr() }

func (u *UDPInterface) Send(ctx context.Context, p *csp.Packet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(p.Payload) > u.maxSize {
		return fmt.Errorf("%w: %d bytes", core.ErrPacketTooLarge, len(p.Payload))
	}
	data, err := csp.Marshal(p)
	if err != nil {
		return err
	}
	if _, err := u.conn.WriteToUDP(data, u.remote); err != nil {
		return u.mapErr(err)
	}
	return nil
}

func (u *UDPInterface) Receive(ctx context.Context) (*csp.Packet, error) {
	buf := make([]byte, csp.HeaderLen+u.maxSize+1)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := u.conn.SetReadDeadline(time.Now().Add(udpReadTimeout)); err != nil {
			return nil, u.mapErr(err)
		}
		n, from, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return nil, u.mapErr(err)
		}
		if n > csp.HeaderLen+u.maxSize {
			metrics.PacketsDroppedTotal.WithLabelValues("too_large").Inc()
			u.logger.WithField("from", from.String()).Debug("drop oversized datagram")
			continue
		}
		p, err := csp.Unmarshal(buf[:n])
		if err != nil {
			metrics.PacketsDroppedTotal.WithLabelValues(dropReason(err)).Inc()
			u.logger.WithError(err).WithField("from", from.String()).Debug("drop datagram")
			continue
		}
		return p, nil
	}
}

func (u *UDPInterface) Close() error {
	return u.conn.Close()
}

func (u *UDPInterface) mapErr(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return core.ErrInterfaceClosed
	}
	return err
}

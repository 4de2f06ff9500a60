// Package netstack carries CSP packets over the subsystem bus. It provides
// the CAN and UDP link interfaces and the Stack that filters inbound traffic
// into a bounded queue polled by the dispatcher.
package netstack

import (
	"context"

	"firestige.xyz/satcam/internal/csp"
)

// Interface is a CSP link layer.
type Interface interface {
	// Name identifies the link in logs.
	Name() string
	// Send transmits one packet.
	Send(ctx context.Context, p *csp.Packet) error
	// Receive blocks until a complete packet arrives. Malformed traffic is
	// dropped internally. It returns core.ErrInterfaceClosed after Close.
	Receive(ctx context.Context) (*csp.Packet, error)
	// Close releases the link.
	Close() error
}

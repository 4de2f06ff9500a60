// Package csp models CubeSat Space Protocol (v2) packets exchanged on the
// subsystem bus: the header layout, reserved service ports and the decoding
// of inbound payloads into dispatchable messages.
package csp

import "fmt"

// Header field limits.
const (
	MaxAddress  = 0x3FFF
	MaxPort     = 0x3F
	MaxFlags    = 0x3F
	MaxPriority = 0x03

	// Broadcast is the all-ones destination address.
	Broadcast = MaxAddress
)

// Priority levels.
const (
	PriorityCritical uint8 = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

// Reserved service ports. Ports 0 through LastServicePort are handled by the
// service handler; every other port is an application channel.
const (
	PortCMP uint8 = iota
	PortPing
	PortPS
	PortMemFree
	PortReboot
	PortBufFree
	PortUptime

	LastServicePort = PortUptime
)

// Packet is one CSP packet. It is immutable once received; the consumer that
// takes it from the inbound queue owns it.
type Packet struct {
	Priority        uint8
	Source          uint16
	Destination     uint16
	SourcePort      uint8
	DestinationPort uint8
	Flags           uint8
	Payload         []byte
}

// IsService reports whether the packet targets a reserved service port.
func (p *Packet) IsService() bool {
	return p.DestinationPort <= LastServicePort
}

// Reply builds a response addressed back to the sender with the ports swapped.
func (p *Packet) Reply(from uint16, payload []byte) *Packet {
	return &Packet{
		Priority:        p.Priority,
		Source:          from,
		Destination:     p.Source,
		SourcePort:      p.DestinationPort,
		DestinationPort: p.SourcePort,
		Flags:           p.Flags,
		Payload:         payload,
	}
}

// Validate checks that every header field fits its wire width.
func (p *Packet) Validate() error {
	switch {
	case p.Priority > MaxPriority:
		return fmt.Errorf("csp: priority %d exceeds %d", p.Priority, MaxPriority)
	case p.Source > MaxAddress || p.Destination > MaxAddress:
		return fmt.Errorf("csp: address exceeds 0x%X (src=0x%X dst=0x%X)", MaxAddress, p.Source, p.Destination)
	case p.SourcePort > MaxPort || p.DestinationPort > MaxPort:
		return fmt.Errorf("csp: port exceeds %d (sport=%d dport=%d)", MaxPort, p.SourcePort, p.DestinationPort)
	case p.Flags > MaxFlags:
		return fmt.Errorf("csp: flags 0x%X exceed 0x%X", p.Flags, MaxFlags)
	}
	return nil
}

func (p *Packet) String() string {
	return fmt.Sprintf("csp[0x%04X:%d -> 0x%04X:%d prio=%d flags=0x%02X len=%d]",
		p.Source, p.SourcePort, p.Destination, p.DestinationPort, p.Priority, p.Flags, len(p.Payload))
}

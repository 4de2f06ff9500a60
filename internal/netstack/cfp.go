package netstack

import (
	"encoding/binary"
	"fmt"
	"time"

	"firestige.xyz/satcam/internal/can"
	"firestige.xyz/satcam/internal/core"
	"firestige.xyz/satcam/internal/csp"
)

// CAN identifier layout for CSP fragments (29 bits):
//
//	prio(2) | dst(14) | sender(6) | session(2) | begin(1) | end(1) | fragment(3)
const (
	cfpPrioOffset    = 27
	cfpDstOffset     = 13
	cfpSenderOffset  = 7
	cfpSessionOffset = 5
	cfpBeginBit      = 1 << 4
	cfpEndBit        = 1 << 3

	cfpSenderMask   = 0x3F
	cfpSessionMask  = 0x03
	cfpFragmentMask = 0x07

	// The first fragment carries the low header word before any payload.
	cfpHeaderLen = 4
)

type cfpID struct {
	prio     uint8
	dst      uint16
	sender   uint8
	session  uint8
	begin    bool
	end      bool
	fragment uint8
}

func (id cfpID) encode() uint32 {
	v := uint32(id.prio&csp.MaxPriority)<<cfpPrioOffset |
		uint32(id.dst&csp.MaxAddress)<<cfpDstOffset |
		uint32(id.sender&cfpSenderMask)<<cfpSenderOffset |
		uint32(id.session&cfpSessionMask)<<cfpSessionOffset |
		uint32(id.fragment&cfpFragmentMask)
	if id.begin {
		v |= cfpBeginBit
	}
	if id.end {
		v |= cfpEndBit
	}
	return v
}

func decodeCFPID(v uint32) cfpID {
	return cfpID{
		prio:     uint8(v>>cfpPrioOffset) & csp.MaxPriority,
		dst:      uint16(v>>cfpDstOffset) & csp.MaxAddress,
		sender:   uint8(v>>cfpSenderOffset) & cfpSenderMask,
		session:  uint8(v>>cfpSessionOffset) & cfpSessionMask,
		begin:    v&cfpBeginBit != 0,
		end:      v&cfpEndBit != 0,
		fragment: uint8(v) & cfpFragmentMask,
	}
}

// destinationFilter accepts fragments addressed to addr.
func destinationFilter(addr uint16) can.Filter {
	return can.Filter{
		ID:   uint32(addr&csp.MaxAddress) << cfpDstOffset,
		Mask: uint32(csp.MaxAddress) << cfpDstOffset,
	}
}

// fragment splits p into CAN frames for the given session number.
func fragment(p *csp.Packet, session uint8) ([]can.Frame, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	first := make([]byte, cfpHeaderLen, can.MaxDataLen)
	binary.BigEndian.PutUint32(first, csp.HeaderOf(p).Low())

	rest := p.Payload
	n := can.MaxDataLen - cfpHeaderLen
	if n > len(rest) {
		n = len(rest)
	}
	first = append(first, rest[:n]...)
	rest = rest[n:]

	chunks := [][]byte{first}
	for len(rest) > 0 {
		n := can.MaxDataLen
		if n > len(rest) {
			n = len(rest)
		}
		chunks = append(chunks, rest[:n])
		rest = rest[n:]
	}

	frames := make([]can.Frame, 0, len(chunks))
	for i, chunk := range chunks {
		id := cfpID{
			prio:     p.Priority,
			dst:      p.Destination,
			sender:   uint8(p.Source),
			session:  session,
			begin:    i == 0,
			end:      i == len(chunks)-1,
			fragment: uint8(i),
		}
		f, err := can.NewFrame(id.encode(), chunk)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

type sessionKey struct {
	dst     uint16
	sender  uint8
	session uint8
}

type partial struct {
	header   csp.Header
	payload  []byte
	next     uint8
	deadline time.Time
}

// reassembler rebuilds packets from fragments. It is not safe for
// concurrent use; the interface receive loop owns it.
type reassembler struct {
	maxSize  int
	timeout  time.Duration
	sessions map[sessionKey]*partial
}

func newReassembler(maxSize int, timeout time.Duration) *reassembler {
	return &reassembler{
		maxSize:  maxSize,
		timeout:  timeout,
		sessions: make(map[sessionKey]*partial),
	}
}

// push adds a fragment received at now. It returns the packet when f
// completes one, or nil while more fragments are expected.
func (r *reassembler) push(f can.Frame, now time.Time) (*csp.Packet, error) {
	id := decodeCFPID(f.ID)
	key := sessionKey{dst: id.dst, sender: id.sender, session: id.session}
	data := f.Payload()

	var p *partial
	if id.begin {
		if len(data) < cfpHeaderLen {
			delete(r.sessions, key)
			return nil, fmt.Errorf("%w: first fragment has %d bytes", core.ErrPacketTooShort, len(data))
		}
		p = &partial{
			header:   csp.Header{Priority: id.prio, Destination: id.dst},
			payload:  make([]byte, 0, len(data)-cfpHeaderLen),
			next:     id.fragment,
			deadline: now.Add(r.timeout),
		}
		p.header.SetLow(binary.BigEndian.Uint32(data[:cfpHeaderLen]))
		data = data[cfpHeaderLen:]
		r.sessions[key] = p
	} else {
		p = r.sessions[key]
		if p == nil {
			return nil, fmt.Errorf("%w: no session for fragment %d from %d", core.ErrReassemblyOrdering, id.fragment, id.sender)
		}
		if now.After(p.deadline) {
			delete(r.sessions, key)
			return nil, core.ErrReassemblyTimeout
		}
	}

	if id.fragment != p.next {
		delete(r.sessions, key)
		return nil, fmt.Errorf("%w: got fragment %d, want %d", core.ErrReassemblyOrdering, id.fragment, p.next)
	}
	p.next = (p.next + 1) & cfpFragmentMask

	if len(p.payload)+len(data) > r.maxSize {
		delete(r.sessions, key)
		return nil, fmt.Errorf("%w: exceeds %d bytes", core.ErrPacketTooLarge, r.maxSize)
	}
	p.payload = append(p.payload, data...)

	if !id.end {
		return nil, nil
	}
	delete(r.sessions, key)
	return p.header.Packet(p.payload), nil
}

// expire drops sessions whose deadline passed and returns how many.
func (r *reassembler) expire(now time.Time) int {
	n := 0
	for k, p := range r.sessions {
		if now.After(p.deadline) {
			delete(r.sessions, k)
			n++
		}
	}
	return n
}

package netstack

import (
	"fmt"

	"golang.org/x/net/bpf"

	"firestige.xyz/satcam/internal/csp"
)

// udpHeaderLen is the offset of the datagram payload as seen by a socket
// filter attached to a UDP socket.
const udpHeaderLen = 8

// acceptAll is the filter return value that keeps the whole datagram.
const acceptAll = 0xFFFFFFFF

// CompileDestinationFilter assembles a classic BPF program that keeps UDP
// datagrams long enough to hold a CSP header and addressed to addr or to
// the broadcast address. Everything else is dropped in the kernel.
func CompileDestinationFilter(addr uint16) ([]bpf.RawInstruction, error) {
	if addr > csp.MaxAddress {
		return nil, fmt.Errorf("csp address 0x%X out of range", addr)
	}
	raw, err := bpf.Assemble([]bpf.Instruction{
		bpf.LoadExtension{Num: bpf.ExtLen},
		bpf.JumpIf{Cond: bpf.JumpLessThan, Val: udpHeaderLen + csp.HeaderLen, SkipTrue: 4},
		// prio(2) and dst(14) share the first two header bytes
		bpf.LoadAbsolute{Off: udpHeaderLen, Size: 2},
		bpf.ALUOpConstant{Op: bpf.ALUOpAnd, Val: csp.MaxAddress},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(addr), SkipTrue: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: csp.Broadcast, SkipTrue: 1},
		bpf.RetConstant{Val: 0},
		bpf.RetConstant{Val: acceptAll},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to assemble BPF filter: %w", err)
	}
	return raw, nil
}

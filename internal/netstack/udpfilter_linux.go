//go:build linux

package netstack

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// FilterDestination attaches a socket filter so that only datagrams for addr
// or broadcast reach Receive.
func (u *UDPInterface) FilterDestination(addr uint16) error {
	raw, err := CompileDestinationFilter(addr)
	if err != nil {
		return err
	}
	filters := make([]unix.SockFilter, len(raw))
	for i, ins := range raw {
		filters[i] = unix.SockFilter{Code: ins.Op, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	prog := unix.SockFprog{Len: uint16(len(filters)), Filter: &filters[0]}

	rc, err := u.conn.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	if err := rc.Control(func(fd uintptr) {
		serr = unix.SetsockoptSockFprog(int(fd), unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &prog)
	}); err != nil {
		return err
	}
	if serr != nil {
		return fmt.Errorf("attach socket filter: %w", serr)
	}
	u.logger.WithField("address", fmt.Sprintf("0x%04X", addr)).Debug("socket filter attached")
	return nil
}

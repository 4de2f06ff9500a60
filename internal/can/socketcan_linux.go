//go:build linux

package can

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"
)

// frameSize is sizeof(struct can_frame).
const frameSize = 16

// readTimeoutUsec bounds each blocking read so Receive can observe ctx and
// Close.
const readTimeoutUsec = 100000

// SocketCAN is a raw CAN_RAW socket bound to one interface.
type SocketCAN struct {
	ifname string

	mu     sync.RWMutex // write-locked by Close, read-locked around syscalls
	fd     int
	closed bool
}

// DialSocketCAN opens a raw socket on the named interface (e.g. "can0").
func DialSocketCAN(ifname string) (*SocketCAN, error) {
	ifi, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("can: interface %s: %w", ifname, err)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("can: socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifi.Index}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("can: bind %s: %w", ifname, err)
	}
	tv := unix.Timeval{Usec: readTimeoutUsec}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("can: set receive timeout: %w", err)
	}

	return &SocketCAN{ifname: ifname, fd: fd}, nil
}

func (s *SocketCAN) Send(ctx context.Context, f Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var buf [frameSize]byte
	binary.NativeEndian.PutUint32(buf[0:4], (f.ID&EFFMask)|EFFFlag)
	buf[4] = f.Len
	copy(buf[8:], f.Payload())

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := unix.Write(s.fd, buf[:]); err != nil {
		return fmt.Errorf("can: write %s: %w", s.ifname, err)
	}
	return nil
}

func (s *SocketCAN) Receive(ctx context.Context) (Frame, error) {
	var buf [frameSize]byte
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}

		s.mu.RLock()
		if s.closed {
			s.mu.RUnlock()
			return Frame{}, ErrClosed
		}
		n, err := unix.Read(s.fd, buf[:])
		s.mu.RUnlock()

		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return Frame{}, fmt.Errorf("can: read %s: %w", s.ifname, err)
		}
		if n != frameSize {
			continue
		}

		id := binary.NativeEndian.Uint32(buf[0:4])
		// CSP only uses extended data frames.
		if id&EFFFlag == 0 || id&(RTRFlag|ERRFlag) != 0 {
			continue
		}
		f := Frame{ID: id & EFFMask, Len: buf[4]}
		if f.Len > MaxDataLen {
			f.Len = MaxDataLen
		}
		copy(f.Data[:], buf[8:8+f.Len])
		return f, nil
	}
}

// SetFilters installs CAN_RAW_FILTER rules restricted to extended frames.
func (s *SocketCAN) SetFilters(filters []Filter) error {
	raw := make([]unix.CanFilter, 0, len(filters))
	for _, flt := range filters {
		raw = append(raw, unix.CanFilter{
			Id:   (flt.ID & EFFMask) | EFFFlag,
			Mask: (flt.Mask & EFFMask) | EFFFlag | RTRFlag,
		})
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return unix.SetsockoptCanRawFilter(s.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, raw)
}

func (s *SocketCAN) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return unix.Close(s.fd)
}

var (
	_ Bus        = (*SocketCAN)(nil)
	_ Filterable = (*SocketCAN)(nil)
)

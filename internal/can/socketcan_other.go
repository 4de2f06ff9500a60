//go:build !linux

package can

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("can: socketcan is only available on linux")

// SocketCAN is unavailable on this platform.
type SocketCAN struct{}

// DialSocketCAN always fails outside linux.
func DialSocketCAN(ifname string) (*SocketCAN, error) {
	return nil, errUnsupported
}

func (s *SocketCAN) Send(ctx context.Context, f Frame) error    { return errUnsupported }
func (s *SocketCAN) Receive(ctx context.Context) (Frame, error) { return Frame{}, errUnsupported }
func (s *SocketCAN) SetFilters(filters []Filter) error          { return errUnsupported }
func (s *SocketCAN) Close() error                               { return nil }

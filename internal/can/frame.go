// Package can provides CAN 2.0B frame transport: an in-process virtual bus
// and a SocketCAN raw socket on linux.
package can

import (
	"errors"
	"fmt"
)

// Identifier flags and masks, laid out as in the SocketCAN can_id word.
const (
	EFFFlag uint32 = 0x80000000 // extended frame format
	RTRFlag uint32 = 0x40000000 // remote transmission request
	ERRFlag uint32 = 0x20000000 // error frame
	SFFMask uint32 = 0x000007FF
	EFFMask uint32 = 0x1FFFFFFF

	MaxDataLen = 8
)

// ErrClosed indicates the bus or endpoint has been closed.
var ErrClosed = errors.New("can: closed")

// Frame is one extended data frame. ID holds the 29-bit identifier without
// flag bits.
type Frame struct {
	ID   uint32
	Len  uint8
	Data [MaxDataLen]byte
}

// NewFrame builds a frame, rejecting identifiers wider than 29 bits and
// payloads longer than 8 bytes.
func NewFrame(id uint32, data []byte) (Frame, error) {
	if id&^EFFMask != 0 {
		return Frame{}, fmt.Errorf("can: identifier 0x%X exceeds 29 bits", id)
	}
	if len(data) > MaxDataLen {
		return Frame{}, fmt.Errorf("can: %d data bytes exceed %d", len(data), MaxDataLen)
	}
	f := Frame{ID: id, Len: uint8(len(data))}
	copy(f.Data[:], data)
	return f, nil
}

// Payload returns the valid data bytes.
func (f Frame) Payload() []byte {
	return f.Data[:f.Len]
}

func (f Frame) String() string {
	return fmt.Sprintf("%08X#% X", f.ID, f.Payload())
}

// Filter accepts frames whose identifier matches ID on the bits set in Mask.
type Filter struct {
	ID   uint32
	Mask uint32
}

// Match reports whether f passes the filter.
func (flt Filter) Match(f Frame) bool {
	return f.ID&flt.Mask == flt.ID&flt.Mask
}

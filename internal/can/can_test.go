package can

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFrame(t *testing.T) {
	f, err := NewFrame(0x1ABCDEF0, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, uint8(3), f.Len)
	assert.Equal(t, []byte{1, 2, 3}, f.Payload())
	assert.Equal(t, "1ABCDEF0#01 02 03", f.String())

	_, err = NewFrame(0x20000000, nil)
	assert.Error(t, err, "identifier wider than 29 bits")

	_, err = NewFrame(1, make([]byte, 9))
	assert.Error(t, err, "more than 8 data bytes")
}

func TestFilterMatch(t *testing.T) {
	flt := Filter{ID: 0x00AB0000, Mask: 0x00FF0000}
	assert.True(t, flt.Match(Frame{ID: 0x00AB1234}))
	assert.False(t, flt.Match(Frame{ID: 0x00AC1234}))
	assert.True(t, matchAny(nil, Frame{ID: 1}))
}

func TestVirtualBusDeliversToOthers(t *testing.T) {
	bus := NewVirtualBus()
	a := bus.Open(4)
	b := bus.Open(4)
	c := bus.Open(4)
	defer a.Close()
	defer b.Close()
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	f, _ := NewFrame(0x123, []byte{0xAA})
	require.NoError(t, a.Send(ctx, f))

	got, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, f, got)

	got, err = c.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, f, got)

	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	_, err = a.Receive(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "sender does not hear itself")
}

func TestVirtualBusFilters(t *testing.T) {
	bus := NewVirtualBus()
	tx := bus.Open(4)
	rx := bus.Open(4)
	require.NoError(t, rx.SetFilters([]Filter{{ID: 0x100, Mask: 0xF00}}))

	ctx := context.Background()
	require.NoError(t, tx.Send(ctx, Frame{ID: 0x200}))
	require.NoError(t, tx.Send(ctx, Frame{ID: 0x1FF}))

	got, err := rx.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1FF), got.ID)
}

func TestVirtualBusOverrunDrops(t *testing.T) {
	bus := NewVirtualBus()
	tx := bus.Open(1)
	rx := bus.Open(2)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, tx.Send(ctx, Frame{ID: uint32(i)}))
	}
	assert.Equal(t, uint64(3), rx.Dropped())
}

func TestVirtualEndpointClose(t *testing.T) {
	bus := NewVirtualBus()
	a := bus.Open(1)
	b := bus.Open(1)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close(), "close is idempotent")

	_, err := b.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, b.Send(context.Background(), Frame{}), ErrClosed)

	// Sending to a bus whose peers left is not an error.
	assert.NoError(t, a.Send(context.Background(), Frame{}))
}

package csp

import (
	"testing"

	"github.com/google/gopacket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/satcam/internal/core"
)

func TestHeaderLayout(t *testing.T) {
	p := &Packet{
		Priority:        PriorityHigh,
		Source:          0x1C1F,
		Destination:     0x1C3F,
		SourcePort:      0x0F,
		DestinationPort: 0x0F,
		Flags:           0x1D,
		Payload:         []byte{0x01, 0x0A},
	}
	data, err := Marshal(p)
	require.NoError(t, err)
	require.Len(t, data, HeaderLen+2)

	want := uint64(1)<<46 | uint64(0x1C3F)<<32 | uint64(0x1C1F)<<18 | uint64(0x0F)<<12 | uint64(0x0F)<<6 | 0x1D
	var got uint64
	for _, b := range data[:HeaderLen] {
		got = got<<8 | uint64(b)
	}
	assert.Equal(t, want, got)
	assert.Equal(t, []byte{0x01, 0x0A}, data[HeaderLen:])
}

func TestUnmarshal(t *testing.T) {
	in := &Packet{
		Priority:        PriorityLow,
		Source:          0x0001,
		Destination:     0x3FFF,
		SourcePort:      33,
		DestinationPort: 40,
		Flags:           0x3F,
		Payload:         []byte{1, 1, 7},
	}
	data, err := Marshal(in)
	require.NoError(t, err)

	out, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	data[HeaderLen] = 9
	assert.Equal(t, byte(1), out.Payload[0], "payload must be copied")
}

func TestUnmarshalHeaderOnly(t *testing.T) {
	data, err := Marshal(&Packet{Destination: 5, DestinationPort: 1})
	require.NoError(t, err)
	out, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Empty(t, out.Payload)
	assert.Equal(t, uint8(1), out.DestinationPort)
}

func TestUnmarshalTruncated(t *testing.T) {
	_, err := Unmarshal([]byte{0x01, 0x02, 0x03})
	assert.ErrorIs(t, err, core.ErrPacketTooShort)
}

func TestLayerDecodesThroughGopacket(t *testing.T) {
	data, err := Marshal(NewTrigger(0x10, 0x1C1F, 40))
	require.NoError(t, err)

	pkt := gopacket.NewPacket(data, LayerTypeCSP, gopacket.Default)
	h, ok := pkt.Layer(LayerTypeCSP).(*Header)
	require.True(t, ok)
	assert.Equal(t, uint16(0x1C1F), h.Destination)
	assert.Equal(t, uint8(40), h.DestinationPort)
	require.NotNil(t, pkt.ApplicationLayer())
	assert.Equal(t, []byte{1, 1}, pkt.ApplicationLayer().Payload())
}

func TestHeaderLowWord(t *testing.T) {
	h := &Header{Source: 0x2ABC, DestinationPort: 6, SourcePort: 63, Flags: 0x15}
	var back Header
	back.SetLow(h.Low())
	assert.Equal(t, h.Source, back.Source)
	assert.Equal(t, h.DestinationPort, back.DestinationPort)
	assert.Equal(t, h.SourcePort, back.SourcePort)
	assert.Equal(t, h.Flags, back.Flags)
}

func TestValidate(t *testing.T) {
	assert.Error(t, (&Packet{Priority: 4}).Validate())
	assert.Error(t, (&Packet{Source: 0x4000}).Validate())
	assert.Error(t, (&Packet{DestinationPort: 64}).Validate())
	assert.Error(t, (&Packet{Flags: 0x40}).Validate())
	assert.NoError(t, (&Packet{Source: MaxAddress, DestinationPort: MaxPort}).Validate())

	_, err := Marshal(&Packet{Destination: 0x4000})
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		port    uint8
		payload []byte
		want    Kind
	}{
		{"service port with trigger payload", 3, []byte{1, 1}, KindService},
		{"service port 0", 0, nil, KindService},
		{"last service port", 6, []byte{9, 9}, KindService},
		{"trigger", 40, []byte{1, 1}, KindCaptureTrigger},
		{"trigger with trailing bytes", 7, []byte{1, 1, 0xFF, 0x00}, KindCaptureTrigger},
		{"wrong second byte", 40, []byte{1, 2}, KindUnknown},
		{"wrong first byte", 40, []byte{0, 1}, KindUnknown},
		{"single byte", 40, []byte{1}, KindUnknown},
		{"empty", 40, nil, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Packet{DestinationPort: tt.port, Payload: tt.payload}
			m := Classify(p)
			assert.Equal(t, tt.want, m.Kind())
			assert.Same(t, p, m.Packet())
		})
	}
}

func TestReplySwapsPorts(t *testing.T) {
	req := &Packet{Source: 0x10, Destination: 0x1C1F, SourcePort: 20, DestinationPort: PortPing, Payload: []byte("hi")}
	rep := req.Reply(0x1C1F, req.Payload)
	assert.Equal(t, uint16(0x1C1F), rep.Source)
	assert.Equal(t, uint16(0x10), rep.Destination)
	assert.Equal(t, PortPing, rep.SourcePort)
	assert.Equal(t, uint8(20), rep.DestinationPort)
}

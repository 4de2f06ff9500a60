package csp

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/satcam/internal/core"
)

// HeaderLen is the size of the CSP v2 header on byte-oriented links.
const HeaderLen = 6

// Bit offsets of the 48-bit big-endian header.
const (
	prioOffset  = 46
	dstOffset   = 32
	srcOffset   = 18
	dportOffset = 12
	sportOffset = 6
)

// LayerTypeCSP decodes a CSP v2 header followed by its payload.
var LayerTypeCSP = gopacket.RegisterLayerType(2050, gopacket.LayerTypeMetadata{
	Name:    "CSP",
	Decoder: gopacket.DecodeFunc(decodeCSP),
})

// Header is the gopacket layer for the CSP v2 header.
type Header struct {
	layers.BaseLayer
	Priority        uint8
	Destination     uint16
	Source          uint16
	DestinationPort uint8
	SourcePort      uint8
	Flags           uint8
}

func (h *Header) LayerType() gopacket.LayerType     { return LayerTypeCSP }
func (h *Header) CanDecode() gopacket.LayerClass    { return LayerTypeCSP }
func (h *Header) NextLayerType() gopacket.LayerType { return gopacket.LayerTypePayload }

func (h *Header) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < HeaderLen {
		df.SetTruncated()
		return fmt.Errorf("%w: csp header needs %d bytes, got %d", core.ErrPacketTooShort, HeaderLen, len(data))
	}
	var v uint64
	for _, b := range data[:HeaderLen] {
		v = v<<8 | uint64(b)
	}
	h.Priority = uint8(v>>prioOffset) & MaxPriority
	h.Destination = uint16(v>>dstOffset) & MaxAddress
	h.setLow(uint32(v))
	h.BaseLayer = layers.BaseLayer{Contents: data[:HeaderLen], Payload: data[HeaderLen:]}
	return nil
}

func (h *Header) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	bytes, err := b.PrependBytes(HeaderLen)
	if err != nil {
		return err
	}
	v := uint64(h.Priority&MaxPriority)<<prioOffset |
		uint64(h.Destination&MaxAddress)<<dstOffset |
		uint64(h.Low())
	for i := HeaderLen - 1; i >= 0; i-- {
		bytes[i] = byte(v)
		v >>= 8
	}
	return nil
}

// Low returns the lower 32 header bits: source, ports and flags. Links that
// carry priority and destination out of band (CAN identifiers) transmit only
// this word.
func (h *Header) Low() uint32 {
	return uint32(h.Source&MaxAddress)<<srcOffset |
		uint32(h.DestinationPort&MaxPort)<<dportOffset |
		uint32(h.SourcePort&MaxPort)<<sportOffset |
		uint32(h.Flags&MaxFlags)
}

// SetLow fills source, ports and flags from the lower 32 header bits.
func (h *Header) SetLow(v uint32) {
	h.setLow(v)
}

func (h *Header) setLow(v uint32) {
	h.Source = uint16(v>>srcOffset) & MaxAddress
	h.DestinationPort = uint8(v>>dportOffset) & MaxPort
	h.SourcePort = uint8(v>>sportOffset) & MaxPort
	h.Flags = uint8(v) & MaxFlags
}

// HeaderOf returns the header layer describing p.
func HeaderOf(p *Packet) *Header {
	return &Header{
		Priority:        p.Priority,
		Destination:     p.Destination,
		Source:          p.Source,
		DestinationPort: p.DestinationPort,
		SourcePort:      p.SourcePort,
		Flags:           p.Flags,
	}
}

// Packet builds a packet from the header and payload.
func (h *Header) Packet(payload []byte) *Packet {
	return &Packet{
		Priority:        h.Priority,
		Source:          h.Source,
		Destination:     h.Destination,
		SourcePort:      h.SourcePort,
		DestinationPort: h.DestinationPort,
		Flags:           h.Flags,
		Payload:         payload,
	}
}

func decodeCSP(data []byte, p gopacket.PacketBuilder) error {
	h := &Header{}
	if err := h.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(h)
	return p.NextDecoder(h.NextLayerType())
}

// Marshal serializes p as header followed by payload.
func Marshal(p *Packet) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, HeaderOf(p), gopacket.Payload(p.Payload)); err != nil {
		return nil, fmt.Errorf("csp: serialize: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a header-prefixed packet. The payload is copied.
func Unmarshal(data []byte) (*Packet, error) {
	pkt := gopacket.NewPacket(data, LayerTypeCSP, gopacket.Default)
	if errLayer := pkt.ErrorLayer(); errLayer != nil {
		return nil, errLayer.Error()
	}
	h, ok := pkt.Layer(LayerTypeCSP).(*Header)
	if !ok {
		return nil, fmt.Errorf("%w: no csp layer", core.ErrPacketTooShort)
	}
	payload := append([]byte(nil), h.LayerPayload()...)
	return h.Packet(payload), nil
}

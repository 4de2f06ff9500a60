package csp

// TriggerMagic is the payload prefix that requests an image capture on any
// non-service port.
var TriggerMagic = [2]byte{0x01, 0x01}

// Message is an inbound packet decoded at the dispatch boundary. It is one of
// ServiceRequest, CaptureTrigger or Unknown.
type Message interface {
	Packet() *Packet
	Kind() Kind
}

// Kind labels the Message variants.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindService
	KindCaptureTrigger
)

func (k Kind) String() string {
	switch k {
	case KindService:
		return "service"
	case KindCaptureTrigger:
		return "capture_trigger"
	default:
		return "unknown"
	}
}

// ServiceRequest targets one of the reserved service ports.
type ServiceRequest struct{ pkt *Packet }

func (m ServiceRequest) Packet() *Packet { return m.pkt }
func (m ServiceRequest) Kind() Kind      { return KindService }

// Port returns the requested service port.
func (m ServiceRequest) Port() uint8 { return m.pkt.DestinationPort }

// CaptureTrigger asks the camera to acquire an image.
type CaptureTrigger struct{ pkt *Packet }

func (m CaptureTrigger) Packet() *Packet { return m.pkt }
func (m CaptureTrigger) Kind() Kind      { return KindCaptureTrigger }

// Unknown is any other application packet. It is ignored.
type Unknown struct{ pkt *Packet }

func (m Unknown) Packet() *Packet { return m.pkt }
func (m Unknown) Kind() Kind      { return KindUnknown }

// Classify decodes p. Service ports win regardless of payload; otherwise only
// the first two payload bytes are inspected.
func Classify(p *Packet) Message {
	if p.IsService() {
		return ServiceRequest{pkt: p}
	}
	if len(p.Payload) >= len(TriggerMagic) &&
		p.Payload[0] == TriggerMagic[0] && p.Payload[1] == TriggerMagic[1] {
		return CaptureTrigger{pkt: p}
	}
	return Unknown{pkt: p}
}

// NewTrigger builds a capture trigger packet from src to dst on port.
func NewTrigger(src, dst uint16, port uint8) *Packet {
	return &Packet{
		Priority:        PriorityNormal,
		Source:          src,
		Destination:     dst,
		SourcePort:      port,
		DestinationPort: port,
		Payload:         []byte{TriggerMagic[0], TriggerMagic[1]},
	}
}

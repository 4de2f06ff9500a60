// Package service answers requests on the reserved CSP service ports.
package service

import (
	"bytes"
	"context"
	"encoding/binary"
	"runtime"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"firestige.xyz/satcam/internal/csp"
	"firestige.xyz/satcam/internal/log"
	"firestige.xyz/satcam/internal/metrics"
)

// RebootMagic must be the whole payload of a reboot request.
const RebootMagic uint32 = 0x80078007

// CMP request layout: type, code, body.
const (
	cmpRequest = 0x00
	cmpReply   = 0x01
	cmpIdent   = 0x01
)

// Ident field widths, NUL padded.
const (
	identHostnameLen = 20
	identModelLen    = 30
	identRevisionLen = 20
	identDateLen     = 12
	identTimeLen     = 9
)

// Transport sends replies.
type Transport interface {
	Send(ctx context.Context, p *csp.Packet) error
}

// Options configures a Handler.
type Options struct {
	Address   uint16
	Hostname  string
	Model     string
	Revision  string
	BuildTime time.Time
	Clock     clock.Clock

	// FreeSlots reports free inbound queue entries for BUF_FREE.
	FreeSlots func() int
	// Tasks lists the running tasks for PS.
	Tasks func() []string
	// Reboot is called after a valid reboot request. Nil ignores reboots.
	Reboot func()
}

// Handler replies to service requests. Every reply goes back to the
// requester with the ports swapped.
type Handler struct {
	transport Transport
	opts      Options
	started   time.Time
	logger    log.Logger
}

// NewHandler creates a handler. Uptime counts from this call.
func NewHandler(t Transport, opts Options) *Handler {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.BuildTime.IsZero() {
		opts.BuildTime = opts.Clock.Now()
	}
	return &Handler{
		transport: t,
		opts:      opts,
		started:   opts.Clock.Now(),
		logger:    log.GetLogger().WithField("component", "service"),
	}
}

// Handle processes one request. Errors are logged, never returned.
func (h *Handler) Handle(ctx context.Context, p *csp.Packet) {
	name, reply := h.respond(p)
	metrics.ServiceRequestsTotal.WithLabelValues(name).Inc()
	if reply == nil {
		return
	}
	if err := h.transport.Send(ctx, p.Reply(h.opts.Address, reply)); err != nil {
		h.logger.WithError(err).WithField("service", name).Warn("service reply failed")
	}
}

// respond builds the reply payload. A nil payload means no reply.
func (h *Handler) respond(p *csp.Packet) (string, []byte) {
	switch p.DestinationPort {
	case csp.PortCMP:
		return "cmp", h.cmp(p.Payload)
	case csp.PortPing:
		echo := make([]byte, len(p.Payload))
		copy(echo, p.Payload)
		return "ping", echo
	case csp.PortPS:
		return "ps", h.ps()
	case csp.PortMemFree:
		return "memfree", u32(memFree())
	case csp.PortReboot:
		h.reboot(p.Payload)
		return "reboot", nil
	case csp.PortBufFree:
		free := 0
		if h.opts.FreeSlots != nil {
			free = h.opts.FreeSlots()
		}
		return "buf_free", u32(uint32(free))
	case csp.PortUptime:
		up := h.opts.Clock.Since(h.started)
		return "uptime", u32(uint32(up / time.Second))
	default:
		return "unknown", nil
	}
}

func (h *Handler) cmp(req []byte) []byte {
	if len(req) < 2 || req[0] != cmpRequest {
		h.logger.Debug("malformed cmp request")
		return nil
	}
	if req[1] != cmpIdent {
		h.logger.Debugf("unsupported cmp code %d", req[1])
		return nil
	}

	var buf bytes.Buffer
	buf.WriteByte(cmpReply)
	buf.WriteByte(cmpIdent)
	writeField(&buf, h.opts.Hostname, identHostnameLen)
	writeField(&buf, h.opts.Model, identModelLen)
	writeField(&buf, h.opts.Revision, identRevisionLen)
	writeField(&buf, h.opts.BuildTime.UTC().Format("Jan _2 2006"), identDateLen)
	writeField(&buf, h.opts.BuildTime.UTC().Format("15:04:05"), identTimeLen)
	return buf.Bytes()
}

func (h *Handler) ps() []byte {
	if h.opts.Tasks == nil {
		return []byte{0}
	}
	var sb strings.Builder
	for _, t := range h.opts.Tasks() {
		sb.WriteString(t)
		sb.WriteByte('\n')
	}
	sb.WriteByte(0)
	return []byte(sb.String())
}

func (h *Handler) reboot(payload []byte) {
	if len(payload) != 4 || binary.BigEndian.Uint32(payload) != RebootMagic {
		h.logger.Warn("reboot request with bad magic ignored")
		return
	}
	h.logger.Warn("reboot requested")
	if h.opts.Reboot != nil {
		h.opts.Reboot()
	}
}

// writeField writes s truncated to n-1 bytes and NUL padded to n.
func writeField(buf *bytes.Buffer, s string, n int) {
	if len(s) > n-1 {
		s = s[:n-1]
	}
	buf.WriteString(s)
	buf.Write(make([]byte, n-len(s)))
}

func u32(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

func memFree() uint32 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	free := ms.HeapIdle - ms.HeapReleased
	if free > 0xFFFFFFFF {
		free = 0xFFFFFFFF
	}
	return uint32(free)
}

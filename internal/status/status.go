// Package status sends capture progress reports and log events to the
// ground-facing node.
package status

import (
	"context"
	"fmt"

	"firestige.xyz/satcam/internal/config"
	"firestige.xyz/satcam/internal/csp"
	"firestige.xyz/satcam/internal/log"
	"firestige.xyz/satcam/internal/metrics"
)

// Code is the two-byte status word that opens every report.
type Code [2]byte

var (
	CaptureStarting = Code{0x01, 0x0F}
	CaptureDone     = Code{0x01, 0x0A}
	CaptureDegraded = Code{0x01, 0x0E}
)

func (c Code) String() string {
	switch c {
	case CaptureStarting:
		return "capture_starting"
	case CaptureDone:
		return "capture_done"
	case CaptureDegraded:
		return "capture_degraded"
	default:
		return fmt.Sprintf("%02x%02x", c[0], c[1])
	}
}

// LogEvent is a one-byte event sent to the log node.
type LogEvent byte

const (
	BootUp          LogEvent = 0x01
	CaptureBegun    LogEvent = 0x02
	CaptureFinished LogEvent = 0x03
	CaptureFailed   LogEvent = 0x04
)

func (e LogEvent) String() string {
	switch e {
	case BootUp:
		return "boot_up"
	case CaptureBegun:
		return "capture_begun"
	case CaptureFinished:
		return "capture_finished"
	case CaptureFailed:
		return "capture_failed"
	default:
		return fmt.Sprintf("event_%02x", byte(e))
	}
}

// Transport hands a packet to the network stack.
type Transport interface {
	Send(ctx context.Context, p *csp.Packet) error
}

// Reporter builds report and log packets from this node. Both Report and
// Log are fire-and-forget: send failures are logged and counted only.
type Reporter struct {
	transport Transport
	source    uint16
	cfg       config.StatusConfig
	logger    log.Logger
}

// NewReporter creates a reporter sending from address source.
func NewReporter(t Transport, source uint16, cfg config.StatusConfig) *Reporter {
	return &Reporter{
		transport: t,
		source:    source,
		cfg:       cfg,
		logger:    log.GetLogger().WithField("component", "status"),
	}
}

// Report sends code followed by extra to the status destination.
func (r *Reporter) Report(ctx context.Context, code Code, extra []byte) {
	payload := make([]byte, 0, len(code)+len(extra))
	payload = append(payload, code[:]...)
	payload = append(payload, extra...)

	p := &csp.Packet{
		Priority:        csp.PriorityNormal,
		Source:          r.source,
		Destination:     r.cfg.Destination,
		SourcePort:      r.cfg.SourcePort,
		DestinationPort: r.cfg.DestinationPort,
		Flags:           r.cfg.Flags,
		Payload:         payload,
	}
	r.send(ctx, "report", code.String(), p)
}

// Log sends a single event byte to the log node.
func (r *Reporter) Log(ctx context.Context, event LogEvent) {
	p := &csp.Packet{
		Priority:        csp.PriorityNormal,
		Source:          r.source,
		Destination:     r.cfg.LogAddress,
		SourcePort:      r.cfg.SourcePort,
		DestinationPort: r.cfg.LogPort,
		Flags:           r.cfg.Flags,
		Payload:         []byte{byte(event)},
	}
	r.send(ctx, "log", event.String(), p)
}

func (r *Reporter) send(ctx context.Context, kind, code string, p *csp.Packet) {
	if err := r.transport.Send(ctx, p); err != nil {
		metrics.StatusReportsTotal.WithLabelValues(kind, code, "error").Inc()
		r.logger.WithError(err).WithFields(map[string]interface{}{
			"kind": kind,
			"code": code,
		}).Warn("status send failed")
		return
	}
	metrics.StatusReportsTotal.WithLabelValues(kind, code, "ok").Inc()
	r.logger.WithField("code", code).Debugf("%s sent to %d", kind, p.Destination)
}

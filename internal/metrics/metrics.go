// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CANFramesTotal counts CAN frames by direction (rx / tx)
	CANFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satcam_can_frames_total",
			Help: "Total number of CAN frames handled by the CSP interface",
		},
		[]string{"direction"},
	)

	// PacketsReceivedTotal counts inbound CSP packets by dispatch class
	PacketsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satcam_packets_received_total",
			Help: "Total number of inbound CSP packets by class",
		},
		[]string{"class"},
	)

	// PacketsDroppedTotal counts inbound CSP packets that never reached the dispatcher
	PacketsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satcam_packets_dropped_total",
			Help: "Total number of inbound CSP packets dropped before dispatch",
		},
		[]string{"reason"},
	)

	// PacketsSentTotal counts outbound CSP packets by result
	PacketsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satcam_packets_sent_total",
			Help: "Total number of outbound CSP packets",
		},
		[]string{"result"},
	)

	// CaptureGateGrantsTotal counts capture requests; coalesced grants found a permit already pending
	CaptureGateGrantsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satcam_capture_gate_grants_total",
			Help: "Total number of capture gate grants by effect (granted / coalesced)",
		},
		[]string{"effect", "source"},
	)

	// CoordinatorCyclesTotal counts coordinator cycles by outcome
	CoordinatorCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satcam_coordinator_cycles_total",
			Help: "Total number of capture coordinator cycles by outcome",
		},
		[]string{"outcome"},
	)

	// CaptureDurationSeconds measures a full capture session
	CaptureDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "satcam_capture_duration_seconds",
			Help:    "Duration of capture sessions from start to padded bitstream",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
	)

	// CaptureStageSeconds measures the image pipeline stages
	CaptureStageSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "satcam_capture_stage_seconds",
			Help:    "Duration of image pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"stage"},
	)

	// CaptureOutputBytes tracks the size of the last compressed image
	CaptureOutputBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "satcam_capture_output_bytes",
			Help: "Size of the most recent compressed image in bytes",
		},
	)

	// StatusReportsTotal counts status reports and log events by code and result
	StatusReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satcam_status_reports_total",
			Help: "Total number of status reports and log events sent",
		},
		[]string{"kind", "code", "result"},
	)

	// ServiceRequestsTotal counts service port requests
	ServiceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satcam_service_requests_total",
			Help: "Total number of service requests by port",
		},
		[]string{"service"},
	)

	// CameraConfigured reports whether camera bring-up completed (0/1)
	CameraConfigured = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "satcam_camera_configured",
			Help: "Whether the camera hardware finished its setup phase",
		},
	)

	// CameraFramesTotal counts frames written into the live video buffer
	CameraFramesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "satcam_camera_frames_total",
			Help: "Total number of frames written into the live video buffer",
		},
	)

	// ControlRequestsTotal counts JSON-RPC requests on the control socket
	ControlRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satcam_control_requests_total",
			Help: "Total number of control socket requests by method and result",
		},
		[]string{"method", "result"},
	)
)

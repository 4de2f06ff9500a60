// Package command implements control plane command handling.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"firestige.xyz/satcam/internal/capture"
	"firestige.xyz/satcam/internal/gate"
	"firestige.xyz/satcam/internal/log"
)

// Version is reported by daemon_status.
var Version = "0.1.0"

// CaptureController is the part of the capture coordinator the control
// plane can see.
type CaptureController interface {
	Override() *capture.Override
	State() capture.State
	LastSession() *capture.Summary
}

// HandlerOptions wires the handler to the running daemon.
type HandlerOptions struct {
	Capture    CaptureController
	Configured gate.Gate
	Request    gate.Gate
	Address    uint16
	Interface  string
	// Tasks lists the running daemon tasks.
	Tasks func() []string
	Clock clock.Clock
}

// CommandHandler handles control plane commands.
type CommandHandler struct {
	opts         HandlerOptions
	shutdownFunc func() // Called by daemon_shutdown to trigger graceful stop
	startTime    time.Time
	logger       log.Logger
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(opts HandlerOptions) *CommandHandler {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &CommandHandler{
		opts:      opts,
		startTime: opts.Clock.Now(),
		logger:    log.GetLogger().WithField("component", "command"),
	}
}

// SetShutdownFunc sets the callback invoked by the daemon_shutdown command.
func (h *CommandHandler) SetShutdownFunc(fn func()) {
	h.shutdownFunc = fn
}

// Command represents a control plane command.
type Command struct {
	Method string          `json:"method"` // e.g., "capture_force", "daemon_status"
	Params json.RawMessage `json:"params"` // command-specific parameters
	ID     string          `json:"id"`     // request ID for tracking
}

// Response represents a command response.
type Response struct {
	ID     string      `json:"id"`               // matches request ID
	Result interface{} `json:"result,omitempty"` // success result
	Error  *ErrorInfo  `json:"error,omitempty"`  // error info if failed
}

// ErrorInfo represents an error in the response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal error
)

// Method names.
const (
	MethodCaptureForce   = "capture_force"
	MethodCaptureStatus  = "capture_status"
	MethodDaemonStatus   = "daemon_status"
	MethodDaemonShutdown = "daemon_shutdown"
)

// Handle processes a command and returns a response.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) Response {
	h.logger.WithFields(map[string]interface{}{"method": cmd.Method, "id": cmd.ID}).Info("handling command")

	switch cmd.Method {
	case MethodCaptureForce:
		return h.handleCaptureForce(ctx, cmd)
	case MethodCaptureStatus:
		return h.handleCaptureStatus(ctx, cmd)
	case MethodDaemonShutdown:
		return h.handleDaemonShutdown(ctx, cmd)
	case MethodDaemonStatus:
		return h.handleDaemonStatus(ctx, cmd)
	default:
		return errorResponse(cmd.ID, ErrCodeMethodNotFound, fmt.Sprintf("method %q not found", cmd.Method))
	}
}

func errorResponse(id string, code int, msg string) Response {
	return Response{
		ID:    id,
		Error: &ErrorInfo{Code: code, Message: msg},
	}
}

// handleCaptureForce arms the force override. The coordinator consumes it on
// its next idle cycle.
func (h *CommandHandler) handleCaptureForce(_ context.Context, cmd Command) Response {
	if h.opts.Capture == nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, "capture coordinator not available")
	}

	status := "armed"
	if !h.opts.Capture.Override().Arm() {
		status = "already_armed"
	}
	h.logger.WithField("status", status).Info("capture override armed")

	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"status": status,
		},
	}
}

// CaptureStatus is the result of capture_status.
type CaptureStatus struct {
	State       string           `json:"state"`
	Override    string           `json:"override"`
	Configured  string           `json:"configured"`
	Request     string           `json:"request"`
	LastSession *capture.Summary `json:"last_session,omitempty"`
}

func (h *CommandHandler) handleCaptureStatus(_ context.Context, cmd Command) Response {
	if h.opts.Capture == nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, "capture coordinator not available")
	}

	st := CaptureStatus{
		State:       h.opts.Capture.State().String(),
		Override:    h.opts.Capture.Override().State().String(),
		Configured:  gateState(h.opts.Configured),
		Request:     gateState(h.opts.Request),
		LastSession: h.opts.Capture.LastSession(),
	}
	return Response{ID: cmd.ID, Result: st}
}

func gateState(g gate.Gate) string {
	if g == nil {
		return "unknown"
	}
	return g.State().String()
}

// handleDaemonShutdown triggers graceful daemon shutdown via the registered callback.
func (h *CommandHandler) handleDaemonShutdown(_ context.Context, cmd Command) Response {
	if h.shutdownFunc == nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, "shutdown handler not registered")
	}

	h.logger.Info("daemon_shutdown command received, initiating graceful shutdown")
	go h.shutdownFunc() // Non-blocking: let the response be sent first

	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"status": "shutting_down",
		},
	}
}

// handleDaemonStatus returns daemon status information.
func (h *CommandHandler) handleDaemonStatus(_ context.Context, cmd Command) Response {
	var tasks []string
	if h.opts.Tasks != nil {
		tasks = h.opts.Tasks()
	}
	uptime := h.opts.Clock.Since(h.startTime)

	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"version":    Version,
			"uptime_sec": int64(uptime / time.Second),
			"address":    h.opts.Address,
			"interface":  h.opts.Interface,
			"configured": gateState(h.opts.Configured),
			"tasks":      tasks,
			"task_count": len(tasks),
		},
	}
}

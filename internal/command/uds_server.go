package command

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/atomic"

	"firestige.xyz/satcam/internal/log"
	"firestige.xyz/satcam/internal/metrics"
)

const (
	// maxRequestSize bounds one newline-delimited request.
	maxRequestSize = 64 * 1024
	// connIdleTimeout closes control connections that stop sending requests.
	connIdleTimeout = 2 * time.Minute
)

// UDSServer serves newline-delimited JSON-RPC 2.0 requests on a Unix
// Domain Socket. Each connection may carry any number of requests.
type UDSServer struct {
	socketPath string
	handler    *CommandHandler
	logger     log.Logger

	listener net.Listener
	stopped  atomic.Bool
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// NewUDSServer creates a new UDS server.
func NewUDSServer(socketPath string, handler *CommandHandler) *UDSServer {
	return &UDSServer{
		socketPath: socketPath,
		handler:    handler,
		conns:      make(map[net.Conn]struct{}),
		logger:     log.GetLogger().WithField("component", "uds"),
	}
}

// Start listens on the socket and blocks until ctx is cancelled.
func (s *UDSServer) Start(ctx context.Context) error {
	// A stale socket from a crashed daemon blocks Listen
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.WithField("socket", s.socketPath).Info("uds server started")
	go s.acceptLoop(ctx, listener)

	<-ctx.Done()
	s.logger.WithField("reason", ctx.Err()).Info("uds server stopping")
	return s.Stop()
}

func (s *UDSServer) acceptLoop(ctx context.Context, listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.stopped.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.WithError(err).Error("failed to accept connection")
			continue
		}

		s.mu.Lock()
		if s.stopped.Load() {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.serveConn(ctx, conn)
	}
}

func (s *UDSServer) serveConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxRequestSize)
	encoder := json.NewEncoder(conn)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(connIdleTimeout)); err != nil {
			return
		}
		if !scanner.Scan() {
			break
		}
		if err := encoder.Encode(s.serve(ctx, scanner.Bytes())); err != nil {
			s.logger.WithError(err).Warn("failed to send response")
			return
		}
	}

	if err := scanner.Err(); err != nil && !s.stopped.Load() {
		s.logger.WithError(err).Debug("uds connection closed with error")
	}
}

// serve decodes one request line and runs it through the handler.
func (s *UDSServer) serve(ctx context.Context, line []byte) JSONRPCResponse {
	var req JSONRPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		metrics.ControlRequestsTotal.WithLabelValues("", "parse_error").Inc()
		return JSONRPCResponse{
			JSONRPC: "2.0",
			Error:   &ErrorInfo{Code: ErrCodeParseError, Message: fmt.Sprintf("parse error: %v", err)},
		}
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		metrics.ControlRequestsTotal.WithLabelValues(req.Method, "invalid").Inc()
		return JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &ErrorInfo{Code: ErrCodeInvalidRequest, Message: "invalid request"},
		}
	}

	resp := s.handler.Handle(ctx, Command{
		Method: req.Method,
		Params: req.Params,
		ID:     fmt.Sprintf("%v", req.ID),
	})

	result := "ok"
	if resp.Error != nil {
		result = "error"
	}
	metrics.ControlRequestsTotal.WithLabelValues(req.Method, result).Inc()
	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  resp.Result,
		Error:   resp.Error,
	}
}

// Stop closes the listener and every open connection, then removes the
// socket file. It is safe to call more than once.
func (s *UDSServer) Stop() error {
	if s.stopped.Swap(true) {
		return nil
	}

	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	os.RemoveAll(s.socketPath)

	s.logger.Info("uds server stopped")
	return nil
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

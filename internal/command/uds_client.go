package command

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/atomic"
)

// UDSClient is a JSON-RPC client over Unix Domain Socket.
type UDSClient struct {
	socketPath string
	timeout    time.Duration
	seq        atomic.Uint64
}

// NewUDSClient creates a new UDS client.
func NewUDSClient(socketPath string, timeout time.Duration) *UDSClient {
	if timeout == 0 {
		timeout = 10 * time.Second // Default timeout
	}
	return &UDSClient{
		socketPath: socketPath,
		timeout:    timeout,
	}
}

// Call sends one JSON-RPC request and waits for its response.
func (c *UDSClient) Call(ctx context.Context, method string, params interface{}) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket %s: %w", c.socketPath, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	req := JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		ID:      c.nextID(),
	}
	if params != nil {
		if req.Params, err = json.Marshal(params); err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	var resp JSONRPCResponse
	if err := json.NewDecoder(bufio.NewReader(conn)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	id := fmt.Sprintf("%v", resp.ID)
	if id != req.ID {
		return nil, fmt.Errorf("response ID mismatch: expected %v, got %v", req.ID, id)
	}

	return &Response{ID: id, Result: resp.Result, Error: resp.Error}, nil
}

func (c *UDSClient) nextID() string {
	return fmt.Sprintf("satcamctl-%d-%d", os.Getpid(), c.seq.Inc())
}

// CaptureForce arms the capture override.
func (c *UDSClient) CaptureForce(ctx context.Context) (*Response, error) {
	return c.Call(ctx, MethodCaptureForce, nil)
}

// CaptureStatus returns the coordinator state and the last session.
func (c *UDSClient) CaptureStatus(ctx context.Context) (*Response, error) {
	return c.Call(ctx, MethodCaptureStatus, nil)
}

// DaemonStatus returns daemon status information.
func (c *UDSClient) DaemonStatus(ctx context.Context) (*Response, error) {
	return c.Call(ctx, MethodDaemonStatus, nil)
}

// DaemonShutdown asks the daemon to stop gracefully.
func (c *UDSClient) DaemonShutdown(ctx context.Context) (*Response, error) {
	return c.Call(ctx, MethodDaemonShutdown, nil)
}

// Ping checks that the daemon answers on its socket.
func (c *UDSClient) Ping(ctx context.Context) error {
	resp, err := c.DaemonStatus(ctx)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("daemon_status: %s", resp.Error.Message)
	}
	return nil
}

package command

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"firestige.xyz/satcam/internal/metrics"
)

func startServer(t *testing.T, name string) (string, context.CancelFunc, chan error) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), name)
	handler, _, _ := newTestHandler()
	server := NewUDSServer(socketPath, handler)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(socketPath); err == nil {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("server did not create socket")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return socketPath, cancel, errCh
}

func TestUDSServerClient_Integration(t *testing.T) {
	socketPath, cancel, errCh := startServer(t, "test.sock")
	defer cancel()

	client := NewUDSClient(socketPath, 5*time.Second)

	t.Run("capture_force", func(t *testing.T) {
		resp, err := client.CaptureForce(context.Background())
		if err != nil {
			t.Fatalf("CaptureForce failed: %v", err)
		}
		if resp.Error != nil {
			t.Errorf("unexpected error: %v", resp.Error.Message)
		}
		result, ok := resp.Result.(map[string]interface{})
		if !ok {
			t.Fatal("result is not a map")
		}
		if result["status"] != "armed" {
			t.Errorf("status = %v, want armed", result["status"])
		}
	})

	t.Run("capture_status", func(t *testing.T) {
		resp, err := client.CaptureStatus(context.Background())
		if err != nil {
			t.Fatalf("CaptureStatus failed: %v", err)
		}
		result, ok := resp.Result.(map[string]interface{})
		if !ok {
			t.Fatal("result is not a map")
		}
		if result["override"] != "armed" {
			t.Errorf("override = %v, want armed", result["override"])
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := client.Ping(context.Background()); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("unknown_method", func(t *testing.T) {
		resp, err := client.Call(context.Background(), "unknown.method", nil)
		if err != nil {
			t.Fatalf("Call failed: %v", err)
		}
		if resp.Error == nil {
			t.Fatal("expected error for unknown method")
		}
		if resp.Error.Code != ErrCodeMethodNotFound {
			t.Errorf("error code = %d, want %d", resp.Error.Code, ErrCodeMethodNotFound)
		}
	})

	cancel()

	select {
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			t.Errorf("server error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("server didn't stop in time")
	}

	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Error("socket file not removed after server stop")
	}
}

func TestUDSServer_InvalidRequests(t *testing.T) {
	socketPath, cancel, _ := startServer(t, "test-invalid.sock")
	defer cancel()

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	r := bufio.NewReader(conn)

	for _, tc := range []struct {
		line string
		want string
	}{
		{"not json\n", "-32700"},
		{`{"jsonrpc":"1.0","method":"daemon_status","id":1}` + "\n", "-32600"},
	} {
		if _, err := conn.Write([]byte(tc.line)); err != nil {
			t.Fatalf("write: %v", err)
		}
		resp, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !strings.Contains(resp, tc.want) {
			t.Errorf("response %q does not carry code %s", resp, tc.want)
		}
	}
}

func TestUDSServer_ServeCountsRequests(t *testing.T) {
	handler, _, _ := newTestHandler()
	server := NewUDSServer(filepath.Join(t.TempDir(), "unused.sock"), handler)

	ok := metrics.ControlRequestsTotal.WithLabelValues(MethodCaptureStatus, "ok")
	failed := metrics.ControlRequestsTotal.WithLabelValues("no_such_method", "error")
	okBefore, failedBefore := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

	resp := server.serve(context.Background(), []byte(`{"jsonrpc":"2.0","method":"capture_status","id":7}`))
	if resp.Error != nil {
		t.Fatalf("capture_status failed: %+v", resp.Error)
	}
	if resp.ID != float64(7) {
		t.Errorf("expected id 7 echoed back, got %v", resp.ID)
	}

	resp = server.serve(context.Background(), []byte(`{"jsonrpc":"2.0","method":"no_such_method","id":"x"}`))
	if resp.Error == nil || resp.Error.Code != ErrCodeMethodNotFound {
		t.Errorf("expected method not found, got %+v", resp.Error)
	}

	if got := testutil.ToFloat64(ok) - okBefore; got != 1 {
		t.Errorf("expected 1 ok capture_status request, got %v", got)
	}
	if got := testutil.ToFloat64(failed) - failedBefore; got != 1 {
		t.Errorf("expected 1 failed request, got %v", got)
	}

	// Stop before Start is a no-op and repeatable
	if err := server.Stop(); err != nil {
		t.Errorf("stop: %v", err)
	}
	if err := server.Stop(); err != nil {
		t.Errorf("second stop: %v", err)
	}
}

func TestUDSClient_ConnectionError(t *testing.T) {
	client := NewUDSClient(filepath.Join(t.TempDir(), "missing.sock"), time.Second)

	if _, err := client.DaemonStatus(context.Background()); err == nil {
		t.Error("expected connection error")
	}
}

func TestUDSClient_Timeout(t *testing.T) {
	socketPath, cancel, _ := startServer(t, "test-timeout.sock")
	defer cancel()

	client := NewUDSClient(socketPath, time.Nanosecond)
	if _, err := client.DaemonStatus(context.Background()); err == nil {
		t.Error("expected timeout error")
	}
}

func TestUDSServer_MultipleConnections(t *testing.T) {
	socketPath, cancel, _ := startServer(t, "test-multi.sock")
	defer cancel()

	errCh := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func(client *UDSClient) {
			_, err := client.DaemonStatus(context.Background())
			errCh <- err
		}(NewUDSClient(socketPath, 5*time.Second))
	}

	for i := 0; i < 5; i++ {
		if err := <-errCh; err != nil {
			t.Errorf("client %d failed: %v", i, err)
		}
	}
}

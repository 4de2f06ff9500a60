package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"firestige.xyz/satcam/internal/can"
	"firestige.xyz/satcam/internal/command"
	"firestige.xyz/satcam/internal/csp"
	"firestige.xyz/satcam/internal/netstack"
)

// MockClient implements ControlClient
type MockClient struct {
	mock.Mock
}

func (m *MockClient) call(ctx context.Context, method string) (*command.Response, error) {
	args := m.MethodCalled(method, ctx)
	resp, _ := args.Get(0).(*command.Response)
	return resp, args.Error(1)
}

func (m *MockClient) CaptureForce(ctx context.Context) (*command.Response, error) {
	return m.call(ctx, "CaptureForce")
}

func (m *MockClient) CaptureStatus(ctx context.Context) (*command.Response, error) {
	return m.call(ctx, "CaptureStatus")
}

func (m *MockClient) DaemonStatus(ctx context.Context) (*command.Response, error) {
	return m.call(ctx, "DaemonStatus")
}

func (m *MockClient) DaemonShutdown(ctx context.Context) (*command.Response, error) {
	return m.call(ctx, "DaemonShutdown")
}

func okResponse(result interface{}) *command.Response {
	return &command.Response{ID: "1", Result: result}
}

func TestRunStatus_Success(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("DaemonStatus", mock.Anything).Return(okResponse(map[string]interface{}{"version": "0.1.0"}), nil)

	var buf bytes.Buffer
	err := runStatus(context.Background(), mockClient, &buf)

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), `"version": "0.1.0"`)
	mockClient.AssertExpectations(t)
}

func TestRunStatus_Unreachable(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("DaemonStatus", mock.Anything).Return(nil, errors.New("connection refused"))

	var buf bytes.Buffer
	err := runStatus(context.Background(), mockClient, &buf)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Empty(t, buf.String())
}

func TestRunCaptureForce(t *testing.T) {
	tests := []struct {
		name           string
		resp           *command.Response
		callErr        error
		expectedError  string
		expectedOutput string
	}{
		{
			name:           "armed",
			resp:           okResponse(map[string]interface{}{"status": "armed"}),
			expectedOutput: "✓ Override armed",
		},
		{
			name:           "already armed",
			resp:           okResponse(map[string]interface{}{"status": "already_armed"}),
			expectedOutput: "Override already armed",
		},
		{
			name: "rpc error",
			resp: &command.Response{ID: "1", Error: &command.ErrorInfo{
				Code: command.ErrCodeInternalError, Message: "capture coordinator not available",
			}},
			expectedError: "capture coordinator not available",
		},
		{
			name:          "daemon not running",
			callErr:       errors.New("dial unix: no such file"),
			expectedError: "not running",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockClient := new(MockClient)
			mockClient.On("CaptureForce", mock.Anything).Return(tt.resp, tt.callErr)

			var buf bytes.Buffer
			err := runCaptureForce(context.Background(), mockClient, &buf)

			if tt.expectedError != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
			} else {
				assert.NoError(t, err)
				assert.Contains(t, buf.String(), tt.expectedOutput)
			}
			mockClient.AssertExpectations(t)
		})
	}
}

func TestRunStop_ViaSocket(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("DaemonShutdown", mock.Anything).Return(okResponse(map[string]interface{}{"status": "shutting_down"}), nil)

	signalled := false
	var buf bytes.Buffer
	err := runStop(context.Background(), mockClient, &buf, func() error {
		signalled = true
		return nil
	})

	assert.NoError(t, err)
	assert.False(t, signalled)
	assert.Contains(t, buf.String(), "✓ Shutdown initiated")
}

func TestRunStop_FallsBackToPIDFile(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("DaemonShutdown", mock.Anything).Return(nil, errors.New("connection refused"))

	signalled := false
	var buf bytes.Buffer
	err := runStop(context.Background(), mockClient, &buf, func() error {
		signalled = true
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, signalled)
	assert.Contains(t, buf.String(), "✓ Daemon stopped")
}

func TestRunStop_NothingRunning(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("DaemonShutdown", mock.Anything).Return(nil, errors.New("connection refused"))

	var buf bytes.Buffer
	err := runStop(context.Background(), mockClient, &buf, func() error {
		return errors.New("satcam: daemon not running")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "daemon not running")
}

func TestRunValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "satcam.yml")
	require.NoError(t, os.WriteFile(path, []byte(`satcam:
  node:
    address: 0x1C1F
    hostname: cam-1
  camera:
    quality: HIGH
    width: 64
    height: 48
`), 0644))

	var buf bytes.Buffer
	err := runValidate(path, &buf)

	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "satcam:")
	assert.Contains(t, out, "hostname: cam-1")
	assert.Contains(t, out, "quality: high")
	assert.Contains(t, out, "period: 950ms")
}

func TestRunValidate_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "satcam.yml")
	require.NoError(t, os.WriteFile(path, []byte("satcam:\n  camera:\n    quality: ultra\n"), 0644))

	var buf bytes.Buffer
	err := runValidate(path, &buf)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID")
	assert.Contains(t, err.Error(), "camera.quality")
	assert.Empty(t, buf.String())
}

func TestRunSendTrigger_CAN(t *testing.T) {
	bus := can.NewVirtualBus()
	ground, err := netstack.NewCANInterface(bus.Open(0), netstack.CANOptions{Address: 0x1C3F})
	require.NoError(t, err)
	defer ground.Close()
	camera, err := netstack.NewCANInterface(bus.Open(0), netstack.CANOptions{Address: 0x1C1F})
	require.NoError(t, err)
	defer camera.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var buf bytes.Buffer
	opts := triggerOptions{src: 0x1C3F, dst: 0x1C1F, port: 40}
	require.NoError(t, runSendTrigger(ctx, ground, opts, &buf))
	assert.Contains(t, buf.String(), "✓ Trigger sent on can")

	p, err := camera.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, csp.KindCaptureTrigger, csp.Classify(p).Kind())
	assert.Equal(t, uint16(0x1C3F), p.Source)
	assert.Equal(t, uint8(40), p.DestinationPort)
}

func TestRunSendTrigger_RejectsServicePort(t *testing.T) {
	bus := can.NewVirtualBus()
	ground, err := netstack.NewCANInterface(bus.Open(0), netstack.CANOptions{Address: 0x1C3F})
	require.NoError(t, err)
	defer ground.Close()

	var buf bytes.Buffer
	err = runSendTrigger(context.Background(), ground, triggerOptions{dst: 0x1C1F, port: csp.PortPing}, &buf)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "service port")
	assert.Empty(t, buf.String())
}

func TestOpenTriggerInterface_UnknownLink(t *testing.T) {
	_, err := openTriggerInterface(triggerOptions{via: "radio"})
	assert.Error(t, err)
}

// Cobra command integration with an injected client
func TestCaptureForceCmd_Execute(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("CaptureForce", mock.Anything).Return(okResponse(map[string]interface{}{"status": "armed"}), nil)

	original := newControlClient
	newControlClient = func() ControlClient { return mockClient }
	defer func() { newControlClient = original }()

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"capture", "force", "-s", filepath.Join(t.TempDir(), "satcam.sock")})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ Override armed")
	mockClient.AssertExpectations(t)
}

package cmd

import (
	"context"
	"time"

	"firestige.xyz/satcam/internal/command"
)

// ControlClient is the subset of the UDS client the commands need.
type ControlClient interface {
	CaptureForce(ctx context.Context) (*command.Response, error)
	CaptureStatus(ctx context.Context) (*command.Response, error)
	DaemonStatus(ctx context.Context) (*command.Response, error)
	DaemonShutdown(ctx context.Context) (*command.Response, error)
}

// newControlClient is swapped out by tests.
var newControlClient = func() ControlClient {
	return command.NewUDSClient(socketPath, 10*time.Second)
}

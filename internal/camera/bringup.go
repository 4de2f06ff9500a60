package camera

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"firestige.xyz/satcam/internal/gate"
	"firestige.xyz/satcam/internal/log"
	"firestige.xyz/satcam/internal/metrics"
)

// BringUpOptions configures the hardware setup task.
type BringUpOptions struct {
	SetupDelay  time.Duration
	DMAInterval time.Duration
	Clock       clock.Clock
}

// BringUp configures the sensor: after SetupDelay it starts the DMA
// producer, grants ready once and keeps the producer running until ctx is
// done.
func BringUp(ctx context.Context, fb *Framebuffer, ready gate.Gate, opts BringUpOptions) error {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	if opts.DMAInterval <= 0 {
		opts.DMAInterval = 40 * time.Millisecond
	}
	logger := log.GetLogger().WithField("component", "camera")

	logger.Infof("camera setup, ready in %s", opts.SetupDelay)
	t := clk.Timer(opts.SetupDelay)
	select {
	case <-ctx.Done():
		t.Stop()
		return nil
	case <-t.C:
	}

	// First frame lands before anyone may capture.
	fb.Produce()
	ready.Grant()
	metrics.CameraConfigured.Set(1)
	logger.Info("camera configured")
	defer metrics.CameraConfigured.Set(0)

	return fb.Run(ctx, clk, opts.DMAInterval)
}

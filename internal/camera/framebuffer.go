// Package camera simulates the image sensor: a live video buffer kept
// current by a DMA producer, the hardware bring-up task and persistence of
// finished images.
package camera

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"firestige.xyz/satcam/internal/metrics"
)

// Framebuffer is the live RGBA video buffer. The producer overwrites it in
// whole frames; readers see either the previous or the next frame.
type Framebuffer struct {
	width  int
	height int

	mu    sync.Mutex // held for the duration of a DMA write
	pix   []byte
	frame uint64
}

// NewFramebuffer allocates a width x height RGBA buffer.
func NewFramebuffer(width, height int) *Framebuffer {
	return &Framebuffer{
		width:  width,
		height: height,
		pix:    make([]byte, width*height*4),
	}
}

// Size returns the frame length in bytes.
func (fb *Framebuffer) Size() int { return len(fb.pix) }

// Frames returns the number of completed DMA writes.
func (fb *Framebuffer) Frames() uint64 {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.frame
}

// Flush returns once any in-flight DMA write has completed.
func (fb *Framebuffer) Flush() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
}

// CopyFrame copies the current frame into dst and returns the bytes copied.
func (fb *Framebuffer) CopyFrame(dst []byte) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return copy(dst, fb.pix)
}

// Produce writes one synthetic frame: a gradient that drifts every frame.
func (fb *Framebuffer) Produce() {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	shift := byte(fb.frame)
	for row := 0; row < fb.height; row++ {
		for col := 0; col < fb.width; col++ {
			i := (row*fb.width + col) * 4
			fb.pix[i] = byte(col) + shift
			fb.pix[i+1] = byte(row) + shift
			fb.pix[i+2] = byte(row+col) ^ shift
			fb.pix[i+3] = 0xFF
		}
	}
	fb.frame++
	metrics.CameraFramesTotal.Inc()
}

// Run produces a frame every interval until ctx is done.
func (fb *Framebuffer) Run(ctx context.Context, clk clock.Clock, interval time.Duration) error {
	if clk == nil {
		clk = clock.New()
	}
	t := clk.Ticker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			fb.Produce()
		}
	}
}

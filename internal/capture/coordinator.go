// Package capture coordinates image captures: it waits for the camera to be
// configured, consumes capture requests and drives a snapshot through the
// image pipeline while reporting progress to the ground.
package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/atomic"

	"firestige.xyz/satcam/internal/codec"
	"firestige.xyz/satcam/internal/core"
	"firestige.xyz/satcam/internal/gate"
	"firestige.xyz/satcam/internal/log"
	"firestige.xyz/satcam/internal/metrics"
	"firestige.xyz/satcam/internal/status"
	"firestige.xyz/satcam/internal/tick"
)

// maxFiller bounds the filler symbols needed to byte-align a stream.
const maxFiller = 8

// Outcome is the result of one coordinator cycle.
type Outcome int

const (
	NotConfigured Outcome = iota
	Idle
	Forced
	Captured
	Degraded
)

func (o Outcome) String() string {
	switch o {
	case NotConfigured:
		return "not_configured"
	case Idle:
		return "idle"
	case Forced:
		return "forced"
	case Captured:
		return "captured"
	case Degraded:
		return "degraded"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// State is the phase the coordinator is in.
type State int32

const (
	AwaitingConfigured State = iota
	AwaitingCapture
	Capturing
)

func (s State) String() string {
	switch s {
	case AwaitingCapture:
		return "awaiting_capture"
	case Capturing:
		return "capturing"
	default:
		return "awaiting_configured"
	}
}

// FrameSource is the live video buffer.
type FrameSource interface {
	// Flush waits for any in-flight DMA write.
	Flush()
	// CopyFrame copies the current frame into dst.
	CopyFrame(dst []byte) int
	// Size is the frame length in bytes.
	Size() int
}

// Bitstream is an encoded image that may need padding.
type Bitstream interface {
	Aligned() bool
	AddFiller()
	Bytes() []byte
}

// Encoder compresses a snapshot.
type Encoder interface {
	Encode(src []byte, rec codec.StageRecorder) (Bitstream, error)
}

// CodecEncoder adapts a codec.Encoder.
func CodecEncoder(e *codec.Encoder) Encoder {
	return codecEncoder{e}
}

type codecEncoder struct{ e *codec.Encoder }

func (c codecEncoder) Encode(src []byte, rec codec.StageRecorder) (Bitstream, error) {
	w, err := c.e.Encode(src, rec)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Reporter sends status reports and log events.
type Reporter interface {
	Report(ctx context.Context, code status.Code, extra []byte)
	Log(ctx context.Context, event status.LogEvent)
}

// Store persists finished images.
type Store interface {
	Save(seq uint64, data []byte) (string, error)
}

// Options configures a Coordinator.
type Options struct {
	Configured gate.Gate
	Capture    gate.Gate
	Override   *Override
	Reporter   Reporter
	Frames     FrameSource
	Encoder    Encoder
	Ticks      *tick.Source
	// Store is optional.
	Store Store

	Period        time.Duration
	GateTimeout   time.Duration
	EncodeRetries int
	RetryDelay    time.Duration
	Clock         clock.Clock
}

// Coordinator is the capture task.
type Coordinator struct {
	opts   Options
	clk    clock.Clock
	work   []byte
	logger log.Logger

	seq          uint64
	forcePending bool

	state atomic.Int32

	mu   sync.RWMutex
	last *Summary
}

// NewCoordinator validates opts and allocates the snapshot buffer.
func NewCoordinator(opts Options) (*Coordinator, error) {
	switch {
	case opts.Configured == nil || opts.Capture == nil:
		return nil, fmt.Errorf("capture: both gates are required")
	case opts.Reporter == nil:
		return nil, fmt.Errorf("capture: reporter is required")
	case opts.Frames == nil || opts.Encoder == nil:
		return nil, fmt.Errorf("capture: frame source and encoder are required")
	}
	if opts.Override == nil {
		opts.Override = NewOverride()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Ticks == nil {
		opts.Ticks = tick.NewSource(opts.Clock, time.Millisecond)
	}
	if opts.Period <= 0 {
		opts.Period = 950 * time.Millisecond
	}
	if opts.GateTimeout <= 0 {
		opts.GateTimeout = time.Millisecond
	}
	if opts.EncodeRetries < 0 {
		opts.EncodeRetries = 0
	}
	return &Coordinator{
		opts:   opts,
		clk:    opts.Clock,
		work:   make([]byte, opts.Frames.Size()),
		logger: log.GetLogger().WithField("task", "capture"),
	}, nil
}

// Override returns the force override the coordinator consumes.
func (c *Coordinator) Override() *Override { return c.opts.Override }

// State returns the current phase.
func (c *Coordinator) State() State { return State(c.state.Load()) }

// LastSession returns the summary of the most recent finished capture, or
// nil if none has run.
func (c *Coordinator) LastSession() *Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return nil
	}
	cp := *c.last
	return &cp
}

// Run executes a cycle every period until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.WithField("period", c.opts.Period).Info("capture coordinator started")
	defer c.logger.Info("capture coordinator stopped")

	t := c.clk.Ticker(c.opts.Period)
	defer t.Stop()
	for {
		c.Step(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Step runs one cycle.
func (c *Coordinator) Step(ctx context.Context) Outcome {
	outcome := c.step(ctx)
	metrics.CoordinatorCyclesTotal.WithLabelValues(outcome.String()).Inc()
	return outcome
}

func (c *Coordinator) step(ctx context.Context) Outcome {
	c.setState(AwaitingConfigured)
	if !c.opts.Configured.TryAcquire(ctx, c.opts.GateTimeout) {
		c.logger.Info("camera is not configured")
		return NotConfigured
	}
	defer c.opts.Configured.Grant()

	c.setState(AwaitingCapture)
	if !c.opts.Capture.TryAcquire(ctx, c.opts.GateTimeout) {
		if c.opts.Override.Consume() {
			effect := "granted"
			if !c.opts.Capture.Grant() {
				effect = "coalesced"
			}
			metrics.CaptureGateGrantsTotal.WithLabelValues(effect, "override").Inc()
			c.forcePending = true
			c.logger.Info("forced capture scheduled")
			return Forced
		}
		c.logger.Info("camera idle")
		return Idle
	}

	c.setState(Capturing)
	defer c.setState(AwaitingConfigured)
	return c.capture(context.WithoutCancel(ctx))
}

func (c *Coordinator) setState(s State) { c.state.Store(int32(s)) }

// capture runs one session to completion.
func (c *Coordinator) capture(ctx context.Context) Outcome {
	c.seq++
	ticks := c.opts.Ticks
	sess := &Session{Seq: c.seq, Forced: c.forcePending, StartTick: ticks.Now()}
	c.forcePending = false
	logger := c.logger.WithFields(map[string]interface{}{"seq": sess.Seq, "forced": sess.Forced})

	c.opts.Reporter.Report(ctx, status.CaptureStarting, nil)
	c.opts.Reporter.Log(ctx, status.CaptureBegun)
	logger.Info("capture started")

	c.opts.Frames.Flush()
	c.opts.Frames.CopyFrame(c.work)

	bs, filler, err := c.encode(sess)
	sess.StopTick = ticks.Now()
	elapsed := ticks.Duration(sess.StopTick.Sub(sess.StartTick))
	metrics.CaptureDurationSeconds.Observe(elapsed.Seconds())

	if err != nil {
		sess.Err = err
		c.finish(sess, "")
		c.opts.Reporter.Report(ctx, status.CaptureDegraded, sess.degradedPayload(ticks))
		c.opts.Reporter.Log(ctx, status.CaptureFailed)
		logger.WithError(err).Error("capture degraded")
		return Degraded
	}

	sess.Output = bs.Bytes()
	sess.OutputSize = len(sess.Output)
	sess.Filler = filler
	for i, ms := range sess.stageMillis(ticks) {
		metrics.CaptureStageSeconds.WithLabelValues(sess.Stages[i].Name).Observe(float64(ms) / 1000)
	}
	metrics.CaptureOutputBytes.Set(float64(sess.OutputSize))

	var path string
	if c.opts.Store != nil {
		if path, err = c.opts.Store.Save(sess.Seq, sess.Output); err != nil {
			logger.WithError(err).Warn("save image failed")
		}
	}
	c.finish(sess, path)

	c.opts.Reporter.Report(ctx, status.CaptureDone, sess.donePayload(ticks))
	c.opts.Reporter.Log(ctx, status.CaptureFinished)
	logger.WithFields(map[string]interface{}{
		"elapsed": elapsed,
		"bytes":   sess.OutputSize,
		"filler":  filler,
	}).Info("capture done")
	return Captured
}

// encode compresses the snapshot and pads it, retrying the pair on the
// same snapshot up to EncodeRetries times.
func (c *Coordinator) encode(sess *Session) (Bitstream, int, error) {
	var (
		out    Bitstream
		filler int
	)
	attempt := 0
	op := func() error {
		attempt++
		sess.Stages = sess.Stages[:0]
		bs, err := c.opts.Encoder.Encode(c.work, stageRecorder{ticks: c.opts.Ticks, s: sess})
		if err != nil {
			return err
		}
		n, err := pad(bs)
		if err != nil {
			return err
		}
		out, filler = bs, n
		return nil
	}
	notify := func(err error, next time.Duration) {
		c.logger.WithError(err).Warnf("encode attempt %d failed, retrying in %s", attempt, next)
	}

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(c.opts.RetryDelay), uint64(c.opts.EncodeRetries))
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, 0, fmt.Errorf("%w after %d attempts: %w", core.ErrEncodeFailed, attempt, err)
	}
	return out, filler, nil
}

// pad appends filler symbols until bs is byte aligned.
func pad(bs Bitstream) (int, error) {
	n := 0
	for !bs.Aligned() {
		if n == maxFiller {
			return n, core.ErrNotAligned
		}
		bs.AddFiller()
		n++
	}
	return n, nil
}

func (c *Coordinator) finish(sess *Session, path string) {
	sum := sess.summary(c.opts.Ticks, path)
	c.mu.Lock()
	c.last = sum
	c.mu.Unlock()
}

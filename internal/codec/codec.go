// Package codec compresses RGBA snapshots into a bit-packed image stream.
//
// The pipeline runs four stages, each reported to a StageRecorder when it
// finishes:
//
//	ycbcr    RGBA to Y, Cb and Cr planes; chroma is 4:2:0 below high quality
//	diff     each row minus the row above, modulo 256
//	entropy  zstd over the concatenated planes
//	pack     2-bit quality tag, 32-bit length, compressed bytes
//
// The packed stream is not byte aligned; callers pad it with filler bits.
package codec

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/klauspost/compress/zstd"

	"firestige.xyz/satcam/internal/codec/bitstream"
	"firestige.xyz/satcam/internal/core"
)

// Stage names reported to the StageRecorder, in order.
const (
	StageYCbCr   = "ycbcr"
	StageDiff    = "diff"
	StageEntropy = "entropy"
	StagePack    = "pack"
)

// Stages lists the pipeline stages in execution order.
var Stages = []string{StageYCbCr, StageDiff, StageEntropy, StagePack}

const (
	qualityBits = 2
	lengthBits  = 32
)

// Quality selects chroma subsampling and the zstd level.
type Quality uint8

const (
	QualityLow Quality = iota
	QualityMid
	QualityHigh
)

// ParseQuality accepts low, mid and high.
func ParseQuality(s string) (Quality, error) {
	switch strings.ToLower(s) {
	case "low":
		return QualityLow, nil
	case "mid", "":
		return QualityMid, nil
	case "high":
		return QualityHigh, nil
	default:
		return 0, fmt.Errorf("unknown quality %q", s)
	}
}

func (q Quality) String() string {
	switch q {
	case QualityLow:
		return "low"
	case QualityMid:
		return "mid"
	case QualityHigh:
		return "high"
	default:
		return fmt.Sprintf("quality(%d)", uint8(q))
	}
}

func (q Quality) subsampled() bool { return q != QualityHigh }

func (q Quality) level() zstd.EncoderLevel {
	switch q {
	case QualityLow:
		return zstd.SpeedFastest
	case QualityHigh:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedDefault
	}
}

// StageRecorder is told when each pipeline stage completes.
type StageRecorder interface {
	Mark(stage string)
}

type nopRecorder struct{}

func (nopRecorder) Mark(string) {}

// Encoder compresses frames of a fixed geometry. It is safe for use by one
// goroutine at a time.
type Encoder struct {
	width   int
	height  int
	quality Quality
	zenc    *zstd.Encoder
}

// NewEncoder creates an encoder for width x height RGBA frames.
func NewEncoder(width, height int, q Quality) (*Encoder, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame geometry %dx%d", width, height)
	}
	zenc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(q.level()), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &Encoder{width: width, height: height, quality: q, zenc: zenc}, nil
}

// FrameSize returns the expected RGBA input length.
func (e *Encoder) FrameSize() int { return e.width * e.height * 4 }

// Quality returns the configured quality.
func (e *Encoder) Quality() Quality { return e.quality }

// Encode compresses an RGBA frame. The returned stream usually needs
// padding before it is byte aligned.
func (e *Encoder) Encode(src []byte, rec StageRecorder) (*bitstream.Writer, error) {
	if rec == nil {
		rec = nopRecorder{}
	}
	if len(src) != e.FrameSize() {
		return nil, fmt.Errorf("%w: frame has %d bytes, want %d", core.ErrEncodeFailed, len(src), e.FrameSize())
	}

	planes := toYCbCr(src, e.width, e.height, e.quality.subsampled())
	rec.Mark(StageYCbCr)

	raw := make([]byte, 0, len(planes[0].pix)+len(planes[1].pix)+len(planes[2].pix))
	for _, p := range planes {
		raw = append(raw, p.diff()...)
	}
	rec.Mark(StageDiff)

	compressed := e.zenc.EncodeAll(raw, nil)
	rec.Mark(StageEntropy)

	w := bitstream.NewWriter(len(compressed) + 6)
	w.WriteBits(uint64(e.quality), qualityBits)
	w.WriteBits(uint64(len(compressed)), lengthBits)
	w.WriteBytes(compressed)
	rec.Mark(StagePack)
	return w, nil
}

// Close releases the zstd encoder.
func (e *Encoder) Close() error {
	return e.zenc.Close()
}

type plane struct {
	width  int
	height int
	pix    []byte
}

func toYCbCr(src []byte, width, height int, subsample bool) [3]plane {
	cw, ch := width, height
	if subsample {
		cw, ch = (width+1)/2, (height+1)/2
	}
	y := plane{width: width, height: height, pix: make([]byte, width*height)}
	cb := plane{width: cw, height: ch, pix: make([]byte, cw*ch)}
	cr := plane{width: cw, height: ch, pix: make([]byte, cw*ch)}

	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			i := (row*width + col) * 4
			yy, u, v := color.RGBToYCbCr(src[i], src[i+1], src[i+2])
			y.pix[row*width+col] = yy
			if !subsample {
				cb.pix[row*cw+col] = u
				cr.pix[row*cw+col] = v
			} else if row%2 == 0 && col%2 == 0 {
				cb.pix[(row/2)*cw+col/2] = u
				cr.pix[(row/2)*cw+col/2] = v
			}
		}
	}
	return [3]plane{y, cb, cr}
}

func (p plane) diff() []byte {
	out := make([]byte, len(p.pix))
	copy(out[:p.width], p.pix[:p.width])
	for i := p.width; i < len(p.pix); i++ {
		out[i] = p.pix[i] - p.pix[i-p.width]
	}
	return out
}

func (p plane) undiff() {
	for i := p.width; i < len(p.pix); i++ {
		p.pix[i] += p.pix[i-p.width]
	}
}

package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"firestige.xyz/satcam/internal/codec/bitstream"
)

// Image is a decoded stream: the Y plane followed by Cb and Cr.
type Image struct {
	Quality Quality
	Width   int
	Height  int
	Y       []byte
	Cb      []byte
	Cr      []byte
}

// Decode parses a padded stream produced by Encode for a width x height
// frame.
func Decode(data []byte, width, height int) (*Image, error) {
	r := bitstream.NewReader(data)
	tag, err := r.ReadBits(qualityBits)
	if err != nil {
		return nil, fmt.Errorf("read quality: %w", err)
	}
	n, err := r.ReadBits(lengthBits)
	if err != nil {
		return nil, fmt.Errorf("read length: %w", err)
	}
	if n > uint64(len(data)) {
		return nil, fmt.Errorf("payload length %d exceeds stream", n)
	}
	compressed := make([]byte, n)
	if err := r.ReadBytes(compressed); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	zdec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	defer zdec.Close()
	raw, err := zdec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}

	q := Quality(tag)
	cw, ch := width, height
	if q.subsampled() {
		cw, ch = (width+1)/2, (height+1)/2
	}
	if len(raw) != width*height+2*cw*ch {
		return nil, fmt.Errorf("decoded %d bytes, want %d", len(raw), width*height+2*cw*ch)
	}

	y := plane{width: width, height: height, pix: raw[:width*height]}
	cb := plane{width: cw, height: ch, pix: raw[width*height : width*height+cw*ch]}
	cr := plane{width: cw, height: ch, pix: raw[width*height+cw*ch:]}
	for _, p := range []plane{y, cb, cr} {
		p.undiff()
	}
	return &Image{Quality: q, Width: width, Height: height, Y: y.pix, Cb: cb.pix, Cr: cr.pix}, nil
}

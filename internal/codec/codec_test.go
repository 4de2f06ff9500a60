package codec

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/satcam/internal/core"
)

type stageLog []string

func (s *stageLog) Mark(stage string) { *s = append(*s, stage) }

func gradient(width, height int) []byte {
	src := make([]byte, width*height*4)
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			i := (row*width + col) * 4
			src[i] = byte(col * 8)
			src[i+1] = byte(row * 8)
			src[i+2] = byte((row + col) * 4)
			src[i+3] = 0xFF
		}
	}
	return src
}

func pad(t *testing.T, data interface {
	Aligned() bool
	AddFiller()
}) int {
	t.Helper()
	n := 0
	for !data.Aligned() {
		data.AddFiller()
		n++
		require.LessOrEqual(t, n, 8)
	}
	return n
}

func TestParseQuality(t *testing.T) {
	for in, want := range map[string]Quality{"low": QualityLow, "MID": QualityMid, "": QualityMid, "high": QualityHigh} {
		q, err := ParseQuality(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, q)
	}
	_, err := ParseQuality("ultra")
	assert.Error(t, err)
	assert.Equal(t, "high", QualityHigh.String())
}

func TestEncodeMarksStagesInOrder(t *testing.T) {
	enc, err := NewEncoder(16, 8, QualityMid)
	require.NoError(t, err)
	defer enc.Close()

	var stages stageLog
	w, err := enc.Encode(gradient(16, 8), &stages)
	require.NoError(t, err)
	assert.Equal(t, Stages, []string(stages))
	assert.False(t, w.Aligned(), "the 34-bit prefix leaves the stream unaligned")
	assert.Equal(t, 6, pad(t, w))
}

func TestEncodeRejectsWrongFrameSize(t *testing.T) {
	enc, err := NewEncoder(4, 4, QualityLow)
	require.NoError(t, err)
	defer enc.Close()

	_, err = enc.Encode(make([]byte, 10), nil)
	assert.ErrorIs(t, err, core.ErrEncodeFailed)
}

func TestNewEncoderGeometry(t *testing.T) {
	_, err := NewEncoder(0, 4, QualityLow)
	assert.Error(t, err)
}

func TestEncodeDecode(t *testing.T) {
	const width, height = 7, 5
	src := gradient(width, height)

	for _, q := range []Quality{QualityLow, QualityMid, QualityHigh} {
		enc, err := NewEncoder(width, height, q)
		require.NoError(t, err)
		w, err := enc.Encode(src, nil)
		require.NoError(t, err)
		pad(t, w)
		require.NoError(t, enc.Close())

		img, err := Decode(w.Bytes(), width, height)
		require.NoError(t, err, q.String())
		assert.Equal(t, q, img.Quality)
		require.Len(t, img.Y, width*height)

		for row := 0; row < height; row++ {
			for col := 0; col < width; col++ {
				i := (row*width + col) * 4
				y, cb, _ := color.RGBToYCbCr(src[i], src[i+1], src[i+2])
				assert.Equal(t, y, img.Y[row*width+col])
				if q == QualityHigh {
					assert.Equal(t, cb, img.Cb[row*width+col])
				}
			}
		}
		if q != QualityHigh {
			assert.Len(t, img.Cb, 4*3, "4:2:0 rounds odd dimensions up")
		}
	}
}

func TestDecodeTruncated(t *testing.T) {
	_, err := Decode([]byte{0x40}, 2, 2)
	assert.Error(t, err)
}

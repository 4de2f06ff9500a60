package bitstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteBits(t *testing.T) {
	w := NewWriter(0)
	w.WriteBits(0b10, 2)
	assert.False(t, w.Aligned())
	w.WriteBits(0xABC, 12)
	assert.Equal(t, uint64(14), w.BitLen())
	// 10 1010 1011 1100 + two zero bits
	assert.Equal(t, []byte{0b10101010, 0b11110000}, w.Bytes())
}

func TestFillerAlignsWithinOneByte(t *testing.T) {
	w := NewWriter(0)
	w.WriteBits(0, 3)
	n := 0
	for !w.Aligned() {
		w.AddFiller()
		n++
	}
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte{0b00011111}, w.Bytes())
}

func TestWriteBytesUnaligned(t *testing.T) {
	w := NewWriter(0)
	w.WriteBits(1, 1)
	w.WriteBytes([]byte{0xFF, 0x00})
	assert.Equal(t, uint64(17), w.BitLen())
	assert.Equal(t, []byte{0xFF, 0x80, 0x00}, w.Bytes())

	aligned := NewWriter(2)
	aligned.WriteBytes([]byte{1, 2})
	assert.True(t, aligned.Aligned())
	assert.Equal(t, []byte{1, 2}, aligned.Bytes())
}

func TestReader(t *testing.T) {
	w := NewWriter(0)
	w.WriteBits(3, 2)
	w.WriteBits(0xDEADBEEF, 32)
	w.WriteBytes([]byte{9, 8, 7})

	r := NewReader(w.Bytes())
	v, err := r.ReadBits(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), v)
	v, err = r.ReadBits(32)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xDEADBEEF), v)
	p := make([]byte, 3)
	require.NoError(t, r.ReadBytes(p))
	assert.Equal(t, []byte{9, 8, 7}, p)

	_, err = r.ReadBits(8)
	assert.ErrorIs(t, err, ErrShortRead)
}

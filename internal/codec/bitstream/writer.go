// Package bitstream implements an MSB-first bit writer and reader.
package bitstream

import "errors"

// ErrShortRead is returned when a read runs past the end of the stream.
var ErrShortRead = errors.New("bitstream: short read")

// Writer accumulates bits most significant first.
type Writer struct {
	buf  []byte
	bits uint64
}

// NewWriter returns a writer with room for sizeHint bytes.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// WriteBits appends the low n bits of v, n <= 64.
func (w *Writer) WriteBits(v uint64, n uint) {
	for n > 0 {
		used := uint(w.bits % 8)
		if used == 0 {
			w.buf = append(w.buf, 0)
		}
		free := 8 - used
		take := free
		if n < take {
			take = n
		}
		chunk := byte(v>>(n-take)) & (1<<take - 1)
		w.buf[len(w.buf)-1] |= chunk << (free - take)
		w.bits += uint64(take)
		n -= take
	}
}

// WriteBytes appends p on any bit boundary.
func (w *Writer) WriteBytes(p []byte) {
	if w.Aligned() {
		w.buf = append(w.buf, p...)
		w.bits += uint64(len(p)) * 8
		return
	}
	for _, b := range p {
		w.WriteBits(uint64(b), 8)
	}
}

// AddFiller appends one filler symbol, a single 1 bit.
func (w *Writer) AddFiller() { w.WriteBits(1, 1) }

// Aligned reports whether the stream ends on a byte boundary.
func (w *Writer) Aligned() bool { return w.bits%8 == 0 }

// BitLen returns the number of bits written.
func (w *Writer) BitLen() uint64 { return w.bits }

// Bytes returns the stream. A trailing partial byte is zero filled.
func (w *Writer) Bytes() []byte { return w.buf }

// Reader reads bits most significant first.
type Reader struct {
	buf []byte
	pos uint64
}

func NewReader(p []byte) *Reader { return &Reader{buf: p} }

// ReadBits returns the next n bits, n <= 64.
func (r *Reader) ReadBits(n uint) (uint64, error) {
	if r.pos+uint64(n) > uint64(len(r.buf))*8 {
		return 0, ErrShortRead
	}
	var v uint64
	for n > 0 {
		off := uint(r.pos % 8)
		avail := 8 - off
		take := avail
		if n < take {
			take = n
		}
		b := r.buf[r.pos/8] >> (avail - take) & (1<<take - 1)
		v = v<<take | uint64(b)
		r.pos += uint64(take)
		n -= take
	}
	return v, nil
}

// ReadBytes reads len(p) bytes.
func (r *Reader) ReadBytes(p []byte) error {
	for i := range p {
		b, err := r.ReadBits(8)
		if err != nil {
			return err
		}
		p[i] = byte(b)
	}
	return nil
}

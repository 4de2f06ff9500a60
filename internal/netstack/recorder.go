package netstack

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/satcam/internal/csp"
)

// LinkTypeCSP is DLT_USER0; records hold the 6-byte CSP header and payload.
const LinkTypeCSP = layers.LinkType(147)

const recorderSnapLen = 65535

// Recorder appends packets to a pcap stream.
type Recorder struct {
	mu     sync.Mutex
	w      *pcapgo.Writer
	closer io.Closer
}

// NewRecorder writes the pcap file header to w.
func NewRecorder(w io.Writer) (*Recorder, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(recorderSnapLen, LinkTypeCSP); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	r := &Recorder{w: pw}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	return r, nil
}

// CreateRecorder truncates path and records into it.
func CreateRecorder(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create record file: %w", err)
	}
	r, err := NewRecorder(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// Record writes p stamped with ts.
func (r *Recorder) Record(p *csp.Packet, ts time.Time) error {
	data, err := csp.Marshal(p)
	if err != nil {
		return err
	}
	ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.WritePacket(ci, data)
}

func (r *Recorder) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

package can

import (
	"context"
	"sync"

	"go.uber.org/atomic"
)

// DefaultRxBuffer is the receive depth of a virtual endpoint.
const DefaultRxBuffer = 256

// VirtualBus is an in-process bus with vcan semantics: a frame sent by one
// endpoint is delivered to every other open endpoint. A full receive buffer
// drops the frame, as a controller overrun would.
type VirtualBus struct {
	mu        sync.RWMutex
	endpoints map[*endpoint]struct{}
}

// NewVirtualBus returns an empty bus.
func NewVirtualBus() *VirtualBus {
	return &VirtualBus{endpoints: make(map[*endpoint]struct{})}
}

// Open attaches a new endpoint with the given receive depth.
func (v *VirtualBus) Open(rxBuffer int) *VirtualEndpoint {
	if rxBuffer <= 0 {
		rxBuffer = DefaultRxBuffer
	}
	ep := &endpoint{
		bus:  v,
		rx:   make(chan Frame, rxBuffer),
		done: make(chan struct{}),
	}
	v.mu.Lock()
	v.endpoints[ep] = struct{}{}
	v.mu.Unlock()
	return &VirtualEndpoint{ep}
}

func (v *VirtualBus) deliver(from *endpoint, f Frame) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for ep := range v.endpoints {
		if ep == from {
			continue
		}
		ep.offer(f)
	}
}

func (v *VirtualBus) detach(ep *endpoint) {
	v.mu.Lock()
	delete(v.endpoints, ep)
	v.mu.Unlock()
}

// VirtualEndpoint is one node attached to a VirtualBus.
type VirtualEndpoint struct {
	*endpoint
}

type endpoint struct {
	bus     *VirtualBus
	rx      chan Frame
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64

	fmu     sync.RWMutex
	filters []Filter
}

func (ep *endpoint) offer(f Frame) {
	ep.fmu.RLock()
	ok := matchAny(ep.filters, f)
	ep.fmu.RUnlock()
	if !ok {
		return
	}
	select {
	case ep.rx <- f:
	default:
		ep.dropped.Inc()
	}
}

func (ep *endpoint) Send(ctx context.Context, f Frame) error {
	select {
	case <-ep.done:
		return ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ep.bus.deliver(ep, f)
	return nil
}

func (ep *endpoint) Receive(ctx context.Context) (Frame, error) {
	select {
	case f := <-ep.rx:
		return f, nil
	case <-ep.done:
		return Frame{}, ErrClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (ep *endpoint) SetFilters(filters []Filter) error {
	ep.fmu.Lock()
	ep.filters = append([]Filter(nil), filters...)
	ep.fmu.Unlock()
	return nil
}

func (ep *endpoint) Close() error {
	ep.once.Do(func() {
		ep.bus.detach(ep)
		close(ep.done)
	})
	return nil
}

// Dropped returns the number of frames lost to a full receive buffer.
func (ep *endpoint) Dropped() uint64 {
	return ep.dropped.Load()
}

var (
	_ Bus        = (*VirtualEndpoint)(nil)
	_ Filterable = (*VirtualEndpoint)(nil)
)

package can

import "context"

// Bus is a CAN endpoint that can send and receive frames. Implementations
// are safe for concurrent use by one sender and one receiver.
type Bus interface {
	// Send transmits a frame.
	Send(ctx context.Context, frame Frame) error

	// Receive blocks until a frame arrives, the endpoint is closed
	// (ErrClosed) or ctx is done.
	Receive(ctx context.Context) (Frame, error)

	// Close releases resources. Further Send/Receive return ErrClosed.
	Close() error
}

// Filterable is implemented by buses that can drop frames before they reach
// Receive. An empty filter list accepts every frame.
type Filterable interface {
	SetFilters(filters []Filter) error
}

func matchAny(filters []Filter, f Frame) bool {
	if len(filters) == 0 {
		return true
	}
	for _, flt := range filters {
		if flt.Match(f) {
			return true
		}
	}
	return false
}

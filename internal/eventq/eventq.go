// Package eventq holds small channel helpers shared by the polling loops.
package eventq

// Offer performs a non-blocking send.
// It returns true when the value was sent and false when the channel is full
// or already closed.
func Offer[T any](ch chan<- T, value T) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	select {
	case ch <- value:
		return true
	default:
		return false
	}
}

// NewSignal returns a wake-up channel. Any number of Notify calls between two
// receives collapse into a single pending wake-up.
func NewSignal() chan struct{} {
	return make(chan struct{}, 1)
}

// Notify posts a wake-up without blocking.
func Notify(ch chan<- struct{}) {
	Offer(ch, struct{}{})
}

// Drain discards a pending wake-up, if any.
func Drain(ch <-chan struct{}) {
	select {
	case <-ch:
	default:
	}
}

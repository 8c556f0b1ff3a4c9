package stream

import (
	"bufio"
	"context"
	"io"
)

const maxLineSize = 4 * 1024 * 1024

// Event pairs a raw NDJSON line with one decoded message. Err is set for
// lines that failed to decode and for read errors (Raw is nil then).
type Event struct {
	Raw     []byte
	Message Message
	Err     error
}

// Parse reads NDJSON lines from r and sends decoded events on the returned
// channel. The channel is closed at EOF or when ctx is cancelled.
func Parse(ctx context.Context, r io.Reader, dec *Decoder) <-chan Event {
	ch := make(chan Event, 64)
	go func() {
		defer close(ch)
		send := func(ev Event) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			raw := make([]byte, len(line))
			copy(raw, line)

			msgs, err := dec.Decode(raw)
			if err != nil {
				if !send(Event{Raw: raw, Err: err}) {
					return
				}
				continue
			}
			for _, m := range msgs {
				if !send(Event{Raw: raw, Message: m}) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			send(Event{Err: err})
		}
	}()
	return ch
}

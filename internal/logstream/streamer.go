package logstream

import (
	"strings"

	"github.com/agusx1211/brood/internal/registry"
	"github.com/agusx1211/brood/internal/stream"
)

// Sink is the part of an agent log the streamer writes to.
type Sink interface {
	Append(text string) error
	AppendSpeaker(label, text string) (bool, error)
}

// Outcome reports what a message meant for the agent's lifecycle.
type Outcome struct {
	// SessionID is set by any message that names the session.
	SessionID string
	// Status is a terminal status when the message ends the session.
	Status registry.Status
	// Detail carries the error text of failing terminal messages.
	Detail string
}

// Streamer applies live stream messages to a log.
type Streamer struct {
	sink   Sink
	blocks *BlockState
	seen   *Seen
}

// NewStreamer returns a streamer writing to sink. seen may be shared with a
// Transcript reading the same session.
func NewStreamer(sink Sink, seen *Seen, marker string) *Streamer {
	if seen == nil {
		seen = NewSeen()
	}
	return &Streamer{sink: sink, blocks: NewBlockState(marker), seen: seen}
}

// Apply writes whatever m adds to the log.
func (s *Streamer) Apply(m stream.Message) (Outcome, error) {
	switch msg := m.(type) {
	case stream.System:
		return Outcome{SessionID: msg.SessionID}, nil

	case stream.Assistant:
		for i, b := range msg.Blocks {
			if b.Type != "text" {
				continue
			}
			if err := s.sink.Append(s.blocks.Full(stream.BlockKey(msg.ID, i, b.ID), b.Text)); err != nil {
				return Outcome{}, err
			}
		}
		s.seen.Add(msg.ID)

	case stream.User:
		s.seen.Add(msg.ID)

	case stream.BlockStart:
		if msg.Block.Type == "text" {
			return Outcome{}, s.sink.Append(s.blocks.Start(stream.BlockKey(msg.MessageID, msg.Index, msg.Block.ID)))
		}

	case stream.BlockDelta:
		return Outcome{}, s.delta(msg.MessageID, msg.Index, msg.Delta)

	case stream.MessageDelta:
		return Outcome{}, s.delta(msg.MessageID, msg.Index, msg.Delta)

	case stream.Result:
		out := Outcome{SessionID: msg.SessionID, Status: registry.StatusDone}
		if msg.Failed() {
			out.Status = registry.StatusFailed
			out.Detail = strings.TrimSpace(msg.Text)
		}
		return out, nil

	case stream.Done:
		return Outcome{Status: registry.StatusDone}, nil

	case stream.Error:
		return Outcome{Status: registry.StatusFailed, Detail: msg.Text}, nil
	}
	return Outcome{}, nil
}

func (s *Streamer) delta(messageID string, index int, d stream.Delta) error {
	if d.Type != "text_delta" {
		return nil
	}
	return s.sink.Append(s.blocks.Delta(stream.BlockKey(messageID, index, ""), d.Text))
}

// MarkExited appends the exit speaker line. Repeated calls write it once.
func MarkExited(sink Sink) error {
	_, err := sink.AppendSpeaker("Assistant", "[exited]")
	return err
}

package logstream

import (
	"strings"

	"github.com/agusx1211/brood/internal/debug"
	"github.com/agusx1211/brood/internal/stream"
)

const localCommandCaveat = "caveat: the messages below were generated by the user while running local commands"

var commandTags = []string{
	"<command-name>", "</command-name>",
	"<command-message>", "</command-message>",
	"<command-args>", "</command-args>",
	"<local-command-stdout>", "</local-command-stdout>",
}

// Transcript appends new human and assistant turns found in a session
// transcript as speaker lines.
type Transcript struct {
	sink   Sink
	dec    *stream.Decoder
	seen   *Seen
	prompt string
}

// NewTranscript returns a record processor. namespace must match the one
// used by the live stream decoder so shared message ids line up.
func NewTranscript(sink Sink, namespace string, seen *Seen, prompt string) *Transcript {
	if seen == nil {
		seen = NewSeen()
	}
	return &Transcript{
		sink:   sink,
		dec:    stream.NewDecoder(namespace, stream.DialectClaude),
		seen:   seen,
		prompt: strings.TrimSpace(prompt),
	}
}

// Process handles one transcript line. Malformed lines are ignored.
func (t *Transcript) Process(line []byte) error {
	if strings.TrimSpace(string(line)) == "" {
		return nil
	}
	msgs, err := t.dec.Decode(line)
	if err != nil {
		debug.LogKV("logstream", "skipping transcript line", "error", err)
		return nil
	}
	for _, m := range msgs {
		if err := t.apply(m); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transcript) apply(m stream.Message) error {
	switch msg := m.(type) {
	case stream.User:
		if t.seen.Has(msg.ID) {
			return nil
		}
		text := msg.Text()
		if text == "" || text == t.prompt || IsInjected(text) {
			t.seen.Add(msg.ID)
			return nil
		}
		if _, err := t.sink.AppendSpeaker("User", text); err != nil {
			return err
		}
		t.seen.Add(msg.ID)

	case stream.Assistant:
		if t.seen.Has(msg.ID) {
			return nil
		}
		text := msg.Text()
		if text == "" {
			return nil
		}
		if _, err := t.sink.AppendSpeaker("Assistant", text); err != nil {
			return err
		}
		t.seen.Add(msg.ID)
	}
	return nil
}

// IsInjected reports whether a user-role text was inserted by the host
// environment rather than typed by a person.
func IsInjected(text string) bool {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(strings.ToLower(s), localCommandCaveat) {
		return true
	}
	for _, tag := range commandTags {
		if strings.Contains(s, tag) {
			return true
		}
	}
	return false
}

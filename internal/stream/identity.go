package stream

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// idExtractor pulls a candidate identity from one place in a raw event.
type idExtractor func(ev *wireEvent, msg *wireMessage) string

// identityChain is consulted in order; the first non-empty value wins.
// Message-level ids come before the top-level uuid because a producer may
// repeat one message across several lines, each with its own uuid.
var identityChain = []idExtractor{
	func(ev *wireEvent, _ *wireMessage) string { return ev.MessageID },
	func(ev *wireEvent, _ *wireMessage) string { return ev.MessageIDAlt },
	func(ev *wireEvent, _ *wireMessage) string { return ev.ID },
	func(_ *wireEvent, m *wireMessage) string { return m.field(func(m *wireMessage) string { return m.ID }) },
	func(_ *wireEvent, m *wireMessage) string { return m.field(func(m *wireMessage) string { return m.MessageID }) },
	func(_ *wireEvent, m *wireMessage) string { return m.field(func(m *wireMessage) string { return m.UUID }) },
	func(ev *wireEvent, _ *wireMessage) string { return ev.UUID },
	func(ev *wireEvent, _ *wireMessage) string {
		if ts := ev.timestamp(); ts != "" {
			return "ts-" + ts
		}
		return ""
	},
}

func (m *wireMessage) field(get func(*wireMessage) string) string {
	if m == nil {
		return ""
	}
	return get(m)
}

// resolve returns the namespaced identity of an event, synthesizing a
// random one when the event carries nothing usable.
func (d *Decoder) resolve(ev *wireEvent, msg *wireMessage) string {
	for _, extract := range identityChain {
		if id := strings.TrimSpace(extract(ev, msg)); id != "" {
			return d.qualify(id)
		}
	}
	return d.qualify("syn-" + uuid.NewString())
}

func (d *Decoder) qualify(id string) string {
	if d.namespace == "" {
		return id
	}
	return d.namespace + ":" + id
}

func (ev *wireEvent) timestamp() string {
	if len(ev.Timestamp) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(ev.Timestamp, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var f float64
	if err := json.Unmarshal(ev.Timestamp, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

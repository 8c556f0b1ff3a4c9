package stream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects how strictly lines are interpreted.
type Dialect int

const (
	// DialectClaude understands the Claude CLI stream-json schema, including
	// partial-message "stream_event" wrappers.
	DialectClaude Dialect = iota
	// DialectLenient scrapes text out of loosely structured events, for CLIs
	// whose schema varies between versions.
	DialectLenient
)

// wireEvent is the union of fields any supported producer puts on a line.
type wireEvent struct {
	Type            string          `json:"type"`
	Subtype         string          `json:"subtype,omitempty"`
	SessionID       string          `json:"session_id,omitempty"`
	Model           string          `json:"model,omitempty"`
	Cwd             string          `json:"cwd,omitempty"`
	Tools           []string        `json:"tools,omitempty"`
	UUID            string          `json:"uuid,omitempty"`
	ID              string          `json:"id,omitempty"`
	MessageID       string          `json:"message_id,omitempty"`
	MessageIDAlt    string          `json:"messageId,omitempty"`
	Timestamp       json.RawMessage `json:"timestamp,omitempty"`
	ParentToolUseID string          `json:"parent_tool_use_id,omitempty"`

	Message      json.RawMessage `json:"message,omitempty"`
	Event        json.RawMessage `json:"event,omitempty"`
	Index        int             `json:"index,omitempty"`
	ContentBlock *ContentBlock   `json:"content_block,omitempty"`
	Delta        json.RawMessage `json:"delta,omitempty"`

	Result       json.RawMessage `json:"result,omitempty"`
	IsError      bool            `json:"is_error,omitempty"`
	TotalCostUSD float64         `json:"total_cost_usd,omitempty"`
	DurationMS   float64         `json:"duration_ms,omitempty"`
	NumTurns     int             `json:"num_turns,omitempty"`
	Error        json.RawMessage `json:"error,omitempty"`
}

type wireMessage struct {
	ID        string          `json:"id,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	UUID      string          `json:"uuid,omitempty"`
	Role      string          `json:"role,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// Decoder turns NDJSON lines into messages. It is stateful: partial-message
// events are attributed to the message most recently started, and lenient
// producers are split into turns at each terminal event. A Decoder is not
// safe for concurrent use.
type Decoder struct {
	namespace string
	dialect   Dialect
	current   string
	turn      int
}

// NewDecoder returns a decoder whose identities are prefixed with namespace
// (usually the agent id) so keys from different agents never collide.
func NewDecoder(namespace string, dialect Dialect) *Decoder {
	return &Decoder{namespace: namespace, dialect: dialect}
}

// Decode parses one line. It may return no messages for events that only
// update decoder state, and more than one for lenient events carrying both
// a delta and a snapshot.
func (d *Decoder) Decode(line []byte) ([]Message, error) {
	if d.dialect == DialectLenient {
		return d.decodeLenient(line)
	}
	var ev wireEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return nil, fmt.Errorf("decoding stream line: %w", err)
	}
	return d.decodeClaude(&ev)
}

func (d *Decoder) decodeClaude(ev *wireEvent) ([]Message, error) {
	switch ev.Type {
	case "stream_event":
		var inner wireEvent
		if err := json.Unmarshal(ev.Event, &inner); err != nil {
			return nil, fmt.Errorf("decoding stream_event: %w", err)
		}
		return d.decodePartial(&inner, ev), nil

	case "system":
		return one(System{
			Subtype:   ev.Subtype,
			SessionID: ev.SessionID,
			Model:     ev.Model,
			Cwd:       ev.Cwd,
			Tools:     ev.Tools,
		}), nil

	case "assistant", "user":
		msg, blocks := parseMessage(ev.Message)
		id := d.resolve(ev, msg)
		if ev.Type == "assistant" {
			return one(Assistant{ID: id, Blocks: blocks, ParentToolUseID: ev.ParentToolUseID}), nil
		}
		return one(User{ID: id, Blocks: blocks, ParentToolUseID: ev.ParentToolUseID}), nil

	case "message_start", "message_stop", "content_block_start", "content_block_delta",
		"content_block_stop", "message_delta":
		return d.decodePartial(ev, ev), nil

	case "result":
		return one(Result{
			Subtype:    ev.Subtype,
			IsError:    ev.IsError,
			Text:       rawString(ev.Result),
			SessionID:  ev.SessionID,
			CostUSD:    ev.TotalCostUSD,
			DurationMS: ev.DurationMS,
			NumTurns:   ev.NumTurns,
		}), nil

	case "done", "complete":
		return one(Done{}), nil

	case "error":
		return one(Error{Text: errorText(ev)}), nil

	default:
		return one(Unknown{Type: ev.Type}), nil
	}
}

// decodePartial handles Anthropic streaming events. outer is the wrapper
// line (or ev itself when unwrapped) and supplies fallback identity.
func (d *Decoder) decodePartial(ev, outer *wireEvent) []Message {
	switch ev.Type {
	case "message_start":
		msg, _ := parseMessage(ev.Message)
		d.current = d.resolve(ev, msg)
		return nil
	case "content_block_start":
		b := ContentBlock{}
		if ev.ContentBlock != nil {
			b = *ev.ContentBlock
		}
		return one(BlockStart{MessageID: d.streamID(ev, outer), Index: ev.Index, Block: b})
	case "content_block_delta":
		return one(BlockDelta{MessageID: d.streamID(ev, outer), Index: ev.Index, Delta: parseDelta(ev.Delta)})
	case "message_delta":
		return one(MessageDelta{MessageID: d.streamID(ev, outer), Index: ev.Index, Delta: parseDelta(ev.Delta)})
	default:
		return nil
	}
}

// streamID attributes a partial event to a message: an explicit id on the
// event, else the message opened by the last message_start, else whatever
// the wrapper line resolves to.
func (d *Decoder) streamID(ev, outer *wireEvent) string {
	if id := firstNonEmpty(ev.MessageID, ev.MessageIDAlt); id != "" {
		return d.qualify(id)
	}
	if d.current != "" {
		return d.current
	}
	d.current = d.resolve(outer, nil)
	return d.current
}

func parseMessage(raw json.RawMessage) (*wireMessage, []ContentBlock) {
	if len(raw) == 0 || raw[0] != '{' {
		return nil, nil
	}
	var m wireMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil
	}
	return &m, parseContent(m.Content)
}

// parseContent accepts either a plain string or a block list.
func parseContent(raw json.RawMessage) []ContentBlock {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []ContentBlock{{Type: "text", Text: s}}
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		return blocks
	}
	return nil
}

func parseDelta(raw json.RawMessage) Delta {
	var delta Delta
	if len(raw) > 0 && raw[0] == '{' {
		_ = json.Unmarshal(raw, &delta)
	}
	return delta
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Join(collectText(decodeAny(raw), 0, nil), "")
}

func errorText(ev *wireEvent) string {
	if t := rawString(ev.Error); t != "" {
		return t
	}
	if t := rawString(ev.Message); t != "" {
		return t
	}
	return "Unknown error"
}

func decodeAny(raw json.RawMessage) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func one(m Message) []Message { return []Message{m} }

// decodeLenient maps loosely structured events onto the same variants.
// Assistant text within one turn shares an identity; turns end at result,
// done and error events.
func (d *Decoder) decodeLenient(line []byte) ([]Message, error) {
	var obj map[string]any
	if err := json.Unmarshal(line, &obj); err != nil {
		return nil, fmt.Errorf("decoding stream line: %w", err)
	}
	var ev wireEvent
	_ = json.Unmarshal(line, &ev)
	typ := strings.ToLower(ev.Type)
	turnID := d.qualify("turn-" + strconv.Itoa(d.turn))

	switch {
	case isAssistantEvent(typ, obj):
		var out []Message
		if delta := strings.Join(collectText(obj["delta"], 0, nil), ""); delta != "" {
			out = append(out, BlockDelta{MessageID: turnID, Delta: Delta{Type: "text_delta", Text: delta}})
		}
		var chunks []string
		chunks = collectText(obj["message"], 0, chunks)
		chunks = collectText(obj["content"], 0, chunks)
		chunks = collectText(obj["text"], 0, chunks)
		if full := strings.Join(chunks, ""); full != "" {
			out = append(out, Assistant{ID: turnID, Blocks: []ContentBlock{{Type: "text", Text: full}}})
		}
		return out, nil

	case typ == "result" || strings.HasSuffix(typ, ".result"):
		d.turn++
		return one(Result{Subtype: ev.Subtype, IsError: ev.IsError, Text: rawString(ev.Result), SessionID: ev.SessionID}), nil

	case typ == "done" || typ == "complete":
		d.turn++
		return one(Done{}), nil

	case typ == "error" || len(ev.Error) > 0 && string(ev.Error) != "null":
		d.turn++
		return one(Error{Text: errorText(&ev)}), nil

	case typ == "system":
		return one(System{Subtype: ev.Subtype, SessionID: ev.SessionID, Model: ev.Model, Cwd: ev.Cwd}), nil

	case typ == "user":
		msg, blocks := parseMessage(ev.Message)
		return one(User{ID: d.resolve(&ev, msg), Blocks: blocks}), nil

	default:
		return one(Unknown{Type: ev.Type}), nil
	}
}

func isAssistantEvent(typ string, obj map[string]any) bool {
	if typ != "" && (strings.Contains(typ, "assistant") || strings.Contains(typ, "output_text") || strings.Contains(typ, "delta")) {
		return true
	}
	if role, _ := obj["role"].(string); role == "assistant" {
		return true
	}
	if msg, ok := obj["message"].(map[string]any); ok {
		if role, _ := msg["role"].(string); role == "assistant" {
			return true
		}
	}
	return false
}

var (
	textKeys   = []string{"text", "content", "delta", "value", "result", "output_text"}
	nestedKeys = []string{"content", "delta", "message", "value", "parts", "messages", "choices", "data", "output_text"}
)

// collectText gathers text fragments from an arbitrary JSON value, visiting
// object keys in a fixed order so the result is deterministic.
func collectText(v any, depth int, chunks []string) []string {
	if v == nil || depth > 5 {
		return chunks
	}
	switch t := v.(type) {
	case string:
		if t != "" {
			chunks = append(chunks, t)
		}
	case []any:
		for _, item := range t {
			chunks = collectText(item, depth+1, chunks)
		}
	case map[string]any:
		visited := map[string]bool{}
		for _, k := range textKeys {
			if s, ok := t[k].(string); ok && s != "" {
				chunks = append(chunks, s)
				visited[k] = true
			}
		}
		for _, k := range nestedKeys {
			if visited[k] {
				continue
			}
			switch n := t[k].(type) {
			case []any, map[string]any:
				chunks = collectText(n, depth+1, chunks)
				visited[k] = true
			}
		}
	}
	return chunks
}

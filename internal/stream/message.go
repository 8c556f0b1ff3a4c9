// Package stream decodes the NDJSON message streams produced by agent CLIs
// into a closed set of message variants.
package stream

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind discriminates message variants.
type Kind string

const (
	KindSystem       Kind = "system"
	KindAssistant    Kind = "assistant"
	KindUser         Kind = "user"
	KindBlockStart   Kind = "content_block_start"
	KindBlockDelta   Kind = "content_block_delta"
	KindMessageDelta Kind = "message_delta"
	KindResult       Kind = "result"
	KindDone         Kind = "done"
	KindError        Kind = "error"
	KindUnknown      Kind = "unknown"
)

// Message is implemented by every variant below.
type Message interface {
	Kind() Kind
}

// ContentBlock is one block of an assistant or user message.
type ContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	ID    string          `json:"id,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
	// Content carries tool_result payloads (string or block list).
	Content json.RawMessage `json:"content,omitempty"`
}

// Delta is an incremental update within a content block.
type Delta struct {
	Type        string `json:"type,omitempty"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

// System is the session initialization message.
type System struct {
	Subtype   string
	SessionID string
	Model     string
	Cwd       string
	Tools     []string
}

// Assistant is a full snapshot of an assistant message. ID is the resolved
// identity, namespaced by the decoder.
type Assistant struct {
	ID              string
	Blocks          []ContentBlock
	ParentToolUseID string
}

// User is a user-role message: a prompt, an injected framework message or
// tool results.
type User struct {
	ID              string
	Blocks          []ContentBlock
	ParentToolUseID string
}

// BlockStart opens a content block within the message identified by MessageID.
type BlockStart struct {
	MessageID string
	Index     int
	Block     ContentBlock
}

// BlockDelta carries incremental content for one block.
type BlockDelta struct {
	MessageID string
	Index     int
	Delta     Delta
}

// MessageDelta carries message-level updates; some producers also put text
// deltas here.
type MessageDelta struct {
	MessageID string
	Index     int
	Delta     Delta
}

// Result is the terminal message of a session.
type Result struct {
	Subtype    string
	IsError    bool
	Text       string
	SessionID  string
	CostUSD    float64
	DurationMS float64
	NumTurns   int
}

// Done is a bare completion marker emitted by some CLIs instead of Result.
type Done struct{}

// Error is an error event emitted in-band by the CLI.
type Error struct {
	Text string
}

// Unknown is any message type the decoder does not model.
type Unknown struct {
	Type string
}

func (System) Kind() Kind       { return KindSystem }
func (Assistant) Kind() Kind    { return KindAssistant }
func (User) Kind() Kind         { return KindUser }
func (BlockStart) Kind() Kind   { return KindBlockStart }
func (BlockDelta) Kind() Kind   { return KindBlockDelta }
func (MessageDelta) Kind() Kind { return KindMessageDelta }
func (Result) Kind() Kind       { return KindResult }
func (Done) Kind() Kind         { return KindDone }
func (Error) Kind() Kind        { return KindError }
func (Unknown) Kind() Kind      { return KindUnknown }

// Failed reports whether the result ends the session unsuccessfully.
func (r Result) Failed() bool {
	s := strings.ToLower(r.Subtype)
	return r.IsError || s == "failure" || strings.HasPrefix(s, "error")
}

// BlockKey identifies a content block for deduplication: the block id when
// the producer assigned one, otherwise its index.
func BlockKey(messageID string, index int, blockID string) string {
	if blockID != "" {
		return messageID + ":" + blockID
	}
	return messageID + ":" + strconv.Itoa(index)
}

// Text joins the non-blank text blocks of a user message, one paragraph each.
func (u User) Text() string { return joinText(u.Blocks) }

// Text joins the non-blank text blocks of an assistant message.
func (a Assistant) Text() string { return joinText(a.Blocks) }

func joinText(blocks []ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type != "text" {
			continue
		}
		if s := strings.TrimSpace(b.Text); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

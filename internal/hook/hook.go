// Package hook holds the JSON documents exchanged with the host CLI's hook
// mechanism: the event read from stdin and the response written to stdout.
package hook

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Event names as sent in hook_event_name.
const (
	PreToolUse   = "PreToolUse"
	PostToolUse  = "PostToolUse"
	SessionStart = "SessionStart"
	SessionEnd   = "SessionEnd"
	SubagentStop = "SubagentStop"
	Stop         = "Stop"
)

// ToolInput is the tool_input of a Task call.
type ToolInput struct {
	Description  string `json:"description,omitempty"`
	Prompt       string `json:"prompt,omitempty"`
	SubagentType string `json:"subagent_type,omitempty"`
}

// Input is the hook event document.
type Input struct {
	SessionID      string          `json:"session_id,omitempty"`
	TranscriptPath string          `json:"transcript_path,omitempty"`
	Cwd            string          `json:"cwd,omitempty"`
	ProjectDir     string          `json:"project_dir,omitempty"`
	EventName      string          `json:"hook_event_name,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	ToolInput      ToolInput       `json:"tool_input,omitempty"`
	ToolResponse   json.RawMessage `json:"tool_response,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	Source         string          `json:"source,omitempty"`
}

// Decode reads one hook event. Empty input decodes to a zero Input.
func Decode(r io.Reader) (*Input, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading hook input: %w", err)
	}
	in := &Input{}
	if strings.TrimSpace(string(data)) == "" {
		return in, nil
	}
	if err := json.Unmarshal(data, in); err != nil {
		return nil, fmt.Errorf("decoding hook input: %w", err)
	}
	return in, nil
}

// Dir returns the directory the event happened in: cwd, then project_dir,
// then fallback.
func (in *Input) Dir(fallback string) string {
	for _, d := range []string{in.Cwd, in.ProjectDir} {
		if strings.TrimSpace(d) != "" {
			return d
		}
	}
	return fallback
}

// SpecificOutput is the hookSpecificOutput object.
type SpecificOutput struct {
	EventName                string `json:"hookEventName"`
	PermissionDecision       string `json:"permissionDecision,omitempty"`
	PermissionDecisionReason string `json:"permissionDecisionReason,omitempty"`
	AdditionalContext        string `json:"additionalContext,omitempty"`
}

// Output is the hook response document.
type Output struct {
	Specific      *SpecificOutput `json:"hookSpecificOutput,omitempty"`
	SystemMessage string          `json:"systemMessage,omitempty"`
}

// Deny blocks the native tool call with reason shown to the model.
func Deny(reason string) Output {
	return Output{Specific: &SpecificOutput{
		EventName:                PreToolUse,
		PermissionDecision:       "deny",
		PermissionDecisionReason: reason,
	}}
}

// Notify builds the notification response for event: inline context for
// PostToolUse, a user-visible system message otherwise.
func Notify(event, text string) Output {
	if event == PostToolUse {
		return Output{Specific: &SpecificOutput{EventName: PostToolUse, AdditionalContext: text}}
	}
	return Output{SystemMessage: text}
}

// Write encodes o as a single JSON line.
func (o Output) Write(w io.Writer) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

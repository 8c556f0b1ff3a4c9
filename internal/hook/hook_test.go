package hook

import (
	"bytes"
	"strings"
	"testing"
)

func TestDecode(t *testing.T) {
	in, err := Decode(strings.NewReader(`{"session_id":"s1","cwd":"/w","hook_event_name":"PreToolUse","tool_name":"Task",
		"tool_input":{"description":"Fix","prompt":"Fix it","subagent_type":"coder"},"extra":1}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if in.ToolName != "Task" || in.ToolInput.SubagentType != "coder" || in.Dir("/x") != "/w" {
		t.Fatalf("Decode = %+v", in)
	}

	in, err = Decode(strings.NewReader("  \n"))
	if err != nil || in.EventName != "" {
		t.Fatalf("empty input: %+v, %v", in, err)
	}
	if got := in.Dir("/fallback"); got != "/fallback" {
		t.Fatalf("Dir = %q", got)
	}

	if _, err := Decode(strings.NewReader("{oops")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestOutputs(t *testing.T) {
	tests := []struct {
		out  Output
		want string
	}{
		{Deny("no"), `{"hookSpecificOutput":{"hookEventName":"PreToolUse","permissionDecision":"deny","permissionDecisionReason":"no"}}`},
		{Notify(PostToolUse, "done"), `{"hookSpecificOutput":{"hookEventName":"PostToolUse","additionalContext":"done"}}`},
		{Notify(Stop, "done"), `{"systemMessage":"done"}`},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		if err := tt.out.Write(&buf); err != nil {
			t.Fatal(err)
		}
		if got := strings.TrimSpace(buf.String()); got != tt.want {
			t.Fatalf("Write = %s, want %s", got, tt.want)
		}
	}
}

package agent

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/agusx1211/brood/internal/stream"
)

// ClaudeAgent runs Anthropic's claude CLI.
type ClaudeAgent struct{}

func NewClaudeAgent() *ClaudeAgent { return &ClaudeAgent{} }

func (c *ClaudeAgent) Name() string { return "claude" }

func (c *ClaudeAgent) Dialect() stream.Dialect { return stream.DialectClaude }

// Launch builds a non-interactive invocation. The prompt goes through stdin.
// --verbose is required by the CLI for stream-json output, and partial
// messages make text arrive as content block deltas.
func (c *ClaudeAgent) Launch(cfg Config) LaunchSpec {
	spec := LaunchSpec{Command: cfg.Command, Stdin: cfg.Prompt}
	if spec.Command == "" {
		spec.Command = "claude"
	}
	spec.Args = []string{
		"--print",
		"--output-format", "stream-json",
		"--verbose",
		"--include-partial-messages",
		"--permission-mode", "bypassPermissions",
	}
	if m := strings.TrimSpace(cfg.Model); m != "" {
		spec.Args = append(spec.Args, "--model", m)
	}
	if cfg.SystemPrompt != "" {
		spec.Args = append(spec.Args, "--system-prompt", cfg.SystemPrompt)
	}
	if cfg.MCPConfig != "" {
		spec.Args = append(spec.Args, "--mcp-config", cfg.MCPConfig)
	}
	if cfg.Settings != "" {
		spec.Args = append(spec.Args, "--settings", cfg.Settings)
	}
	if cfg.ThinkingBudget > 0 {
		spec.Env = map[string]string{"MAX_THINKING_TOKENS": strconv.Itoa(cfg.ThinkingBudget)}
	}
	return spec
}

type hookCommand struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

type hookMatcher struct {
	Matcher string        `json:"matcher,omitempty"`
	Hooks   []hookCommand `json:"hooks"`
}

// DelegationSettings returns a --settings document that routes the session's
// Task tool calls back through "<exe> hook pre-tool-use", so nested
// delegation is checked and spawned like top-level delegation.
func DelegationSettings(exe string) (string, error) {
	doc := map[string]any{
		"hooks": map[string][]hookMatcher{
			"PreToolUse": {{
				Matcher: "Task",
				Hooks:   []hookCommand{{Type: "command", Command: shellQuote(exe) + " hook pre-tool-use"}},
			}},
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t'\"\\$`") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

package agent

import (
	"strings"

	"github.com/agusx1211/brood/internal/stream"
)

// AlternateAgent runs a non-Claude CLI (cursor-agent by default) whose
// stream-json schema is loosely structured and varies between versions.
type AlternateAgent struct{}

func NewAlternateAgent() *AlternateAgent { return &AlternateAgent{} }

func (a *AlternateAgent) Name() string { return "alternate" }

func (a *AlternateAgent) Dialect() stream.Dialect { return stream.DialectLenient }

// Launch passes the prompt as the final argument, with the system prompt
// prepended since the CLI has no separate flag for it.
func (a *AlternateAgent) Launch(cfg Config) LaunchSpec {
	spec := LaunchSpec{Command: cfg.Command}
	if spec.Command == "" {
		spec.Command = "cursor-agent"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "auto"
	}
	spec.Args = []string{
		"--print",
		"--output-format", "stream-json",
		"--stream-partial-output",
		"--force",
		"--model", model,
	}
	if cfg.APIKey != "" {
		spec.Args = append(spec.Args, "--api-key", cfg.APIKey)
	}
	prompt := cfg.Prompt
	if s := strings.TrimSpace(cfg.SystemPrompt); s != "" {
		prompt = s + "\n\n" + prompt
	}
	spec.Args = append(spec.Args, prompt)
	return spec
}

// Package agent drives the LLM CLIs that back a brood agent. Each CLI is the
// opaque query capability: it takes a prompt plus options and streams NDJSON
// messages on stdout.
package agent

import (
	"time"

	"github.com/agusx1211/brood/internal/stream"
)

// Config holds the options for one CLI run.
type Config struct {
	Command string   // path to the CLI binary; empty uses the agent's default
	WorkDir string   // cwd for the process
	Env     []string // full environment; nil inherits the current one
	Prompt  string

	SystemPrompt   string // replaces the CLI's default system prompt
	Model          string
	MCPConfig      string // {"mcpServers":{...}} JSON; empty keeps the CLI defaults
	ThinkingBudget int
	Settings       string // extra CLI settings JSON (hooks)
	APIKey         string

	// Namespace prefixes message identities (usually the agent id).
	Namespace string

	// OnStart is called with the child pid once the process is running.
	OnStart func(pid int)
	// OnEvent receives every decoded stdout event in order.
	OnEvent func(stream.Event)
	// OnStderr receives each stderr line.
	OnStderr func(line string)
}

// Result holds the outcome of a CLI run.
type Result struct {
	ExitCode  int
	Signal    string
	Duration  time.Duration
	SessionID string // captured from the system init message
	Stderr    string // tail of stderr, for diagnostics
}

// LaunchSpec is the command line an agent builds from a Config.
type LaunchSpec struct {
	Command string
	Args    []string
	Env     map[string]string
	Stdin   string
}

// Agent is a CLI family.
type Agent interface {
	Name() string
	// Dialect selects the decoder for the CLI's stdout.
	Dialect() stream.Dialect
	Launch(cfg Config) LaunchSpec
}

// Package config loads brood settings.
//
// Settings are resolved in this order (later wins):
//  1. Built-in defaults
//  2. User config at ~/.brood/config.{json,yaml}
//  3. Project config at <project>/.brood/config.{json,yaml}
//  4. BROOD_* environment variables (e.g. BROOD_TAIL_POLL_INTERVAL)
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// HardMaxDepth is the recursion ceiling no configuration can raise.
const HardMaxDepth = 3

// Settings holds every tunable used by the orchestration layer.
type Settings struct {
	AgentsDir  string `mapstructure:"agents_dir"`
	LibraryDir string `mapstructure:"library_dir"`

	ResponsesDir string `mapstructure:"responses_dir"`
	RegistryFile string `mapstructure:"registry_file"`
	PromptsDir   string `mapstructure:"prompts_dir"`
	MonitorState string `mapstructure:"monitor_state"`

	MaxDepth         int    `mapstructure:"max_depth"`
	DefaultAgentType string `mapstructure:"default_agent_type"`

	Models   ModelSettings    `mapstructure:"models"`
	Commands CommandSettings  `mapstructure:"commands"`
	Tail     TailSettings     `mapstructure:"tail"`
	Progress ProgressSettings `mapstructure:"progress"`

	MarkersDir      string   `mapstructure:"markers_dir"`
	TranscriptRoots []string `mapstructure:"transcript_roots"`
	MCPLibrary      []string `mapstructure:"mcp_library"`

	Pushover PushoverSettings `mapstructure:"pushover"`
}

// ModelSettings decides which models are driven through the primary CLI.
type ModelSettings struct {
	PrimaryPrefixes []string          `mapstructure:"primary_prefixes"`
	PrimaryContains []string          `mapstructure:"primary_contains"`
	Aliases         map[string]string `mapstructure:"aliases"`
}

// CommandSettings names the executables used for each model family.
type CommandSettings struct {
	Claude    string `mapstructure:"claude"`
	Alternate string `mapstructure:"alternate"`
}

// TailSettings tunes the transcript tailer.
type TailSettings struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	IdleBudget   time.Duration `mapstructure:"idle_budget"`
	MarkerGrace  time.Duration `mapstructure:"marker_grace"`
}

// PushoverSettings holds optional Pushover credentials used by
// `brood monitor --push`.
type PushoverSettings struct {
	UserKey  string `mapstructure:"user_key"`
	AppToken string `mapstructure:"app_token"`
}

// ProgressSettings controls [UPDATE]-style progress reporting.
type ProgressSettings struct {
	Marker      string `mapstructure:"marker"`
	Instruction string `mapstructure:"instruction"`
}

// Dir returns the brood home directory (~/.brood).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".brood"
	}
	return filepath.Join(home, ".brood")
}

func claudeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".claude"
	}
	return filepath.Join(home, ".claude")
}

// Load reads settings for a process whose project root is projectDir.
// An empty projectDir skips the project layer. Missing files are not errors.
func Load(projectDir string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.AddConfigPath(Dir())
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectDir != "" {
		pv := viper.New()
		pv.SetConfigName("config")
		pv.AddConfigPath(filepath.Join(projectDir, ".brood"))
		if err := pv.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(pv.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("BROOD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	s.normalize()
	return s, nil
}

// Default returns settings built from defaults only.
func Default() *Settings {
	v := viper.New()
	setDefaults(v)
	s := &Settings{}
	_ = v.Unmarshal(s)
	s.normalize()
	return s
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("agents_dir", filepath.Join(claudeDir(), "agents"))
	v.SetDefault("library_dir", filepath.Join(claudeDir(), "agents-library"))

	v.SetDefault("responses_dir", "agent-responses")
	v.SetDefault("registry_file", ".active-pids.json")
	v.SetDefault("prompts_dir", ".agent-prompts")
	v.SetDefault("monitor_state", ".monitor-state.json")

	v.SetDefault("max_depth", HardMaxDepth)
	v.SetDefault("default_agent_type", "orchestrator")

	v.SetDefault("models.primary_prefixes", []string{"sonnet", "opus", "haiku"})
	v.SetDefault("models.primary_contains", []string{"claude"})
	v.SetDefault("models.aliases", map[string]string{"haiku": "claude-haiku-4-5-20251001"})

	v.SetDefault("commands.claude", "claude")
	v.SetDefault("commands.alternate", "cursor-agent")

	v.SetDefault("tail.poll_interval", "1s")
	v.SetDefault("tail.idle_budget", "5m")
	v.SetDefault("tail.marker_grace", "10s")

	v.SetDefault("progress.marker", "[UPDATE]")
	v.SetDefault("progress.instruction", "Give me short, information-dense updates as you finish parts of the task "+
		"(1-2 sentences, max. Incomplete sentences are fine). Only give these updates if you have important "+
		"information to share. Prepend updates with: [UPDATE]")

	v.SetDefault("pushover.user_key", "")
	v.SetDefault("pushover.app_token", "")

	v.SetDefault("markers_dir", filepath.Join(Dir(), "session-markers"))
	v.SetDefault("transcript_roots", []string{
		filepath.Join(claudeDir(), "projects"),
		filepath.Join(claudeDir(), "transcripts"),
	})
	v.SetDefault("mcp_library", []string{
		filepath.Join(claudeDir(), "mcp-library", ".mcp.json"),
		filepath.Join(claudeDir(), ".mcp.json"),
	})
}

func (s *Settings) normalize() {
	if s.MaxDepth <= 0 || s.MaxDepth > HardMaxDepth {
		s.MaxDepth = HardMaxDepth
	}
	if s.Tail.PollInterval <= 0 {
		s.Tail.PollInterval = time.Second
	}
	if s.Tail.IdleBudget <= 0 {
		s.Tail.IdleBudget = 5 * time.Minute
	}
	if s.Tail.MarkerGrace <= 0 {
		s.Tail.MarkerGrace = 10 * time.Second
	}
	if strings.TrimSpace(s.DefaultAgentType) == "" {
		s.DefaultAgentType = "orchestrator"
	}
	if s.Progress.Marker == "" {
		s.Progress.Marker = "[UPDATE]"
	}
}

// ResponsesPath returns the agent output directory under cwd.
func (s *Settings) ResponsesPath(cwd string) string {
	return filepath.Join(cwd, s.ResponsesDir)
}

// RegistryPath returns the registry file under cwd.
func (s *Settings) RegistryPath(cwd string) string {
	return filepath.Join(s.ResponsesPath(cwd), s.RegistryFile)
}

// MonitorStatePath returns the monitor sweep state file under cwd.
func (s *Settings) MonitorStatePath(cwd string) string {
	return filepath.Join(s.ResponsesPath(cwd), s.MonitorState)
}

// LogPath returns the log file for agentID under cwd.
func (s *Settings) LogPath(cwd, agentID string) string {
	return filepath.Join(s.ResponsesPath(cwd), agentID+".md")
}

// IsPrimaryModel reports whether model is served by the primary CLI.
// An empty model uses the primary CLI's own default.
func (s *Settings) IsPrimaryModel(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	if m == "" {
		return true
	}
	for _, p := range s.Models.PrimaryPrefixes {
		if p != "" && strings.HasPrefix(m, strings.ToLower(p)) {
			return true
		}
	}
	for _, c := range s.Models.PrimaryContains {
		if c != "" && strings.Contains(m, strings.ToLower(c)) {
			return true
		}
	}
	return false
}

// ResolveModel expands a configured alias to its full model id.
func (s *Settings) ResolveModel(model string) string {
	m := strings.TrimSpace(model)
	if full, ok := s.Models.Aliases[strings.ToLower(m)]; ok && full != "" {
		return full
	}
	return m
}

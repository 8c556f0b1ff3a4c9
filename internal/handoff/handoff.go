// Package handoff carries a child agent's configuration across the spawn
// boundary. Environment variables are the only channel: the spawning hook,
// the runner and the session driver are separate processes.
package handoff

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/agusx1211/brood/internal/debug"
	"github.com/agusx1211/brood/internal/mcp"
)

// ErrMissing is returned by Decode when a required variable is absent.
var ErrMissing = errors.New("handoff: required variable missing")

// Null encodes an absent list or map. It is distinct from "[]" and "{}":
// a nil allow-list is unrestricted, an empty one allows nothing.
const Null = "null"

const (
	EnvAgentID       = "BROOD_AGENT_ID"
	EnvAgentType     = "BROOD_AGENT_TYPE"
	EnvDepth         = "BROOD_AGENT_DEPTH"
	EnvParentID      = "BROOD_PARENT_AGENT"
	EnvParentPID     = "BROOD_PARENT_PID"
	EnvPrompt        = "BROOD_AGENT_PROMPT"
	EnvWorkDir       = "BROOD_AGENT_CWD"
	EnvOutputStyle   = "BROOD_AGENT_OUTPUT_STYLE"
	EnvAllowedAgents = "BROOD_ALLOWED_AGENTS"
	EnvMCPServers    = "BROOD_MCP_SERVERS"
	EnvModel         = "BROOD_AGENT_MODEL"
	EnvThinking      = "BROOD_THINKING_BUDGET"
	EnvLogPath       = "BROOD_LOG_PATH"
	EnvRegistryPath  = "BROOD_REGISTRY_PATH"
	EnvRoute         = "BROOD_ROUTE"
	EnvSpawnedBy     = "BROOD_SPAWNED_BY_SESSION"
)

// Route selects which CLI the runner drives.
type Route string

const (
	RoutePrimary   Route = "primary"
	RouteAlternate Route = "alternate"
)

// Handoff is everything a runner needs to start one agent.
type Handoff struct {
	AgentID   string
	AgentType string
	// Depth is the child's own depth; it becomes the requester depth of any
	// delegation the child attempts.
	Depth     int
	ParentID  string
	ParentPID int

	Prompt      string
	WorkDir     string
	OutputStyle string

	// AllowedAgents nil means unrestricted.
	AllowedAgents []string
	// MCPServers nil means the session keeps its default servers.
	MCPServers mcp.Servers

	Model          string
	ThinkingBudget int

	LogPath            string
	RegistryPath       string
	Route              Route
	SpawnedBySessionID string
}

// Encode overlays h onto env. Every key is written, empty or not, so values
// inherited from an ancestor agent never leak into the child.
func (h *Handoff) Encode(env []string) ([]string, error) {
	agents, err := encodeJSON(h.AllowedAgents == nil, h.AllowedAgents)
	if err != nil {
		return nil, fmt.Errorf("encoding allowed agents: %w", err)
	}
	servers, err := encodeJSON(h.MCPServers == nil, h.MCPServers)
	if err != nil {
		return nil, fmt.Errorf("encoding mcp servers: %w", err)
	}
	route := h.Route
	if route == "" {
		route = RoutePrimary
	}

	for _, kv := range [][2]string{
		{EnvAgentID, h.AgentID},
		{EnvAgentType, h.AgentType},
		{EnvDepth, strconv.Itoa(h.Depth)},
		{EnvParentID, h.ParentID},
		{EnvParentPID, itoaPositive(h.ParentPID)},
		{EnvPrompt, h.Prompt},
		{EnvWorkDir, h.WorkDir},
		{EnvOutputStyle, h.OutputStyle},
		{EnvAllowedAgents, agents},
		{EnvMCPServers, servers},
		{EnvModel, h.Model},
		{EnvThinking, itoaPositive(h.ThinkingBudget)},
		{EnvLogPath, h.LogPath},
		{EnvRegistryPath, h.RegistryPath},
		{EnvRoute, string(route)},
		{EnvSpawnedBy, h.SpawnedBySessionID},
	} {
		env = debug.SetEnv(env, kv[0], kv[1])
	}
	return env, nil
}

// Decode rebuilds a handoff from lookup, typically os.LookupEnv.
func Decode(lookup func(string) (string, bool)) (*Handoff, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return v
	}
	for _, key := range []string{EnvAgentID, EnvPrompt, EnvWorkDir, EnvLogPath} {
		if v, ok := lookup(key); !ok || v == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissing, key)
		}
	}

	h := &Handoff{
		AgentID:            get(EnvAgentID),
		AgentType:          get(EnvAgentType),
		ParentID:           get(EnvParentID),
		Prompt:             get(EnvPrompt),
		WorkDir:            get(EnvWorkDir),
		OutputStyle:        get(EnvOutputStyle),
		Model:              get(EnvModel),
		LogPath:            get(EnvLogPath),
		RegistryPath:       get(EnvRegistryPath),
		Route:              Route(get(EnvRoute)),
		SpawnedBySessionID: get(EnvSpawnedBy),
	}
	if h.Route == "" {
		h.Route = RoutePrimary
	}

	var err error
	if h.Depth, err = atoiOptional(get(EnvDepth)); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", EnvDepth, err)
	}
	if h.ParentPID, err = atoiOptional(get(EnvParentPID)); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", EnvParentPID, err)
	}
	if h.ThinkingBudget, err = atoiOptional(get(EnvThinking)); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", EnvThinking, err)
	}
	if err := decodeJSON(get(EnvAllowedAgents), &h.AllowedAgents); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", EnvAllowedAgents, err)
	}
	if err := decodeJSON(get(EnvMCPServers), &h.MCPServers); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", EnvMCPServers, err)
	}
	return h, nil
}

// FromEnv decodes the current process environment.
func FromEnv() (*Handoff, error) {
	return Decode(os.LookupEnv)
}

func encodeJSON(isNil bool, v any) (string, error) {
	if isNil {
		return Null, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeJSON leaves dst nil for "" and "null".
func decodeJSON(s string, dst any) error {
	if s == "" || s == Null {
		return nil
	}
	return json.Unmarshal([]byte(s), dst)
}

func itoaPositive(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func atoiOptional(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

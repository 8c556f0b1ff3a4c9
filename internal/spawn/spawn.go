// Package spawn approves delegation requests and starts detached runners.
//
// A spawn is fire-and-forget: the registry entry and the log exist before
// the runner process does, the runner is started in its own session, and
// control returns to the caller as soon as the pid is recorded.
package spawn

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/agusx1211/brood/internal/agentlog"
	"github.com/agusx1211/brood/internal/config"
	"github.com/agusx1211/brood/internal/debug"
	"github.com/agusx1211/brood/internal/definition"
	"github.com/agusx1211/brood/internal/handoff"
	"github.com/agusx1211/brood/internal/hexid"
	"github.com/agusx1211/brood/internal/mcp"
	"github.com/agusx1211/brood/internal/permission"
	"github.com/agusx1211/brood/internal/proc"
	"github.com/agusx1211/brood/internal/registry"
)

// ErrConfig marks configuration problems detected before any process starts.
var ErrConfig = errors.New("spawn: invalid configuration")

// RunnerCommand is the hidden subcommand that supervises one agent.
const RunnerCommand = "_runner"

// Request is one delegation attempt.
type Request struct {
	// RequesterID is the delegating agent, empty for the root session.
	RequesterID string
	// RequesterDepth is the delegating agent's own depth (0 for root).
	RequesterDepth int
	// ParentPID is the session process that asked for the delegation.
	ParentPID int

	SessionID   string // the delegating session, recorded as spawnedBySessionId
	Cwd         string
	ProjectDir  string
	Description string
	Prompt      string
	AgentType   string
}

// Outcome is the synchronous answer to a Request.
type Outcome struct {
	Decision permission.Decision
	AgentID  string
	LogPath  string
	PID      int
	Route    handoff.Route
	// Message is what the delegating agent is told: the denial reason or
	// the delegation notice.
	Message string
}

// Supervisor spawns agents for one project.
type Supervisor struct {
	Settings *config.Settings
	Loader   *definition.Loader
	// Exe is the brood binary the runner is started from.
	Exe string
	// Env is the base environment for runners; nil uses the current one.
	Env []string
}

// New returns a supervisor using the running executable.
func New(settings *config.Settings) (*Supervisor, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("finding executable: %w", err)
	}
	return &Supervisor{
		Settings: settings,
		Loader:   definition.NewLoader(settings.AgentsDir, settings.LibraryDir),
		Exe:      exe,
	}, nil
}

// Spawn checks the request and, when allowed, starts the agent. Denials are
// returned as an Outcome; errors mean nothing was started.
func (s *Supervisor) Spawn(req Request) (*Outcome, error) {
	cfg := s.Settings
	if req.Cwd == "" {
		return nil, fmt.Errorf("%w: missing working directory", ErrConfig)
	}
	agentType := strings.TrimSpace(req.AgentType)
	if agentType == "" {
		agentType = cfg.DefaultAgentType
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Unnamed task"
	}

	checker := permission.Checker{MaxDepth: cfg.MaxDepth}
	// The depth ceiling is checked before anything is loaded.
	if req.RequesterDepth >= cfg.MaxDepth {
		d := checker.Check(permission.Request{Depth: req.RequesterDepth, Type: agentType}, nil)
		return &Outcome{Decision: d, Message: d.Reason}, nil
	}

	def := s.Loader.Load(agentType)
	var servers mcp.Servers
	missing := []string{}
	if def.AllowedMCPServers != nil {
		lib, _ := mcp.Load(mcp.Candidates(cfg.MCPLibrary, req.ProjectDir, req.Cwd))
		servers, missing = mcp.Select(def.AllowedMCPServers, lib)
	}

	store := registry.New(cfg.RegistryPath(req.Cwd))
	checker.RootAllowed = s.Loader.Load(definition.RootType).AllowedAgents
	decision := checker.Check(permission.Request{
		ParentID: req.RequesterID,
		Depth:    req.RequesterDepth,
		Type:     agentType,
	}, store.Read())
	if !decision.Allowed {
		debug.LogKV("spawn", "denied", "type", agentType, "requester", req.RequesterID, "reason", decision.Reason)
		return &Outcome{Decision: decision, Message: decision.Reason}, nil
	}

	route := handoff.RoutePrimary
	if !cfg.IsPrimaryModel(def.Model) {
		route = handoff.RouteAlternate
	}
	if route == handoff.RoutePrimary {
		if strings.TrimSpace(def.Model) == "" {
			return nil, fmt.Errorf("%w: agent type %q has no model configured", ErrConfig, agentType)
		}
		if req.SessionID == "" {
			return nil, fmt.Errorf("%w: missing session id", ErrConfig)
		}
	}

	entry, err := s.register(store, agentType, req, def, missing)
	if err != nil {
		return nil, err
	}
	id := entry.AgentID
	logPath := cfg.LogPath(req.Cwd, id)
	prompt := strings.TrimSpace(req.Prompt)
	if instr := strings.TrimSpace(cfg.Progress.Instruction); instr != "" {
		prompt += "\n\n" + instr
	}

	fail := func(err error) (*Outcome, error) {
		_, _ = store.Finalize(id, registry.StatusFailed)
		l := agentlog.Open(logPath)
		if _, ferr := l.Finalize(registry.StatusFailed); ferr == nil {
			_ = l.AppendError(err.Error())
		}
		return nil, err
	}

	promptRel, err := agentlog.WritePrompt(cfg.ResponsesPath(req.Cwd), cfg.PromptsDir, id, prompt)
	if err != nil {
		debug.LogErr("spawn", "prompt side file not written", err, "agent_id", id)
	}
	log := agentlog.Open(logPath)
	if err := log.Create(agentlog.Header{
		Task:        description,
		Started:     time.Now(),
		Status:      registry.StatusInProgress,
		Depth:       entry.Depth,
		ParentAgent: req.RequesterID,
		Prompt:      promptRel,
	}); err != nil {
		_ = store.Remove(id)
		return nil, fmt.Errorf("creating agent log: %w", err)
	}

	h := &handoff.Handoff{
		AgentID:            id,
		AgentType:          agentType,
		Depth:              entry.Depth,
		ParentID:           req.RequesterID,
		ParentPID:          req.ParentPID,
		Prompt:             prompt,
		WorkDir:            req.Cwd,
		OutputStyle:        def.SystemPrompt,
		AllowedAgents:      def.AllowedAgents,
		MCPServers:         servers,
		Model:              def.Model,
		ThinkingBudget:     def.ThinkingBudget,
		LogPath:            logPath,
		RegistryPath:       store.Path(),
		Route:              route,
		SpawnedBySessionID: req.SessionID,
	}
	pid, err := s.start(h)
	if err != nil {
		return fail(fmt.Errorf("starting runner: %w", err))
	}
	if err := store.SetPIDs(id, pid, pid); err != nil {
		debug.LogErr("spawn", "recording pid failed", err, "agent_id", id)
	}
	if err := log.SetPID(pid); err != nil {
		debug.LogErr("spawn", "patching log pid failed", err, "agent_id", id)
	}
	debug.LogKV("spawn", "agent started", "agent_id", id, "type", agentType, "depth", entry.Depth, "route", route, "pid", pid)

	return &Outcome{
		Decision: permission.Allow,
		AgentID:  id,
		LogPath:  logPath,
		PID:      pid,
		Route:    route,
		Message:  DelegationMessage(req.Cwd, logPath, id),
	}, nil
}

// register inserts the entry under a fresh id. Ids are drawn until one is
// free in both the registry and the responses directory.
func (s *Supervisor) register(store *registry.Store, agentType string, req Request, def *definition.Definition, missing []string) (registry.Entry, error) {
	for attempt := 0; attempt < 8; attempt++ {
		id := hexid.AgentID()
		if _, err := os.Stat(s.Settings.LogPath(req.Cwd, id)); err == nil {
			continue
		}
		e := registry.NewEntry(id, agentType, req.RequesterID, req.RequesterDepth+1)
		e.AllowedAgents = def.AllowedAgents
		e.AllowedMCPServers = def.AllowedMCPServers
		e.MissingMCPServers = missing
		e.SpawnedBySessionID = req.SessionID
		err := store.Insert(e)
		if errors.Is(err, registry.ErrExists) {
			continue
		}
		if err != nil {
			return registry.Entry{}, fmt.Errorf("registering agent: %w", err)
		}
		return e, nil
	}
	return registry.Entry{}, fmt.Errorf("registering agent: no free agent id")
}

// start launches the runner detached from the caller's session with stdio
// closed, then releases it.
func (s *Supervisor) start(h *handoff.Handoff) (int, error) {
	base := s.Env
	if base == nil {
		base = os.Environ()
	}
	env, err := h.Encode(append([]string(nil), base...))
	if err != nil {
		return 0, err
	}
	env = debug.PropagatedEnv(env, "runner:"+h.AgentID)

	cmd := exec.Command(s.Exe, RunnerCommand)
	cmd.Dir = h.WorkDir
	cmd.Env = env
	proc.Detach(cmd)
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return pid, nil
}

// DelegationMessage tells the delegating agent where the output goes and how
// to wait for it.
func DelegationMessage(cwd, logPath, agentID string) string {
	rel, err := filepath.Rel(cwd, logPath)
	if err != nil {
		rel = logPath
	}
	return fmt.Sprintf("Delegated to an agent. Response logged to %s in real time.\n\n"+
		"A hook will alert you on updates and when complete. To sleep until completion you must run "+
		"`brood await %s` with a 10 minute timeout. *It is never acceptable to simply inform the user that "+
		"they will be notified when the task is complete, since they WON'T be notified; only you will. You must "+
		"await the agent, sleep and check agent responses, or work on other tasks until the agent is complete.* "+
		"If this task is not blocking, do not await it; perform other work until the agent is complete.",
		rel, agentID)
}

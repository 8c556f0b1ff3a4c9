// Package session drives one primary-CLI agent session: it streams the
// CLI's output into the agent log, then follows the session transcript so
// later turns keep landing in the same log.
package session

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/agusx1211/brood/internal/agent"
	"github.com/agusx1211/brood/internal/agentlog"
	"github.com/agusx1211/brood/internal/config"
	"github.com/agusx1211/brood/internal/debug"
	"github.com/agusx1211/brood/internal/handoff"
	"github.com/agusx1211/brood/internal/logstream"
	"github.com/agusx1211/brood/internal/marker"
	"github.com/agusx1211/brood/internal/proc"
	"github.com/agusx1211/brood/internal/registry"
	"github.com/agusx1211/brood/internal/stream"
)

// Driver runs the session described by H.
type Driver struct {
	H        *handoff.Handoff
	Settings *config.Settings
	// Exe is the brood binary installed as the delegation hook.
	Exe string
	// Agent defaults to the Claude CLI.
	Agent agent.Agent

	store *registry.Store
	log   *agentlog.Log
	seen  *logstream.Seen

	mu         sync.Mutex
	sessionID  string
	markerPath string
	cliPID     int
}

// New returns a driver for h.
func New(h *handoff.Handoff, settings *config.Settings, exe string) *Driver {
	regPath := h.RegistryPath
	if regPath == "" {
		regPath = settings.RegistryPath(h.WorkDir)
	}
	return &Driver{
		H:        h,
		Settings: settings,
		Exe:      exe,
		Agent:    agent.NewClaudeAgent(),
		store:    registry.New(regPath),
		log:      agentlog.Open(h.LogPath),
		seen:     logstream.NewSeen(),
	}
}

// Run streams the CLI and then tails its transcript. It returns the CLI's
// exit code so the caller can exit with it.
func (d *Driver) Run(ctx context.Context) (int, error) {
	cfg, err := d.config()
	if err != nil {
		d.fail(err.Error())
		return 1, err
	}

	streamer := logstream.NewStreamer(d.log, d.seen, d.Settings.Progress.Marker)
	cfg.OnStart = func(pid int) {
		d.mu.Lock()
		d.cliPID = pid
		d.mu.Unlock()
	}
	cfg.OnEvent = func(ev stream.Event) {
		if ev.Err != nil {
			debug.LogKV("session", "undecodable stdout line", "agent_id", d.H.AgentID, "error", ev.Err)
			return
		}
		out, err := streamer.Apply(ev.Message)
		if err != nil {
			debug.LogErr("session", "log write failed", err, "agent_id", d.H.AgentID)
		}
		if out.SessionID != "" {
			d.capture(out.SessionID)
		}
		d.outcome(out)
	}

	res, err := agent.Run(ctx, d.Agent, cfg)
	if err != nil {
		d.fail(fmt.Sprintf("Error running %s: %v", d.Agent.Name(), err))
		_ = logstream.MarkExited(d.log)
		return 1, err
	}
	if res.SessionID != "" {
		d.capture(res.SessionID)
	}

	if err := d.tail(ctx); err != nil && ctx.Err() == nil {
		debug.LogErr("session", "transcript tail failed", err, "agent_id", d.H.AgentID)
	}
	if err := logstream.MarkExited(d.log); err != nil {
		debug.LogErr("session", "marking exit failed", err, "agent_id", d.H.AgentID)
	}
	debug.LogKV("session", "finished", "agent_id", d.H.AgentID, "exit_code", res.ExitCode, "signal", res.Signal)
	return res.ExitCode, nil
}

func (d *Driver) config() (agent.Config, error) {
	h := d.H
	hooks, err := agent.DelegationSettings(d.Exe)
	if err != nil {
		return agent.Config{}, fmt.Errorf("building hook settings: %w", err)
	}
	var mcpConfig string
	if h.MCPServers != nil {
		if mcpConfig, err = h.MCPServers.ConfigJSON(); err != nil {
			return agent.Config{}, fmt.Errorf("building MCP config: %w", err)
		}
	}
	env, err := h.Encode(os.Environ())
	if err != nil {
		return agent.Config{}, err
	}
	return agent.Config{
		Command:        d.Settings.Commands.Claude,
		WorkDir:        h.WorkDir,
		Env:            debug.PropagatedEnv(env, "cli:"+h.AgentID),
		Prompt:         h.Prompt,
		SystemPrompt:   h.OutputStyle,
		Model:          d.Settings.ResolveModel(h.Model),
		MCPConfig:      mcpConfig,
		ThinkingBudget: h.ThinkingBudget,
		Settings:       hooks,
		Namespace:      h.AgentID,
	}, nil
}

// capture records the session identity the first time it is seen.
func (d *Driver) capture(sessionID string) {
	d.mu.Lock()
	if d.sessionID != "" {
		d.mu.Unlock()
		return
	}
	d.sessionID = sessionID
	d.mu.Unlock()

	info := registry.SessionInfo{
		SessionID:       sessionID,
		ParentSessionID: d.H.SpawnedBySessionID,
		ParentPID:       d.H.ParentPID,
	}
	if d.H.ParentPID > 0 {
		if m, ok := marker.Read(d.Settings.MarkersDir, d.H.ParentPID); ok && m.SessionID != "" {
			info.ParentSessionID = m.SessionID
		}
	}
	if p, ok := logstream.FirstExisting(d.candidates(sessionID)); ok {
		info.TranscriptPath = p
	}
	if err := d.store.SetSessionInfo(d.H.AgentID, info); err != nil {
		debug.LogErr("session", "recording session info failed", err, "agent_id", d.H.AgentID)
	}
	if p, ok := marker.FindBySession(d.Settings.MarkersDir, sessionID); ok {
		d.mu.Lock()
		d.markerPath = p
		d.mu.Unlock()
	}
	debug.LogKV("session", "session identified", "agent_id", d.H.AgentID, "session_id", sessionID,
		"parent_session_id", info.ParentSessionID)
}

func (d *Driver) candidates(sessionID string) []string {
	return logstream.TranscriptCandidates(d.Settings.TranscriptRoots, sessionID, d.H.WorkDir)
}

// tail follows the transcript until the session's marker is gone or the
// transcript goes idle.
func (d *Driver) tail(ctx context.Context) error {
	d.mu.Lock()
	sessionID := d.sessionID
	d.mu.Unlock()
	if sessionID == "" {
		return nil
	}

	transcript := logstream.NewTranscript(d.log, d.H.AgentID, d.seen, d.H.Prompt)
	t := &logstream.Tailer{
		Candidates:   d.candidates(sessionID),
		Interval:     d.Settings.Tail.PollInterval,
		IdleBudget:   d.Settings.Tail.IdleBudget,
		Grace:        d.Settings.Tail.MarkerGrace,
		MarkerActive: d.sessionActive,
		OnPath: func(p string) {
			if err := d.store.UpdateField(d.H.AgentID, "transcriptPath", p); err != nil {
				debug.LogErr("session", "recording transcript path failed", err, "agent_id", d.H.AgentID)
			}
		},
		OnLine: func(line []byte) {
			if err := transcript.Process(line); err != nil {
				debug.LogErr("session", "transcript write failed", err, "agent_id", d.H.AgentID)
			}
		},
	}
	return t.Run(ctx)
}

// sessionActive prefers the session marker; without one it falls back to
// whether the CLI process is still running.
func (d *Driver) sessionActive() bool {
	d.mu.Lock()
	path, sessionID, pid := d.markerPath, d.sessionID, d.cliPID
	d.mu.Unlock()
	if path == "" {
		if p, ok := marker.FindBySession(d.Settings.MarkersDir, sessionID); ok {
			d.mu.Lock()
			d.markerPath = p
			d.mu.Unlock()
			return true
		}
		return pid > 0 && proc.Alive(pid)
	}
	return marker.Active(path)
}

func (d *Driver) outcome(out logstream.Outcome) {
	if !out.Status.Terminal() {
		return
	}
	applied := d.finalize(out.Status)
	if applied && out.Status == registry.StatusFailed && strings.TrimSpace(out.Detail) != "" {
		if err := d.log.AppendError(out.Detail); err != nil {
			debug.LogErr("session", "appending error failed", err, "agent_id", d.H.AgentID)
		}
	}
}

func (d *Driver) fail(msg string) {
	if d.finalize(registry.StatusFailed) {
		_ = d.log.AppendError(msg)
	}
}

func (d *Driver) finalize(status registry.Status) bool {
	if _, err := d.store.Finalize(d.H.AgentID, status); err != nil {
		debug.LogErr("session", "registry finalize failed", err, "agent_id", d.H.AgentID)
	}
	applied, err := d.log.Finalize(status)
	if err != nil {
		debug.LogErr("session", "log finalize failed", err, "agent_id", d.H.AgentID)
	}
	return applied
}

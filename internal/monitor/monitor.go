// Package monitor reconciles agent logs with reality: it notices agents
// that finished, died, or reported progress since the last sweep and turns
// that into one-line notifications for the orchestrating session.
package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/agusx1211/brood/internal/agentlog"
	"github.com/agusx1211/brood/internal/config"
	"github.com/agusx1211/brood/internal/debug"
	"github.com/agusx1211/brood/internal/hook"
	"github.com/agusx1211/brood/internal/proc"
	"github.com/agusx1211/brood/internal/registry"
)

// minNotifySize skips logs that hold little more than a header.
const minNotifySize = 100

var interruptionReasons = map[string]bool{
	"user_interrupt":    true,
	"prompt_input_exit": true,
	"cancelled":         true,
	"user_cancel":       true,
}

// Trigger describes the hook event that caused a sweep.
type Trigger struct {
	Event     string
	Reason    string
	SessionID string
	// AllSessions reports agents regardless of which session spawned them.
	AllSessions bool
}

// ChecksInterruption reports whether dead in-progress agents should be
// marked interrupted on this trigger.
func (t Trigger) ChecksInterruption() bool {
	return interruptionReasons[t.Reason] || t.Event == hook.SubagentStop
}

// Monitor sweeps the agent logs of one working directory.
type Monitor struct {
	Settings *config.Settings
	Cwd      string
	// AgentID is the agent running this sweep, empty for the root session.
	AgentID string
	// Alive probes tracked pids. Defaults to proc.AnyAlive.
	Alive func(pids ...int) bool
}

// New returns a monitor for cwd.
func New(settings *config.Settings, cwd, agentID string) *Monitor {
	return &Monitor{Settings: settings, Cwd: cwd, AgentID: agentID, Alive: proc.AnyAlive}
}

// Sweep inspects every agent log and returns the notifications to deliver.
// Repeating a sweep without changes returns nothing.
func (m *Monitor) Sweep(t Trigger) ([]string, error) {
	dir := m.Settings.ResponsesPath(m.Cwd)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	statePath := m.Settings.MonitorStatePath(m.Cwd)
	unlock := lockState(statePath)
	defer unlock()

	files, err := doublestar.FilepathGlob(filepath.Join(dir, "agent_*.md"))
	if err != nil {
		return nil, fmt.Errorf("listing agent logs: %w", err)
	}
	sort.Strings(files)

	store := registry.New(m.Settings.RegistryPath(m.Cwd))
	reg := store.Read()
	state := loadState(statePath)
	sw := &sweep{m: m, t: t, store: store, reg: reg, state: state}
	if e, ok := reg[m.AgentID]; ok && m.AgentID != "" {
		sw.ownSessionID = e.SessionID
	}

	for _, path := range files {
		sw.file(path)
	}

	if err := saveState(statePath, state); err != nil {
		debug.LogErr("monitor", "saving sweep state failed", err, "path", statePath)
	}
	return sw.updates, nil
}

// Output formats notifications for the hook event that triggered the sweep.
func Output(t Trigger, updates []string) (hook.Output, bool) {
	if len(updates) == 0 {
		return hook.Output{}, false
	}
	return hook.Notify(t.Event, strings.Join(updates, "\n")), true
}

type sweep struct {
	m            *Monitor
	t            Trigger
	store        *registry.Store
	reg          registry.Registry
	state        State
	ownSessionID string
	updates      []string
}

type snapshot struct {
	FileState
	content string
}

func readSnapshot(path string) (snapshot, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return snapshot{}, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshot{}, false
	}
	s := snapshot{content: string(data)}
	s.MTime = info.ModTime()
	s.Size = info.Size()
	s.Status = "unknown"
	if h, _, err := agentlog.Parse(s.content); err == nil && h.Status != "" {
		s.Status = h.Status
	}
	return s, true
}

func (sw *sweep) file(path string) {
	cur, ok := readSnapshot(path)
	if !ok {
		return
	}
	prev, hasPrev := sw.state[path]
	agentID := strings.TrimSuffix(filepath.Base(path), ".md")
	entry, inRegistry := sw.reg[agentID]
	rel := sw.m.relative(path)

	// A registered entry with no pids yet is still being spawned.
	pids := entry.PIDs()
	if sw.t.ChecksInterruption() && cur.Status == registry.StatusInProgress &&
		(!inRegistry || len(pids) > 0 && !sw.m.Alive(pids...)) {
		if sw.interrupt(path, agentID) {
			next, ok := readSnapshot(path)
			if !ok {
				next = cur
				next.Status = registry.StatusInterrupted
			}
			if !(prev.Status == registry.StatusInterrupted && prev.Notified) {
				sw.updates = append(sw.updates, "Agent interrupted: "+rel)
			}
			next.Notified = true
			next.LastUpdateLine = lastLine(prev, hasPrev)
			sw.state[path] = next.FileState
			return
		}
	}

	if hasPrev && prev.MTime.Equal(cur.MTime) && prev.Status == cur.Status {
		return
	}

	cur.LastUpdateLine = lastLine(prev, hasPrev)
	if cur.Size > minNotifySize {
		foreign := !sw.t.AllSessions && inRegistry && entry.SpawnedBySessionID != sw.t.SessionID &&
			entry.SpawnedBySessionID != sw.ownSessionID
		completed := (cur.Status == registry.StatusDone || cur.Status == registry.StatusFailed) &&
			prev.Status != cur.Status

		switch {
		case completed && !prev.Notified:
			if foreign {
				return
			}
			sw.updates = append(sw.updates, "Agent completed: "+rel)
			sw.remove(agentID)
			cur.Notified = true

		case cur.Status == registry.StatusInterrupted:
			if prev.Status != registry.StatusInterrupted && !prev.Notified {
				if foreign {
					return
				}
				sw.updates = append(sw.updates, "Agent interrupted: "+rel)
				sw.remove(agentID)
				cur.Notified = true
			}

		case hasPrev:
			if foreign {
				return
			}
			text, last := ExtractUpdates(cur.content, sw.m.Settings.Progress.Marker, cur.LastUpdateLine)
			if text != "" {
				sw.updates = append(sw.updates, agentID+" update: "+text)
				cur.LastUpdateLine = last
			}
		}
	}
	if !cur.Notified {
		cur.Notified = prev.Notified && prev.Status == cur.Status
	}
	sw.state[path] = cur.FileState
}

// interrupt marks the log interrupted and drops the registry entry. It
// reports whether the log transition happened.
func (sw *sweep) interrupt(path, agentID string) bool {
	applied, err := agentlog.Open(path).Finalize(registry.StatusInterrupted)
	if err != nil {
		debug.LogErr("monitor", "marking interrupted failed", err, "agent_id", agentID)
		return false
	}
	if !applied {
		return false
	}
	if _, err := sw.store.Finalize(agentID, registry.StatusInterrupted); err != nil {
		debug.LogErr("monitor", "registry finalize failed", err, "agent_id", agentID)
	}
	sw.remove(agentID)
	debug.LogKV("monitor", "agent interrupted", "agent_id", agentID)
	return true
}

func (sw *sweep) remove(agentID string) {
	if err := sw.store.Remove(agentID); err != nil {
		debug.LogErr("monitor", "removing registry entry failed", err, "agent_id", agentID)
	}
	delete(sw.reg, agentID)
}

func (m *Monitor) relative(path string) string {
	if rel, err := filepath.Rel(m.Cwd, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return filepath.Base(path)
}

func lastLine(prev FileState, hasPrev bool) int {
	if !hasPrev {
		return -1
	}
	return prev.LastUpdateLine
}

// ExtractUpdates returns the text following marker on every line after
// index after, joined by newlines, and the index of the last such line.
func ExtractUpdates(content, marker string, after int) (string, int) {
	if marker == "" {
		return "", after
	}
	lines := strings.Split(content, "\n")
	var found []string
	last := after
	for i := after + 1; i < len(lines); i++ {
		idx := strings.Index(lines[i], marker)
		if idx < 0 {
			continue
		}
		if text := strings.TrimSpace(lines[i][idx+len(marker):]); text != "" {
			found = append(found, text)
			last = i
		}
	}
	return strings.Join(found, "\n"), last
}

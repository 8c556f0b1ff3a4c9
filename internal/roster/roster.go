// Package roster builds a read-only view of the agents in a working
// directory by joining log headers with registry entries.
package roster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/agusx1211/brood/internal/agentlog"
	"github.com/agusx1211/brood/internal/config"
	"github.com/agusx1211/brood/internal/proc"
	"github.com/agusx1211/brood/internal/registry"
)

// ErrUnknownAgent is returned when neither a log nor a registry entry exists.
var ErrUnknownAgent = errors.New("unknown agent")

// Agent is one row of the roster.
type Agent struct {
	ID      string          `json:"agentId"`
	Type    string          `json:"agentType,omitempty"`
	Status  registry.Status `json:"status"`
	Depth   int             `json:"depth"`
	Parent  string          `json:"parentAgent,omitempty"`
	Task    string          `json:"task,omitempty"`
	Started time.Time       `json:"started,omitzero"`
	Ended   time.Time       `json:"ended,omitzero"`
	PID     int             `json:"pid,omitempty"`
	LogPath string          `json:"logPath"`

	// Registered is true while the registry still tracks the agent.
	Registered bool `json:"registered"`
	// Alive reports whether any tracked process is running.
	Alive bool `json:"alive"`
}

// Dead reports an agent whose log says in-progress but whose processes are
// all gone.
func (a Agent) Dead() bool {
	return a.Status == registry.StatusInProgress && !a.Alive && (a.Registered || a.PID > 0)
}

// Roster reads agents for one working directory.
type Roster struct {
	Settings *config.Settings
	Cwd      string
	Alive    func(pids ...int) bool
}

// New returns a roster for cwd.
func New(settings *config.Settings, cwd string) *Roster {
	return &Roster{Settings: settings, Cwd: cwd, Alive: proc.AnyAlive}
}

// List returns every known agent ordered by start time.
func (r *Roster) List() ([]Agent, error) {
	files, err := doublestar.FilepathGlob(filepath.Join(r.Settings.ResponsesPath(r.Cwd), "agent_*.md"))
	if err != nil {
		return nil, fmt.Errorf("listing agent logs: %w", err)
	}
	reg := registry.New(r.Settings.RegistryPath(r.Cwd)).Read()

	byID := map[string]Agent{}
	for _, f := range files {
		id := strings.TrimSuffix(filepath.Base(f), ".md")
		byID[id] = r.build(id, f, reg)
	}
	for id := range reg {
		if _, ok := byID[id]; !ok {
			byID[id] = r.build(id, r.Settings.LogPath(r.Cwd, id), reg)
		}
	}

	out := make([]Agent, 0, len(byID))
	for _, a := range byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Started.Equal(out[j].Started) {
			return out[i].Started.Before(out[j].Started)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Get returns one agent.
func (r *Roster) Get(id string) (Agent, error) {
	reg := registry.New(r.Settings.RegistryPath(r.Cwd)).Read()
	path := r.Settings.LogPath(r.Cwd, id)
	if _, ok := reg[id]; !ok {
		if _, err := os.Stat(path); err != nil {
			return Agent{}, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
		}
	}
	return r.build(id, path, reg), nil
}

// Body returns the log content after the header.
func (r *Roster) Body(id string) (string, error) {
	content, err := agentlog.Open(r.Settings.LogPath(r.Cwd, id)).Content()
	if err != nil {
		return "", err
	}
	_, body, _ := agentlog.Split(content)
	return strings.TrimLeft(body, "\n"), nil
}

// Await polls until the agent reaches a terminal status or is found dead.
func (r *Roster) Await(ctx context.Context, id string, interval time.Duration) (Agent, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		a, err := r.Get(id)
		if err != nil {
			return a, err
		}
		if a.Status.Terminal() || a.Dead() {
			return a, nil
		}
		select {
		case <-ctx.Done():
			return a, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Roster) build(id, logPath string, reg registry.Registry) Agent {
	a := Agent{ID: id, LogPath: logPath, Status: "unknown"}
	if h, err := agentlog.Open(logPath).Header(); err == nil {
		a.Status = h.Status
		a.Depth = h.Depth
		a.Parent = h.ParentAgent
		a.Task = h.Task
		a.Started = h.Started
		a.Ended = h.Ended
		a.PID = h.PID
	}
	var pids []int
	if e, ok := reg[id]; ok {
		a.Registered = true
		a.Type = e.AgentType
		a.Depth = e.Depth
		if a.Status == "unknown" {
			a.Status = e.Status
		}
		if a.Started.IsZero() {
			a.Started = e.CreatedAt
		}
		pids = e.PIDs()
	} else if a.PID > 0 {
		pids = []int{a.PID}
	}
	alive := r.Alive
	if alive == nil {
		alive = proc.AnyAlive
	}
	a.Alive = alive(pids...)
	return a
}

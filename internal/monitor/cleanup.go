package monitor

import (
	"errors"
	"os"

	"github.com/agusx1211/brood/internal/agentlog"
	"github.com/agusx1211/brood/internal/debug"
	"github.com/agusx1211/brood/internal/proc"
	"github.com/agusx1211/brood/internal/registry"
)

// CleanupResult lists what Cleanup touched.
type CleanupResult struct {
	Signaled    []int
	Interrupted []string
}

// Cleanup terminates the agents spawned below the current agent (every
// agent when run from the root session), marks their logs interrupted and
// drops them from the registry. Signal and log failures are not errors.
func (m *Monitor) Cleanup() (*CleanupResult, error) {
	store := registry.New(m.Settings.RegistryPath(m.Cwd))
	reg := store.Read()
	var targets []registry.Entry
	if m.AgentID == "" {
		for _, id := range reg.IDs() {
			targets = append(targets, reg[id])
		}
	} else {
		targets = reg.Descendants(m.AgentID)
	}

	res := &CleanupResult{}
	for _, e := range targets {
		for _, pid := range e.PIDs() {
			if proc.Terminate(pid) {
				res.Signaled = append(res.Signaled, pid)
			}
		}
		log := agentlog.Open(m.Settings.LogPath(m.Cwd, e.AgentID))
		applied, err := log.Finalize(registry.StatusInterrupted)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			debug.LogErr("monitor", "marking interrupted failed", err, "agent_id", e.AgentID)
		}
		if applied {
			res.Interrupted = append(res.Interrupted, e.AgentID)
		}
		log.RemoveLock()
	}

	if m.AgentID == "" {
		if _, err := store.Clear(); err != nil {
			return res, err
		}
	} else {
		err := store.Update(func(r registry.Registry) error {
			for _, e := range targets {
				delete(r, e.AgentID)
			}
			return nil
		})
		if err != nil {
			return res, err
		}
	}
	debug.LogKV("monitor", "cleanup finished", "agent_id", m.AgentID,
		"signaled", len(res.Signaled), "interrupted", len(res.Interrupted))
	return res, nil
}

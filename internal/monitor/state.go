package monitor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/agusx1211/brood/internal/debug"
	"github.com/agusx1211/brood/internal/registry"
)

// FileState is what the monitor remembers about one agent log between
// sweeps.
type FileState struct {
	MTime    time.Time       `json:"mtime"`
	Status   registry.Status `json:"status"`
	Size     int64           `json:"size"`
	Notified bool            `json:"notified,omitempty"`
	// LastUpdateLine is the index of the last progress line already
	// surfaced; -1 when none has been.
	LastUpdateLine int `json:"lastUpdateLine"`
}

// State maps log paths to their last observed state.
type State map[string]FileState

func loadState(path string) State {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}
	}
	st := State{}
	if err := json.Unmarshal(data, &st); err != nil {
		debug.LogErr("monitor", "corrupt sweep state, starting fresh", err, "path", path)
		return State{}
	}
	return st
}

func saveState(path string, st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// lockState serializes sweeps of the same directory. Concurrent hook
// invocations would otherwise both report the same completion.
func lockState(path string) func() {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return func() {}
	}
	fl := flock.New(path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	locked, err := fl.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil || !locked {
		debug.LogKV("monitor", "state lock not acquired, sweeping unlocked", "path", path, "err", err)
		return func() {}
	}
	return func() { _ = fl.Unlock() }
}

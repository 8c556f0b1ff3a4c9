// Package registry persists the agent-id → metadata map shared by every
// process in one agent tree.
//
// The registry is a single JSON object file. Read and Write are plain
// whole-file operations; the mutating helpers wrap read-modify-write in an
// advisory flock on "<path>.lock" so that concurrent hooks, runners and
// monitors serialize their updates. The OS releases the lock when a holder
// dies, so a crashed writer never wedges the others. If the lock cannot be
// taken in time the update proceeds unlocked with last-write-wins semantics.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/agusx1211/brood/internal/debug"
)

// ErrExists is returned by Insert when the agent id is already registered.
var ErrExists = errors.New("registry: agent already registered")

const (
	defaultLockTimeout = 5 * time.Second
	lockRetryDelay     = 25 * time.Millisecond
)

// Store reads and writes one registry file.
type Store struct {
	path        string
	lockTimeout time.Duration
}

// New returns a store backed by the file at path. The file need not exist.
func New(path string) *Store {
	return &Store{path: path, lockTimeout: defaultLockTimeout}
}

// Path returns the registry file path.
func (s *Store) Path() string {
	return s.path
}

// Read returns the registry contents. A missing, empty or corrupt file reads
// as an empty registry.
func (s *Store) Read() Registry {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			debug.LogErr("registry", "read failed, using empty registry", err, "path", s.path)
		}
		return Registry{}
	}
	reg := Registry{}
	if err := json.Unmarshal(data, &reg); err != nil {
		debug.LogErr("registry", "corrupt registry, using empty registry", err, "path", s.path)
		return Registry{}
	}
	if reg == nil {
		return Registry{}
	}
	return reg
}

// Write serializes reg and overwrites the file.
func (s *Store) Write(reg Registry) error {
	if reg == nil {
		reg = Registry{}
	}
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating registry dir: %w", err)
	}
	return os.WriteFile(s.path, data, 0644)
}

// Update runs fn against the current registry under the advisory lock and
// writes the result back. When fn returns an error nothing is written.
func (s *Store) Update(fn func(Registry) error) error {
	unlock := s.lock()
	defer unlock()

	reg := s.Read()
	if err := fn(reg); err != nil {
		return err
	}
	return s.Write(reg)
}

func (s *Store) lock() func() {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		debug.LogErr("registry", "lock dir unavailable, updating unlocked", err, "path", s.path)
		return func() {}
	}
	fl := flock.New(s.path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), s.lockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		debug.LogKV("registry", "lock not acquired, updating unlocked", "path", s.path, "err", err)
		return func() {}
	}
	return func() { _ = fl.Unlock() }
}

// Get returns the entry for id.
func (s *Store) Get(id string) (Entry, bool) {
	e, ok := s.Read()[id]
	return e, ok
}

// Insert adds a new entry, refusing to overwrite an existing id.
func (s *Store) Insert(e Entry) error {
	return s.Update(func(reg Registry) error {
		if _, ok := reg[e.AgentID]; ok {
			return fmt.Errorf("%w: %s", ErrExists, e.AgentID)
		}
		reg[e.AgentID] = e
		return nil
	})
}

// errGone aborts an update whose entry disappeared; callers see nil.
var errGone = errors.New("entry gone")

// Modify applies fn to the entry for id. A missing entry is a no-op: the
// registry may have been cleared while the agent was still running.
func (s *Store) Modify(id string, fn func(*Entry)) error {
	err := s.Update(func(reg Registry) error {
		e, ok := reg[id]
		if !ok {
			return errGone
		}
		fn(&e)
		reg[id] = e
		return nil
	})
	if errors.Is(err, errGone) {
		debug.LogKV("registry", "update skipped, entry gone", "agent_id", id)
		return nil
	}
	return err
}

// UpdateField sets one JSON field of the entry for id, addressing it by its
// wire name (e.g. "transcriptPath"). A missing entry is a no-op.
func (s *Store) UpdateField(id, field string, value any) error {
	var convErr error
	err := s.Modify(id, func(e *Entry) {
		raw, err := json.Marshal(e)
		if err != nil {
			convErr = err
			return
		}
		fields := map[string]any{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			convErr = err
			return
		}
		fields[field] = value
		raw, err = json.Marshal(fields)
		if err != nil {
			convErr = err
			return
		}
		var updated Entry
		if err := json.Unmarshal(raw, &updated); err != nil {
			convErr = fmt.Errorf("field %s: %w", field, err)
			return
		}
		*e = updated
	})
	if convErr != nil {
		return fmt.Errorf("updating %s.%s: %w", id, field, convErr)
	}
	return err
}

// SetPIDs records the LLM session pid and, when non-zero, the runner pid.
func (s *Store) SetPIDs(id string, pid, runnerPID int) error {
	return s.Modify(id, func(e *Entry) {
		if pid > 0 {
			e.PID = pid
		}
		if runnerPID > 0 {
			e.RunnerPID = runnerPID
		}
	})
}

// SetSessionInfo stores the child's session identity. Empty fields leave the
// previous values in place.
func (s *Store) SetSessionInfo(id string, info SessionInfo) error {
	return s.Modify(id, func(e *Entry) {
		if info.SessionID != "" {
			e.SessionID = info.SessionID
		}
		if info.TranscriptPath != "" {
			e.TranscriptPath = info.TranscriptPath
		}
		if info.ParentSessionID != "" {
			e.ParentSessionID = info.ParentSessionID
		}
		if info.ParentPID > 0 {
			e.ParentPID = info.ParentPID
		}
	})
}

// Finalize moves the entry to a terminal status if it is still in progress.
// It reports whether this call performed the transition; a later writer
// finds the status already terminal and leaves it alone.
func (s *Store) Finalize(id string, status Status) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("registry: %q is not a terminal status", status)
	}
	applied := false
	err := s.Modify(id, func(e *Entry) {
		if e.Status.Terminal() {
			return
		}
		now := time.Now().UTC()
		e.Status = status
		e.EndedAt = &now
		applied = true
	})
	return applied, err
}

// Remove deletes the entry for id. Removing a missing entry is a no-op.
func (s *Store) Remove(id string) error {
	return s.Update(func(reg Registry) error {
		delete(reg, id)
		return nil
	})
}

// Clear empties the registry and returns what it held.
func (s *Store) Clear() (Registry, error) {
	var old Registry
	err := s.Update(func(reg Registry) error {
		old = Registry{}
		for id, e := range reg {
			old[id] = e
			delete(reg, id)
		}
		return nil
	})
	return old, err
}

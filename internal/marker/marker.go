// Package marker tracks live interactive sessions with one small JSON file
// per session process. A marker disappearing is the signal that the session
// which spawned an agent has ended.
package marker

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Marker is the content of <dir>/<pid>.json.
type Marker struct {
	SessionID string    `json:"sessionId"`
	PID       int       `json:"pid"`
	Cwd       string    `json:"cwd"`
	StartedAt time.Time `json:"startedAt"`
}

// Path returns the marker file for pid.
func Path(dir string, pid int) string {
	return filepath.Join(dir, strconv.Itoa(pid)+".json")
}

// Write stores m, replacing any marker for the same pid.
func Write(dir string, m Marker) error {
	if m.PID <= 0 {
		return fmt.Errorf("marker: invalid pid %d", m.PID)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating marker dir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := Path(dir, m.PID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing marker: %w", err)
	}
	return os.Rename(tmp, Path(dir, m.PID))
}

// Remove deletes the marker for pid. A missing marker is not an error.
func Remove(dir string, pid int) error {
	err := os.Remove(Path(dir, pid))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Read returns the marker for pid.
func Read(dir string, pid int) (Marker, bool) {
	return readFile(Path(dir, pid))
}

// FindBySession returns the path of the marker whose session id matches.
// Malformed files are skipped.
func FindBySession(dir, sessionID string) (string, bool) {
	if sessionID == "" {
		return "", false
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if m, ok := readFile(p); ok && m.SessionID == sessionID {
			return p, true
		}
	}
	return "", false
}

// Active reports whether the marker at path still exists. An empty path
// means no marker was ever found and counts as active.
func Active(path string) bool {
	if path == "" {
		return true
	}
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}

func readFile(path string) (Marker, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Marker{}, false
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return Marker{}, false
	}
	return m, true
}

package agentlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/agusx1211/brood/internal/debug"
	"github.com/agusx1211/brood/internal/registry"
)

// ErrExists is returned by Create when the log file already exists.
var ErrExists = errors.New("agentlog: log already exists")

const lockTimeout = 3 * time.Second

// Log is one agent's log file. Every mutation holds an advisory lock so that
// header patches from the runner cannot drop body appends from the session
// driver.
type Log struct {
	path string
}

// Open returns a handle for the log at path. The file need not exist yet.
func Open(path string) *Log {
	return &Log{path: path}
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// LockPath is where the advisory lock for the log lives.
func (l *Log) LockPath() string {
	return filepath.Join(filepath.Dir(l.path), ".locks", filepath.Base(l.path)+".lock")
}

func (l *Log) lock() func() {
	lp := l.LockPath()
	if err := os.MkdirAll(filepath.Dir(lp), 0755); err != nil {
		return func() {}
	}
	fl := flock.New(lp)
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	if ok, err := fl.TryLockContext(ctx, 20*time.Millisecond); err != nil || !ok {
		debug.LogKV("agentlog", "lock not acquired, writing unlocked", "path", l.path, "err", err)
		return func() {}
	}
	return func() { _ = fl.Unlock() }
}

// Create writes the initial header. It never overwrites an existing log.
func (l *Log) Create(h Header) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}
	unlock := l.lock()
	defer unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrExists, l.path)
		}
		return fmt.Errorf("creating log: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(h.Render()); err != nil {
		return fmt.Errorf("writing log header: %w", err)
	}
	return nil
}

// Content returns the whole log.
func (l *Log) Content() (string, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Header parses the log's header block.
func (l *Log) Header() (Header, error) {
	content, err := l.Content()
	if err != nil {
		return Header{}, err
	}
	h, _, err := Parse(content)
	return h, err
}

// Append adds text to the end of the body.
func (l *Log) Append(text string) error {
	if text == "" {
		return nil
	}
	unlock := l.lock()
	defer unlock()
	return l.appendLocked(text)
}

func (l *Log) appendLocked(text string) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening log for append: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		return fmt.Errorf("appending to log: %w", err)
	}
	return nil
}

// AppendError adds an "## Error" section to the body.
func (l *Log) AppendError(msg string) error {
	return l.Append("\n\n## Error\n\n" + strings.TrimSpace(msg) + "\n")
}

// SpeakerLine formats one labeled conversation turn.
func SpeakerLine(label, text string) string {
	return fmt.Sprintf("**%s:** %s", label, strings.TrimSpace(text))
}

// AppendSpeaker appends a labeled turn unless the same line is already in
// the log. It reports whether anything was written.
func (l *Log) AppendSpeaker(label, text string) (bool, error) {
	if strings.TrimSpace(text) == "" {
		return false, nil
	}
	line := SpeakerLine(label, text)

	unlock := l.lock()
	defer unlock()
	content, err := l.Content()
	if err != nil {
		return false, err
	}
	if strings.Contains(content, line) {
		return false, nil
	}
	if err := l.appendLocked("\n\n" + line + "\n"); err != nil {
		return false, err
	}
	return true, nil
}

// Finalize rewrites Status to a terminal value and stamps Ended, but only
// while the header still says in-progress. It reports whether this call made
// the transition.
func (l *Log) Finalize(status registry.Status) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("agentlog: %q is not a terminal status", status)
	}
	applied := false
	err := l.rewriteHeader(func(lines []string) []string {
		i := findKey(lines, KeyStatus)
		if i < 0 {
			return lines
		}
		_, value, _ := strings.Cut(lines[i], ":")
		if st, _ := registry.ParseStatus(value); st != registry.StatusInProgress {
			return lines
		}
		applied = true
		lines[i] = KeyStatus + ": " + string(status)
		ended := KeyEnded + ": " + formatTime(time.Now())
		if j := findKey(lines, KeyEnded); j >= 0 {
			lines[j] = ended
			return lines
		}
		return insertAfter(lines, i, ended)
	})
	return applied, err
}

// SetPID replaces the PID line, adding it at the end of the header if the
// log was written before the pid was known.
func (l *Log) SetPID(pid int) error {
	if pid <= 0 {
		return nil
	}
	return l.rewriteHeader(func(lines []string) []string {
		line := KeyPID + ": " + strconv.Itoa(pid)
		if i := findKey(lines, KeyPID); i >= 0 {
			lines[i] = line
			return lines
		}
		return append(lines, line)
	})
}

func (l *Log) rewriteHeader(fn func([]string) []string) error {
	unlock := l.lock()
	defer unlock()

	content, err := l.Content()
	if err != nil {
		return err
	}
	updated, ok := patchHeader(content, fn)
	if !ok {
		return fmt.Errorf("agentlog: %s has no header block", l.path)
	}
	if updated == content {
		return nil
	}
	return os.WriteFile(l.path, []byte(updated), 0644)
}

// RemoveLock deletes the log's lock file once nothing will write to it.
func (l *Log) RemoveLock() {
	_ = os.Remove(l.LockPath())
}

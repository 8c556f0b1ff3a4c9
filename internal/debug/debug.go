// Package debug is the diagnostic logger shared by every brood process.
//
// brood runs as a tree of short-lived and detached processes (hook, runner,
// session driver), none of which own a terminal and most of which must keep
// stdout clean for hook JSON. All diagnostics therefore go to a single .log
// file under ~/.brood/debug/, and child processes append to their parent's
// file when the BROOD_DEBUG_* variables are propagated to them.
//
// When disabled (the default), all logging functions are no-ops.
package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/agusx1211/brood/internal/hexid"
)

var (
	logger   *Logger
	loggerMu sync.RWMutex
)

const (
	// EnvEnabled toggles logger initialization in child processes.
	EnvEnabled = "BROOD_DEBUG_ENABLED"
	// EnvLogPath points child processes at the parent's log file.
	EnvLogPath = "BROOD_DEBUG_LOG_PATH"
	// EnvProcess labels the current process in every emitted line.
	EnvProcess = "BROOD_DEBUG_PROCESS"
)

// Logger writes structured debug lines to a file.
type Logger struct {
	mu        sync.Mutex
	file      *os.File
	path      string
	startedAt time.Time
	pid       int
	process   string
}

// Init opens the global logger and returns the log file path. A second call
// returns the path of the already open logger.
func Init() (string, error) {
	loggerMu.RLock()
	if logger != nil {
		p := logger.path
		loggerMu.RUnlock()
		return p, nil
	}
	loggerMu.RUnlock()

	path, inherited, err := resolveLogPath()
	if err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("debug: open log %s: %w", path, err)
	}

	l := &Logger{
		file:      f,
		path:      path,
		startedAt: time.Now(),
		pid:       os.Getpid(),
		process:   processLabel(),
	}
	banner := "=== BROOD DEBUG LOG ==="
	if inherited {
		banner = "\n=== BROOD PROCESS ATTACHED ==="
	}
	fmt.Fprintf(f, "%s\nStarted: %s\nPID: %d\nParent PID: %d\nProcess: %s\nFile: %s\n===\n\n",
		banner, l.startedAt.Format(time.RFC3339Nano), l.pid, os.Getppid(), l.process, path)

	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger != nil {
		_ = f.Close()
		return logger.path, nil
	}
	logger = l
	return path, nil
}

// Close closes the global logger. Safe to call when not initialized.
func Close() {
	loggerMu.Lock()
	l := logger
	logger = nil
	loggerMu.Unlock()

	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.file, "=== BROOD PROCESS DETACHED === (pid=%d process=%s ran=%s)\n",
		l.pid, l.process, time.Since(l.startedAt).Truncate(time.Millisecond))
	l.file.Close()
}

// Enabled reports whether the logger is active.
func Enabled() bool {
	return current() != nil
}

// Path returns the log file path, or "" if not enabled.
func Path() string {
	if l := current(); l != nil {
		return l.path
	}
	return ""
}

// ShouldEnableFromEnv reports whether inherited variables ask for logging.
func ShouldEnableFromEnv() bool {
	path := strings.TrimSpace(os.Getenv(EnvLogPath))
	switch strings.TrimSpace(strings.ToLower(os.Getenv(EnvEnabled))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return path != ""
	}
}

// PropagatedEnv overlays the debug variables onto env so that a child
// process appends to the same file under the given label. env is returned
// unchanged when logging is off.
func PropagatedEnv(env []string, process string) []string {
	logPath := Path()
	if logPath == "" {
		return env
	}
	out := append([]string(nil), env...)
	out = SetEnv(out, EnvEnabled, "1")
	out = SetEnv(out, EnvLogPath, logPath)
	if strings.TrimSpace(process) != "" {
		out = SetEnv(out, EnvProcess, process)
	}
	return out
}

// SetEnv replaces key in a KEY=VALUE slice, appending it when absent.
func SetEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i := range env {
		if strings.HasPrefix(env[i], prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}

// Log writes a debug line.
func Log(component, msg string) {
	if l := current(); l != nil {
		l.write(component, msg)
	}
}

// Logf writes a formatted debug line.
func Logf(component, format string, args ...any) {
	if l := current(); l != nil {
		l.write(component, fmt.Sprintf(format, args...))
	}
}

// LogKV writes a line with key-value context pairs.
// Usage: debug.LogKV("spawn", "runner started", "agent_id", id, "pid", pid)
func LogKV(component, msg string, kvs ...any) {
	l := current()
	if l == nil {
		return
	}
	l.write(component, msg+formatKV(kvs))
}

// LogErr records a swallowed best-effort failure.
func LogErr(component, msg string, err error, kvs ...any) {
	l := current()
	if l == nil || err == nil {
		return
	}
	l.write(component, msg+formatKV(kvs)+" err="+err.Error())
}

func current() *Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

func formatKV(kvs []any) string {
	var b strings.Builder
	for i := 0; i+1 < len(kvs); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kvs[i], kvs[i+1])
	}
	return b.String()
}

// write appends one line formatted as
// TIME +ELAPSED [PID] [PROCESS] [GID] [COMPONENT] CALLER | MESSAGE
func (l *Logger) write(component, msg string) {
	now := time.Now()

	caller := "??:0"
	if _, file, line, ok := runtime.Caller(2); ok {
		if idx := strings.LastIndex(file, "/internal/"); idx >= 0 {
			file = file[idx+1:]
		} else if idx := strings.LastIndex(file, "/cmd/"); idx >= 0 {
			file = file[idx+1:]
		}
		caller = fmt.Sprintf("%s:%d", file, line)
	}

	out := fmt.Sprintf("%s +%12s [P%-6d] [%-16s] [G%-6d] [%-10s] %-36s | %s\n",
		now.Format("15:04:05.000000"),
		now.Sub(l.startedAt).Truncate(time.Microsecond),
		l.pid,
		l.process,
		goroutineID(),
		component,
		caller,
		msg,
	)

	l.mu.Lock()
	l.file.WriteString(out)
	l.mu.Unlock()
}

func resolveLogPath() (path string, inherited bool, err error) {
	if p := strings.TrimSpace(os.Getenv(EnvLogPath)); p != "" {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return "", true, fmt.Errorf("debug: create dir for %s: %w", p, err)
		}
		return p, true, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("debug: user home dir: %w", err)
	}
	dir := filepath.Join(home, ".brood", "debug")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", false, fmt.Errorf("debug: create dir %s: %w", dir, err)
	}
	name := fmt.Sprintf("%s_%s.log", time.Now().Format("20060102T150405"), hexid.New())
	return filepath.Join(dir, name), false, nil
}

// processLabel is EnvProcess when set, otherwise the binary name plus the
// first non-flag argument ("brood:hook").
func processLabel() string {
	if p := strings.TrimSpace(os.Getenv(EnvProcess)); p != "" {
		return p
	}
	base := filepath.Base(os.Args[0])
	for _, arg := range os.Args[1:] {
		arg = strings.TrimSpace(arg)
		if arg != "" && !strings.HasPrefix(arg, "-") {
			return base + ":" + arg
		}
	}
	return base
}

func goroutineID() int64 {
	var buf [64]byte
	s := string(buf[:runtime.Stack(buf[:], false)])
	s, ok := strings.CutPrefix(s, "goroutine ")
	if !ok {
		return 0
	}
	var id int64
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + int64(c-'0')
	}
	return id
}

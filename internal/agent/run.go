package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/agusx1211/brood/internal/debug"
	"github.com/agusx1211/brood/internal/proc"
	"github.com/agusx1211/brood/internal/stream"
)

const stderrTailLines = 20

// Run starts the CLI in its own process group, decodes stdout and blocks
// until the process exits. Cancelling ctx kills the whole group.
func Run(ctx context.Context, a Agent, cfg Config) (*Result, error) {
	spec := a.Launch(cfg)
	debug.LogKV("agent."+a.Name(), "building command",
		"binary", spec.Command,
		"args", len(spec.Args),
		"workdir", cfg.WorkDir,
		"prompt_len", len(cfg.Prompt),
		"model", cfg.Model,
	)

	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Dir = cfg.WorkDir
	proc.Group(cmd)
	cmd.WaitDelay = 5 * time.Second
	setupEnv(cmd, cfg.Env, spec.Env)
	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", spec.Command, err)
	}
	debug.LogKV("agent."+a.Name(), "process started", "pid", cmd.Process.Pid)
	if cfg.OnStart != nil {
		cfg.OnStart(cmd.Process.Pid)
	}

	tail := &lineTail{max: stderrTailLines}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanLines(stderr, func(line string) {
			tail.add(line)
			if cfg.OnStderr != nil {
				cfg.OnStderr(line)
			}
		})
	}()

	result := &Result{}
	for ev := range stream.Parse(ctx, stdout, stream.NewDecoder(cfg.Namespace, a.Dialect())) {
		if sys, ok := ev.Message.(stream.System); ok && sys.SessionID != "" && result.SessionID == "" {
			result.SessionID = sys.SessionID
		}
		if cfg.OnEvent != nil {
			cfg.OnEvent(ev)
		}
	}
	// Parse stops early on cancellation; drain so the child never blocks on
	// a full pipe while we wait for it.
	_, _ = io.Copy(io.Discard, stdout)
	wg.Wait()

	waitErr := cmd.Wait()
	result.Duration = time.Since(start)
	result.Stderr = tail.String()
	result.Signal = proc.Signal(cmd.ProcessState)
	code, err := proc.ExitCode(waitErr)
	if err != nil {
		return result, fmt.Errorf("waiting for %s: %w", spec.Command, err)
	}
	result.ExitCode = code
	debug.LogKV("agent."+a.Name(), "process exited",
		"exit_code", code, "signal", result.Signal, "duration", result.Duration.Round(time.Millisecond))
	return result, nil
}

// setupEnv starts from base (or the current environment) and overlays extra.
func setupEnv(cmd *exec.Cmd, base []string, extra map[string]string) {
	env := base
	if env == nil {
		env = os.Environ()
	}
	env = append([]string(nil), env...)
	for k, v := range extra {
		env = debug.SetEnv(env, k, v)
	}
	cmd.Env = env
}

func scanLines(r io.Reader, fn func(string)) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); strings.TrimSpace(line) != "" {
			fn(line)
		}
	}
}

type lineTail struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func (t *lineTail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *lineTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}

// Package runner supervises one agent: it starts the LLM session process,
// records its pid, and turns its exit into a terminal status.
package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/agusx1211/brood/internal/agent"
	"github.com/agusx1211/brood/internal/agentlog"
	"github.com/agusx1211/brood/internal/config"
	dbg "github.com/agusx1211/brood/internal/debug"
	"github.com/agusx1211/brood/internal/handoff"
	"github.com/agusx1211/brood/internal/logstream"
	"github.com/agusx1211/brood/internal/proc"
	"github.com/agusx1211/brood/internal/registry"
	"github.com/agusx1211/brood/internal/stream"
)

// SessionCommand is the hidden subcommand that drives the primary CLI.
const SessionCommand = "_session"

// Runner supervises the agent described by H.
type Runner struct {
	H        *handoff.Handoff
	Settings *config.Settings
	// Exe is the brood binary, used to start the session driver.
	Exe string

	store *registry.Store
	log   *agentlog.Log
}

// New returns a runner for h.
func New(h *handoff.Handoff, settings *config.Settings, exe string) *Runner {
	regPath := h.RegistryPath
	if regPath == "" {
		regPath = settings.RegistryPath(h.WorkDir)
	}
	return &Runner{
		H:        h,
		Settings: settings,
		Exe:      exe,
		store:    registry.New(regPath),
		log:      agentlog.Open(h.LogPath),
	}
}

// Run blocks until the agent's process exits. It never panics: a panic is
// recorded as a failure in the log.
func (r *Runner) Run(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			msg := fmt.Sprintf("Uncaught exception: %v\n\n%s", p, debug.Stack())
			dbg.LogKV("runner", "panic", "agent_id", r.H.AgentID, "panic", p)
			r.fail(msg)
			err = fmt.Errorf("runner panic: %v", p)
		}
	}()

	dbg.LogKV("runner", "starting", "agent_id", r.H.AgentID, "route", r.H.Route, "depth", r.H.Depth)
	if r.H.Route == handoff.RouteAlternate {
		return r.runAlternate(ctx)
	}
	return r.runPrimary(ctx)
}

// runPrimary starts "<exe> _session" with the same handoff and waits for it.
func (r *Runner) runPrimary(ctx context.Context) error {
	env, err := r.H.Encode(os.Environ())
	if err != nil {
		r.fail("Error encoding session environment: " + err.Error())
		return err
	}
	env = dbg.PropagatedEnv(env, "session:"+r.H.AgentID)

	cmd := exec.CommandContext(ctx, r.Exe, SessionCommand)
	cmd.Dir = r.H.WorkDir
	cmd.Env = env
	proc.Group(cmd)
	cmd.WaitDelay = 5 * time.Second
	stderr := &tailWriter{max: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		r.fail("Error spawning session: " + err.Error())
		return err
	}
	r.recordPID(cmd.Process.Pid)

	waitErr := cmd.Wait()
	code, err := proc.ExitCode(waitErr)
	if err != nil {
		r.fail("Error waiting for session: " + err.Error())
		return err
	}
	r.exited(code, proc.Signal(cmd.ProcessState), stderr.String())
	return nil
}

// runAlternate drives the alternate CLI directly, streaming its stdout into
// the log.
func (r *Runner) runAlternate(ctx context.Context) error {
	streamer := logstream.NewStreamer(r.log, nil, r.Settings.Progress.Marker)
	wrote := false
	var applyErr error

	apiKey := strings.TrimSpace(os.Getenv("CURSOR_API_KEY"))
	env, err := r.H.Encode(os.Environ())
	if err != nil {
		r.fail("Error encoding agent environment: " + err.Error())
		return err
	}

	res, err := agent.Run(ctx, agent.NewAlternateAgent(), agent.Config{
		Command:      r.Settings.Commands.Alternate,
		WorkDir:      r.H.WorkDir,
		Env:          env,
		Prompt:       r.H.Prompt,
		SystemPrompt: r.H.OutputStyle,
		Model:        r.H.Model,
		APIKey:       apiKey,
		Namespace:    r.H.AgentID,
		OnStart:      r.recordPID,
		OnEvent: func(ev stream.Event) {
			if ev.Err != nil {
				return
			}
			switch m := ev.Message.(type) {
			case stream.Assistant, stream.BlockDelta:
				wrote = true
			case stream.Result:
				if !wrote && strings.TrimSpace(m.Text) != "" {
					_ = r.log.Append(strings.TrimSpace(m.Text) + "\n")
					wrote = true
				}
			}
			out, err := streamer.Apply(ev.Message)
			if err != nil && applyErr == nil {
				applyErr = err
			}
			r.outcome(out)
		},
		OnStderr: func(line string) {
			_ = r.log.Append("\n[STDERR]: " + line + "\n")
		},
	})
	if err != nil {
		r.fail("Error spawning " + r.Settings.Commands.Alternate + ": " + err.Error())
		return err
	}
	if applyErr != nil {
		dbg.LogErr("runner", "log write failed", applyErr, "agent_id", r.H.AgentID)
	}
	r.exited(res.ExitCode, res.Signal, "")
	return nil
}

// outcome applies a terminal message from the live stream.
func (r *Runner) outcome(out logstream.Outcome) {
	if !out.Status.Terminal() {
		return
	}
	if out.Status == registry.StatusFailed && out.Detail != "" {
		if r.finalize(registry.StatusFailed) {
			_ = r.log.AppendError(out.Detail)
		}
		return
	}
	r.finalize(out.Status)
}

// exited records the process exit. A clean exit finalizes as done; anything
// else as failed with the exit code. Either is a no-op when a terminal
// status was already recorded.
func (r *Runner) exited(code int, signal, stderr string) {
	dbg.LogKV("runner", "session exited", "agent_id", r.H.AgentID, "code", code, "signal", signal)
	if code == 0 && signal == "" {
		r.finalize(registry.StatusDone)
		return
	}
	if !r.finalize(registry.StatusFailed) {
		return
	}
	msg := "\n\nProcess exited with code " + exitCodeText(code)
	if signal != "" {
		msg += " (signal: " + signal + ")"
	}
	msg += "\n"
	if s := strings.TrimSpace(stderr); s != "" {
		msg += "\n```\n" + s + "\n```\n"
	}
	_ = r.log.Append(msg)
}

// fail records a runner-side failure with an error section.
func (r *Runner) fail(msg string) {
	if r.finalize(registry.StatusFailed) {
		if err := r.log.AppendError(msg); err != nil {
			dbg.LogErr("runner", "appending error failed", err, "agent_id", r.H.AgentID)
		}
	}
}

// finalize moves both the log and the registry to a terminal status. It
// reports whether the log transition happened in this call; the log header
// is the record of truth for completion.
func (r *Runner) finalize(status registry.Status) bool {
	if _, err := r.store.Finalize(r.H.AgentID, status); err != nil {
		dbg.LogErr("runner", "registry finalize failed", err, "agent_id", r.H.AgentID)
	}
	applied, err := r.log.Finalize(status)
	if err != nil {
		dbg.LogErr("runner", "log finalize failed", err, "agent_id", r.H.AgentID)
	}
	return applied
}

func (r *Runner) recordPID(pid int) {
	if err := r.store.SetPIDs(r.H.AgentID, pid, os.Getpid()); err != nil {
		dbg.LogErr("runner", "recording pid failed", err, "agent_id", r.H.AgentID)
	}
	if err := r.log.SetPID(pid); err != nil {
		dbg.LogErr("runner", "patching log pid failed", err, "agent_id", r.H.AgentID)
	}
}

func exitCodeText(code int) string {
	if code < 0 {
		return "null"
	}
	return strconv.Itoa(code)
}

// tailWriter keeps the last max bytes written to it.
type tailWriter struct {
	max int
	buf []byte
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	if len(w.buf) > w.max {
		w.buf = w.buf[len(w.buf)-w.max:]
	}
	return len(p), nil
}

func (w *tailWriter) String() string { return string(w.buf) }

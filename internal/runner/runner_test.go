package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agusx1211/brood/internal/agentlog"
	"github.com/agusx1211/brood/internal/config"
	"github.com/agusx1211/brood/internal/handoff"
	"github.com/agusx1211/brood/internal/registry"
)

const agentID = "agent_1a2b3c4d"

type fixture struct {
	runner *Runner
	store  *registry.Store
	log    *agentlog.Log
}

// newFixture registers an in-progress agent and returns a runner whose
// session binary (or alternate CLI, depending on route) is script.
func newFixture(t *testing.T, route handoff.Route, script string) *fixture {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	cwd := t.TempDir()

	s := config.Default()
	bin := filepath.Join(home, "fake")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatal(err)
	}
	s.Commands.Alternate = bin

	h := &handoff.Handoff{
		AgentID:      agentID,
		AgentType:    "coder",
		Depth:        1,
		ParentID:     agentlog.RootParent,
		Prompt:       "Do the thing",
		WorkDir:      cwd,
		Model:        "gpt-5",
		LogPath:      s.LogPath(cwd, agentID),
		RegistryPath: s.RegistryPath(cwd),
		Route:        route,
	}
	store := registry.New(h.RegistryPath)
	if err := store.Insert(registry.NewEntry(agentID, "coder", "", 1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	log := agentlog.Open(h.LogPath)
	if err := log.Create(agentlog.Header{
		Task:    "Do the thing",
		Started: time.Now(),
		Status:  registry.StatusInProgress,
		Depth:   1,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return &fixture{runner: New(h, s, bin), store: store, log: log}
}

func (f *fixture) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := f.runner.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func (f *fixture) status(t *testing.T) (registry.Status, registry.Status, string) {
	t.Helper()
	h, err := f.log.Header()
	if err != nil {
		t.Fatalf("Header: %v", err)
	}
	e, ok := f.store.Get(agentID)
	if !ok {
		t.Fatal("registry entry missing")
	}
	content, err := f.log.Content()
	if err != nil {
		t.Fatal(err)
	}
	_, body, _ := agentlog.Split(content)
	return h.Status, e.Status, body
}

func TestPrimaryCleanExitMarksDone(t *testing.T) {
	f := newFixture(t, handoff.RoutePrimary, `[ "$1" = "_session" ] || exit 9
[ "$BROOD_AGENT_ID" = "`+agentID+`" ] || exit 8
exit 0
`)
	f.run(t)

	logStatus, regStatus, body := f.status(t)
	if logStatus != registry.StatusDone || regStatus != registry.StatusDone {
		t.Fatalf("status log=%s registry=%s, want done", logStatus, regStatus)
	}
	if strings.Contains(body, "Process exited") {
		t.Fatalf("clean exit should not append an exit notice:\n%s", body)
	}

	e, _ := f.store.Get(agentID)
	if e.PID <= 0 || e.RunnerPID != os.Getpid() {
		t.Fatalf("pids = %d/%d, want child/%d", e.PID, e.RunnerPID, os.Getpid())
	}
	h, _ := f.log.Header()
	if h.PID != e.PID {
		t.Fatalf("log PID = %d, want %d", h.PID, e.PID)
	}
	if e.EndedAt == nil {
		t.Fatal("EndedAt not set")
	}
}

func TestPrimaryNonZeroExitMarksFailed(t *testing.T) {
	f := newFixture(t, handoff.RoutePrimary, "echo 'session blew up' >&2\nexit 3\n")
	f.run(t)

	logStatus, regStatus, body := f.status(t)
	if logStatus != registry.StatusFailed || regStatus != registry.StatusFailed {
		t.Fatalf("status log=%s registry=%s, want failed", logStatus, regStatus)
	}
	if !strings.Contains(body, "\n\nProcess exited with code 3\n") {
		t.Fatalf("missing exit notice:\n%q", body)
	}
	if !strings.Contains(body, "session blew up") {
		t.Fatalf("missing stderr tail:\n%s", body)
	}
}

func TestPrimaryExitAfterTerminalIsNoop(t *testing.T) {
	f := newFixture(t, handoff.RoutePrimary, "exit 1\n")
	if _, err := f.log.Finalize(registry.StatusDone); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.Finalize(agentID, registry.StatusDone); err != nil {
		t.Fatal(err)
	}
	f.run(t)

	logStatus, regStatus, body := f.status(t)
	if logStatus != registry.StatusDone || regStatus != registry.StatusDone {
		t.Fatalf("status log=%s registry=%s, want done", logStatus, regStatus)
	}
	if strings.Contains(body, "Process exited") {
		t.Fatalf("terminal agent got an exit notice:\n%s", body)
	}
}

func TestPrimaryMissingBinaryFails(t *testing.T) {
	f := newFixture(t, handoff.RoutePrimary, "exit 0\n")
	f.runner.Exe = filepath.Join(t.TempDir(), "nope")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.runner.Run(ctx); err == nil {
		t.Fatal("expected error for missing session binary")
	}
	logStatus, regStatus, body := f.status(t)
	if logStatus != registry.StatusFailed || regStatus != registry.StatusFailed {
		t.Fatalf("status log=%s registry=%s, want failed", logStatus, regStatus)
	}
	if !strings.Contains(body, "## Error") || !strings.Contains(body, "Error spawning session") {
		t.Fatalf("missing error section:\n%s", body)
	}
}

func TestAlternateStreamsIntoLog(t *testing.T) {
	f := newFixture(t, handoff.RouteAlternate, `echo 'warn: slow' >&2
cat <<'JSON'
{"type":"system","subtype":"init","session_id":"c-1"}
{"type":"assistant","delta":"Hel"}
{"type":"assistant","delta":{"text":"lo"}}
{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"Hello there"}]}}
{"type":"result","subtype":"success","result":"Hello there"}
JSON
`)
	f.run(t)

	logStatus, regStatus, body := f.status(t)
	if logStatus != registry.StatusDone || regStatus != registry.StatusDone {
		t.Fatalf("status log=%s registry=%s, want done", logStatus, regStatus)
	}
	if strings.Count(body, "Hello there") != 1 {
		t.Fatalf("assistant text should appear once:\n%q", body)
	}
	if !strings.Contains(body, "\n[STDERR]: warn: slow\n") {
		t.Fatalf("missing stderr line:\n%q", body)
	}
	if e, _ := f.store.Get(agentID); e.PID <= 0 {
		t.Fatalf("alternate pid not recorded: %+v", e)
	}
}

func TestAlternateResultOnlyIsAppended(t *testing.T) {
	f := newFixture(t, handoff.RouteAlternate, `echo '{"type":"result","subtype":"success","result":"  Only the result  "}'
`)
	f.run(t)

	_, _, body := f.status(t)
	if !strings.Contains(body, "Only the result\n") {
		t.Fatalf("result text not appended:\n%q", body)
	}
}

func TestAlternateErrorEventFails(t *testing.T) {
	f := newFixture(t, handoff.RouteAlternate, `echo '{"type":"error","error":"quota exceeded"}'
exit 0
`)
	f.run(t)

	logStatus, regStatus, body := f.status(t)
	if logStatus != registry.StatusFailed || regStatus != registry.StatusFailed {
		t.Fatalf("status log=%s registry=%s, want failed", logStatus, regStatus)
	}
	if !strings.Contains(body, "## Error") || !strings.Contains(body, "quota exceeded") {
		t.Fatalf("missing error section:\n%s", body)
	}
}

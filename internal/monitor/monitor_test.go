package monitor

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agusx1211/brood/internal/agentlog"
	"github.com/agusx1211/brood/internal/config"
	"github.com/agusx1211/brood/internal/hook"
	"github.com/agusx1211/brood/internal/registry"
)

const deadPID = 99999

type env struct {
	t     *testing.T
	cwd   string
	s     *config.Settings
	store *registry.Store
	mon   *Monitor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cwd := t.TempDir()
	s := config.Default()
	return &env{
		t:     t,
		cwd:   cwd,
		s:     s,
		store: registry.New(s.RegistryPath(cwd)),
		mon:   New(s, cwd, ""),
	}
}

// addAgent registers id with pid and writes an in-progress log for it.
func (e *env) addAgent(id string, pid int, spawnedBy string) *agentlog.Log {
	e.t.Helper()
	entry := registry.NewEntry(id, "coder", "", 1)
	entry.PID = pid
	entry.SpawnedBySessionID = spawnedBy
	require.NoError(e.t, e.store.Insert(entry))

	log := agentlog.Open(e.s.LogPath(e.cwd, id))
	require.NoError(e.t, log.Create(agentlog.Header{
		Task:    "Implement the feature end to end",
		Started: time.Now(),
		Status:  registry.StatusInProgress,
		Depth:   1,
	}))
	require.NoError(e.t, log.Append("Starting work on the feature. Reading the code base first.\n"))
	return log
}

func (e *env) sweep(tr Trigger) []string {
	e.t.Helper()
	updates, err := e.mon.Sweep(tr)
	require.NoError(e.t, err)
	return updates
}

// touch moves the log's mtime forward so a sweep sees it as changed.
func touch(t *testing.T, log *agentlog.Log) {
	t.Helper()
	info, err := os.Stat(log.Path())
	require.NoError(t, err)
	next := info.ModTime().Add(time.Second)
	require.NoError(t, os.Chtimes(log.Path(), next, next))
}

func status(t *testing.T, log *agentlog.Log) registry.Status {
	t.Helper()
	h, err := log.Header()
	require.NoError(t, err)
	return h.Status
}

func TestDeadAgentIsInterruptedOnce(t *testing.T) {
	e := newEnv(t)
	log := e.addAgent("agent_00000001", deadPID, "sess")

	tr := Trigger{Event: hook.Stop, Reason: "user_cancel", SessionID: "sess"}
	updates := e.sweep(tr)
	assert.Equal(t, []string{"Agent interrupted: agent-responses/agent_00000001.md"}, updates)
	assert.Equal(t, registry.StatusInterrupted, status(t, log))
	h, _ := log.Header()
	assert.False(t, h.Ended.IsZero())
	_, ok := e.store.Get("agent_00000001")
	assert.False(t, ok, "registry entry should be removed")

	assert.Empty(t, e.sweep(tr), "second sweep must not notify again")
}

func TestSubagentStopTriggersInterruption(t *testing.T) {
	e := newEnv(t)
	log := e.addAgent("agent_00000002", deadPID, "")

	updates := e.sweep(Trigger{Event: hook.SubagentStop})
	assert.Len(t, updates, 1)
	assert.Equal(t, registry.StatusInterrupted, status(t, log))
}

func TestNoTriggerLeavesDeadAgentAlone(t *testing.T) {
	e := newEnv(t)
	log := e.addAgent("agent_00000003", deadPID, "sess")

	assert.Empty(t, e.sweep(Trigger{Event: hook.PostToolUse, SessionID: "sess"}))
	assert.Equal(t, registry.StatusInProgress, status(t, log))
}

func TestLiveAgentIsNotInterrupted(t *testing.T) {
	e := newEnv(t)
	log := e.addAgent("agent_00000004", os.Getpid(), "sess")

	assert.Empty(t, e.sweep(Trigger{Event: hook.Stop, Reason: "user_interrupt", SessionID: "sess"}))
	assert.Equal(t, registry.StatusInProgress, status(t, log))
}

func TestAgentWithoutPIDsIsNotInterrupted(t *testing.T) {
	e := newEnv(t)
	log := e.addAgent("agent_0000000a", 0, "sess")

	assert.Empty(t, e.sweep(Trigger{Event: hook.Stop, Reason: "user_cancel", SessionID: "sess"}))
	assert.Equal(t, registry.StatusInProgress, status(t, log))
	_, ok := e.store.Get("agent_0000000a")
	assert.True(t, ok, "registry entry should be kept")
}

func TestCompletionNotifiesOnceAndDropsEntry(t *testing.T) {
	e := newEnv(t)
	log := e.addAgent("agent_00000005", os.Getpid(), "sess")
	tr := Trigger{Event: hook.PostToolUse, SessionID: "sess"}

	assert.Empty(t, e.sweep(tr))

	applied, err := log.Finalize(registry.StatusDone)
	require.NoError(t, err)
	require.True(t, applied)
	touch(t, log)

	assert.Equal(t, []string{"Agent completed: agent-responses/agent_00000005.md"}, e.sweep(tr))
	_, ok := e.store.Get("agent_00000005")
	assert.False(t, ok)

	assert.Empty(t, e.sweep(tr))
	require.NoError(t, log.Append("\n**Assistant:** [exited]\n"))
	touch(t, log)
	assert.Empty(t, e.sweep(tr), "later writes to a finished log are not completions")
}

func TestForeignSessionIsFiltered(t *testing.T) {
	e := newEnv(t)
	log := e.addAgent("agent_00000006", os.Getpid(), "someone-else")
	tr := Trigger{Event: hook.PostToolUse, SessionID: "sess"}

	assert.Empty(t, e.sweep(tr))
	_, err := log.Finalize(registry.StatusDone)
	require.NoError(t, err)
	touch(t, log)
	assert.Empty(t, e.sweep(tr))
}

func TestOwnAgentSessionCountsAsLocal(t *testing.T) {
	e := newEnv(t)
	self := registry.NewEntry("agent_000000aa", "planner", "", 1)
	self.SessionID = "planner-session"
	require.NoError(t, e.store.Insert(self))
	e.mon.AgentID = "agent_000000aa"

	log := e.addAgent("agent_00000007", os.Getpid(), "planner-session")
	tr := Trigger{Event: hook.PostToolUse, SessionID: "unrelated"}
	assert.Empty(t, e.sweep(tr))
	_, err := log.Finalize(registry.StatusFailed)
	require.NoError(t, err)
	touch(t, log)
	assert.Equal(t, []string{"Agent completed: agent-responses/agent_00000007.md"}, e.sweep(tr))
}

func TestProgressUpdatesAreIncremental(t *testing.T) {
	e := newEnv(t)
	log := e.addAgent("agent_00000008", os.Getpid(), "sess")
	tr := Trigger{Event: hook.PostToolUse, SessionID: "sess"}

	assert.Empty(t, e.sweep(tr))

	require.NoError(t, log.Append("\n[UPDATE] parser rewritten\n"))
	touch(t, log)
	assert.Equal(t, []string{"agent_00000008 update: parser rewritten"}, e.sweep(tr))

	require.NoError(t, log.Append("more work\n[UPDATE] tests green\n"))
	touch(t, log)
	assert.Equal(t, []string{"agent_00000008 update: tests green"}, e.sweep(tr))

	touch(t, log)
	assert.Empty(t, e.sweep(tr))
}

func TestExtractUpdates(t *testing.T) {
	content := "a\n[UPDATE] one\nb\n  [UPDATE]   two  \n[UPDATE]\n"
	text, last := ExtractUpdates(content, "[UPDATE]", -1)
	assert.Equal(t, "one\ntwo", text)
	assert.Equal(t, 3, last)

	text, last = ExtractUpdates(content, "[UPDATE]", 3)
	assert.Empty(t, text)
	assert.Equal(t, 3, last)
}

func TestOutputChannel(t *testing.T) {
	out, ok := Output(Trigger{Event: hook.PostToolUse}, []string{"a", "b"})
	require.True(t, ok)
	require.NotNil(t, out.Specific)
	assert.Equal(t, "a\nb", out.Specific.AdditionalContext)

	out, ok = Output(Trigger{Event: hook.Stop}, []string{"a"})
	require.True(t, ok)
	assert.Nil(t, out.Specific)
	assert.Equal(t, "a", out.SystemMessage)

	_, ok = Output(Trigger{Event: hook.Stop}, nil)
	assert.False(t, ok)
}

func TestCorruptStateIsIgnored(t *testing.T) {
	e := newEnv(t)
	e.addAgent("agent_00000009", deadPID, "sess")
	p := e.s.MonitorStatePath(e.cwd)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte("{not json"), 0644))

	assert.Len(t, e.sweep(Trigger{Event: hook.Stop, Reason: "cancelled", SessionID: "sess"}), 1)
}

func TestCleanupTerminatesAndClears(t *testing.T) {
	e := newEnv(t)
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	live := e.addAgent("agent_0000000a", cmd.Process.Pid, "sess")
	gone := e.addAgent("agent_0000000b", deadPID, "sess")

	res, err := e.mon.Cleanup()
	require.NoError(t, err)
	assert.Contains(t, res.Signaled, cmd.Process.Pid)
	assert.ElementsMatch(t, []string{"agent_0000000a", "agent_0000000b"}, res.Interrupted)

	select {
	case err := <-done:
		assert.Error(t, err, "sleep should have been terminated")
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		t.Fatal("process survived cleanup")
	}

	assert.Equal(t, registry.StatusInterrupted, status(t, live))
	assert.Equal(t, registry.StatusInterrupted, status(t, gone))
	assert.Empty(t, e.store.Read())
}

func TestCleanupFromAgentOnlyTouchesDescendants(t *testing.T) {
	e := newEnv(t)
	parent := registry.NewEntry("agent_000000b0", "planner", "", 1)
	require.NoError(t, e.store.Insert(parent))
	child := registry.NewEntry("agent_000000b1", "coder", "agent_000000b0", 2)
	child.PID = deadPID
	require.NoError(t, e.store.Insert(child))
	sibling := registry.NewEntry("agent_000000c0", "coder", "", 1)
	require.NoError(t, e.store.Insert(sibling))

	e.mon.AgentID = "agent_000000b0"
	_, err := e.mon.Cleanup()
	require.NoError(t, err)

	reg := e.store.Read()
	assert.Contains(t, reg, "agent_000000b0")
	assert.Contains(t, reg, "agent_000000c0")
	assert.NotContains(t, reg, "agent_000000b1")
}

package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agusx1211/brood/internal/config"
	"github.com/agusx1211/brood/internal/debug"
	"github.com/agusx1211/brood/internal/handoff"
	"github.com/agusx1211/brood/internal/hook"
	"github.com/agusx1211/brood/internal/marker"
	"github.com/agusx1211/brood/internal/monitor"
	"github.com/agusx1211/brood/internal/spawn"
)

// skipReason is the SessionStart/SessionEnd reason used by programmatic
// sessions; lifecycle hooks ignore it.
const skipReason = "other"

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Handle a hook event read from stdin",
	Long: `Hook handlers read one event document from stdin and may write one
response document to stdout. They always exit 0 so a failure never blocks
the host session; errors go to the debug log.`,
}

// hookEnv is what every hook handler works with.
type hookEnv struct {
	in       *hook.Input
	settings *config.Settings
	dir      string
	// agentID and depth identify the agent whose session fired the hook;
	// both are zero for the root session.
	agentID string
	depth   int
	ppid    int
}

type hookHandler func(env *hookEnv) (*hook.Output, error)

func hookCommand(use, short string, h hookHandler) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runHook(cmd.Name(), cmd.InOrStdin(), cmd.OutOrStdout(), h)
			return nil
		},
	}
}

// runHook decodes the event, runs h and writes its output. Nothing escapes.
func runHook(name string, r io.Reader, w io.Writer, h hookHandler) {
	defer func() {
		if p := recover(); p != nil {
			debug.LogKV("hook", "handler panic", "hook", name, "panic", p)
		}
	}()

	in, err := hook.Decode(r)
	if err != nil {
		debug.LogErr("hook", "bad hook input", err, "hook", name)
		return
	}
	env, err := newHookEnv(in)
	if err != nil {
		debug.LogErr("hook", "hook setup failed", err, "hook", name)
		return
	}
	debug.LogKV("hook", "handling", "hook", name, "event", in.EventName, "tool", in.ToolName,
		"session_id", in.SessionID, "agent_id", env.agentID)

	out, err := h(env)
	if err != nil {
		debug.LogErr("hook", "handler failed", err, "hook", name)
	}
	if out == nil {
		return
	}
	if err := out.Write(w); err != nil {
		debug.LogErr("hook", "writing hook output failed", err, "hook", name)
	}
}

func newHookEnv(in *hook.Input) (*hookEnv, error) {
	cwd, _ := os.Getwd()
	dir := in.Dir(cwd)
	projectDir := in.ProjectDir
	if projectDir == "" {
		projectDir = dir
	}
	settings, err := loadSettings(projectDir)
	if err != nil {
		return nil, err
	}
	depth, _ := strconv.Atoi(strings.TrimSpace(os.Getenv(handoff.EnvDepth)))
	return &hookEnv{
		in:       in,
		settings: settings,
		dir:      dir,
		agentID:  strings.TrimSpace(os.Getenv(handoff.EnvAgentID)),
		depth:    depth,
		ppid:     os.Getppid(),
	}, nil
}

// preToolUse replaces Task calls with a detached brood agent. The native
// call is always denied: the reason carries either the denial or the
// delegation notice.
func preToolUse(env *hookEnv) (*hook.Output, error) {
	in := env.in
	if in.ToolName != "Task" {
		return nil, nil
	}
	sup, err := spawn.New(env.settings)
	if err != nil {
		return nil, err
	}
	out, err := sup.Spawn(spawn.Request{
		RequesterID:    env.agentID,
		RequesterDepth: env.depth,
		ParentPID:      env.ppid,
		SessionID:      in.SessionID,
		Cwd:            env.dir,
		ProjectDir:     in.ProjectDir,
		Description:    in.ToolInput.Description,
		Prompt:         in.ToolInput.Prompt,
		AgentType:      in.ToolInput.SubagentType,
	})
	if err != nil {
		o := hook.Deny("Agent spawn failed: " + err.Error())
		return &o, err
	}
	o := hook.Deny(out.Message)
	return &o, nil
}

func trigger(env *hookEnv, fallbackEvent string) monitor.Trigger {
	event := env.in.EventName
	if event == "" {
		event = fallbackEvent
	}
	return monitor.Trigger{Event: event, Reason: env.in.Reason, SessionID: env.in.SessionID}
}

func sweep(env *hookEnv, fallbackEvent string) (*hook.Output, error) {
	t := trigger(env, fallbackEvent)
	updates, err := monitor.New(env.settings, env.dir, env.agentID).Sweep(t)
	if err != nil {
		return nil, err
	}
	if o, ok := monitor.Output(t, updates); ok {
		return &o, nil
	}
	return nil, nil
}

func postToolUse(env *hookEnv) (*hook.Output, error) { return sweep(env, hook.PostToolUse) }

func monitorHook(env *hookEnv) (*hook.Output, error) { return sweep(env, hook.Stop) }

func cleanupHook(env *hookEnv) (*hook.Output, error) {
	if env.in.Reason == skipReason {
		return nil, nil
	}
	_, err := monitor.New(env.settings, env.dir, env.agentID).Cleanup()
	return nil, err
}

func sessionStart(env *hookEnv) (*hook.Output, error) {
	if env.in.Reason == skipReason || env.in.SessionID == "" {
		return nil, nil
	}
	err := marker.Write(env.settings.MarkersDir, marker.Marker{
		SessionID: env.in.SessionID,
		PID:       env.ppid,
		Cwd:       env.dir,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("writing session marker: %w", err)
	}
	return nil, nil
}

func sessionEnd(env *hookEnv) (*hook.Output, error) {
	if env.in.Reason == skipReason {
		return nil, nil
	}
	return nil, marker.Remove(env.settings.MarkersDir, env.ppid)
}

func init() {
	hookCmd.AddCommand(
		hookCommand("pre-tool-use", "Intercept Task calls and spawn a brood agent", preToolUse),
		hookCommand("post-tool-use", "Report agent progress after each tool call", postToolUse),
		hookCommand("monitor", "Report finished and interrupted agents", monitorHook),
		hookCommand("cleanup", "Terminate agents when the session ends", cleanupHook),
		hookCommand("session-start", "Record the session marker", sessionStart),
		hookCommand("session-end", "Remove the session marker", sessionEnd),
	)
	rootCmd.AddCommand(hookCmd)
}

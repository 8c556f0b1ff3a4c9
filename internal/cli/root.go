package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agusx1211/brood/internal/buildinfo"
	"github.com/agusx1211/brood/internal/debug"
)

const (
	// ANSI color codes
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"

	styleBoldCyan  = "\033[1;36m"
)

var rootCmd = &cobra.Command{
	Use:   "brood",
	Short: "Recursive agent delegation for Claude Code sessions",
	Long: colorBold + `brood` + colorReset + ` ` + buildinfo.Current().Version + `

  Turns Task tool calls into detached, logged agent processes that can
  themselves delegate, up to a fixed recursion depth.

` + colorBold + `Hook setup:` + colorReset + `
  PreToolUse (Task)   brood hook pre-tool-use
  PostToolUse         brood hook post-tool-use
  Stop, SubagentStop  brood hook monitor
  SessionStart        brood hook session-start
  SessionEnd          brood hook session-end && brood hook cleanup

` + colorBold + `Inspecting agents:` + colorReset + `
  brood status                 List agents in this directory
  brood await <agent-id>       Block until an agent finishes, print its log
  brood watch                  Live view of agents and their logs`,
	Version:       buildinfo.Current().String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.PersistentFlags().Bool("debug", false, "Enable verbose debug logging to ~/.brood/debug/")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		debugFlag, _ := cmd.Flags().GetBool("debug")
		if !debugFlag && !debug.ShouldEnableFromEnv() {
			return nil
		}
		logPath, err := debug.Init()
		if err != nil {
			return fmt.Errorf("initializing debug logger: %w", err)
		}
		if isInteractive() {
			fmt.Fprintf(os.Stderr, "%s[debug]%s logging to %s\n", colorDim, colorReset, logPath)
		}
		bi := buildinfo.Current()
		debug.LogKV("cli", "brood starting",
			"version", bi.Version,
			"commit", bi.CommitHash,
			"pid", os.Getpid(),
			"ppid", os.Getppid(),
			"command", cmd.Name(),
			"args", args,
		)
		return nil
	}
}

// exitCodeError carries a child's exit code out of a command.
type exitCodeError struct{ code int }

func (e exitCodeError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// Execute runs the root command.
func Execute() {
	code := run()
	debug.Close()
	os.Exit(code)
}

func run() int {
	err := rootCmd.Execute()
	if err == nil {
		debug.Log("cli", "exit success")
		return 0
	}
	var ec exitCodeError
	if errors.As(err, &ec) {
		debug.LogKV("cli", "exit with child status", "code", ec.code)
		return ec.code
	}
	debug.Logf("cli", "exit with error: %v", err)
	fmt.Fprintf(os.Stderr, "%sError: %s%s\n", colorRed, err, colorReset)
	return 1
}

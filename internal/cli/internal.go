package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agusx1211/brood/internal/debug"
	"github.com/agusx1211/brood/internal/handoff"
	"github.com/agusx1211/brood/internal/runner"
	"github.com/agusx1211/brood/internal/session"
	"github.com/agusx1211/brood/internal/spawn"
)

// Both commands take their whole configuration from the handoff
// environment written by the spawning process.

var runnerCmd = &cobra.Command{
	Use:    spawn.RunnerCommand,
	Short:  "Supervise one agent (internal)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, exe, err := loadHandoff()
		if err != nil {
			return err
		}
		s, err := loadSettings(h.WorkDir)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runner.New(h, s, exe).Run(ctx)
	},
}

var sessionCmd = &cobra.Command{
	Use:    runner.SessionCommand,
	Short:  "Drive one agent session (internal)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, exe, err := loadHandoff()
		if err != nil {
			return err
		}
		s, err := loadSettings(h.WorkDir)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		code, err := session.New(h, s, exe).Run(ctx)
		if err != nil {
			return err
		}
		if code != 0 {
			return exitCodeError{code: code}
		}
		return nil
	},
}

func loadHandoff() (*handoff.Handoff, string, error) {
	h, err := handoff.FromEnv()
	if err != nil {
		return nil, "", fmt.Errorf("reading agent handoff: %w", err)
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, "", fmt.Errorf("finding executable: %w", err)
	}
	debug.LogKV("cli", "handoff loaded", "agent_id", h.AgentID, "depth", h.Depth, "route", h.Route)
	return h, exe, nil
}

func init() {
	rootCmd.AddCommand(runnerCmd, sessionCmd)
}

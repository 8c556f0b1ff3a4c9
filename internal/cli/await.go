package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agusx1211/brood/internal/registry"
	"github.com/agusx1211/brood/internal/theme"
)

var awaitCmd = &cobra.Command{
	Use:   "await <agent-id>",
	Short: "Wait for an agent to finish and print its log",
	Long: `Polls the agent's log until its status is done, failed or interrupted,
or until its processes are gone, then prints the log body.

Exits 1 when the agent did not finish successfully or the timeout expires.`,
	Args: cobra.ExactArgs(1),
	RunE: runAwait,
}

func init() {
	awaitCmd.Flags().String("dir", "", "Working directory (default: current)")
	awaitCmd.Flags().Duration("timeout", 30*time.Minute, "Give up after this long (0 waits forever)")
	awaitCmd.Flags().Duration("interval", 2*time.Second, "Polling interval")
	rootCmd.AddCommand(awaitCmd)
}

func runAwait(cmd *cobra.Command, args []string) error {
	r, err := openRoster(cmd)
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	interval, _ := cmd.Flags().GetDuration("interval")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	id := args[0]
	a, err := r.Await(ctx, id, interval)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("timed out after %s waiting for %s (status: %s)", timeout, id, a.Status)
	}
	if err != nil {
		return err
	}

	body, err := r.Body(id)
	if err != nil {
		return fmt.Errorf("reading log: %w", err)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s %s\n\n", theme.Label.Render(id), theme.StatusBadge(a.Status))
	fmt.Fprint(w, body)

	switch {
	case a.Dead():
		return fmt.Errorf("agent %s died without finishing", id)
	case a.Status != registry.StatusDone:
		return fmt.Errorf("agent %s finished with status %s", id, a.Status)
	}
	return nil
}

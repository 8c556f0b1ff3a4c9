package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/agusx1211/brood/internal/watchtui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live view of agents and their logs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRoster(cmd)
		if err != nil {
			return err
		}
		if !isInteractive() {
			agents, err := r.List()
			if err != nil {
				return err
			}
			printAgents(cmd.OutOrStdout(), agents, time.Now())
			return nil
		}
		interval, _ := cmd.Flags().GetDuration("interval")
		return watchtui.Run(r, interval)
	},
}

func init() {
	watchCmd.Flags().String("dir", "", "Working directory (default: current)")
	watchCmd.Flags().Duration("interval", time.Second, "Refresh interval")
	rootCmd.AddCommand(watchCmd)
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agusx1211/brood/internal/registry"
	"github.com/agusx1211/brood/internal/roster"
	"github.com/agusx1211/brood/internal/theme"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"list", "ls"},
	Short:   "List agents in a working directory",
	Args:    cobra.NoArgs,
	RunE:    runStatus,
}

func init() {
	statusCmd.Flags().String("dir", "", "Working directory (default: current)")
	statusCmd.Flags().Bool("json", false, "Print agents as JSON")
	statusCmd.Flags().Bool("active", false, "Only show in-progress agents")
	rootCmd.AddCommand(statusCmd)
}

func openRoster(cmd *cobra.Command) (*roster.Roster, error) {
	dirFlag, _ := cmd.Flags().GetString("dir")
	dir, err := workDir(dirFlag)
	if err != nil {
		return nil, err
	}
	s, err := loadSettings(dir)
	if err != nil {
		return nil, err
	}
	return roster.New(s, dir), nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	r, err := openRoster(cmd)
	if err != nil {
		return err
	}
	agents, err := r.List()
	if err != nil {
		return err
	}
	if active, _ := cmd.Flags().GetBool("active"); active {
		kept := agents[:0]
		for _, a := range agents {
			if a.Status == registry.StatusInProgress {
				kept = append(kept, a)
			}
		}
		agents = kept
	}

	w := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(agents)
	}
	printAgents(w, agents, time.Now())
	return nil
}

func printAgents(w io.Writer, agents []roster.Agent, now time.Time) {
	printHeader(w, "Agents")
	rows := make([][]string, 0, len(agents))
	for _, a := range agents {
		status := theme.StatusBadge(a.Status)
		if a.Dead() {
			status += " " + theme.Dim.Render("(dead)")
		}
		typ := a.Type
		if typ == "" {
			typ = "-"
		}
		rows = append(rows, []string{
			strings.Repeat("  ", max(0, a.Depth-1)) + a.ID,
			typ,
			status,
			strconv.Itoa(a.Depth),
			elapsed(a, now),
			truncate(a.Task, 48),
		})
	}
	printTable(w, []string{"AGENT", "TYPE", "STATUS", "DEPTH", "TIME", "TASK"}, rows)
	fmt.Fprintln(w)
}

func elapsed(a roster.Agent, now time.Time) string {
	if a.Started.IsZero() {
		return "-"
	}
	end := now
	if !a.Ended.IsZero() {
		end = a.Ended
	}
	return end.Sub(a.Started).Round(time.Second).String()
}

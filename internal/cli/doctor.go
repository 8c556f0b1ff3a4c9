package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/agusx1211/brood/internal/config"
	"github.com/agusx1211/brood/internal/detect"
	"github.com/agusx1211/brood/internal/mcp"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the agent CLIs and directories brood uses are present",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dirFlag, _ := cmd.Flags().GetString("dir")
		dir, err := workDir(dirFlag)
		if err != nil {
			return err
		}
		s, err := loadSettings(dir)
		if err != nil {
			return err
		}
		if !runDoctor(cmd.OutOrStdout(), s, dir) {
			return fmt.Errorf("primary agent CLI %q not found", s.Commands.Claude)
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().String("dir", "", "Working directory (default: current)")
	rootCmd.AddCommand(doctorCmd)
}

// runDoctor prints the checks and reports whether the primary CLI exists.
func runDoctor(w io.Writer, s *config.Settings, dir string) bool {
	tools := detect.Scan(s)
	printHeader(w, "Agent CLIs")
	rows := make([][]string, 0, len(tools))
	for _, t := range tools {
		state := colorRed + "missing" + colorReset
		if t.Found {
			state = colorGreen + "ok" + colorReset
		}
		rows = append(rows, []string{t.Route, t.Command, state, t.Version, t.Path})
	}
	printTable(w, []string{"ROUTE", "COMMAND", "STATE", "VERSION", "PATH"}, rows)

	printHeader(w, "Directories")
	rows = [][]string{
		pathRow("agents", s.AgentsDir),
		pathRow("library", s.LibraryDir),
		pathRow("markers", s.MarkersDir),
		pathRow("responses", s.ResponsesPath(dir)),
	}
	printTable(w, []string{"NAME", "STATE", "PATH"}, rows)

	printHeader(w, "MCP servers")
	servers, sources := mcp.Load(mcp.Candidates(s.MCPLibrary, dir, dir))
	rows = rows[:0]
	for _, src := range sources {
		rows = append(rows, []string{"source", src})
	}
	for _, name := range servers.Names() {
		rows = append(rows, []string{"server", name})
	}
	printTable(w, []string{"KIND", "VALUE"}, rows)
	fmt.Fprintln(w)

	return len(tools) > 0 && tools[0].Found
}

func pathRow(name, path string) []string {
	state := colorDim + "absent" + colorReset
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		state = colorGreen + "ok" + colorReset
	}
	return []string{name, state, path}
}

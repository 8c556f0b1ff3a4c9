package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-isatty"

	"github.com/agusx1211/brood/internal/config"
)

// isInteractive reports whether stdout is a terminal.
func isInteractive() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// workDir resolves --dir, defaulting to the current directory.
func workDir(flag string) (string, error) {
	if d := strings.TrimSpace(flag); d != "" {
		return d, nil
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return dir, nil
}

// loadSettings reads settings for projectDir.
func loadSettings(projectDir string) (*config.Settings, error) {
	s, err := config.Load(projectDir)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	return s, nil
}

// printHeader prints a formatted section header.
func printHeader(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s%s%s\n", styleBoldCyan, title, colorReset)
	fmt.Fprintln(w, colorDim+strings.Repeat("-", len(title)+2)+colorReset)
}

// printTable prints a simple table with headers and rows.
func printTable(w io.Writer, headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, colorDim+"  (none)"+colorReset)
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], ansi.StringWidth(cell))
			}
		}
	}

	line := "  "
	for i, h := range headers {
		line += fmt.Sprintf("%s%-*s%s", colorBold, widths[i]+2, h, colorReset)
	}
	fmt.Fprintln(w, line)

	line = "  "
	for _, wd := range widths {
		line += colorDim + strings.Repeat("-", wd+2) + colorReset
	}
	fmt.Fprintln(w, line)

	for _, row := range rows {
		line = "  "
		for i, cell := range row {
			if i < len(widths) {
				pad := max(0, widths[i]-ansi.StringWidth(cell))
				line += cell + strings.Repeat(" ", pad+2)
			}
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}

// truncate truncates a string to a given max width, adding "..." if needed.
func truncate(s string, maxLen int) string {
	return ansi.Truncate(s, maxLen, "...")
}

// Package detect locates the agent CLIs brood drives and probes their
// versions.
package detect

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/agusx1211/brood/internal/config"
)

const versionProbeTimeout = 1800 * time.Millisecond

var semverRE = regexp.MustCompile(`(?i)\bv?(\d+\.\d+(?:\.\d+)?(?:[-+][0-9A-Za-z.-]+)?)\b`)

// Tool is one configured CLI and where it was found.
type Tool struct {
	// Route is "primary" or "alternate".
	Route   string `json:"route"`
	Command string `json:"command"`
	Path    string `json:"path,omitempty"`
	Version string `json:"version,omitempty"`
	Found   bool   `json:"found"`
}

// Scan resolves the commands named in settings.
func Scan(s *config.Settings) []Tool {
	return []Tool{
		Resolve("primary", s.Commands.Claude),
		Resolve("alternate", s.Commands.Alternate),
	}
}

// Resolve looks command up on PATH and in common install directories.
func Resolve(route, command string) Tool {
	t := Tool{Route: route, Command: command}
	path, ok := resolveBinaryPath(command)
	if !ok {
		return t
	}
	t.Path = path
	t.Found = true
	t.Version = detectVersion(path)
	return t
}

func resolveBinaryPath(binary string) (string, bool) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return "", false
	}
	var candidates []string
	if p, err := exec.LookPath(binary); err == nil {
		candidates = append(candidates, p)
	}
	// Absolute or relative paths are taken as given.
	if !strings.ContainsRune(binary, filepath.Separator) {
		for _, dir := range knownInstallDirs() {
			candidates = append(candidates, filepath.Join(dir, binary))
		}
	}
	for _, path := range candidates {
		if real, ok := executablePath(path); ok {
			return real, true
		}
	}
	return "", false
}

func knownInstallDirs() []string {
	dirs := []string{
		"/usr/local/bin",
		"/usr/bin",
		"/opt/homebrew/bin",
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		dirs = append(dirs,
			filepath.Join(home, ".local", "bin"),
			filepath.Join(home, ".claude", "local"),
			filepath.Join(home, ".npm-global", "bin"),
		)
	}
	return dirs
}

func executablePath(path string) (string, bool) {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return "", false
	}
	if runtime.GOOS != "windows" && fi.Mode()&0111 == 0 {
		return "", false
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		resolved = path
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		abs = resolved
	}
	return abs, true
}

func detectVersion(commandPath string) string {
	for _, args := range [][]string{{"--version"}, {"-v"}} {
		out, err := runVersionProbe(commandPath, args)
		if err != nil && out == "" {
			continue
		}
		if version := parseVersion(out); version != "" {
			return version
		}
	}
	return "unknown"
}

func runVersionProbe(commandPath string, args []string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), versionProbeTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, commandPath, args...).CombinedOutput()
	out := strings.TrimSpace(string(output))
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return out, ctx.Err()
	}
	return out, err
}

// parseVersion prefers a semver-looking token and falls back to the first
// line of output.
func parseVersion(output string) string {
	output = strings.TrimSpace(output)
	if output == "" {
		return ""
	}
	if m := semverRE.FindStringSubmatch(output); len(m) > 1 {
		return m[1]
	}
	line, _, _ := strings.Cut(output, "\n")
	line = strings.TrimSpace(line)
	if len(line) > 48 {
		line = line[:48]
	}
	return line
}

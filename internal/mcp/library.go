// Package mcp assembles the MCP server map handed to agent sessions.
package mcp

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/agusx1211/brood/internal/debug"
)

// Servers maps an MCP server name to its raw JSON configuration.
type Servers map[string]json.RawMessage

// Candidates lists the config files consulted for a hook invocation: the
// user-level files followed by the project and working directory files.
func Candidates(userFiles []string, projectDir, cwd string) []string {
	out := append([]string(nil), userFiles...)
	for _, dir := range []string{projectDir, cwd} {
		if dir == "" {
			continue
		}
		out = append(out,
			filepath.Join(dir, ".claude", ".mcp.json"),
			filepath.Join(dir, ".mcp.json"),
		)
	}
	return out
}

// Load merges the "mcpServers" objects of every readable candidate; later
// files override earlier ones. Missing and malformed files are skipped.
func Load(candidates []string) (Servers, []string) {
	servers := Servers{}
	var sources []string
	seen := map[string]bool{}
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true

		data, err := os.ReadFile(c)
		if err != nil {
			continue
		}
		var doc struct {
			MCPServers map[string]json.RawMessage `json:"mcpServers"`
		}
		if err := json.Unmarshal(data, &doc); err != nil || doc.MCPServers == nil {
			debug.LogErr("mcp", "skipping malformed config", err, "path", c)
			continue
		}
		for name, cfg := range doc.MCPServers {
			servers[name] = cfg
		}
		sources = append(sources, c)
	}
	return servers, sources
}

// Select picks names from the library. Names with no configuration are
// reported in missing, in request order.
func Select(names []string, library Servers) (Servers, []string) {
	selected := Servers{}
	missing := []string{}
	for _, name := range names {
		if cfg, ok := library[name]; ok {
			selected[name] = cfg
			continue
		}
		missing = append(missing, name)
	}
	return selected, missing
}

// Names returns the server names in sorted order.
func (s Servers) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ConfigJSON renders the map in the {"mcpServers": {...}} document shape
// accepted by the agent CLIs.
func (s Servers) ConfigJSON() (string, error) {
	data, err := json.Marshal(map[string]Servers{"mcpServers": s})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Package definition resolves agent type names to their definition files.
//
// A definition is a Markdown file, optionally starting with a "---"
// delimited header, whose body is the agent's system prompt:
//
//	---
//	model: sonnet
//	allowedAgents: [coder, reviewer]
//	allowedMcpServers:
//	  - github
//	thinking: 8000
//	---
//	You are a careful planner...
//
// Files are looked up in the primary agents directory first and then in the
// library directory; in each, the direct path "<dir>/<type>.md" wins over a
// search for "<leaf>.md" anywhere below the directory.
package definition

import (
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/agusx1211/brood/internal/debug"
)

// RootType is the reserved definition consulted for the root session's own
// spawn permissions.
const RootType = "root"

// Definition is a parsed agent definition.
type Definition struct {
	Type string
	// Path is the resolved file, empty when no file matched.
	Path string
	// Found is false for types with no definition file; such definitions
	// carry no prompt and no restrictions.
	Found bool

	SystemPrompt      string
	Model             string
	AllowedAgents     []string
	AllowedMCPServers []string
	ThinkingBudget    int
	Metadata          map[string]any
}

// Loader resolves and caches definitions for the lifetime of a process.
type Loader struct {
	dirs []string

	mu    sync.Mutex
	cache map[string]*Definition
}

// NewLoader searches primary first, then library. Empty directories are skipped.
func NewLoader(primary, library string) *Loader {
	var dirs []string
	for _, d := range []string{primary, library} {
		if strings.TrimSpace(d) != "" {
			dirs = append(dirs, d)
		}
	}
	return &Loader{dirs: dirs, cache: map[string]*Definition{}}
}

// Load returns the definition for agentType. It never fails: unreadable or
// missing files produce a definition with Found=false.
func (l *Loader) Load(agentType string) *Definition {
	l.mu.Lock()
	defer l.mu.Unlock()

	if d, ok := l.cache[agentType]; ok {
		return d
	}
	d := l.load(agentType)
	l.cache[agentType] = d
	return d
}

// ClearCache forgets every loaded definition.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	l.cache = map[string]*Definition{}
	l.mu.Unlock()
}

func (l *Loader) load(agentType string) *Definition {
	d := &Definition{Type: agentType, Metadata: map[string]any{}}
	if strings.TrimSpace(agentType) == "" {
		return d
	}

	for _, dir := range l.dirs {
		p, ok := Resolve(dir, agentType)
		if !ok {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			debug.LogErr("definition", "unreadable definition", err, "path", p)
			return d
		}
		d.Path = p
		d.Found = true
		parse(d, string(data))
		debug.LogKV("definition", "loaded", "type", agentType, "path", p, "model", d.Model)
		return d
	}
	debug.LogKV("definition", "no definition file", "type", agentType)
	return d
}

// Parse builds a definition from raw file content.
func Parse(agentType, content string) *Definition {
	d := &Definition{Type: agentType, Found: true, Metadata: map[string]any{}}
	parse(d, content)
	return d
}

func parse(d *Definition, content string) {
	header, body, ok := splitFrontmatter(content)
	if ok {
		d.Metadata = parseFrontmatter(header)
	}
	d.SystemPrompt = strings.TrimSpace(body)

	d.Model = stringValue(d.Metadata["model"])
	v, present := d.Metadata["allowedAgents"]
	d.AllowedAgents = toList(v, present)
	v, present = d.Metadata["allowedMcpServers"]
	d.AllowedMCPServers = toList(v, present)
	if n, err := strconv.Atoi(stringValue(d.Metadata["thinking"])); err == nil && n > 0 {
		d.ThinkingBudget = n
	}
}

// Resolve finds the definition file for agentType under baseDir. The direct
// path is checked first; otherwise the tree is walked breadth-first with an
// explicit queue looking for "<leaf>.md". Symlinked directories are not
// followed.
func Resolve(baseDir, agentType string) (string, bool) {
	if baseDir == "" || agentType == "" {
		return "", false
	}
	normalized := strings.TrimLeft(strings.ReplaceAll(agentType, `\`, "/"), "/")
	cleaned := path.Clean(normalized)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}

	direct := filepath.Join(baseDir, filepath.FromSlash(cleaned)+".md")
	if fi, err := os.Stat(direct); err == nil && fi.Mode().IsRegular() {
		return direct, true
	}

	target := path.Base(cleaned) + ".md"
	queue := []string{baseDir}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			full := filepath.Join(dir, e.Name())
			if e.IsDir() {
				queue = append(queue, full)
				continue
			}
			if e.Type().IsRegular() && e.Name() == target {
				return full, true
			}
		}
	}
	return "", false
}

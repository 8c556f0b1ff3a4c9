package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"

	"github.com/agusx1211/brood/internal/config"
)

func TestDoctorReportsToolsAndMCP(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	bin := t.TempDir()
	script := filepath.Join(bin, "fake-claude")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho 3.2.1\n"), 0755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", bin)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".mcp.json"), []byte(`{"mcpServers":{"github":{"command":"gh-mcp"}}}`), 0644); err != nil {
		t.Fatal(err)
	}

	s := config.Default()
	s.Commands.Claude = "fake-claude"
	s.Commands.Alternate = "not-installed-agent"

	var buf bytes.Buffer
	if !runDoctor(&buf, s, dir) {
		t.Fatalf("primary CLI should be reported as found")
	}
	out := ansi.Strip(buf.String())
	for _, want := range []string{"fake-claude", "3.2.1", "not-installed-agent", "missing", "github"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFiles(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	s, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.MaxDepth != HardMaxDepth {
		t.Fatalf("MaxDepth = %d, want %d", s.MaxDepth, HardMaxDepth)
	}
	if s.Tail.PollInterval != time.Second {
		t.Fatalf("PollInterval = %v, want 1s", s.Tail.PollInterval)
	}
	if s.Tail.IdleBudget != 5*time.Minute {
		t.Fatalf("IdleBudget = %v, want 5m", s.Tail.IdleBudget)
	}
	if want := filepath.Join(home, ".claude", "agents"); s.AgentsDir != want {
		t.Fatalf("AgentsDir = %q, want %q", s.AgentsDir, want)
	}
	if got := s.RegistryPath("/work"); got != "/work/agent-responses/.active-pids.json" {
		t.Fatalf("RegistryPath = %q", got)
	}
}

func TestLoadProjectOverridesUser(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	project := t.TempDir()

	if err := os.MkdirAll(filepath.Join(home, ".brood"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(home, ".brood", "config.json"),
		[]byte(`{"default_agent_type":"planner","tail":{"idle_budget":"2m"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(project, ".brood"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(project, ".brood", "config.yaml"),
		[]byte("default_agent_type: coder\n"), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(project)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.DefaultAgentType != "coder" {
		t.Fatalf("DefaultAgentType = %q, want %q", s.DefaultAgentType, "coder")
	}
	if s.Tail.IdleBudget != 2*time.Minute {
		t.Fatalf("IdleBudget = %v, want 2m", s.Tail.IdleBudget)
	}
}

func TestLoadMaxDepthCannotExceedCeiling(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BROOD_MAX_DEPTH", "7")

	s, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.MaxDepth != HardMaxDepth {
		t.Fatalf("MaxDepth = %d, want %d", s.MaxDepth, HardMaxDepth)
	}

	t.Setenv("BROOD_MAX_DEPTH", "2")
	s, err = Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.MaxDepth != 2 {
		t.Fatalf("MaxDepth = %d, want 2", s.MaxDepth)
	}
}

func TestIsPrimaryModel(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	s := Default()

	tests := []struct {
		model string
		want  bool
	}{
		{"", true},
		{"sonnet", true},
		{"Opus-4", true},
		{"haiku", true},
		{"claude-sonnet-4-5", true},
		{"gpt-5", false},
		{"gemini-2.5-pro", false},
	}
	for _, tt := range tests {
		if got := s.IsPrimaryModel(tt.model); got != tt.want {
			t.Fatalf("IsPrimaryModel(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
	if got := s.ResolveModel(" haiku "); got != "claude-haiku-4-5-20251001" {
		t.Fatalf("ResolveModel(haiku) = %q", got)
	}
	if got := s.ResolveModel("opus"); got != "opus" {
		t.Fatalf("ResolveModel(opus) = %q", got)
	}
}

package debug

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestShouldEnableFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		enabled string
		path    string
		want    bool
	}{
		{name: "disabled by default", want: false},
		{name: "enabled explicit", enabled: "yes", want: true},
		{name: "enabled via path", path: "/tmp/brood.log", want: true},
		{name: "explicit off wins", enabled: "off", path: "/tmp/brood.log", want: false},
		{name: "unknown toggle with path", enabled: "maybe", path: "/tmp/brood.log", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvEnabled, tt.enabled)
			t.Setenv(EnvLogPath, tt.path)
			if got := ShouldEnableFromEnv(); got != tt.want {
				t.Fatalf("ShouldEnableFromEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInheritedLogReceivesChildLines(t *testing.T) {
	defer Close()

	logPath := filepath.Join(t.TempDir(), "tree.log")
	if err := os.WriteFile(logPath, []byte("parent\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv(EnvLogPath, logPath)
	t.Setenv(EnvProcess, "runner:agent_01")

	got, err := Init()
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if got != logPath {
		t.Fatalf("Init() path = %q, want %q", got, logPath)
	}
	LogKV("runner", "child exited", "code", 3)
	LogErr("runner", "patch failed", errors.New("boom"), "agent_id", "agent_01")
	LogErr("runner", "ignored", nil)
	Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	s := string(data)
	for _, want := range []string{
		"parent\n",
		"=== BROOD PROCESS ATTACHED ===",
		"Process: runner:agent_01",
		"child exited code=3",
		"patch failed agent_id=agent_01 err=boom",
		"=== BROOD PROCESS DETACHED ===",
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("log missing %q:\n%s", want, s)
		}
	}
	if strings.Contains(s, "ignored") {
		t.Fatalf("LogErr with nil error should not write:\n%s", s)
	}
}

func TestPropagatedEnv(t *testing.T) {
	t.Run("disabled leaves env alone", func(t *testing.T) {
		defer Close()
		in := []string{"FOO=bar"}
		if out := PropagatedEnv(in, "runner"); !reflect.DeepEqual(out, in) {
			t.Fatalf("PropagatedEnv() = %v, want %v", out, in)
		}
	})

	t.Run("overlay", func(t *testing.T) {
		defer Close()
		logPath := filepath.Join(t.TempDir(), "shared.log")
		t.Setenv(EnvLogPath, logPath)
		if _, err := Init(); err != nil {
			t.Fatalf("Init: %v", err)
		}

		out := PropagatedEnv([]string{"FOO=bar", EnvEnabled + "=0", EnvProcess + "=old"}, "session:agent_02")
		m := map[string]string{}
		for _, kv := range out {
			k, v, _ := strings.Cut(kv, "=")
			m[k] = v
		}
		if m["FOO"] != "bar" || m[EnvEnabled] != "1" || m[EnvLogPath] != logPath || m[EnvProcess] != "session:agent_02" {
			t.Fatalf("unexpected env overlay: %v", m)
		}
	})
}

func TestSetEnvReplacesInPlace(t *testing.T) {
	env := SetEnv([]string{"A=1", "B=2"}, "A", "9")
	env = SetEnv(env, "C", "3")
	want := []string{"A=9", "B=2", "C=3"}
	if !reflect.DeepEqual(env, want) {
		t.Fatalf("SetEnv = %v, want %v", env, want)
	}
}

package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "agent-responses", ".active-pids.json"))
}

func TestReadMissingAndCorruptFile(t *testing.T) {
	s := newTestStore(t)
	if reg := s.Read(); reg == nil || len(reg) != 0 {
		t.Fatalf("Read(missing) = %#v, want empty registry", reg)
	}

	if err := os.MkdirAll(filepath.Dir(s.Path()), 0755); err != nil {
		t.Fatal(err)
	}
	for _, body := range []string{"{not json", "", "null", "[1,2]"} {
		if err := os.WriteFile(s.Path(), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		if reg := s.Read(); reg == nil || len(reg) != 0 {
			t.Fatalf("Read(%q) = %#v, want empty registry", body, reg)
		}
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ended := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	want := Registry{
		"agent_0000000a": {
			AgentID:            "agent_0000000a",
			PID:                4242,
			RunnerPID:          4241,
			Depth:              2,
			ParentID:           "agent_00000001",
			AgentType:          "coder",
			AllowedAgents:      []string{},
			AllowedMCPServers:  nil,
			MissingMCPServers:  []string{"github"},
			SpawnedBySessionID: "sess-1",
			Status:             StatusDone,
			SessionID:          "sess-2",
			TranscriptPath:     "/tmp/t.jsonl",
			ParentSessionID:    "sess-1",
			ParentPID:          100,
			CreatedAt:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			EndedAt:            &ended,
		},
	}
	if err := s.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := s.Read()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got=%#v\nwant=%#v", got, want)
	}
	if got["agent_0000000a"].AllowedAgents == nil {
		t.Fatal("empty allow-list decoded as nil; the null/empty distinction was lost")
	}
	if got["agent_0000000a"].AllowedMCPServers != nil {
		t.Fatal("null allow-list decoded as non-nil")
	}
}

func TestInsertRejectsDuplicate(t *testing.T) {
	s := newTestStore(t)
	e := NewEntry("agent_01", "coder", "", 1)
	if err := s.Insert(e); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert(e); err == nil {
		t.Fatal("second Insert should fail")
	}
}

func TestUpdatesOnMissingEntryAreNoOps(t *testing.T) {
	s := newTestStore(t)
	if err := s.Insert(NewEntry("agent_01", "coder", "", 1)); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateField("agent_gone", "pid", 12); err != nil {
		t.Fatalf("UpdateField(missing) = %v, want nil", err)
	}
	if err := s.SetPIDs("agent_gone", 1, 2); err != nil {
		t.Fatalf("SetPIDs(missing) = %v, want nil", err)
	}
	if applied, err := s.Finalize("agent_gone", StatusDone); err != nil || applied {
		t.Fatalf("Finalize(missing) = %v, %v, want false, nil", applied, err)
	}

	after, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Fatalf("registry changed by no-op updates:\nbefore=%s\nafter=%s", before, after)
	}
}

func TestUpdateFieldByWireName(t *testing.T) {
	s := newTestStore(t)
	if err := s.Insert(NewEntry("agent_01", "coder", "", 1)); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateField("agent_01", "transcriptPath", "/x/y.jsonl"); err != nil {
		t.Fatalf("UpdateField: %v", err)
	}
	if err := s.UpdateField("agent_01", "allowedAgents", []string{"reviewer"}); err != nil {
		t.Fatalf("UpdateField: %v", err)
	}
	e, _ := s.Get("agent_01")
	if e.TranscriptPath != "/x/y.jsonl" {
		t.Fatalf("TranscriptPath = %q", e.TranscriptPath)
	}
	if !reflect.DeepEqual(e.AllowedAgents, []string{"reviewer"}) {
		t.Fatalf("AllowedAgents = %v", e.AllowedAgents)
	}
	if err := s.UpdateField("agent_01", "depth", "deep"); err == nil {
		t.Fatal("UpdateField with wrong type should fail")
	}
}

func TestFinalizeIsTerminalOnce(t *testing.T) {
	s := newTestStore(t)
	if err := s.Insert(NewEntry("agent_01", "coder", "", 1)); err != nil {
		t.Fatal(err)
	}

	applied, err := s.Finalize("agent_01", StatusDone)
	if err != nil || !applied {
		t.Fatalf("first Finalize = %v, %v, want true, nil", applied, err)
	}
	applied, err = s.Finalize("agent_01", StatusFailed)
	if err != nil || applied {
		t.Fatalf("second Finalize = %v, %v, want false, nil", applied, err)
	}
	e, _ := s.Get("agent_01")
	if e.Status != StatusDone {
		t.Fatalf("status = %q, want %q", e.Status, StatusDone)
	}
	if e.EndedAt == nil {
		t.Fatal("EndedAt not set")
	}
	if _, err := s.Finalize("agent_01", StatusInProgress); err == nil {
		t.Fatal("Finalize with non-terminal status should fail")
	}
}

func TestConcurrentInsertsAreSerialized(t *testing.T) {
	s := newTestStore(t)
	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Insert(NewEntry(fmt.Sprintf("agent_%02x", i), "coder", "", 1)); err != nil {
				t.Errorf("Insert %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	if got := len(s.Read()); got != n {
		t.Fatalf("entries = %d, want %d", got, n)
	}
}

func TestClearReturnsPreviousContents(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"agent_01", "agent_02"} {
		if err := s.Insert(NewEntry(id, "coder", "", 1)); err != nil {
			t.Fatal(err)
		}
	}
	old, err := s.Clear()
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(old) != 2 {
		t.Fatalf("Clear returned %d entries, want 2", len(old))
	}
	if len(s.Read()) != 0 {
		t.Fatal("registry not empty after Clear")
	}
}

func TestDescendantsAndDepth(t *testing.T) {
	reg := Registry{
		"agent_a": NewEntry("agent_a", "orchestrator", "", 1),
		"agent_b": NewEntry("agent_b", "coder", "agent_a", 2),
		"agent_c": NewEntry("agent_c", "reviewer", "agent_b", 3),
		"agent_d": NewEntry("agent_d", "coder", "", 1),
	}
	got := reg.Descendants("agent_a")
	if len(got) != 2 || got[0].AgentID != "agent_b" || got[1].AgentID != "agent_c" {
		t.Fatalf("Descendants(agent_a) = %v", got)
	}
	for _, e := range reg {
		if e.ParentID == "" {
			continue
		}
		if parent := reg[e.ParentID]; e.Depth != parent.Depth+1 {
			t.Fatalf("%s depth = %d, parent depth = %d", e.AgentID, e.Depth, parent.Depth)
		}
	}
	if all := reg.Descendants(""); len(all) != 4 {
		t.Fatalf("Descendants(root) = %d entries, want 4", len(all))
	}
}

func TestParseStatus(t *testing.T) {
	if st, ok := ParseStatus(" Done "); !ok || st != StatusDone {
		t.Fatalf("ParseStatus(Done) = %q, %v", st, ok)
	}
	if _, ok := ParseStatus("running"); ok {
		t.Fatal("ParseStatus(running) should fail")
	}
	if StatusInProgress.Terminal() {
		t.Fatal("in-progress must not be terminal")
	}
}

package agentlog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agusx1211/brood/internal/registry"
)

func newLog(t *testing.T) *Log {
	t.Helper()
	l := Open(filepath.Join(t.TempDir(), "agent-responses", "agent_0a0b0c0d.md"))
	err := l.Create(Header{
		Task:    "Review\nthe parser",
		Started: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Status:  registry.StatusInProgress,
		Depth:   1,
		Prompt:  ".agent-prompts/agent_0a0b0c0d.txt",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return l
}

func TestCreateWritesHeader(t *testing.T) {
	l := newLog(t)
	content, err := l.Content()
	if err != nil {
		t.Fatal(err)
	}
	want := "---\n" +
		"Task: Review the parser\n" +
		"Started: 2026-03-01T12:00:00.000Z\n" +
		"Status: in-progress\n" +
		"Depth: 1\n" +
		"ParentAgent: root\n" +
		"Prompt: .agent-prompts/agent_0a0b0c0d.txt\n" +
		"---\n\n"
	if content != want {
		t.Fatalf("content =\n%q\nwant\n%q", content, want)
	}

	if err := l.Create(Header{Task: "again"}); !errors.Is(err, ErrExists) {
		t.Fatalf("second Create err = %v, want ErrExists", err)
	}
}

func TestSetPIDInsertsThenReplaces(t *testing.T) {
	l := newLog(t)
	if err := l.SetPID(111); err != nil {
		t.Fatalf("SetPID: %v", err)
	}
	if err := l.SetPID(222); err != nil {
		t.Fatalf("SetPID: %v", err)
	}
	h, err := l.Header()
	if err != nil {
		t.Fatal(err)
	}
	if h.PID != 222 {
		t.Fatalf("PID = %d, want 222", h.PID)
	}
	content, _ := l.Content()
	if strings.Count(content, "PID:") != 1 {
		t.Fatalf("expected exactly one PID line:\n%s", content)
	}
}

func TestFinalizeOnlyFromInProgress(t *testing.T) {
	l := newLog(t)
	if err := l.Append("some output"); err != nil {
		t.Fatal(err)
	}

	applied, err := l.Finalize(registry.StatusFailed)
	if err != nil || !applied {
		t.Fatalf("Finalize = %v, %v, want true, nil", applied, err)
	}
	applied, err = l.Finalize(registry.StatusDone)
	if err != nil || applied {
		t.Fatalf("second Finalize = %v, %v, want false, nil", applied, err)
	}

	content, _ := l.Content()
	h, body, err := Parse(content)
	if err != nil {
		t.Fatal(err)
	}
	if h.Status != registry.StatusFailed {
		t.Fatalf("status = %q, want failed", h.Status)
	}
	if h.Ended.IsZero() {
		t.Fatal("Ended not set")
	}
	if !strings.Contains(content, "Status: failed\nEnded: ") {
		t.Fatalf("Ended should follow Status:\n%s", content)
	}
	if body != "\nsome output" {
		t.Fatalf("body = %q", body)
	}
}

func TestAppendSpeakerIsIdempotent(t *testing.T) {
	l := newLog(t)
	wrote, err := l.AppendSpeaker("User", "  please continue ")
	if err != nil || !wrote {
		t.Fatalf("AppendSpeaker = %v, %v", wrote, err)
	}
	wrote, err = l.AppendSpeaker("User", "please continue")
	if err != nil || wrote {
		t.Fatalf("duplicate AppendSpeaker = %v, %v, want false", wrote, err)
	}
	if wrote, _ := l.AppendSpeaker("Assistant", "   "); wrote {
		t.Fatal("blank text should not be written")
	}
	content, _ := l.Content()
	if strings.Count(content, "**User:** please continue") != 1 {
		t.Fatalf("speaker line count wrong:\n%s", content)
	}
}

func TestAppendErrorSection(t *testing.T) {
	l := newLog(t)
	if err := l.AppendError("Process exited with code 2 (signal: none)\n"); err != nil {
		t.Fatal(err)
	}
	content, _ := l.Content()
	if !strings.HasSuffix(content, "\n\n## Error\n\nProcess exited with code 2 (signal: none)\n") {
		t.Fatalf("unexpected tail:\n%q", content)
	}
}

func TestConcurrentAppendAndFinalizeKeepsBody(t *testing.T) {
	l := newLog(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Append("x")
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = l.Finalize(registry.StatusDone)
	}()
	wg.Wait()

	content, _ := l.Content()
	_, body, err := Parse(content)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(body, "x"); got != 20 {
		t.Fatalf("body has %d appends, want 20:\n%s", got, content)
	}
}

func TestParseRejectsMissingHeader(t *testing.T) {
	if _, _, err := Parse("just text\n"); err == nil {
		t.Fatal("expected error for content without header")
	}
	if _, _, err := Parse("---\nTask: x\nno closing"); err == nil {
		t.Fatal("expected error for unterminated header")
	}
}

func TestPromptSideFile(t *testing.T) {
	dir := t.TempDir()
	rel, err := WritePrompt(dir, ".agent-prompts", "agent_01", "do the thing")
	if err != nil {
		t.Fatal(err)
	}
	if rel != ".agent-prompts/agent_01.txt" {
		t.Fatalf("rel = %q", rel)
	}
	got, err := ReadPrompt(dir, Header{Prompt: rel})
	if err != nil || got != "do the thing" {
		t.Fatalf("ReadPrompt = %q, %v", got, err)
	}
	if _, err := ReadPrompt(dir, Header{}); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("ReadPrompt without reference err = %v", err)
	}
}

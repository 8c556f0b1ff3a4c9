package marker

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteReadRemove(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "markers")
	m := Marker{SessionID: "sess-1", PID: 321, Cwd: "/work", StartedAt: time.Now().UTC().Truncate(time.Millisecond)}
	if err := Write(dir, m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, ok := Read(dir, 321)
	if !ok {
		t.Fatal("Read: marker not found")
	}
	if got.SessionID != m.SessionID || got.Cwd != m.Cwd || !got.StartedAt.Equal(m.StartedAt) {
		t.Fatalf("Read = %+v, want %+v", got, m)
	}
	if err := Remove(dir, 321); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := Remove(dir, 321); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if _, ok := Read(dir, 321); ok {
		t.Fatal("marker still readable after Remove")
	}
}

func TestFindBySessionAndActive(t *testing.T) {
	dir := t.TempDir()
	for pid, sid := range map[int]string{10: "a", 11: "b"} {
		if err := Write(dir, Marker{SessionID: sid, PID: pid}); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "99.json"), []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}

	path, ok := FindBySession(dir, "b")
	if !ok || path != Path(dir, 11) {
		t.Fatalf("FindBySession(b) = %q, %v", path, ok)
	}
	if _, ok := FindBySession(dir, "zzz"); ok {
		t.Fatal("FindBySession found a session that does not exist")
	}
	if !Active(path) {
		t.Fatal("Active = false for existing marker")
	}
	if err := Remove(dir, 11); err != nil {
		t.Fatal(err)
	}
	if Active(path) {
		t.Fatal("Active = true after marker removal")
	}
	if !Active("") {
		t.Fatal("empty path should count as active")
	}
}

func TestWriteRejectsBadPID(t *testing.T) {
	if err := Write(t.TempDir(), Marker{SessionID: "x"}); err == nil {
		t.Fatal("expected error for zero pid")
	}
}

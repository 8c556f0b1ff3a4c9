package logstream

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) add(line []byte) {
	r.mu.Lock()
	r.lines = append(r.lines, string(line))
	r.mu.Unlock()
}

func (r *lineRecorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestPollBuffersPartialLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.jsonl")
	rec := &lineRecorder{}
	tl := &Tailer{Candidates: []string{path}, OnLine: rec.add}
	st := &tailState{}

	assert.False(t, tl.poll(st), "missing file")

	require.NoError(t, os.WriteFile(path, []byte("one\ntw"), 0644))
	assert.True(t, tl.poll(st))
	assert.Equal(t, []string{"one"}, rec.get())
	assert.False(t, tl.poll(st), "no growth")

	appendFile(t, path, "o\nthree\n")
	assert.True(t, tl.poll(st))
	assert.Equal(t, []string{"one", "two", "three"}, rec.get())
}

func TestPollRewindsAfterTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.jsonl")
	rec := &lineRecorder{}
	tl := &Tailer{Candidates: []string{path}, OnLine: rec.add}
	st := &tailState{}

	require.NoError(t, os.WriteFile(path, []byte("first line\nsecond line\n"), 0644))
	tl.poll(st)

	require.NoError(t, os.WriteFile(path, []byte("new\n"), 0644))
	assert.True(t, tl.poll(st))
	assert.Equal(t, []string{"first line", "second line", "new"}, rec.get())
	assert.Equal(t, int64(4), st.offset)
}

func TestPollSwitchesToLaterCandidate(t *testing.T) {
	dir := t.TempDir()
	preferred := filepath.Join(dir, "session_x.jsonl")
	fallback := filepath.Join(dir, "x.jsonl")
	var paths []string
	tl := &Tailer{
		Candidates: []string{preferred, fallback},
		OnPath:     func(p string) { paths = append(paths, p) },
		OnLine:     func([]byte) {},
	}
	st := &tailState{}

	require.NoError(t, os.WriteFile(fallback, []byte("a\n"), 0644))
	tl.poll(st)
	assert.Equal(t, fallback, st.path)

	require.NoError(t, os.Remove(fallback))
	require.NoError(t, os.WriteFile(preferred, []byte("b\n"), 0644))
	tl.poll(st)
	assert.Equal(t, []string{fallback, preferred}, paths)
}

func TestRunStopsAfterIdleBudgetAndFlushesRemainder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("done\ntrailing"), 0644))
	rec := &lineRecorder{}
	tl := &Tailer{
		Candidates: []string{path},
		Interval:   10 * time.Millisecond,
		IdleBudget: 100 * time.Millisecond,
		Grace:      time.Hour,
		OnLine:     rec.add,
	}

	start := time.Now()
	require.NoError(t, tl.Run(context.Background()))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, []string{"done", "trailing"}, rec.get())
}

func TestRunStopsWhenMarkerGone(t *testing.T) {
	tl := &Tailer{
		Candidates:   []string{filepath.Join(t.TempDir(), "never.jsonl")},
		Interval:     10 * time.Millisecond,
		IdleBudget:   time.Hour,
		Grace:        50 * time.Millisecond,
		MarkerActive: func() bool { return false },
	}
	done := make(chan error, 1)
	go func() { done <- tl.Run(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("tailer did not stop after marker disappeared")
	}
}

func TestRunHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tl := &Tailer{Candidates: []string{filepath.Join(t.TempDir(), "x")}, Interval: 10 * time.Millisecond, IdleBudget: time.Hour}
	cancel()
	assert.ErrorIs(t, tl.Run(ctx), context.Canceled)
}

func TestTranscriptCandidates(t *testing.T) {
	got := TranscriptCandidates([]string{"/h/projects", "/h/transcripts"}, "abc", "/Users/me/my.repo")
	assert.Equal(t, []string{
		"/h/projects/-Users-me-my-repo/session_abc.jsonl",
		"/h/projects/-Users-me-my-repo/abc.jsonl",
		"/h/transcripts/-Users-me-my-repo/session_abc.jsonl",
	}, got)
	assert.Nil(t, TranscriptCandidates([]string{"/h"}, "", "/x"))
}

func appendFile(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(text)
	require.NoError(t, err)
}

package logstream

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agusx1211/brood/internal/debug"
	"github.com/agusx1211/brood/internal/eventq"
)

// Tailer follows an append-only transcript file by polling its size, reading
// only the newly appended range and handing complete lines to OnLine.
type Tailer struct {
	// Candidates are the possible transcript locations, in preference order.
	// The first existing one is followed and re-resolved when it disappears.
	Candidates []string

	Interval   time.Duration
	IdleBudget time.Duration
	Grace      time.Duration

	// MarkerActive reports whether the owning session is still alive. Nil
	// means always alive.
	MarkerActive func() bool
	// OnPath is called whenever a different candidate becomes the followed file.
	OnPath func(path string)
	OnLine func(line []byte)
}

type tailState struct {
	path      string
	offset    int64
	remainder []byte
}

// Run tails until the idle budget is spent, the session marker has been
// gone for the grace period, or ctx is done. A trailing partial line is
// flushed before returning.
func (t *Tailer) Run(ctx context.Context) error {
	interval := t.Interval
	if interval <= 0 {
		interval = time.Second
	}
	wake := eventq.NewSignal()
	stopWatch := t.watch(wake)
	defer stopWatch()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	st := &tailState{}
	lastData := time.Now()
	var markerGone time.Time

	defer func() {
		if len(bytes.TrimSpace(st.remainder)) > 0 {
			t.emit(st.remainder)
		}
	}()

	for {
		if t.poll(st) {
			lastData = time.Now()
		}

		if t.MarkerActive != nil && !t.MarkerActive() {
			if markerGone.IsZero() {
				markerGone = time.Now()
			}
			if time.Since(markerGone) >= t.Grace {
				debug.LogKV("logstream", "session marker gone, stop tailing", "path", st.path)
				return nil
			}
		} else {
			markerGone = time.Time{}
		}
		if t.IdleBudget > 0 && time.Since(lastData) >= t.IdleBudget {
			debug.LogKV("logstream", "idle budget spent, stop tailing", "path", st.path)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-wake:
		}
	}
}

// poll reads whatever was appended since the last call. It reports whether
// new bytes arrived.
func (t *Tailer) poll(st *tailState) bool {
	if p := t.resolve(st.path); p != st.path {
		st.path, st.offset, st.remainder = p, 0, nil
		if t.OnPath != nil {
			t.OnPath(p)
		}
	}
	if st.path == "" {
		return false
	}
	info, err := os.Stat(st.path)
	if err != nil {
		return false
	}
	size := info.Size()
	if size < st.offset {
		debug.LogKV("logstream", "transcript shrank, rewinding", "path", st.path, "was", st.offset, "now", size)
		st.offset, st.remainder = 0, nil
	}
	if size == st.offset {
		return false
	}
	data, err := readRange(st.path, st.offset, size-st.offset)
	if err != nil || len(data) == 0 {
		return false
	}
	st.offset += int64(len(data))

	buf := append(st.remainder, data...)
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		t.emit(buf[:i])
		buf = buf[i+1:]
	}
	st.remainder = append([]byte(nil), buf...)
	return true
}

func (t *Tailer) emit(line []byte) {
	if t.OnLine == nil || len(bytes.TrimSpace(line)) == 0 {
		return
	}
	t.OnLine(append([]byte(nil), line...))
}

// resolve keeps the current file while it exists, otherwise picks the first
// existing candidate. With nothing on disk the current path is kept.
func (t *Tailer) resolve(current string) string {
	if current != "" && exists(current) {
		return current
	}
	if p, ok := FirstExisting(t.Candidates); ok {
		return p
	}
	return current
}

// watch wakes the loop early when a candidate changes. Polling still drives
// correctness; without a watcher the loop just waits for the next tick.
func (t *Tailer) watch(wake chan struct{}) func() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		debug.LogKV("logstream", "fsnotify unavailable", "error", err)
		return func() {}
	}
	names := make(map[string]bool, len(t.Candidates))
	dirs := make(map[string]bool)
	for _, c := range t.Candidates {
		names[filepath.Clean(c)] = true
		dirs[filepath.Dir(c)] = true
	}
	for d := range dirs {
		_ = w.Add(d)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if names[filepath.Clean(ev.Name)] {
					eventq.Notify(wake)
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			case <-done:
				return
			}
		}
	}()
	return func() {
		close(done)
		w.Close()
	}
}

func readRange(path string, offset, n int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	read, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

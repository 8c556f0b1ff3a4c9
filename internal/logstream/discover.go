package logstream

import (
	"path/filepath"
	"strings"
)

// SanitizeCwd maps a working directory to the per-project directory name the
// Claude runtime uses for transcripts.
func SanitizeCwd(cwd string) string {
	return strings.NewReplacer("/", "-", ".", "-").Replace(cwd)
}

// TranscriptCandidates lists where the transcript of sessionID may live. The
// first root is the current projects directory; later roots only use the
// legacy session_ file name.
func TranscriptCandidates(roots []string, sessionID, cwd string) []string {
	if sessionID == "" || len(roots) == 0 {
		return nil
	}
	san := SanitizeCwd(cwd)
	out := []string{
		filepath.Join(roots[0], san, "session_"+sessionID+".jsonl"),
		filepath.Join(roots[0], san, sessionID+".jsonl"),
	}
	for _, r := range roots[1:] {
		out = append(out, filepath.Join(r, san, "session_"+sessionID+".jsonl"))
	}
	return out
}

// FirstExisting returns the first path that exists.
func FirstExisting(paths []string) (string, bool) {
	for _, p := range paths {
		if exists(p) {
			return p, true
		}
	}
	return "", false
}

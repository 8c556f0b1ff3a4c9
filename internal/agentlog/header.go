// Package agentlog reads and mutates per-agent Markdown log files.
//
// A log starts with a header block delimited by "---" lines holding
// "Key: value" pairs, followed by the streamed body:
//
//	---
//	Task: Refactor the parser
//	Started: 2026-03-01T12:00:00.000Z
//	Status: in-progress
//	Depth: 1
//	ParentAgent: root
//	Prompt: .agent-prompts/agent_3f9a01bc.txt
//	PID: 4242
//	---
//
//	...streamed content...
//
// The header is written once; afterwards only Status, Ended and PID are
// patched in place and the body only grows.
package agentlog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agusx1211/brood/internal/registry"
)

const (
	delimiter = "---"

	KeyTask        = "Task"
	KeyStarted     = "Started"
	KeyStatus      = "Status"
	KeyDepth       = "Depth"
	KeyParentAgent = "ParentAgent"
	KeyPrompt      = "Prompt"
	KeyPID         = "PID"
	KeyEnded       = "Ended"

	// RootParent is the ParentAgent value for agents spawned by the root session.
	RootParent = "root"

	// TimeFormat matches JavaScript's toISOString so logs from every runner
	// sort and parse the same way.
	TimeFormat = "2006-01-02T15:04:05.000Z07:00"
)

// Header is the parsed header block of an agent log.
type Header struct {
	Task        string
	Started     time.Time
	Status      registry.Status
	Depth       int
	ParentAgent string
	Prompt      string
	PID         int
	Ended       time.Time
}

// Render formats h as a header block followed by a blank line.
func (h Header) Render() string {
	var b strings.Builder
	b.WriteString(delimiter + "\n")
	writeField(&b, KeyTask, h.Task)
	writeField(&b, KeyStarted, formatTime(h.Started))
	writeField(&b, KeyStatus, string(h.Status))
	if !h.Ended.IsZero() {
		writeField(&b, KeyEnded, formatTime(h.Ended))
	}
	writeField(&b, KeyDepth, strconv.Itoa(h.Depth))
	parent := h.ParentAgent
	if parent == "" {
		parent = RootParent
	}
	writeField(&b, KeyParentAgent, parent)
	if h.Prompt != "" {
		writeField(&b, KeyPrompt, h.Prompt)
	}
	if h.PID > 0 {
		writeField(&b, KeyPID, strconv.Itoa(h.PID))
	}
	b.WriteString(delimiter + "\n\n")
	return b.String()
}

func writeField(b *strings.Builder, key, value string) {
	value = strings.Join(strings.Fields(value), " ")
	fmt.Fprintf(b, "%s: %s\n", key, value)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// Split separates content into header lines and body. ok is false when the
// content does not start with a complete header block.
func Split(content string) (lines []string, body string, ok bool) {
	rest, found := strings.CutPrefix(content, delimiter+"\n")
	if !found {
		return nil, content, false
	}
	for {
		line, after, more := strings.Cut(rest, "\n")
		if strings.TrimRight(line, "\r") == delimiter {
			return lines, after, true
		}
		if !more {
			return nil, content, false
		}
		lines = append(lines, line)
		rest = after
	}
}

// Parse reads the header block of content. Unknown keys are ignored and
// malformed values leave the zero value in place.
func Parse(content string) (Header, string, error) {
	lines, body, ok := Split(content)
	if !ok {
		return Header{}, content, fmt.Errorf("agentlog: missing header block")
	}
	var h Header
	for _, line := range lines {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case KeyTask:
			h.Task = value
		case KeyStarted:
			h.Started, _ = time.Parse(time.RFC3339Nano, value)
		case KeyStatus:
			h.Status, _ = registry.ParseStatus(value)
		case KeyDepth:
			h.Depth, _ = strconv.Atoi(value)
		case KeyParentAgent:
			h.ParentAgent = value
		case KeyPrompt:
			h.Prompt = value
		case KeyPID:
			h.PID, _ = strconv.Atoi(value)
		case KeyEnded:
			h.Ended, _ = time.Parse(time.RFC3339Nano, value)
		}
	}
	return h, body, nil
}

// patchHeader rewrites content's header with fn applied to its lines.
func patchHeader(content string, fn func([]string) []string) (string, bool) {
	lines, body, ok := Split(content)
	if !ok {
		return content, false
	}
	lines = fn(lines)
	var b strings.Builder
	b.WriteString(delimiter + "\n")
	for _, l := range lines {
		b.WriteString(l + "\n")
	}
	b.WriteString(delimiter + "\n")
	b.WriteString(body)
	return b.String(), true
}

func findKey(lines []string, key string) int {
	for i, l := range lines {
		if k, _, ok := strings.Cut(l, ":"); ok && strings.TrimSpace(k) == key {
			return i
		}
	}
	return -1
}

func insertAfter(lines []string, i int, line string) []string {
	lines = append(lines, "")
	copy(lines[i+2:], lines[i+1:])
	lines[i+1] = line
	return lines
}

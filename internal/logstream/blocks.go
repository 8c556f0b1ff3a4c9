// Package logstream turns agent message streams and session transcripts into
// appended agent log text without emitting anything twice.
package logstream

import "strings"

// block is one text block of one message. raw is the text as the producer
// sent it; comparisons use raw, never what was written.
type block struct {
	raw string
	// open is set while the last written text did not end a line.
	open bool
}

// BlockState remembers, per dedup key, the text each block has produced.
// Keys come from stream.BlockKey: a message identity, a colon and a block
// index or id.
type BlockState struct {
	blocks map[string]*block
	marker string
}

// NewBlockState returns an empty state. A non-empty marker (the progress
// prefix) is kept at the start of a line when a delta begins with it.
func NewBlockState(marker string) *BlockState {
	return &BlockState{blocks: make(map[string]*block), marker: marker}
}

func (s *BlockState) text(key string) string {
	if b, ok := s.blocks[key]; ok {
		return b.raw
	}
	return ""
}

// Start registers a new text block and returns the separator to write before
// it: a blank line when other blocks were already seen.
func (s *BlockState) Start(key string) string {
	if _, ok := s.blocks[key]; ok {
		return ""
	}
	sep := ""
	if len(s.blocks) > 0 {
		sep = "\n\n"
	}
	s.blocks[key] = &block{}
	return sep
}

// Delta records an incremental observation and returns the text to append.
// Producers that resend the accumulated text instead of a fragment are
// recognized by the previous value being a strict prefix of the new one.
func (s *BlockState) Delta(key, text string) string {
	if text == "" {
		return ""
	}
	b, ok := s.blocks[key]
	if !ok {
		b = &block{}
		s.blocks[key] = b
	}
	add := text
	if b.raw != "" && len(text) > len(b.raw) && strings.HasPrefix(text, b.raw) {
		add = text[len(b.raw):]
	}
	b.raw += add
	return s.write(b, add)
}

// Full records a complete snapshot of a block and returns only what the log
// is missing. Nothing is written when the block, or another block of the
// same message, already produced exactly this text. A snapshot extending
// what was produced writes the suffix; a diverging one writes the whole text
// on a new line. A block first seen here gets the Start separator.
func (s *BlockState) Full(key, text string) string {
	b, ok := s.blocks[key]
	if ok && b.raw == text {
		return ""
	}
	msg := messageOf(key)
	for k, other := range s.blocks {
		if k != key && other.raw == text && messageOf(k) == msg {
			if !ok {
				s.blocks[key] = &block{raw: text, open: other.open}
			}
			return ""
		}
	}

	if !ok {
		if text == "" {
			return ""
		}
		sep := s.Start(key)
		b = s.blocks[key]
		b.raw = text
		return sep + s.write(b, text)
	}
	if strings.HasPrefix(text, b.raw) {
		add := text[len(b.raw):]
		b.raw = text
		return s.write(b, add)
	}
	b.raw = text
	b.open = false
	return "\n" + s.write(b, text)
}

// write returns add as it goes to the log, moving a leading progress marker
// onto its own line, and tracks whether a line is left open.
func (s *BlockState) write(b *block, add string) string {
	if add == "" {
		return ""
	}
	out := add
	if s.marker != "" && b.open && strings.HasPrefix(add, s.marker) {
		out = "\n" + add
	}
	b.open = !strings.HasSuffix(out, "\n")
	return out
}

// messageOf strips the block part of a key. Message ids may themselves
// contain colons, so only the last segment is removed.
func messageOf(key string) string {
	if i := strings.LastIndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

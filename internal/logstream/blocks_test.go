package logstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeltaThenExtendingFullEmitsSuffixOnce(t *testing.T) {
	s := NewBlockState("[UPDATE]")
	var out string
	out += s.Start("m:0")
	out += s.Delta("m:0", "Hel")
	out += s.Full("m:0", "Hello")
	out += s.Full("m:0", "Hello")

	assert.Equal(t, "Hello", out)
	assert.Equal(t, "Hello", s.text("m:0"))
}

func TestCumulativeDeltasAreNotRepeated(t *testing.T) {
	s := NewBlockState("")
	out := s.Delta("m:0", "Hel") + s.Delta("m:0", "Hello")
	assert.Equal(t, "Hello", out)
}

func TestFragmentDeltasAppend(t *testing.T) {
	s := NewBlockState("")
	out := s.Delta("m:0", "Hel") + s.Delta("m:0", "lo") + s.Delta("m:0", " there")
	assert.Equal(t, "Hello there", out)
}

func TestDivergentFullStartsNewLine(t *testing.T) {
	s := NewBlockState("")
	first := s.Delta("m:0", "Draft one")
	second := s.Full("m:0", "Second attempt")
	third := s.Full("m:0", "Second attempt")

	assert.Equal(t, "Draft one", first)
	assert.Equal(t, "\nSecond attempt", second)
	assert.Empty(t, third)
}

func TestFullAlreadyWrittenUnderAnotherBlockOfSameMessage(t *testing.T) {
	s := NewBlockState("")
	s.Delta("ns:msg_1:1", "same text")
	assert.Empty(t, s.Full("ns:msg_1:0", "same text"))
	assert.Equal(t, "same text", s.text("ns:msg_1:0"))
}

func TestFullSnapshotMatchesDecoratedDeltas(t *testing.T) {
	s := NewBlockState("[UPDATE]")
	var out string
	out += s.Start("ns:msg_1:0")
	out += s.Delta("ns:msg_1:0", "Working on it.")
	out += s.Delta("ns:msg_1:0", "[UPDATE] tests pass")
	out += s.Full("ns:msg_1:0", "Working on it.[UPDATE] tests pass")

	assert.Equal(t, "Working on it.\n[UPDATE] tests pass", out)
	assert.Equal(t, "Working on it.[UPDATE] tests pass", s.text("ns:msg_1:0"))
}

func TestSnapshotsOfDistinctMessagesWithSameText(t *testing.T) {
	s := NewBlockState("")
	out := s.Full("a:m1:0", "Checking.") +
		s.Full("a:m2:0", "Something else.") +
		s.Full("a:m3:0", "Checking.") +
		s.Full("a:m3:0", "Checking.")

	assert.Equal(t, "Checking.\n\nSomething else.\n\nChecking.", out)
}

func TestStartSeparatesBlocks(t *testing.T) {
	s := NewBlockState("")
	assert.Empty(t, s.Start("m:0"))
	assert.Empty(t, s.Start("m:0"))
	s.Delta("m:0", "one")
	assert.Equal(t, "\n\n", s.Start("m:1"))
	assert.Empty(t, s.Full("m:1", ""))
}

func TestProgressMarkerStartsOnNewLine(t *testing.T) {
	s := NewBlockState("[UPDATE]")
	assert.Equal(t, "[UPDATE] first", s.Delta("m:0", "[UPDATE] first"))
	assert.Equal(t, "\n[UPDATE] second", s.Delta("m:0", "[UPDATE] second"))
	assert.Equal(t, "\n", s.Delta("m:0", "\n"))
	assert.Equal(t, "[UPDATE] third", s.Delta("m:0", "[UPDATE] third"))
}

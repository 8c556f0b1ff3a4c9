// Package hexid generates short random hex identifiers.
package hexid

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// AgentPrefix starts every agent id. Log files are named after the id, so the
// monitor recognises agent logs by this prefix.
const AgentPrefix = "agent_"

// New returns an 8-character lowercase hex string (4 random bytes).
func New() string {
	return Sized(4)
}

// Sized returns a lowercase hex string encoding n random bytes.
func Sized(n int) string {
	if n <= 0 {
		n = 4
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("hexid: crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// AgentID returns a fresh agent id such as "agent_3f9a01bc".
func AgentID() string {
	return AgentPrefix + New()
}

// IsAgentID reports whether s looks like an id produced by AgentID.
func IsAgentID(s string) bool {
	rest, ok := strings.CutPrefix(s, AgentPrefix)
	if !ok || rest == "" {
		return false
	}
	for _, c := range rest {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

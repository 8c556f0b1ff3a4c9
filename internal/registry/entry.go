package registry

import (
	"sort"
	"strings"
	"time"
)

// Status is the lifecycle state of a spawned agent.
type Status string

const (
	StatusInProgress  Status = "in-progress"
	StatusDone        Status = "done"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
)

// ParseStatus maps a header or registry value onto a Status.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusInProgress, StatusDone, StatusFailed, StatusInterrupted:
		return st, true
	default:
		return "", false
	}
}

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusInterrupted:
		return true
	default:
		return false
	}
}

func (s Status) String() string { return string(s) }

// Entry is one spawned agent as recorded in the registry file.
//
// AllowedAgents and AllowedMCPServers are nullable: nil means the agent
// definition did not restrict that dimension, while an empty slice means
// nothing is allowed. The distinction survives JSON round trips.
type Entry struct {
	AgentID            string   `json:"agentId"`
	PID                int      `json:"pid,omitempty"`
	RunnerPID          int      `json:"runnerPid,omitempty"`
	Depth              int      `json:"depth"`
	ParentID           string   `json:"parentId,omitempty"`
	AgentType          string   `json:"agentType"`
	AllowedAgents      []string `json:"allowedAgents"`
	AllowedMCPServers  []string `json:"allowedMcpServers"`
	MissingMCPServers  []string `json:"missingMcpServers"`
	SpawnedBySessionID string   `json:"spawnedBySessionId,omitempty"`
	Status             Status   `json:"status"`

	// Filled in lazily once the child's own session identity is known.
	SessionID       string `json:"sessionId,omitempty"`
	TranscriptPath  string `json:"transcriptPath,omitempty"`
	ParentSessionID string `json:"parentSessionId,omitempty"`
	ParentPID       int    `json:"parentPid,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// SessionInfo is the identity a child learns about itself after start-up.
type SessionInfo struct {
	SessionID       string
	TranscriptPath  string
	ParentSessionID string
	ParentPID       int
}

// NewEntry returns an in-progress entry for a freshly approved spawn.
func NewEntry(agentID, agentType, parentID string, depth int) Entry {
	return Entry{
		AgentID:           agentID,
		Depth:             depth,
		ParentID:          parentID,
		AgentType:         agentType,
		MissingMCPServers: []string{},
		Status:            StatusInProgress,
		CreatedAt:         time.Now().UTC(),
	}
}

// PIDs returns the non-zero process ids tracked for the entry, the LLM
// session first.
func (e Entry) PIDs() []int {
	var out []int
	if e.PID > 0 {
		out = append(out, e.PID)
	}
	if e.RunnerPID > 0 && e.RunnerPID != e.PID {
		out = append(out, e.RunnerPID)
	}
	return out
}

// Registry maps agent ids to entries.
type Registry map[string]Entry

// IDs returns the agent ids in lexical order.
func (r Registry) IDs() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Descendants returns every entry transitively spawned by id, breadth-first.
// An empty id returns every entry spawned by the root session and below.
func (r Registry) Descendants(id string) []Entry {
	children := make(map[string][]string, len(r))
	for _, cid := range r.IDs() {
		e := r[cid]
		children[e.ParentID] = append(children[e.ParentID], cid)
	}

	var out []Entry
	seen := map[string]bool{id: true}
	queue := append([]string(nil), children[id]...)
	for len(queue) > 0 {
		cid := queue[0]
		queue = queue[1:]
		if seen[cid] {
			continue
		}
		seen[cid] = true
		out = append(out, r[cid])
		queue = append(queue, children[cid]...)
	}
	return out
}

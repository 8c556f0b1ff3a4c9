// Package permission decides whether a requester may spawn an agent type.
package permission

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/agusx1211/brood/internal/registry"
)

// Decision is the outcome of a spawn permission check. A denial is a normal
// result carrying a reason for the requesting agent, not an error.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow is the positive decision.
var Allow = Decision{Allowed: true}

func deny(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Request describes one spawn attempt.
type Request struct {
	// ParentID is the requesting agent, empty for the root session.
	ParentID string
	// Depth is the requester's own recursion depth (0 for the root session).
	Depth int
	// Type is the agent type being requested.
	Type string
}

// Checker evaluates requests against the registry.
type Checker struct {
	// MaxDepth is the recursion ceiling; requesters at or beyond it are denied.
	MaxDepth int
	// RootAllowed is the allow-list of the reserved root definition; nil
	// leaves the root session unrestricted.
	RootAllowed []string
}

// Check applies the depth ceiling and then the type rules:
//  1. the root session is limited by RootAllowed;
//  2. an agent may spawn its own type only if it lists that type;
//  3. an agent with an allow-list may only spawn listed types.
//
// An unknown ParentID (entry already cleared) is treated as unrestricted.
func (c Checker) Check(req Request, reg registry.Registry) Decision {
	if req.Depth >= c.MaxDepth {
		return deny("Maximum agent recursion depth (%d) reached. Current depth: %d. Cannot spawn more nested agents.",
			c.MaxDepth, req.Depth)
	}

	if req.ParentID == "" {
		if c.RootAllowed != nil && !Contains(c.RootAllowed, req.Type) {
			return deny("Root session can only spawn: %s. '%s' is not permitted.", describe(c.RootAllowed), req.Type)
		}
		return Allow
	}

	parent, ok := reg[req.ParentID]
	if !ok {
		return Allow
	}
	if parent.AgentType == req.Type && !Contains(parent.AllowedAgents, req.Type) {
		return deny("Agent '%s' cannot spawn another '%s' instance. Same-type delegation requires listing the agent in allowedAgents (currently: %s).",
			parent.AgentType, req.Type, describe(parent.AllowedAgents))
	}
	if parent.AllowedAgents != nil && !Contains(parent.AllowedAgents, req.Type) {
		return deny("Agent '%s' can only spawn: %s. '%s' is not permitted.",
			parent.AgentType, describe(parent.AllowedAgents), req.Type)
	}
	return Allow
}

// Contains reports whether agentType is permitted by list. Entries are
// exact names unless they contain glob metacharacters, in which case they
// are matched as doublestar patterns ("research/*", "review-*").
func Contains(list []string, agentType string) bool {
	for _, entry := range list {
		if entry == agentType {
			return true
		}
		if !strings.ContainsAny(entry, "*?[{") {
			continue
		}
		if ok, err := doublestar.Match(entry, agentType); err == nil && ok {
			return true
		}
	}
	return false
}

func describe(list []string) string {
	if len(list) == 0 {
		return "none"
	}
	return strings.Join(list, ", ")
}

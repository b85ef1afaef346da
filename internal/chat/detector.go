package chat

import (
	"strings"

	"github.com/user/wschat/internal/types"
)

// AgentDetector decides whether a message was authored by the agent.
//
// A message counts as agent-authored when its Type is "agent", when its
// sender id equals SenderID, or (unless StrictTags is set) when its sender
// name contains Marker, case-insensitively. The name heuristic is fragile;
// stores that tag every message should run with StrictTags.
type AgentDetector struct {
	Marker     string
	SenderID   types.UserID
	StrictTags bool
}

// DefaultAgentDetector matches the relay's default agent identity.
func DefaultAgentDetector() AgentDetector {
	return AgentDetector{Marker: "agent", SenderID: "agent"}
}

func (d AgentDetector) IsAgent(m *types.Message) bool {
	if m == nil {
		return false
	}
	if m.Type == types.MessageTypeAgent {
		return true
	}
	if d.SenderID != "" && m.SenderID == d.SenderID {
		return true
	}
	if d.StrictTags || d.Marker == "" {
		return false
	}
	return strings.Contains(strings.ToLower(m.SenderName), strings.ToLower(d.Marker))
}

// Count returns the number of agent-authored messages in a snapshot.
func (d AgentDetector) Count(msgs []*types.Message) int {
	n := 0
	for _, m := range msgs {
		if d.IsAgent(m) {
			n++
		}
	}
	return n
}

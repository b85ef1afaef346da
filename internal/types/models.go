// internal/types/models.go
package types

import (
	"time"
)

// Message types. The store tags every document with one of these.
const (
	MessageTypeUser  = "user"
	MessageTypeAgent = "agent"
)

// Participant roles.
const (
	RoleHost   = "host"
	RoleMember = "member"
)

type Message struct {
	ID         MessageID `json:"id"`
	SenderID   UserID    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
}

// Identity is a signed-in (or demo) user as seen by the chat view.
type Identity struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
}

type Workspace struct {
	ID               WorkspaceID `json:"id"`
	Name             string      `json:"name"`
	HostID           UserID      `json:"hostId"`
	HostName         string      `json:"hostName"`
	ParticipantCount int         `json:"participantCount"`
	CreatedAt        time.Time   `json:"createdAt"`
}

type Participant struct {
	UserID      UserID      `json:"userId"`
	DisplayName string      `json:"displayName"`
	Role        string      `json:"role"`
	JoinedAt    time.Time   `json:"joinedAt"`
	WorkspaceID WorkspaceID `json:"workspaceId"`
}

type UserProfile struct {
	ID          UserID `json:"auth_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// Direction orders a live query.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Query selects a workspace's message collection for a live subscription.
type Query struct {
	Workspace WorkspaceID
	OrderBy   string
	Direction Direction
}

// MessagesByTimestamp is the only query the chat view issues.
func MessagesByTimestamp(id WorkspaceID) Query {
	return Query{Workspace: id, OrderBy: "timestamp", Direction: Asc}
}

// RelayRequest is forwarded to the agent relay. The agent's answer arrives
// later as a new message in the same workspace.
type RelayRequest struct {
	Username    string      `json:"username"`
	WorkspaceID WorkspaceID `json:"workspace_id"`
	Message     string      `json:"message"`
}

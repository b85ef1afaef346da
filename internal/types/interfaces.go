// internal/types/interfaces.go
package types

import (
	"context"
)

// LiveQuerySource pushes the full ordered contents of a message collection on
// every change until the returned cancel func is called. Snapshots are
// delivered from a single goroutine. cancel is idempotent and returns only
// once no further callbacks will run.
type LiveQuerySource interface {
	Subscribe(ctx context.Context, q Query, onSnapshot func([]*Message), onError func(error)) (cancel func(), err error)
}

// AppendSink writes one message. The store assigns ID and Timestamp.
type AppendSink interface {
	Append(ctx context.Context, workspace WorkspaceID, msg *Message) (MessageID, error)
}

// MessageStore is a backend that both serves live queries and accepts appends.
type MessageStore interface {
	LiveQuerySource
	AppendSink
}

// Relay forwards a user's message to the external agent.
type Relay interface {
	Relay(ctx context.Context, req RelayRequest) error
}

// SessionNotifier tells the operational backend a chat session ended.
type SessionNotifier interface {
	EndSession(ctx context.Context, workspace WorkspaceID) error
}

// Directory manages workspaces, participants, and user profiles.
type Directory interface {
	CreateWorkspace(ctx context.Context, host UserID, name string) (WorkspaceID, error)
	JoinWorkspace(ctx context.Context, user UserID, workspace WorkspaceID) (bool, error)
	ListWorkspaces(ctx context.Context, user UserID) ([]*Workspace, error)
	GetWorkspace(ctx context.Context, id WorkspaceID) (*Workspace, error)
	GetParticipant(ctx context.Context, workspace WorkspaceID, user UserID) (*Participant, error)
	GetProfile(ctx context.Context, user UserID) (*UserProfile, error)
	CreateProfile(ctx context.Context, profile *UserProfile) error
}

// Backend is everything a storage implementation provides.
type Backend interface {
	MessageStore
	Directory
	Close() error
}

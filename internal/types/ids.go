// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

type WorkspaceID string
type MessageID string
type UserID string
type RelayID string

func NewWorkspaceID() WorkspaceID {
	return WorkspaceID(uuid.New().String())
}

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

func NewUserID() UserID {
	return UserID(uuid.New().String())
}

func NewRelayID() RelayID {
	return RelayID(uuid.New().String())
}

// CollectionPath joins path segments the way the document store addresses
// collections, e.g. CollectionPath("workspaces", "w1", "messages").
func CollectionPath(parts ...string) string {
	return strings.Join(parts, "/")
}

// MessagesPath returns the collection path holding a workspace's messages.
func MessagesPath(id WorkspaceID) string {
	return CollectionPath("workspaces", string(id), "messages")
}

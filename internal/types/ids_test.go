// internal/types/ids_test.go
package types

import (
	"testing"
)

func TestNewWorkspaceID(t *testing.T) {
	id := NewWorkspaceID()
	if id == "" {
		t.Error("expected non-empty WorkspaceID")
	}
	if len(string(id)) != 36 {
		t.Errorf("expected UUID format, got %s", id)
	}
}

func TestNewMessageIDUnique(t *testing.T) {
	a, b := NewMessageID(), NewMessageID()
	if a == b {
		t.Errorf("expected distinct ids, got %s twice", a)
	}
}

func TestMessagesPath(t *testing.T) {
	got := MessagesPath("w1")
	if got != "workspaces/w1/messages" {
		t.Errorf("expected workspaces/w1/messages, got %s", got)
	}
}

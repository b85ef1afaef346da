package agent

import (
	"strings"
	"testing"
	"time"

	"github.com/user/wschat/internal/chat"
	"github.com/user/wschat/internal/types"
)

// newBuilder skips when the tokenizer data cannot be loaded.
func newBuilder(t *testing.T, maxTokens, reserve int) *PromptBuilder {
	t.Helper()
	b, err := NewPromptBuilder("gpt-4", maxTokens, reserve, chat.DefaultAgentDetector())
	if err != nil {
		t.Skipf("tokenizer unavailable: %v", err)
	}
	b.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	return b
}

func TestPromptBuild_Basic(t *testing.T) {
	b := newBuilder(t, 128000, 4096)
	job := &Job{Workspace: "ws-1", Username: "Ada", Message: `\ask status?`, Command: chat.CommandAsk}
	history := []*types.Message{
		{SenderName: "Bo", Text: "morning", Type: types.MessageTypeUser},
		{SenderID: "agent", SenderName: "Helper", Text: "hello", Type: types.MessageTypeAgent},
		{SenderName: "Ada", Text: `\ask status?`, Type: types.MessageTypeUser},
	}

	msgs, err := b.Build("Helper", job, history)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected system + 2 history + request, got %d", len(msgs))
	}
	if msgs[0].Role != "system" || !strings.Contains(msgs[0].Content, "You are Helper") {
		t.Errorf("unexpected system prompt %q", msgs[0].Content)
	}
	if !strings.Contains(msgs[0].Content, "Command: ask") {
		t.Error("expected command in system prompt")
	}
	if msgs[1].Role != "user" || msgs[1].Content != "Bo: morning" {
		t.Errorf("unexpected first history message %+v", msgs[1])
	}
	if msgs[2].Role != "assistant" || msgs[2].Content != "hello" {
		t.Errorf("unexpected agent message %+v", msgs[2])
	}
	if msgs[3].Content != `Ada: \ask status?` {
		t.Errorf("expected request last, got %+v", msgs[3])
	}
}

func TestPromptBuild_BudgetKeepsNewest(t *testing.T) {
	b := newBuilder(t, 2000, 100)
	long := strings.Repeat("word ", 800)
	history := []*types.Message{
		{SenderName: "Bo", Text: long},
		{SenderName: "Bo", Text: long},
		{SenderName: "Cy", Text: "recent"},
	}
	job := &Job{Workspace: "ws-1", Username: "Ada", Message: `\run build`, Command: chat.CommandRun}

	msgs, err := b.Build("Helper", job, history)
	if err != nil {
		t.Fatal(err)
	}
	if msgs[len(msgs)-2].Content != "Cy: recent" {
		t.Errorf("expected newest history kept, got %+v", msgs[len(msgs)-2])
	}
	if len(msgs) >= 5 {
		t.Errorf("expected older messages dropped, got %d messages", len(msgs))
	}
}

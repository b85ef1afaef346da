package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/user/wschat/internal/types"
	"github.com/user/wschat/pkg/llm"
)

// Responder produces the agent's reply text for a job.
type Responder interface {
	Respond(ctx context.Context, job *Job, history []*types.Message) (string, error)
}

// EchoResponder answers without a model. It is used when no LLM is configured.
type EchoResponder struct{}

func (EchoResponder) Respond(_ context.Context, job *Job, _ []*types.Message) (string, error) {
	text := strings.TrimSpace(job.Message)
	label := "message"
	if job.Command.IsCommand() {
		label = `\` + job.Command.String()
		text = strings.TrimSpace(text[len(label):])
	}
	if text == "" {
		return fmt.Sprintf("Received %s from %s.", label, job.Username), nil
	}
	return fmt.Sprintf("Received %s from %s: %s", label, job.Username, text), nil
}

// LLMResponder asks an OpenAI-compatible model for the reply.
type LLMResponder struct {
	Provider  llm.Provider
	Prompt    *PromptBuilder
	AgentName string
}

func (r *LLMResponder) Respond(ctx context.Context, job *Job, history []*types.Message) (string, error) {
	messages, err := r.Prompt.Build(r.AgentName, job, history)
	if err != nil {
		return "", err
	}
	resp, err := r.Provider.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return "", fmt.Errorf("complete: empty reply")
	}
	return reply, nil
}

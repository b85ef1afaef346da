package agent

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/wschat/internal/chat"
	"github.com/user/wschat/internal/types"
	"github.com/user/wschat/pkg/llm"
)

// DefaultPrompt is the system prompt template. It uses Go text/template
// syntax with PromptData fields.
const DefaultPrompt = `You are {{.AgentName}}, an assistant taking part in a shared team workspace chat.

## Current Context

- Time: {{.Time}}
- Workspace: {{.Workspace}}
- Requested by: {{.Username}}
- Command: {{.Command}}

## Commands

Workspace members address you with a command prefix:

- ` + "`\\act`" + ` asks you to carry out an action and report what you did.
- ` + "`\\ask`" + ` asks you a question; answer it directly.
- ` + "`\\run`" + ` asks you to run a named task and report the result.

The recent conversation follows. Messages from members are prefixed with
their name. Reply to the latest request only.

## Response Style

- Be concise and direct.
- Use plain text; the chat view does not render markdown.
- When you cannot do what was asked, say so in one sentence.
`

// PromptData is the template input for DefaultPrompt.
type PromptData struct {
	AgentName string
	Time      string
	Workspace string
	Username  string
	Command   string
}

// PromptBuilder assembles token-budgeted prompts from workspace history.
type PromptBuilder struct {
	tokenizer *tiktoken.Tiktoken
	tmpl      *template.Template
	maxTokens int
	reserve   int
	detector  chat.AgentDetector
	now       func() time.Time
}

// NewPromptBuilder creates a builder with the specified token budget.
// model is used to select the tokenizer; maxTokens is the model's context
// window and reserve is kept free for the reply.
func NewPromptBuilder(model string, maxTokens, reserve int, detector chat.AgentDetector) (*PromptBuilder, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	tmpl, err := template.New("system").Parse(DefaultPrompt)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	return &PromptBuilder{
		tokenizer: enc,
		tmpl:      tmpl,
		maxTokens: maxTokens,
		reserve:   reserve,
		detector:  detector,
		now:       time.Now,
	}, nil
}

func (b *PromptBuilder) countTokens(text string) int {
	return len(b.tokenizer.Encode(text, nil, nil))
}

// Build returns the system prompt followed by as much recent history as fits
// the budget, oldest first. The job's own message is always last.
func (b *PromptBuilder) Build(agentName string, job *Job, history []*types.Message) ([]llm.Message, error) {
	var sys bytes.Buffer
	err := b.tmpl.Execute(&sys, PromptData{
		AgentName: agentName,
		Time:      b.now().Format(time.RFC3339),
		Workspace: string(job.Workspace),
		Username:  job.Username,
		Command:   job.Command.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("render system prompt: %w", err)
	}

	request := llm.Message{Role: "user", Content: job.Username + ": " + job.Message}
	remaining := b.maxTokens - b.reserve - b.countTokens(sys.String()) - b.countTokens(request.Content)

	// Walk back from the newest message, skipping the request itself if the
	// store already holds it.
	var picked []llm.Message
	skippedRequest := false
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if !skippedRequest && !b.detector.IsAgent(m) && m.Text == job.Message {
			skippedRequest = true
			continue
		}
		msg := b.toMessage(m)
		cost := b.countTokens(msg.Content)
		if cost > remaining {
			break
		}
		remaining -= cost
		picked = append(picked, msg)
	}

	messages := make([]llm.Message, 0, len(picked)+2)
	messages = append(messages, llm.Message{Role: "system", Content: sys.String()})
	for i := len(picked) - 1; i >= 0; i-- {
		messages = append(messages, picked[i])
	}
	messages = append(messages, request)
	return messages, nil
}

func (b *PromptBuilder) toMessage(m *types.Message) llm.Message {
	if b.detector.IsAgent(m) {
		return llm.Message{Role: "assistant", Content: m.Text}
	}
	return llm.Message{Role: "user", Content: m.SenderName + ": " + m.Text}
}

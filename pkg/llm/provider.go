package llm

import "context"

// Provider answers \ask and \run prompts for the dev agent relay. The
// responder hands it the transcript window it built and posts the reply text
// back into the workspace as the agent.
type Provider interface {
	// Complete returns the single reply for messages. Streaming is not used;
	// the agent posts one message per command.
	Complete(ctx context.Context, messages []Message) (*Response, error)
}

// Config is filled from the agent.llm section of the wschat config.
type Config struct {
	BaseURL     string  // agent.llm.base_url
	APIKey      string  // agent.llm.api_key
	Model       string  // agent.llm.model
	MaxTokens   int     // agent.llm.max_tokens
	Temperature float32 // agent.llm.temperature
}

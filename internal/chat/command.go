package chat

import "strings"

// Command is the advisory classification of an outgoing message. It never
// changes what is persisted or relayed.
type Command int

const (
	NotCommand Command = iota
	CommandAct
	CommandAsk
	CommandRun
)

func (c Command) String() string {
	switch c {
	case CommandAct:
		return "act"
	case CommandAsk:
		return "ask"
	case CommandRun:
		return "run"
	default:
		return "none"
	}
}

// IsCommand reports whether c warrants a waiting indicator.
func (c Command) IsCommand() bool {
	return c != NotCommand
}

// Checked in this order.
var commandPrefixes = []struct {
	prefix string
	cmd    Command
}{
	{`\act`, CommandAct},
	{`\ask`, CommandAsk},
	{`\run`, CommandRun},
}

// Classify trims and lower-cases text and matches it against the command
// prefixes. Empty text is never a command.
func Classify(text string) Command {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return NotCommand
	}
	for _, p := range commandPrefixes {
		if strings.HasPrefix(t, p.prefix) {
			return p.cmd
		}
	}
	return NotCommand
}

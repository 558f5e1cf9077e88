package orchestrator

import (
	"fmt"
	"strings"

	"github.com/stentorlabs/stentor/pkg/logger"
)

// command is one slash command. Commands run synchronously inside the
// orchestrator and never touch the decision engine, the cascade, or
// any registry dispatch.
type command struct {
	name        string
	description string
	run         func(o *Orchestrator, sessionID string, args []string) string
}

var commands []command

func init() {
	commands = []command{
		{
			name:        "/clear",
			description: "wipe this session's conversation history",
			run: func(o *Orchestrator, sessionID string, _ []string) string {
				n := o.sessions.Clear(sessionID)
				return fmt.Sprintf("Conversation history cleared (%d turns dropped).", n)
			},
		},
		{
			name:        "/help",
			description: "list available commands",
			run: func(_ *Orchestrator, _ string, _ []string) string {
				var b strings.Builder
				b.WriteString("Available commands:")
				for _, c := range commands {
					b.WriteString(fmt.Sprintf("\n  %s  %s", c.name, c.description))
				}
				return b.String()
			},
		},
	}
}

// runCommand resolves and executes a slash command. Unknown commands
// produce an error response under the command strategy so callers can
// tell a typo from a failed dispatch.
func (o *Orchestrator) runCommand(message, sessionID, traceID string) *ChatResponse {
	fields := strings.Fields(message)
	name := strings.ToLower(fields[0])

	for _, c := range commands {
		if c.name != name {
			continue
		}
		text := c.run(o, sessionID, fields[1:])
		o.events.Info(logger.CategoryRequest, traceID, "command handled: "+name, nil)
		return &ChatResponse{
			OK:         true,
			Text:       text,
			Strategy:   StrategyCommand,
			Confidence: 1.0,
			Reasoning:  "command",
			SessionID:  sessionID,
			TraceID:    traceID,
		}
	}

	o.events.Info(logger.CategoryRequest, traceID, "unknown command: "+name, nil)
	return &ChatResponse{
		OK:        false,
		Text:      fmt.Sprintf("Unknown command %q. Try /help.", name),
		Strategy:  StrategyCommand,
		Reasoning: "command",
		SessionID: sessionID,
		TraceID:   traceID,
		Error:     &ErrorInfo{Kind: "validation", Message: fmt.Sprintf("unknown command %q", name)},
	}
}

// Package cli drives an interactive chat session against the gateway
// core, with no HTTP server in between. The chat subcommand is its
// only production caller; it lives in its own package so the session
// loop is testable against a scripted core.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/stentorlabs/stentor/pkg/orchestrator"
)

// ChatService answers one conversation turn. The runtime core
// implements it.
type ChatService interface {
	Chat(ctx context.Context, req orchestrator.ChatRequest) (*orchestrator.ChatResponse, error)
}

// Options tune an interactive session.
type Options struct {
	// Input defaults to os.Stdin.
	Input io.Reader

	// Output defaults to os.Stdout.
	Output io.Writer

	// SessionID resumes an existing session. When empty the REPL
	// adopts the id the core issues on the first turn.
	SessionID string

	// ShowMeta prints strategy, provider, confidence, and latency
	// under each answer.
	ShowMeta bool

	// Color styles prompts, errors, and meta lines with ANSI escapes.
	Color bool
}

// REPL is one interactive chat session over a gateway core.
type REPL struct {
	service ChatService
	opts    Options
	session string
}

// New builds a session. Zero Options read stdin and write stdout.
func New(service ChatService, opts Options) *REPL {
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &REPL{service: service, opts: opts, session: opts.SessionID}
}

// SessionID reports the session the REPL is bound to. Empty until the
// first answered turn of a fresh session.
func (r *REPL) SessionID() string { return r.session }

// Run reads turns until EOF or /quit. Every other line, slash
// commands included, travels to the core unchanged, so /help and
// /clear behave exactly as they do over HTTP. A failed turn is
// printed and the loop continues.
func (r *REPL) Run(ctx context.Context) error {
	out := r.opts.Output
	r.printWelcome()

	scanner := bufio.NewScanner(r.opts.Input)
	scanner.Buffer(make([]byte, 0, 4096), 256*1024)

	for {
		fmt.Fprint(out, r.paint("You: ", colorDim))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			fmt.Fprintln(out, "Bye.")
			return nil
		}

		resp, err := r.service.Chat(ctx, orchestrator.ChatRequest{
			Message:   line,
			SessionID: r.session,
		})
		if err != nil {
			fmt.Fprintln(out, r.paint("error: "+err.Error(), colorRed))
			continue
		}
		if resp.SessionID != "" {
			r.session = resp.SessionID
		}
		r.printResponse(resp)
	}
}

func (r *REPL) printWelcome() {
	out := r.opts.Output
	fmt.Fprintln(out, "Interactive chat. /help lists gateway commands, /quit leaves.")
	if r.session != "" {
		fmt.Fprintf(out, "Resuming session %s\n", r.session)
	}
	fmt.Fprintln(out)
}

// printResponse writes the answer text, the structured error detail
// when the turn failed, and the routing summary when enabled.
func (r *REPL) printResponse(resp *orchestrator.ChatResponse) {
	out := r.opts.Output

	if resp.Text != "" {
		fmt.Fprintln(out, resp.Text)
	}
	if resp.Error != nil {
		fmt.Fprintln(out, r.paint(FormatErrorInfo(resp.Error), colorRed))
	}
	if r.opts.ShowMeta {
		fmt.Fprintln(out, r.paint(FormatMeta(resp), colorDim))
	}
	fmt.Fprintln(out)
}

func (r *REPL) paint(s, color string) string {
	if !r.opts.Color {
		return s
	}
	return color + s + colorReset
}

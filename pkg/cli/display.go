package cli

import (
	"fmt"
	"strings"

	"github.com/stentorlabs/stentor/pkg/orchestrator"
)

// ANSI escapes used by the session printer.
const (
	colorReset = "\033[0m"
	colorDim   = "\033[90m"
	colorRed   = "\033[31m"
)

// FormatMeta renders the one-line routing summary printed under an
// answer: the strategy, whichever component served it, confidence,
// and latency.
func FormatMeta(resp *orchestrator.ChatResponse) string {
	parts := []string{"strategy=" + resp.Strategy}
	if resp.Provider != "" {
		parts = append(parts, "provider="+resp.Provider)
	}
	if resp.AgentUsed != "" {
		parts = append(parts, "agent="+resp.AgentUsed)
	}
	if resp.ToolUsed != "" {
		parts = append(parts, "tool="+resp.ToolUsed)
	}
	if len(resp.RAGHits) > 0 {
		parts = append(parts, fmt.Sprintf("hits=%d", len(resp.RAGHits)))
	}
	parts = append(parts,
		fmt.Sprintf("confidence=%.2f", resp.Confidence),
		fmt.Sprintf("%dms", resp.DurationMS),
	)
	return "[" + strings.Join(parts, " ") + "]"
}

// FormatErrorInfo renders the structured detail of a failed turn. The
// response text stays user-safe; this line is where the operator sees
// the real kind and message.
func FormatErrorInfo(e *orchestrator.ErrorInfo) string {
	return fmt.Sprintf("error (%s): %s", e.Kind, e.Message)
}

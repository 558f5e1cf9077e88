// Package sequence executes configured tool sequences: ordered steps
// with templated parameters, per-step success and error policies,
// optional retries, parallel groups, and a sequence-level circuit
// breaker independent of the provider breakers.
package sequence

import (
	"fmt"
	"strings"
)

// Step kinds.
const (
	KindTool = "tool"
	KindMCP  = "mcp"
)

// StepResult is one step's recorded outcome. Failed steps carry the
// error text. Skipped marks a step whose on_success policy withheld
// its result from the step context: the step ran, but downstream
// ${stepN.*} references to it fail and its text never becomes the
// run's answer.
type StepResult struct {
	Order      int    `json:"order"`
	Kind       string `json:"kind"`
	Target     string `json:"target"`
	Action     string `json:"action,omitempty"`
	Output     any    `json:"output,omitempty"`
	Text       string `json:"text,omitempty"`
	Skipped    bool   `json:"skipped,omitempty"`
	Failed     bool   `json:"failed,omitempty"`
	Error      string `json:"error,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
	Fallback   string `json:"fallback,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Outcome is a complete run: every step record in order, plus the
// stopped_at marker when a stop policy ended the run early. StoppedAt
// is the stopping step's order; zero means the sequence ran through.
type Outcome struct {
	Sequence   string       `json:"sequence"`
	Steps      []StepResult `json:"steps"`
	StoppedAt  int          `json:"stopped_at,omitempty"`
	DurationMS int64        `json:"duration_ms"`
}

// Summary renders a one-line account of the run.
func (o *Outcome) Summary() string {
	executed, failed, skipped := 0, 0, 0
	for _, step := range o.Steps {
		switch {
		case step.Skipped:
			skipped++
		case step.Failed:
			failed++
		default:
			executed++
		}
	}

	if failed == 0 && skipped == 0 && o.StoppedAt == 0 {
		return fmt.Sprintf("All %d steps succeeded.", executed)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d steps succeeded", executed, len(o.Steps))
	var extra []string
	if failed > 0 {
		extra = append(extra, fmt.Sprintf("%d failed", failed))
	}
	if skipped > 0 {
		extra = append(extra, fmt.Sprintf("%d skipped", skipped))
	}
	if len(extra) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(extra, ", "))
	}
	if o.StoppedAt > 0 {
		fmt.Fprintf(&b, "; stopped at step %d", o.StoppedAt)
	}
	b.WriteString(".")
	return b.String()
}

// LastText returns the text of the last step that produced one.
func (o *Outcome) LastText() string {
	for i := len(o.Steps) - 1; i >= 0; i-- {
		if !o.Steps[i].Skipped && !o.Steps[i].Failed && o.Steps[i].Text != "" {
			return o.Steps[i].Text
		}
	}
	return ""
}

// StepError reports the failure that ended a run. The partial Outcome
// travels alongside it, not inside it.
type StepError struct {
	Sequence string
	Order    int
	Target   string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("sequence %s: step %d (%s): %v", e.Sequence, e.Order, e.Target, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// CircuitOpenError reports a run rejected by the sequence breaker.
type CircuitOpenError struct {
	Sequence string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("sequence %s: circuit open", e.Sequence)
}

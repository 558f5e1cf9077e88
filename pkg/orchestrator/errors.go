package orchestrator

import (
	"context"
	"errors"

	"github.com/stentorlabs/stentor/pkg/agents"
	"github.com/stentorlabs/stentor/pkg/cascade"
	"github.com/stentorlabs/stentor/pkg/knowledge"
	"github.com/stentorlabs/stentor/pkg/llms"
	"github.com/stentorlabs/stentor/pkg/sequence"
	"github.com/stentorlabs/stentor/pkg/session"
	"github.com/stentorlabs/stentor/pkg/template"
	"github.com/stentorlabs/stentor/pkg/tools"
)

// retrievalError marks a retrieval failure that surfaced because
// degrading to a plain completion was disallowed.
type retrievalError struct {
	err error
}

func (e *retrievalError) Error() string { return "retrieval failed: " + e.err.Error() }
func (e *retrievalError) Unwrap() error { return e.err }

// errorKind maps an error to its taxonomy kind for the response
// envelope. Inner kinds win over their wrappers so a permission
// failure inside an agent-run sequence still reads permission.
func errorKind(err error) string {
	var (
		permission *tools.PermissionDeniedError
		validation *tools.ValidationError
		constraint *tools.ConstraintError
		execution  *tools.ExecutionError
		evaluation *template.EvalError
		exhausted  *cascade.AllProvidersExhausted
		seqOpen    *sequence.CircuitOpenError
		step       *sequence.StepError
		invoke     *agents.InvokeError
		provider   *llms.ProviderError
		retrieval  *retrievalError
	)

	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, session.ErrBusy):
		return "busy"
	case errors.Is(err, knowledge.ErrNoRelevantContext), errors.As(err, &retrieval):
		return "retrieval"
	case errors.As(err, &permission):
		return "permission"
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &constraint), errors.As(err, &execution):
		return "tool"
	case errors.As(err, &evaluation):
		return "template"
	case errors.As(err, &exhausted):
		return "all_providers_exhausted"
	case errors.As(err, &seqOpen):
		return "circuit_open"
	case errors.As(err, &step):
		return "tool"
	case errors.As(err, &invoke):
		return "agent"
	case errors.As(err, &provider):
		return "provider"
	default:
		return "internal"
	}
}

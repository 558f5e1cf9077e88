package tools

import "fmt"

// ValidationError reports parameters that violate the tool's declared
// schema. It is raised before the tool runs.
type ValidationError struct {
	Tool   string
	Param  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("tool %s: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("tool %s: parameter %q %s", e.Tool, e.Param, e.Reason)
}

// ConstraintError reports a call that violates the tool's runtime
// constraints (filesystem, network, path or extension limits).
type ConstraintError struct {
	Tool   string
	Reason string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Reason)
}

// ExecutionError wraps a failure inside the tool itself.
type ExecutionError struct {
	Tool    string
	Action  string
	Message string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("tool %s (%s): %s", e.Tool, e.Action, e.Message)
	}
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Message)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// PermissionDeniedError reports an agent asking for a tool or subagent
// outside its allowed set. The target is never touched.
type PermissionDeniedError struct {
	Agent  string
	Target string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("agent %s is not allowed to use %s", e.Agent, e.Target)
}

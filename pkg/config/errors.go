package config

import (
	"fmt"
	"strings"
)

// ParseError wraps a syntax failure from the underlying source, for
// example malformed YAML.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// EnvVarMissingError names an environment variable referenced with
// ${NAME} syntax that is not set and has no default.
type EnvVarMissingError struct {
	Name string
}

func (e *EnvVarMissingError) Error() string {
	return fmt.Sprintf("environment variable %s is not set and has no default", e.Name)
}

// SchemaError reports a structural problem: an unknown key, a wrong
// type, or a missing required field. Path is the dotted location in
// the document.
type SchemaError struct {
	Path   string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// DanglingReferenceError reports a cross-reference to a component id
// that is not declared anywhere in the document.
type DanglingReferenceError struct {
	From string
	To   string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("%s references %s, which is not defined", e.From, e.To)
}

// CycleError reports a loop in the provider fallback graph. Path holds
// the provider ids along the loop, ending where it started.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("provider fallback cycle: %s", strings.Join(e.Path, " -> "))
}

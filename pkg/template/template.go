// Package template implements the placeholder language used by tool
// sequence step parameters.
//
// A template is a plain string with embedded references:
//
//	${input.user.name}     value from the sequence input
//	${step2.result.id}     output of the step with order 2
//	${step1.items[0].id}   array element by index
//	$${not.expanded}       literal ${not.expanded}
//
// Paths are dotted; arrays are indexed with [N] or a bare numeric
// segment. Templates are parsed once when configuration loads and
// evaluated per execution.
package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// SourceKind identifies where a placeholder reads from.
type SourceKind int

const (
	// SourceInput reads from the sequence input map.
	SourceInput SourceKind = iota
	// SourceStep reads from a prior step's output.
	SourceStep
)

func (k SourceKind) String() string {
	if k == SourceStep {
		return "step"
	}
	return "input"
}

// Ref names one placeholder source inside a template. Step refs carry
// the 1-based order of the step they read from.
type Ref struct {
	Kind SourceKind
	Step int
}

// ParseError reports a malformed placeholder. The offset is a byte
// position into the original template string.
type ParseError struct {
	Template string
	Offset   int
	Reason   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("template %q: offset %d: %s", e.Template, e.Offset, e.Reason)
}

// EvalError reports a placeholder that could not be resolved at
// execution time, for example a path into a step that was skipped.
type EvalError struct {
	Ref    string
	Reason string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("cannot resolve ${%s}: %s", e.Ref, e.Reason)
}

// Data is the evaluation context for one sequence execution. Steps is
// keyed by step order and holds only steps that actually produced
// output; skipped and failed-but-continued steps are absent.
type Data struct {
	Input map[string]any
	Steps map[int]any
}

type segment struct {
	literal string
	ref     *placeholder
}

type placeholder struct {
	raw  string
	kind SourceKind
	step int
	path []string
}

// Template is a parsed placeholder string. A Template is immutable and
// safe for concurrent evaluation.
type Template struct {
	source   string
	segments []segment
}

// Parse compiles a template string. Literal text without placeholders
// parses to a template that evaluates to itself.
func Parse(s string) (*Template, error) {
	t := &Template{source: s}
	var lit strings.Builder
	i := 0
	for i < len(s) {
		// $${ escapes to a literal ${
		if strings.HasPrefix(s[i:], "$${") {
			lit.WriteString("${")
			i += 3
			continue
		}
		if strings.HasPrefix(s[i:], "${") {
			end := strings.IndexByte(s[i+2:], '}')
			if end < 0 {
				return nil, &ParseError{Template: s, Offset: i, Reason: "unterminated placeholder"}
			}
			ref := s[i+2 : i+2+end]
			ph, err := parseRef(ref)
			if err != nil {
				return nil, &ParseError{Template: s, Offset: i, Reason: err.Error()}
			}
			if lit.Len() > 0 {
				t.segments = append(t.segments, segment{literal: lit.String()})
				lit.Reset()
			}
			t.segments = append(t.segments, segment{ref: ph})
			i += 2 + end + 1
			continue
		}
		lit.WriteByte(s[i])
		i++
	}
	if lit.Len() > 0 {
		t.segments = append(t.segments, segment{literal: lit.String()})
	}
	return t, nil
}

func parseRef(ref string) (*placeholder, error) {
	if strings.TrimSpace(ref) != ref {
		return nil, fmt.Errorf("placeholder %q has surrounding whitespace", ref)
	}
	parts, err := splitPath(ref)
	if err != nil {
		return nil, fmt.Errorf("placeholder %q: %v", ref, err)
	}
	root := parts[0]
	ph := &placeholder{raw: ref, path: parts[1:]}
	switch {
	case root == "input":
		ph.kind = SourceInput
	case strings.HasPrefix(root, "step"):
		n, err := strconv.Atoi(root[len("step"):])
		if err != nil || n < 1 {
			return nil, fmt.Errorf("placeholder %q: step references need a positive order, like step1", ref)
		}
		ph.kind = SourceStep
		ph.step = n
	default:
		return nil, fmt.Errorf("placeholder %q: unknown source %q (want input or stepN)", ref, root)
	}
	return ph, nil
}

// splitPath tokenizes a reference into path segments. Dots separate
// keys and [N] suffixes become their own numeric segments, so
// "step1.items[0].id" yields ["step1", "items", "0", "id"].
func splitPath(ref string) ([]string, error) {
	var parts []string
	for _, dotted := range strings.Split(ref, ".") {
		rest := dotted
		for {
			open := strings.IndexByte(rest, '[')
			if open < 0 {
				if rest == "" {
					return nil, fmt.Errorf("empty path segment")
				}
				parts = append(parts, rest)
				break
			}
			closing := strings.IndexByte(rest[open:], ']')
			if closing < 0 {
				return nil, fmt.Errorf("unterminated index in %q", dotted)
			}
			closing += open
			if open > 0 {
				parts = append(parts, rest[:open])
			}
			idx := rest[open+1 : closing]
			if _, err := strconv.Atoi(idx); err != nil || idx == "" {
				return nil, fmt.Errorf("index %q is not a number", idx)
			}
			parts = append(parts, idx)
			rest = rest[closing+1:]
			if rest == "" {
				break
			}
			if rest[0] != '[' {
				return nil, fmt.Errorf("unexpected text %q after index", rest)
			}
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty reference")
	}
	return parts, nil
}

// Source returns the original template string.
func (t *Template) Source() string { return t.source }

// HasRefs reports whether the template contains any placeholder.
func (t *Template) HasRefs() bool {
	for _, seg := range t.segments {
		if seg.ref != nil {
			return true
		}
	}
	return false
}

// Refs lists every placeholder source in the template, in order of
// appearance. Duplicates are not removed.
func (t *Template) Refs() []Ref {
	var refs []Ref
	for _, seg := range t.segments {
		if seg.ref != nil {
			refs = append(refs, Ref{Kind: seg.ref.kind, Step: seg.ref.step})
		}
	}
	return refs
}

// Eval resolves the template against data. A template that is exactly
// one placeholder returns the referenced value with its type intact;
// anything else renders to a string.
func (t *Template) Eval(data Data) (any, error) {
	if len(t.segments) == 1 && t.segments[0].ref != nil {
		return t.segments[0].ref.resolve(data)
	}
	var b strings.Builder
	for _, seg := range t.segments {
		if seg.ref == nil {
			b.WriteString(seg.literal)
			continue
		}
		v, err := seg.ref.resolve(data)
		if err != nil {
			return nil, err
		}
		b.WriteString(stringify(v))
	}
	return b.String(), nil
}

// EvalString is Eval with the result forced to a string.
func (t *Template) EvalString(data Data) (string, error) {
	v, err := t.Eval(data)
	if err != nil {
		return "", err
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return stringify(v), nil
}

func (p *placeholder) resolve(data Data) (any, error) {
	var cur any
	switch p.kind {
	case SourceInput:
		if data.Input == nil {
			return nil, &EvalError{Ref: p.raw, Reason: "no input bound"}
		}
		cur = any(data.Input)
	case SourceStep:
		v, ok := data.Steps[p.step]
		if !ok {
			return nil, &EvalError{Ref: p.raw, Reason: fmt.Sprintf("step %d produced no output", p.step)}
		}
		cur = v
	}
	for i, key := range p.path {
		next, err := walk(cur, key)
		if err != nil {
			return nil, &EvalError{
				Ref:    p.raw,
				Reason: fmt.Sprintf("at %q: %v", strings.Join(p.path[:i+1], "."), err),
			}
		}
		cur = next
	}
	return cur, nil
}

func walk(v any, key string) (any, error) {
	switch typed := v.(type) {
	case map[string]any:
		child, ok := typed[key]
		if !ok {
			return nil, fmt.Errorf("no such key")
		}
		return child, nil
	case []any:
		idx, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("array wants a numeric index")
		}
		if idx < 0 || idx >= len(typed) {
			return nil, fmt.Errorf("index %d out of range (len %d)", idx, len(typed))
		}
		return typed[idx], nil
	case nil:
		return nil, fmt.Errorf("value is null")
	default:
		return nil, fmt.Errorf("value of type %T is not traversable", v)
	}
}

func stringify(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case bool:
		return strconv.FormatBool(typed)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}

package template

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"unterminated", "hello ${input.name"},
		{"unknown source", "${session.id}"},
		{"empty segment", "${input..name}"},
		{"step without order", "${step.result}"},
		{"step order zero", "${step0.result}"},
		{"whitespace in ref", "${ input.name }"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.in)
			require.Error(t, err)
			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.in, perr.Template)
		})
	}
}

func TestEval_SinglePlaceholderKeepsType(t *testing.T) {
	tmpl, err := Parse("${step1.count}")
	require.NoError(t, err)

	v, err := tmpl.Eval(Data{Steps: map[int]any{1: map[string]any{"count": 42}}})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestEval_Interpolation(t *testing.T) {
	tmpl, err := Parse("user ${input.name} ran ${step2.tool} (${step2.ms}ms)")
	require.NoError(t, err)

	v, err := tmpl.Eval(Data{
		Input: map[string]any{"name": "ada"},
		Steps: map[int]any{2: map[string]any{"tool": "calculator", "ms": 12.5}},
	})
	require.NoError(t, err)
	assert.Equal(t, "user ada ran calculator (12.5ms)", v)
}

func TestEval_ArrayIndex(t *testing.T) {
	tmpl, err := Parse("${step1.items.1.name}")
	require.NoError(t, err)

	data := Data{Steps: map[int]any{1: map[string]any{
		"items": []any{
			map[string]any{"name": "first"},
			map[string]any{"name": "second"},
		},
	}}}
	v, err := tmpl.Eval(data)
	require.NoError(t, err)
	assert.Equal(t, "second", v)

	oob, err := Parse("${step1.items.7.name}")
	require.NoError(t, err)
	_, err = oob.Eval(data)
	var everr *EvalError
	require.True(t, errors.As(err, &everr))
	assert.Contains(t, everr.Reason, "out of range")
}

func TestEval_BracketIndex(t *testing.T) {
	data := Data{Steps: map[int]any{1: map[string]any{
		"items": []any{
			map[string]any{"name": "first"},
			map[string]any{"name": "second"},
		},
		"matrix": []any{[]any{"a", "b"}, []any{"c", "d"}},
	}}}

	tmpl, err := Parse("${step1.items[0].name}")
	require.NoError(t, err)
	v, err := tmpl.Eval(data)
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	tmpl, err = Parse("${step1.matrix[1][0]}")
	require.NoError(t, err)
	v, err = tmpl.Eval(data)
	require.NoError(t, err)
	assert.Equal(t, "c", v)

	for _, bad := range []string{"${step1.items[}", "${step1.items[x]}", "${step1.items[0]x}"} {
		_, err = Parse(bad)
		require.Error(t, err, bad)
	}
}

func TestEval_EscapedPlaceholder(t *testing.T) {
	tmpl, err := Parse("literal $${input.name} stays")
	require.NoError(t, err)
	assert.False(t, tmpl.HasRefs())

	v, err := tmpl.Eval(Data{})
	require.NoError(t, err)
	assert.Equal(t, "literal ${input.name} stays", v)
}

func TestEval_MissingStepOutput(t *testing.T) {
	tmpl, err := Parse("${step3.result}")
	require.NoError(t, err)

	_, err = tmpl.Eval(Data{Steps: map[int]any{1: "ok"}})
	var everr *EvalError
	require.True(t, errors.As(err, &everr))
	assert.Contains(t, everr.Reason, "step 3")
}

func TestEval_MissingKeyNamesPath(t *testing.T) {
	tmpl, err := Parse("${input.user.email}")
	require.NoError(t, err)

	_, err = tmpl.Eval(Data{Input: map[string]any{"user": map[string]any{"name": "ada"}}})
	var everr *EvalError
	require.True(t, errors.As(err, &everr))
	assert.Equal(t, "input.user.email", everr.Ref)
	assert.Contains(t, everr.Reason, "user.email")
}

func TestRefs(t *testing.T) {
	tmpl, err := Parse("${input.a} then ${step2.b} then ${step1.c}")
	require.NoError(t, err)

	refs := tmpl.Refs()
	require.Len(t, refs, 3)
	assert.Equal(t, Ref{Kind: SourceInput}, refs[0])
	assert.Equal(t, Ref{Kind: SourceStep, Step: 2}, refs[1])
	assert.Equal(t, Ref{Kind: SourceStep, Step: 1}, refs[2])
}

func TestCompileMap_EvalNested(t *testing.T) {
	params := map[string]any{
		"expression": "${input.expression}",
		"precision":  4,
		"options": map[string]any{
			"label": "calc:${step1.id}",
		},
		"tags": []any{"fixed", "${input.tag}"},
	}
	mt, err := CompileMap(params)
	require.NoError(t, err)

	out, err := mt.EvalMap(Data{
		Input: map[string]any{"expression": "2+2", "tag": "math"},
		Steps: map[int]any{1: map[string]any{"id": "abc"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "2+2", out["expression"])
	assert.Equal(t, 4, out["precision"])
	assert.Equal(t, map[string]any{"label": "calc:abc"}, out["options"])
	assert.Equal(t, []any{"fixed", "math"}, out["tags"])
}

func TestCompileMap_ParseErrorSurfaces(t *testing.T) {
	_, err := CompileMap(map[string]any{"bad": "${nowhere.x}"})
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
}

func TestCompileMap_Refs(t *testing.T) {
	mt, err := CompileMap(map[string]any{
		"a": "${step2.out}",
		"b": map[string]any{"c": []any{"${input.q}"}},
	})
	require.NoError(t, err)

	steps := 0
	inputs := 0
	for _, ref := range mt.Refs() {
		switch ref.Kind {
		case SourceStep:
			steps++
			assert.Equal(t, 2, ref.Step)
		case SourceInput:
			inputs++
		}
	}
	assert.Equal(t, 1, steps)
	assert.Equal(t, 1, inputs)
}

package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stentorlabs/stentor/pkg/config"
)

func float64Ptr(f float64) *float64 { return &f }

func TestCalculatorActions(t *testing.T) {
	tests := []struct {
		action string
		a, b   float64
		want   float64
		text   string
	}{
		{"add", 2, 3, 5, "5"},
		{"subtract", 2, 3, -1, "-1"},
		{"multiply", 4, 2.5, 10, "10"},
		{"divide", 5, 2, 2.5, "2.5"},
	}

	calc := NewCalculator()
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			res, err := calc.Execute(context.Background(), tt.action, map[string]any{"a": tt.a, "b": tt.b})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Output)
			assert.Equal(t, tt.text, res.Text)
		})
	}
}

func TestCalculatorDivideByZero(t *testing.T) {
	calc := NewCalculator()
	_, err := calc.Execute(context.Background(), "divide", map[string]any{"a": 1.0, "b": 0.0})
	require.Error(t, err)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Message, "division by zero")
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "4", FormatNumber(4))
	assert.Equal(t, "2.5", FormatNumber(2.5))
	assert.Equal(t, "-0.125", FormatNumber(-0.125))
	assert.Equal(t, "0", FormatNumber(0))
}

func TestFileReaderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello from disk"), 0o644))

	reader := NewFileReader()
	reader.cfg.Constraints.AllowedPaths = []string{dir}

	res, err := reader.Execute(context.Background(), "read", map[string]any{"path": path})
	require.NoError(t, err)
	assert.Equal(t, "hello from disk", res.Text)
	assert.Equal(t, path, res.Metadata["path"])
	assert.Equal(t, int64(15), res.Metadata["size"])
}

func TestFileReaderRelativePath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.txt"), []byte("relative"), 0o644))
	t.Chdir(dir)

	reader := NewFileReader()
	res, err := reader.Execute(context.Background(), "read", map[string]any{"path": "note.txt"})
	require.NoError(t, err)
	assert.Equal(t, "relative", res.Text)
}

func TestFileReaderConstraints(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	tests := []struct {
		name  string
		setup func(r *FileReader)
		path  string
		want  string
	}{
		{
			name:  "filesystem disabled",
			setup: func(r *FileReader) { r.cfg.Constraints.NoFileSystem = true },
			path:  path,
			want:  "filesystem access is disabled",
		},
		{
			name:  "directory traversal",
			setup: func(r *FileReader) {},
			path:  "../etc/passwd",
			want:  "directory traversal",
		},
		{
			name:  "absolute path without allowed_paths",
			setup: func(r *FileReader) {},
			path:  path,
			want:  "absolute paths require allowed_paths",
		},
		{
			name: "extension not allowed",
			setup: func(r *FileReader) {
				r.cfg.Constraints.AllowedPaths = []string{dir}
				r.cfg.Constraints.AllowedExtensions = []string{".md"}
			},
			path: path,
			want: "extension",
		},
		{
			name: "outside allowed_paths",
			setup: func(r *FileReader) {
				r.cfg.Constraints.AllowedPaths = []string{filepath.Join(dir, "sub")}
			},
			path: path,
			want: "outside allowed_paths",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := NewFileReader()
			tt.setup(reader)

			_, err := reader.Execute(context.Background(), "read", map[string]any{"path": tt.path})
			require.Error(t, err)

			var consErr *ConstraintError
			require.ErrorAs(t, err, &consErr)
			assert.Contains(t, consErr.Reason, tt.want)
		})
	}
}

func TestFileReaderTooLarge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.txt")
	require.NoError(t, os.WriteFile(path, make([]byte, maxFileBytes+1), 0o644))

	reader := NewFileReader()
	reader.cfg.Constraints.AllowedPaths = []string{dir}

	_, err := reader.Execute(context.Background(), "read", map[string]any{"path": path})
	require.Error(t, err)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Message, "file too large")
}

func TestFileReaderMissingFile(t *testing.T) {
	dir := t.TempDir()

	reader := NewFileReader()
	reader.cfg.Constraints.AllowedPaths = []string{dir}

	_, err := reader.Execute(context.Background(), "read", map[string]any{"path": filepath.Join(dir, "ghost.txt")})
	require.Error(t, err)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestJSONParserParse(t *testing.T) {
	parser := NewJSONParser()
	res, err := parser.Execute(context.Background(), "parse", map[string]any{"json": `{"b":2,"a":1}`})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":2}`, res.Text)
	assert.Contains(t, res.Text, "\n  ")
}

func TestJSONParserParseInvalid(t *testing.T) {
	parser := NewJSONParser()
	_, err := parser.Execute(context.Background(), "parse", map[string]any{"json": `{"a":`})
	require.Error(t, err)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Message, "invalid JSON")
}

func TestJSONParserValidate(t *testing.T) {
	parser := NewJSONParser()

	res, err := parser.Execute(context.Background(), "validate", map[string]any{"json": `[1, 2, 3]`})
	require.NoError(t, err)
	assert.Equal(t, true, res.Output)
	assert.Equal(t, "valid JSON", res.Text)

	res, err = parser.Execute(context.Background(), "validate", map[string]any{"json": `[1, 2,`})
	require.NoError(t, err, "a malformed document is a verdict, not a failure")
	assert.Equal(t, false, res.Output)
	assert.Contains(t, res.Text, "invalid JSON")
}

func TestTextTransformer(t *testing.T) {
	tests := []struct {
		action string
		text   string
		want   string
	}{
		{"upper", "hello", "HELLO"},
		{"lower", "HeLLo", "hello"},
		{"reverse", "héllo", "olléh"},
		{"trim", "  spaced  ", "spaced"},
	}

	tr := NewTextTransformer()
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			res, err := tr.Execute(context.Background(), tt.action, map[string]any{"text": tt.text})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Text)
		})
	}
}

func TestTextTransformerCount(t *testing.T) {
	tr := NewTextTransformer()
	res, err := tr.Execute(context.Background(), "count", map[string]any{"text": "two words"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"words": 2, "characters": 9}, res.Output)
	assert.Equal(t, "2 words, 9 characters", res.Text)
}

func TestResolveParams(t *testing.T) {
	desc := &config.ToolConfig{
		ID: "renderer",
		Parameters: map[string]config.ToolParameterConfig{
			"format": {Type: "string", Enum: []string{"short", "long"}, Default: "short"},
			"width":  {Type: "integer", Required: true, Min: float64Ptr(1), Max: float64Ptr(120)},
			"wrap":   {Type: "boolean"},
		},
		Actions: map[string]config.ToolActionConfig{
			"render":  {},
			"measure": {Parameters: []string{"width"}},
		},
	}

	t.Run("unknown action", func(t *testing.T) {
		_, err := resolveParams(desc, "explode", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown action "explode"`)
	})

	t.Run("missing required", func(t *testing.T) {
		_, err := resolveParams(desc, "render", map[string]any{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `parameter "width" is required`)
	})

	t.Run("param outside action subset", func(t *testing.T) {
		_, err := resolveParams(desc, "measure", map[string]any{"width": 10.0, "format": "long"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `parameter "format" is not accepted`)
	})

	t.Run("defaults fill absent params", func(t *testing.T) {
		resolved, err := resolveParams(desc, "render", map[string]any{"width": 80.0})
		require.NoError(t, err)
		assert.Equal(t, "short", resolved["format"])
		assert.Equal(t, 80.0, resolved["width"])
		assert.NotContains(t, resolved, "wrap")
	})

	t.Run("enum violation", func(t *testing.T) {
		_, err := resolveParams(desc, "render", map[string]any{"width": 80.0, "format": "huge"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be one of")
	})

	t.Run("below min", func(t *testing.T) {
		_, err := resolveParams(desc, "render", map[string]any{"width": 0.0})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be at least 1")
	})

	t.Run("above max", func(t *testing.T) {
		_, err := resolveParams(desc, "render", map[string]any{"width": 121.0})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be at most 120")
	})

	t.Run("fractional integer", func(t *testing.T) {
		_, err := resolveParams(desc, "render", map[string]any{"width": 2.5})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be an integer")
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := resolveParams(desc, "render", map[string]any{"width": 80.0, "wrap": "yes"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be a boolean")
	})

	t.Run("go int accepted for numbers", func(t *testing.T) {
		resolved, err := resolveParams(desc, "render", map[string]any{"width": 80})
		require.NoError(t, err)
		assert.Equal(t, 80.0, resolved["width"])
	})
}

func TestRegistryExecute(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.LoadFromConfig(nil))

	res, err := reg.Execute(context.Background(), "calculator", "add", map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.Equal(t, "calculator", res.Tool)
	assert.Equal(t, "add", res.Action)
	assert.Equal(t, 5.0, res.Output)
	assert.GreaterOrEqual(t, res.DurationMS, int64(0))
}

func TestRegistryExecuteValidates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.LoadFromConfig(nil))

	_, err := reg.Execute(context.Background(), "calculator", "add", map[string]any{"a": 2.0})
	require.Error(t, err)
	var valErr *ValidationError
	assert.ErrorAs(t, err, &valErr)

	_, err = reg.Execute(context.Background(), "time_machine", "jump", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRegistryLoadFromConfig(t *testing.T) {
	reg := NewRegistry()
	err := reg.LoadFromConfig([]*config.ToolConfig{
		{
			ID:          "file_reader",
			Description: "Locked down reader",
			Constraints: config.ToolConstraintsConfig{NoFileSystem: true},
		},
		{ID: "calculator", Enabled: config.BoolPtr(false)},
		{ID: "quantum_solver"},
	})
	require.NoError(t, err)

	reader, err := reg.GetTool("file_reader")
	require.NoError(t, err)
	assert.Equal(t, "Locked down reader", reader.Descriptor().Description)

	_, execErr := reg.Execute(context.Background(), "file_reader", "read", map[string]any{"path": "note.txt"})
	var consErr *ConstraintError
	require.ErrorAs(t, execErr, &consErr)

	_, err = reg.GetTool("calculator")
	require.Error(t, err, "disabled tools are hidden from execution")

	failures := reg.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "quantum_solver", failures[0].Name)
	assert.Contains(t, failures[0].Err.Error(), "no implementation")
}

func TestExecuteForAgent(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.LoadFromConfig(nil))

	restricted := &config.AgentConfig{ID: "analyst", AllowedTools: []string{"calculator"}}
	open := &config.AgentConfig{ID: "generalist"}

	res, err := reg.ExecuteForAgent(context.Background(), restricted, "calculator", "add", map[string]any{"a": 1.0, "b": 1.0})
	require.NoError(t, err)
	assert.Equal(t, 2.0, res.Output)

	_, err = reg.ExecuteForAgent(context.Background(), restricted, "text_transformer", "upper", map[string]any{"text": "hi"})
	require.Error(t, err)
	var denied *PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "analyst", denied.Agent)
	assert.Contains(t, denied.Error(), "not allowed to use tool text_transformer")

	_, err = reg.ExecuteForAgent(context.Background(), open, "text_transformer", "upper", map[string]any{"text": "hi"})
	require.NoError(t, err, "an empty allowed_tools list grants every tool")
}

package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stentorlabs/stentor/pkg/config"
)

// maxFileBytes caps how much a single read may return. Larger files
// would blow up the response envelope and the LLM context downstream.
const maxFileBytes = 1 << 20

// FileReader reads text files from disk, subject to the constraints
// declared on its descriptor (allowed paths, allowed extensions).
type FileReader struct {
	cfg *config.ToolConfig
}

func NewFileReader() *FileReader {
	cfg := &config.ToolConfig{
		ID:          "file_reader",
		Description: "Read the contents of a file",
		Category:    config.CategoryFile,
		Parameters: map[string]config.ToolParameterConfig{
			"path": {Type: "string", Description: "File path to read", Required: true},
		},
		Actions: map[string]config.ToolActionConfig{
			"read": {Description: "Return the file contents"},
		},
	}
	cfg.SetDefaults()
	return &FileReader{cfg: cfg}
}

func (t *FileReader) ID() string                     { return t.cfg.ID }
func (t *FileReader) Descriptor() *config.ToolConfig { return t.cfg }

func (t *FileReader) Execute(ctx context.Context, action string, params map[string]any) (*Result, error) {
	path := params["path"].(string)

	resolved, err := t.validatePath(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, &ExecutionError{Tool: t.cfg.ID, Action: action, Message: fmt.Sprintf("cannot read %s", path), Err: err}
	}
	if info.IsDir() {
		return nil, &ExecutionError{Tool: t.cfg.ID, Action: action, Message: fmt.Sprintf("%s is a directory", path)}
	}
	if info.Size() > maxFileBytes {
		return nil, &ExecutionError{
			Tool:    t.cfg.ID,
			Action:  action,
			Message: fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), maxFileBytes),
		}
	}

	content, err := os.ReadFile(resolved)
	if err != nil {
		return nil, &ExecutionError{Tool: t.cfg.ID, Action: action, Message: fmt.Sprintf("cannot read %s", path), Err: err}
	}

	text := string(content)
	return &Result{
		Output: text,
		Text:   text,
		Metadata: map[string]any{
			"path": path,
			"size": info.Size(),
		},
	}, nil
}

// validatePath enforces the descriptor's constraints and returns the
// absolute path to read. Relative paths resolve against the process
// working directory; absolute paths are accepted only when an
// allowed_paths prefix covers them.
func (t *FileReader) validatePath(path string) (string, error) {
	cons := t.cfg.Constraints
	if cons.NoFileSystem {
		return "", &ConstraintError{Tool: t.cfg.ID, Reason: "filesystem access is disabled"}
	}
	if path == "" {
		return "", &ValidationError{Tool: t.cfg.ID, Param: "path", Reason: "is required"}
	}

	cleaned := filepath.Clean(path)
	if strings.Contains(cleaned, "..") {
		return "", &ConstraintError{Tool: t.cfg.ID, Reason: "directory traversal not allowed"}
	}
	if filepath.IsAbs(cleaned) && len(cons.AllowedPaths) == 0 {
		return "", &ConstraintError{Tool: t.cfg.ID, Reason: "absolute paths require allowed_paths"}
	}

	abs, err := filepath.Abs(cleaned)
	if err != nil {
		return "", &ValidationError{Tool: t.cfg.ID, Param: "path", Reason: "is not a valid path"}
	}

	if len(cons.AllowedExtensions) > 0 {
		ext := filepath.Ext(abs)
		allowed := false
		for _, e := range cons.AllowedExtensions {
			if strings.EqualFold(ext, e) {
				allowed = true
				break
			}
		}
		if !allowed {
			return "", &ConstraintError{Tool: t.cfg.ID, Reason: fmt.Sprintf("extension %q is not allowed", ext)}
		}
	}

	if len(cons.AllowedPaths) > 0 {
		allowed := false
		for _, p := range cons.AllowedPaths {
			prefix, err := filepath.Abs(p)
			if err != nil {
				continue
			}
			if abs == prefix || strings.HasPrefix(abs, prefix+string(filepath.Separator)) {
				allowed = true
				break
			}
		}
		if !allowed {
			return "", &ConstraintError{Tool: t.cfg.ID, Reason: fmt.Sprintf("path %s is outside allowed_paths", path)}
		}
	}

	return abs, nil
}

var _ Tool = (*FileReader)(nil)

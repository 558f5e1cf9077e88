package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/stentorlabs/stentor/pkg/config"
)

var fencedBlockRe = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\n(.*?)```")

// CodeAnalyzer runs static checks over a code snippet carried in the
// message or a file fetched through the file_reader tool. It never
// calls an LLM; its report is deterministic.
type CodeAnalyzer struct {
	BaseAgent
}

func NewCodeAnalyzer(cfg *config.AgentConfig) *CodeAnalyzer {
	return &CodeAnalyzer{BaseAgent: NewBaseAgent(cfg)}
}

func (a *CodeAnalyzer) Execute(ctx context.Context, input Input, svc Services) (*Output, error) {
	code, source, err := a.resolveCode(ctx, input, svc)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return &Output{Text: "There is no code to analyze. Include a snippet or a file path."}, nil
	}

	report := analyzeCode(code)

	var b strings.Builder
	fmt.Fprintf(&b, "Code analysis of %s: %d lines", source, report.Lines)
	if report.Language != "" {
		fmt.Fprintf(&b, ", looks like %s", report.Language)
	}
	b.WriteString(".")
	if report.TodoMarkers > 0 {
		fmt.Fprintf(&b, " %d TODO/FIXME markers.", report.TodoMarkers)
	}
	if report.LongLines > 0 {
		fmt.Fprintf(&b, " %d lines exceed 120 characters.", report.LongLines)
	}
	if report.TrailingWhitespace > 0 {
		fmt.Fprintf(&b, " %d lines carry trailing whitespace.", report.TrailingWhitespace)
	}
	if !report.Balanced {
		b.WriteString(" Brackets are unbalanced.")
	}
	if report.TodoMarkers == 0 && report.LongLines == 0 && report.TrailingWhitespace == 0 && report.Balanced {
		b.WriteString(" No issues found.")
	}

	return &Output{
		Text: b.String(),
		Metadata: map[string]any{
			"lines":               report.Lines,
			"language":            report.Language,
			"todo_markers":        report.TodoMarkers,
			"long_lines":          report.LongLines,
			"trailing_whitespace": report.TrailingWhitespace,
			"balanced":            report.Balanced,
			"source":              source,
		},
	}, nil
}

// resolveCode picks the analysis target: an explicit path parameter
// wins over the message body. File access goes through the tool
// registry so allowed_tools and constraints apply.
func (a *CodeAnalyzer) resolveCode(ctx context.Context, input Input, svc Services) (code, source string, err error) {
	if path, ok := input.Params["path"].(string); ok && path != "" {
		if !a.Descriptor().Permissions.ReadFile {
			return "", "", fmt.Errorf("agent %s may not read files", a.ID())
		}
		result, err := svc.ExecuteTool(ctx, "file_reader", "read", map[string]any{"path": path})
		if err != nil {
			return "", "", err
		}
		return result.Text, path, nil
	}

	if m := fencedBlockRe.FindStringSubmatch(input.Message); m != nil {
		return m[1], "the snippet", nil
	}
	return input.Message, "the message", nil
}

type codeReport struct {
	Lines              int
	Language           string
	TodoMarkers        int
	LongLines          int
	TrailingWhitespace int
	Balanced           bool
}

func analyzeCode(code string) codeReport {
	lines := strings.Split(strings.TrimRight(code, "\n"), "\n")
	report := codeReport{
		Lines:    len(lines),
		Language: guessLanguage(code),
		Balanced: bracketsBalanced(code),
	}
	for _, line := range lines {
		if len(line) > 120 {
			report.LongLines++
		}
		if line != strings.TrimRight(line, " \t") {
			report.TrailingWhitespace++
		}
		upper := strings.ToUpper(line)
		if strings.Contains(upper, "TODO") || strings.Contains(upper, "FIXME") {
			report.TodoMarkers++
		}
	}
	return report
}

// languageIndicators score a snippet toward a language. Two hits are
// required before a guess is reported.
var languageIndicators = map[string][]string{
	"go":         {"package ", "func ", ":=", "go func", "chan "},
	"python":     {"def ", "import ", "self.", "elif ", "print("},
	"javascript": {"function ", "const ", "=>", "let ", "console.log"},
	"java":       {"public class", "private ", "void ", "extends ", "System.out"},
	"rust":       {"fn ", "let mut", "impl ", "match ", "::new"},
	"c":          {"#include", "int main", "printf(", "->", "sizeof"},
}

func guessLanguage(code string) string {
	best, bestScore := "", 1
	for lang, indicators := range languageIndicators {
		score := 0
		for _, ind := range indicators {
			if strings.Contains(code, ind) {
				score++
			}
		}
		if score > bestScore || (score == bestScore && best != "" && lang < best) {
			best, bestScore = lang, score
		}
	}
	return best
}

func bracketsBalanced(code string) bool {
	var stack []rune
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	for _, r := range code {
		switch r {
		case '(', '[', '{':
			stack = append(stack, r)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return len(stack) == 0
}

var _ Agent = (*CodeAnalyzer)(nil)

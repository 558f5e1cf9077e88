package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Placeholder forms accepted in string values, most specific first.
var envVarPatterns = struct {
	withDefault *regexp.Regexp
	braced      *regexp.Regexp
	simple      *regexp.Regexp
}{
	withDefault: regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`),
	braced:      regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`),
	simple:      regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`),
}

// expandEnvVars substitutes ${NAME:-default}, ${NAME}, and $NAME. A
// braced reference without a default must resolve; anything else is a
// load error, not a silent empty string.
func expandEnvVars(s string) (string, error) {
	if !strings.Contains(s, "$") {
		return s, nil
	}

	s = envVarPatterns.withDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.withDefault.FindStringSubmatch(match)
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[2]
	})

	var missing string
	s = envVarPatterns.braced.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.braced.FindStringSubmatch(match)
		val, ok := os.LookupEnv(parts[1])
		if !ok && missing == "" {
			missing = parts[1]
		}
		return val
	})
	if missing != "" {
		return "", &EnvVarMissingError{Name: missing}
	}

	s = envVarPatterns.simple.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.simple.FindStringSubmatch(match)
		return os.Getenv(parts[1])
	})

	return s, nil
}

// parseValue coerces an expanded string to the YAML scalar it would
// have parsed as, so `port: ${PORT}` yields an int.
func parseValue(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if intVal, err := strconv.Atoi(value); err == nil {
		return intVal
	}
	if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
		return floatVal
	}
	return value
}

// ExpandEnvVarsInData walks a raw config map and expands placeholders
// in every string leaf.
func ExpandEnvVarsInData(data any) (any, error) {
	switch v := data.(type) {
	case string:
		expanded, err := expandEnvVars(v)
		if err != nil {
			return nil, err
		}
		if expanded != v {
			return parseValue(expanded), nil
		}
		return expanded, nil

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			out, err := ExpandEnvVarsInData(value)
			if err != nil {
				return nil, err
			}
			result[key] = out
		}
		return result, nil

	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			out, err := ExpandEnvVarsInData(item)
			if err != nil {
				return nil, err
			}
			result[i] = out
		}
		return result, nil

	default:
		return v, nil
	}
}

// LoadEnvFiles reads .env.local then .env from the working directory.
// godotenv never overwrites variables already set, so the local file
// wins and real environment wins over both. Missing files are fine.
func LoadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

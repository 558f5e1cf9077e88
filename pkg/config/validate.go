package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ValidateStructure decodes a raw document map into the Config shape
// with unknown keys treated as errors. It catches typos and wrong
// nesting before the real unmarshal, which would silently drop them.
func ValidateStructure(raw map[string]any) error {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		ErrorUnused:      true,
		TagName:          "yaml",
		WeaklyTypedInput: false,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("create strict decoder: %w", err)
	}

	if err := decoder.Decode(raw); err != nil {
		errStr := err.Error()
		if fields := extractUnknownFields(errStr); len(fields) > 0 {
			return &SchemaError{
				Path:   strings.Join(fields, ", "),
				Reason: "unknown key (typo or wrong nesting level)",
			}
		}
		return &SchemaError{Reason: errStr}
	}
	return nil
}

// extractUnknownFields pulls field names out of mapstructure's
// "has invalid keys: a, b, c" message.
func extractUnknownFields(errMsg string) []string {
	const marker = "has invalid keys:"
	idx := strings.Index(errMsg, marker)
	if idx == -1 {
		return nil
	}
	var fields []string
	for _, key := range strings.Split(errMsg[idx+len(marker):], ",") {
		key = strings.TrimSpace(strings.TrimSuffix(key, "]"))
		if key != "" {
			fields = append(fields, key)
		}
	}
	sort.Strings(fields)
	return fields
}

// strictRequested peeks system.strict out of the raw map before the
// typed unmarshal exists. Unset means strict.
func strictRequested(raw map[string]any) bool {
	system, ok := raw["system"].(map[string]any)
	if !ok {
		return true
	}
	strict, ok := system["strict"].(bool)
	if !ok {
		return true
	}
	return strict
}

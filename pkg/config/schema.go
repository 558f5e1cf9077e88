package config

import (
	"github.com/invopop/jsonschema"
)

// Schema reflects the JSON schema of the configuration document from
// the struct tags. Editor tooling consumes it for completion and
// validation; the schema CLI subcommand prints it.
func Schema() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		// The loader rejects unknown keys, so the schema says so too.
		AllowAdditionalProperties: false,
		// Inline definitions; schema consumers here do not resolve $ref.
		DoNotReference: true,
	}

	schema := reflector.Reflect(&Config{})
	schema.ID = "https://stentorlabs.dev/schemas/stentor-config.json"
	schema.Title = "Stentor Configuration Schema"
	schema.Description = "Configuration document for the Stentor chat orchestration core"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	schema.Examples = []any{
		map[string]any{
			"system": map[string]any{
				"name":        "stentor",
				"environment": "development",
			},
			"providers": []any{
				map[string]any{
					"id":            "local-ollama",
					"adapter":       "ollama",
					"base_url":      "http://localhost:11434",
					"default_model": "llama3.2",
				},
				map[string]any{
					"id":            "openai",
					"adapter":       "openai",
					"api_key":       "${OPENAI_API_KEY}",
					"default_model": "gpt-4o-mini",
					"primary":       true,
				},
			},
		},
	}
	return schema
}

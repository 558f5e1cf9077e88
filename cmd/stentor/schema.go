package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/stentorlabs/stentor/pkg/config"
)

// SchemaCmd prints the JSON schema of the configuration document.
// Editor tooling and the validate pipeline consume the same schema.
type SchemaCmd struct {
	Compact bool `help:"Compact JSON output (no indentation)."`
}

func (c *SchemaCmd) Run(cli *CLI) error {
	encoder := json.NewEncoder(os.Stdout)
	if !c.Compact {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(config.Schema()); err != nil {
		return fmt.Errorf("encoding schema: %w", err)
	}
	return nil
}

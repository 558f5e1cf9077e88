package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stentorlabs/stentor/pkg/config"
)

// ValidateCmd validates a configuration document and reports what is
// wrong with it in the requested format.
type ValidateCmd struct {
	Config      string `arg:"" name:"config" help:"Configuration document path." placeholder:"PATH"`
	Format      string `short:"f" help:"Output format: compact, verbose, or json." default:"compact" enum:"compact,verbose,json"`
	PrintConfig bool   `short:"p" name:"print-config" help:"Print the expanded configuration (defaults applied, env vars resolved)."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	source, err := config.ParseSourceType(cli.Source)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(config.LoaderOptions{
		Source:    source,
		Path:      c.Config,
		Endpoints: cli.Endpoints,
	})
	if err != nil {
		return c.printFailure(err)
	}

	if c.PrintConfig {
		return c.printExpanded(cfg)
	}

	c.printSuccess(cfg)
	return nil
}

// validationIssue is one reported problem, typed by the error kind the
// loader produced.
type validationIssue struct {
	Kind    string `json:"kind"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// classifyIssue maps the config package's typed errors onto the issue
// taxonomy the json output exposes.
func classifyIssue(err error) validationIssue {
	var parseErr *config.ParseError
	var envErr *config.EnvVarMissingError
	var schemaErr *config.SchemaError
	var refErr *config.DanglingReferenceError
	var cycleErr *config.CycleError

	switch {
	case errors.As(err, &parseErr):
		return validationIssue{Kind: "config_parse", Message: parseErr.Error()}
	case errors.As(err, &envErr):
		return validationIssue{Kind: "env_var_missing", Message: envErr.Error()}
	case errors.As(err, &schemaErr):
		return validationIssue{Kind: "schema", Path: schemaErr.Path, Message: schemaErr.Reason}
	case errors.As(err, &refErr):
		return validationIssue{Kind: "dangling_reference", Message: refErr.Error()}
	case errors.As(err, &cycleErr):
		return validationIssue{Kind: "cycle", Message: cycleErr.Error()}
	default:
		return validationIssue{Kind: "load", Message: err.Error()}
	}
}

func (c *ValidateCmd) printFailure(err error) error {
	issue := classifyIssue(err)

	switch c.Format {
	case "json":
		printJSONResult(false, c.Config, []validationIssue{issue})
	case "verbose":
		fmt.Fprintf(os.Stderr, "Configuration Validation Failed\n")
		fmt.Fprintf(os.Stderr, "===============================\n\n")
		fmt.Fprintf(os.Stderr, "Document: %s\n", c.Config)
		fmt.Fprintf(os.Stderr, "Kind:     %s\n", issue.Kind)
		if issue.Path != "" {
			fmt.Fprintf(os.Stderr, "Path:     %s\n", issue.Path)
		}
		fmt.Fprintf(os.Stderr, "Error:    %s\n", issue.Message)
	default: // compact
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", c.Config, issue.Kind, issue.Message)
	}
	return fmt.Errorf("config validation failed")
}

func (c *ValidateCmd) printSuccess(cfg *config.Config) {
	switch c.Format {
	case "json":
		printJSONResult(true, c.Config, nil)
	case "verbose":
		fmt.Fprintf(os.Stdout, "Configuration Validation Successful\n")
		fmt.Fprintf(os.Stdout, "===================================\n\n")
		fmt.Fprintf(os.Stdout, "Document:  %s\n", c.Config)
		fmt.Fprintf(os.Stdout, "Providers: %d\n", len(cfg.Providers))
		fmt.Fprintf(os.Stdout, "Tools:     %d\n", len(cfg.Tools))
		fmt.Fprintf(os.Stdout, "Agents:    %d\n", len(cfg.Agents))
		fmt.Fprintf(os.Stdout, "Sequences: %d\n", len(cfg.Sequences))
		fmt.Fprintf(os.Stdout, "Status:    valid\n")
	default: // compact
		fmt.Fprintf(os.Stdout, "%s: valid\n", c.Config)
	}
}

func (c *ValidateCmd) printExpanded(cfg *config.Config) error {
	switch c.Format {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(cfg); err != nil {
			return fmt.Errorf("encoding config as JSON: %w", err)
		}
	default: // compact and verbose both print YAML for humans
		fmt.Fprintf(os.Stdout, "# Expanded configuration from: %s\n", c.Config)
		fmt.Fprintf(os.Stdout, "# (defaults applied, env vars resolved)\n\n")

		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		if err := encoder.Encode(cfg); err != nil {
			return fmt.Errorf("encoding config as YAML: %w", err)
		}
		if err := encoder.Close(); err != nil {
			return fmt.Errorf("flushing YAML output: %w", err)
		}
	}
	return nil
}

type validationResult struct {
	Valid  bool              `json:"valid"`
	File   string            `json:"file"`
	Errors []validationIssue `json:"errors,omitempty"`
}

func printJSONResult(valid bool, file string, issues []validationIssue) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(validationResult{Valid: valid, File: file, Errors: issues}); err != nil {
		fmt.Fprintf(os.Stderr, "encoding result: %v\n", err)
	}
}

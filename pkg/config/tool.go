package config

import "fmt"

// ToolCategory groups tools by the kind of capability they expose.
type ToolCategory string

const (
	CategoryExecution ToolCategory = "execution"
	CategoryFile      ToolCategory = "file"
	CategoryAPI       ToolCategory = "api"
	CategoryData      ToolCategory = "data"
	CategorySystem    ToolCategory = "system"
	CategoryWeb       ToolCategory = "web"
	CategoryIO        ToolCategory = "io"
)

// ToolConfig describes one tool registration. Built-in tools register
// themselves with sensible defaults; a config entry overrides or
// disables them and declares third-party tools.
type ToolConfig struct {
	// ID is the unique tool id.
	ID string `yaml:"id" json:"id" jsonschema:"title=ID,description=Unique tool id"`

	// Description shows up in introspection listings.
	Description string `yaml:"description,omitempty" json:"description,omitempty" jsonschema:"title=Description,description=Human readable summary"`

	// Category groups the tool.
	Category ToolCategory `yaml:"category,omitempty" json:"category,omitempty" jsonschema:"title=Category,description=Capability group,enum=execution,enum=file,enum=api,enum=data,enum=system,enum=web,enum=io"`

	// Enabled removes the tool from execution when false.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled,description=Available for execution,default=true"`

	// Parameters declares the tool's inputs by name.
	Parameters map[string]ToolParameterConfig `yaml:"parameters,omitempty" json:"parameters,omitempty" jsonschema:"title=Parameters,description=Input schema"`

	// Actions are named operations with their own parameter subsets.
	// A tool without actions exposes a single implicit operation.
	Actions map[string]ToolActionConfig `yaml:"actions,omitempty" json:"actions,omitempty" jsonschema:"title=Actions,description=Named operations"`

	// Constraints bound what the tool may touch at runtime.
	Constraints ToolConstraintsConfig `yaml:"constraints,omitempty" json:"constraints,omitempty" jsonschema:"title=Constraints,description=Runtime limits"`

	// RequiredBy lists component ids that refuse to run without this tool.
	RequiredBy []string `yaml:"required_by,omitempty" json:"required_by,omitempty" jsonschema:"title=Required By,description=Components that need this tool"`

	// ConflictsWith lists tool ids that cannot be enabled together
	// with this one.
	ConflictsWith []string `yaml:"conflicts_with,omitempty" json:"conflicts_with,omitempty" jsonschema:"title=Conflicts With,description=Mutually exclusive tool ids"`
}

// ToolParameterConfig is the schema of one tool input.
type ToolParameterConfig struct {
	// Type of the value.
	Type string `yaml:"type" json:"type" jsonschema:"title=Type,description=Value type,enum=string,enum=number,enum=integer,enum=boolean,enum=object,enum=array"`

	// Description of the input.
	Description string `yaml:"description,omitempty" json:"description,omitempty" jsonschema:"title=Description,description=Input summary"`

	// Required rejects calls that omit this input.
	Required bool `yaml:"required,omitempty" json:"required,omitempty" jsonschema:"title=Required,description=Must be supplied,default=false"`

	// Default fills in when the input is absent.
	Default any `yaml:"default,omitempty" json:"default,omitempty" jsonschema:"title=Default,description=Value when absent"`

	// Enum restricts the value to a fixed set.
	Enum []string `yaml:"enum,omitempty" json:"enum,omitempty" jsonschema:"title=Enum,description=Allowed values"`

	// Min bound for numeric values.
	Min *float64 `yaml:"min,omitempty" json:"min,omitempty" jsonschema:"title=Min,description=Lower bound"`

	// Max bound for numeric values.
	Max *float64 `yaml:"max,omitempty" json:"max,omitempty" jsonschema:"title=Max,description=Upper bound"`
}

// ToolActionConfig names an operation and the parameters it accepts.
type ToolActionConfig struct {
	// Description of the action.
	Description string `yaml:"description,omitempty" json:"description,omitempty" jsonschema:"title=Description,description=Action summary"`

	// Parameters this action accepts; names must exist in the tool's
	// parameter schema. Empty means all tool parameters.
	Parameters []string `yaml:"parameters,omitempty" json:"parameters,omitempty" jsonschema:"title=Parameters,description=Accepted parameter names"`
}

// ToolConstraintsConfig bounds tool execution.
type ToolConstraintsConfig struct {
	// MaxExecutionTimeMS caps one call.
	MaxExecutionTimeMS int `yaml:"max_execution_time_ms,omitempty" json:"max_execution_time_ms,omitempty" jsonschema:"title=Max Execution Time,description=Per-call cap in milliseconds,default=30000"`

	// NoFileSystem forbids filesystem access.
	NoFileSystem bool `yaml:"no_file_system,omitempty" json:"no_file_system,omitempty" jsonschema:"title=No File System,description=Forbid filesystem access,default=false"`

	// NoNetwork forbids outbound network access.
	NoNetwork bool `yaml:"no_network,omitempty" json:"no_network,omitempty" jsonschema:"title=No Network,description=Forbid network access,default=false"`

	// AllowedPaths whitelists filesystem prefixes.
	AllowedPaths []string `yaml:"allowed_paths,omitempty" json:"allowed_paths,omitempty" jsonschema:"title=Allowed Paths,description=Path prefixes the tool may read"`

	// AllowedExtensions whitelists file extensions (with dot).
	AllowedExtensions []string `yaml:"allowed_extensions,omitempty" json:"allowed_extensions,omitempty" jsonschema:"title=Allowed Extensions,description=File extensions the tool may read"`
}

// SetDefaults applies default values.
func (c *ToolConfig) SetDefaults() {
	if c.Category == "" {
		c.Category = CategorySystem
	}
	if c.Constraints.MaxExecutionTimeMS <= 0 {
		c.Constraints.MaxExecutionTimeMS = 30000
	}
}

// Validate checks field values.
func (c *ToolConfig) Validate() error {
	if c.ID == "" {
		return &SchemaError{Path: "tools", Reason: "every tool needs an id"}
	}
	path := "tools." + c.ID
	switch c.Category {
	case CategoryExecution, CategoryFile, CategoryAPI, CategoryData, CategorySystem, CategoryWeb, CategoryIO:
		// valid
	default:
		return &SchemaError{Path: path + ".category", Reason: fmt.Sprintf("unknown category %q", c.Category)}
	}
	for name, p := range c.Parameters {
		switch p.Type {
		case "string", "number", "integer", "boolean", "object", "array":
			// valid
		default:
			return &SchemaError{Path: fmt.Sprintf("%s.parameters.%s.type", path, name), Reason: fmt.Sprintf("unknown type %q", p.Type)}
		}
		if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
			return &SchemaError{Path: fmt.Sprintf("%s.parameters.%s", path, name), Reason: "min exceeds max"}
		}
	}
	for action, a := range c.Actions {
		for _, pname := range a.Parameters {
			if _, ok := c.Parameters[pname]; !ok {
				return &SchemaError{
					Path:   fmt.Sprintf("%s.actions.%s", path, action),
					Reason: fmt.Sprintf("references undeclared parameter %q", pname),
				}
			}
		}
	}
	for _, other := range c.ConflictsWith {
		if other == c.ID {
			return &SchemaError{Path: path + ".conflicts_with", Reason: "tool cannot conflict with itself"}
		}
	}
	return nil
}

// IsEnabled reports whether the tool may execute.
func (c *ToolConfig) IsEnabled() bool {
	return BoolValue(c.Enabled, true)
}

package config

import "fmt"

// AgentConfig describes one agent registration. Class picks the
// factory that constructs the agent; built-ins are code_analyzer,
// data_processor, and task_manager.
type AgentConfig struct {
	// ID is the unique agent id.
	ID string `yaml:"id" json:"id" jsonschema:"title=ID,description=Unique agent id"`

	// Class names the registered factory used to construct the agent.
	Class string `yaml:"class" json:"class" jsonschema:"title=Class,description=Factory class name"`

	// Version of the agent implementation, free form.
	Version string `yaml:"version,omitempty" json:"version,omitempty" jsonschema:"title=Version,description=Implementation version"`

	// Description shows up in introspection listings.
	Description string `yaml:"description,omitempty" json:"description,omitempty" jsonschema:"title=Description,description=Human readable summary"`

	// Enabled removes the agent from dispatch when false.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled,description=Available for dispatch,default=true"`

	// AllowedTools whitelists tool ids this agent may call. Empty
	// means every enabled tool.
	AllowedTools []string `yaml:"allowed_tools,omitempty" json:"allowed_tools,omitempty" jsonschema:"title=Allowed Tools,description=Tool ids the agent may call (empty = all)"`

	// AllowedSubagents whitelists agent ids this agent may delegate
	// to. Empty means every enabled agent.
	AllowedSubagents []string `yaml:"allowed_subagents,omitempty" json:"allowed_subagents,omitempty" jsonschema:"title=Allowed Subagents,description=Agent ids the agent may call (empty = all)"`

	// Routing tunes how the decision engine scores this agent.
	Routing RoutingConfig `yaml:"routing,omitempty" json:"routing,omitempty" jsonschema:"title=Routing,description=Decision engine hints"`

	// Permissions gate what the agent implementation may do.
	Permissions PermissionsConfig `yaml:"permissions,omitempty" json:"permissions,omitempty" jsonschema:"title=Permissions,description=Capability grants"`

	// MCPPreference biases provider selection for this agent's own
	// LLM calls toward local or cloud endpoints.
	MCPPreference ProviderKind `yaml:"mcp_preference,omitempty" json:"mcp_preference,omitempty" jsonschema:"title=MCP Preference,description=Provider locality bias,enum=local,enum=cloud"`

	// FallbackAllowed lets a failed agent invocation degrade to a
	// plain LLM answer instead of an error response.
	FallbackAllowed *bool `yaml:"fallback_allowed,omitempty" json:"fallback_allowed,omitempty" jsonschema:"title=Fallback Allowed,description=Degrade to plain LLM on failure,default=true"`

	// Sequence names a tool sequence the agent runs as its body.
	// Built-in agent classes may ignore it.
	Sequence string `yaml:"sequence,omitempty" json:"sequence,omitempty" jsonschema:"title=Sequence,description=Tool sequence executed by the agent"`
}

// RoutingConfig carries decision hints for one agent.
type RoutingConfig struct {
	// Keywords bias rule matching toward this agent.
	Keywords []string `yaml:"keywords,omitempty" json:"keywords,omitempty" jsonschema:"title=Keywords,description=Message keywords that suggest this agent"`

	// Priority breaks ties between matching agents; lower wins.
	Priority int `yaml:"priority,omitempty" json:"priority,omitempty" jsonschema:"title=Priority,description=Tie-break order (lower wins),default=100"`

	// MinConfidence rejects dispatches scored below it.
	MinConfidence float64 `yaml:"min_confidence,omitempty" json:"min_confidence,omitempty" jsonschema:"title=Min Confidence,description=Dispatch floor,default=0"`
}

// PermissionsConfig grants capabilities to an agent. Capability grants
// (files, code, network) default to denied; tool and subagent use
// default to granted and are scoped by the whitelists.
type PermissionsConfig struct {
	ReadFile      bool  `yaml:"read_file,omitempty" json:"read_file,omitempty" jsonschema:"title=Read File,description=May read files,default=false"`
	WriteFile     bool  `yaml:"write_file,omitempty" json:"write_file,omitempty" jsonschema:"title=Write File,description=May write files,default=false"`
	ExecuteCode   bool  `yaml:"execute_code,omitempty" json:"execute_code,omitempty" jsonschema:"title=Execute Code,description=May execute code,default=false"`
	Network       bool  `yaml:"network,omitempty" json:"network,omitempty" jsonschema:"title=Network,description=May reach the network,default=false"`
	CallSubagents *bool `yaml:"call_subagents,omitempty" json:"call_subagents,omitempty" jsonschema:"title=Call Subagents,description=May delegate to other agents,default=true"`
	UseTools      *bool `yaml:"use_tools,omitempty" json:"use_tools,omitempty" jsonschema:"title=Use Tools,description=May call tools,default=true"`
}

// MayUseTools reports whether the agent may call tools at all.
func (c *AgentConfig) MayUseTools() bool {
	return BoolValue(c.Permissions.UseTools, true)
}

// MayCallSubagents reports whether the agent may delegate to other
// agents at all.
func (c *AgentConfig) MayCallSubagents() bool {
	return BoolValue(c.Permissions.CallSubagents, true)
}

// SetDefaults applies default values.
func (c *AgentConfig) SetDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.Routing.Priority == 0 {
		c.Routing.Priority = 100
	}
	if c.FallbackAllowed == nil {
		c.FallbackAllowed = BoolPtr(true)
	}
}

// Validate checks field values. References to tools, subagents, and
// sequences are validated at Config level.
func (c *AgentConfig) Validate() error {
	if c.ID == "" {
		return &SchemaError{Path: "agents", Reason: "every agent needs an id"}
	}
	path := "agents." + c.ID
	if c.Class == "" {
		return &SchemaError{Path: path + ".class", Reason: "a factory class is required"}
	}
	switch c.MCPPreference {
	case "", ProviderLocal, ProviderCloud:
		// valid
	default:
		return &SchemaError{Path: path + ".mcp_preference", Reason: "must be local or cloud"}
	}
	if c.Routing.MinConfidence < 0 || c.Routing.MinConfidence > 1 {
		return &SchemaError{Path: path + ".routing.min_confidence", Reason: "must be between 0 and 1"}
	}
	for _, sub := range c.AllowedSubagents {
		if sub == c.ID {
			return &SchemaError{Path: path + ".allowed_subagents", Reason: fmt.Sprintf("agent %q cannot list itself", c.ID)}
		}
	}
	return nil
}

// IsEnabled reports whether the agent may be dispatched to.
func (c *AgentConfig) IsEnabled() bool {
	return BoolValue(c.Enabled, true)
}

// ToolAllowed applies the allowed_tools whitelist; an empty list
// grants everything.
func (c *AgentConfig) ToolAllowed(toolID string) bool {
	if len(c.AllowedTools) == 0 {
		return true
	}
	for _, id := range c.AllowedTools {
		if id == toolID {
			return true
		}
	}
	return false
}

// SubagentAllowed applies the allowed_subagents whitelist; an empty
// list grants everything.
func (c *AgentConfig) SubagentAllowed(agentID string) bool {
	if len(c.AllowedSubagents) == 0 {
		return true
	}
	for _, id := range c.AllowedSubagents {
		if id == agentID {
			return true
		}
	}
	return false
}

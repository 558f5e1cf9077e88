// Package config loads, validates, and serves the configuration
// document that wires the whole core: providers, knowledge bases,
// tools, agents, tool sequences, and the decision engine.
//
// The document is YAML (JSON parses as a YAML subset). Every section
// struct owns its defaults and field checks; the Config root owns
// cross-references between sections. All validation runs at load so
// a request never meets a half-formed component.
package config

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/stentorlabs/stentor/pkg/observability"
)

// Built-in component ids. These register without a config entry, so
// cross-reference validation accepts them everywhere a declared id is
// accepted.
var (
	BuiltinToolIDs      = []string{"calculator", "file_reader", "json_parser", "text_transformer"}
	BuiltinAgentClasses = []string{"code_analyzer", "data_processor", "task_manager"}
)

// Config is the root of the configuration document.
type Config struct {
	// System holds process-wide settings.
	System SystemConfig `yaml:"system,omitempty" json:"system,omitempty" jsonschema:"title=System,description=Process-wide settings"`

	// Providers is the LLM cascade, in declaration order.
	Providers []*ProviderConfig `yaml:"providers,omitempty" json:"providers,omitempty" jsonschema:"title=Providers,description=LLM provider cascade"`

	// KnowledgeBases available to retrieval.
	KnowledgeBases []*KnowledgeBaseConfig `yaml:"knowledge_bases,omitempty" json:"knowledge_bases,omitempty" jsonschema:"title=Knowledge Bases,description=Vector knowledge bases"`

	// Tools declared beyond the built-ins, or overriding them.
	Tools []*ToolConfig `yaml:"tools,omitempty" json:"tools,omitempty" jsonschema:"title=Tools,description=Tool registrations"`

	// Agents available to dispatch.
	Agents []*AgentConfig `yaml:"agents,omitempty" json:"agents,omitempty" jsonschema:"title=Agents,description=Agent registrations"`

	// Sequences are named tool chains.
	Sequences []*SequenceConfig `yaml:"tool_sequences,omitempty" json:"tool_sequences,omitempty" jsonschema:"title=Tool Sequences,description=Named tool chains"`

	// Decision tunes message routing.
	Decision DecisionConfig `yaml:"decision,omitempty" json:"decision,omitempty" jsonschema:"title=Decision,description=Routing settings"`

	// History tunes per-session conversation memory.
	History HistoryConfig `yaml:"history,omitempty" json:"history,omitempty" jsonschema:"title=History,description=Conversation memory settings"`

	// Retrieval tunes the RAG pipeline.
	Retrieval RetrievalConfig `yaml:"retrieval,omitempty" json:"retrieval,omitempty" jsonschema:"title=Retrieval,description=RAG settings"`

	// Logging tunes the event log and console.
	Logging LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" jsonschema:"title=Logging,description=Log settings"`

	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server,omitempty" json:"server,omitempty" jsonschema:"title=Server,description=HTTP listener settings"`

	// Observability configures tracing and the metrics endpoint.
	Observability *observability.Config `yaml:"observability,omitempty" json:"observability,omitempty" jsonschema:"title=Observability,description=Tracing and metrics"`
}

// ProcessConfigPipeline normalizes, defaults, and validates a config
// in one pass. Loaders call it on every load and reload; nothing
// downstream sees a config that has not been through it.
func ProcessConfigPipeline(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.System.SetDefaults()
	c.Decision.SetDefaults()
	c.History.SetDefaults()
	c.Retrieval.SetDefaults()
	c.Logging.SetDefaults()
	c.Server.SetDefaults()
	for _, p := range c.Providers {
		p.SetDefaults()
	}
	for _, kb := range c.KnowledgeBases {
		kb.SetDefaults()
	}
	for _, t := range c.Tools {
		t.SetDefaults()
	}
	for _, a := range c.Agents {
		a.SetDefaults()
	}
	for _, s := range c.Sequences {
		s.SetDefaults()
	}
	if c.Observability != nil {
		if c.Observability.Tracing.ServiceName == "" {
			c.Observability.Tracing.ServiceName = c.System.Name
		}
		if c.Observability.Tracing.ServiceVersion == "" {
			c.Observability.Tracing.ServiceVersion = c.System.Version
		}
		c.Observability.SetDefaults()
	}
}

// Validate checks every section and then the references between them.
func (c *Config) Validate() error {
	if err := c.System.Validate(); err != nil {
		return err
	}
	if err := c.Decision.Validate(); err != nil {
		return err
	}
	if err := c.History.Validate(); err != nil {
		return err
	}
	if err := c.Retrieval.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if c.Observability != nil {
		if err := c.Observability.Validate(); err != nil {
			return &SchemaError{Path: "observability", Reason: err.Error()}
		}
	}

	providers := make(map[string]*ProviderConfig, len(c.Providers))
	for _, p := range c.Providers {
		if err := p.Validate(); err != nil {
			return err
		}
		if _, dup := providers[p.ID]; dup {
			return &SchemaError{Path: "providers." + p.ID, Reason: "duplicate id"}
		}
		providers[p.ID] = p
	}

	kbs := make(map[string]*KnowledgeBaseConfig, len(c.KnowledgeBases))
	for _, kb := range c.KnowledgeBases {
		if err := kb.Validate(); err != nil {
			return err
		}
		if _, dup := kbs[kb.ID]; dup {
			return &SchemaError{Path: "knowledge_bases." + kb.ID, Reason: "duplicate id"}
		}
		kbs[kb.ID] = kb
	}

	tools := make(map[string]*ToolConfig, len(c.Tools))
	for _, t := range c.Tools {
		if err := t.Validate(); err != nil {
			return err
		}
		if _, dup := tools[t.ID]; dup {
			return &SchemaError{Path: "tools." + t.ID, Reason: "duplicate id"}
		}
		tools[t.ID] = t
	}

	agents := make(map[string]*AgentConfig, len(c.Agents))
	for _, a := range c.Agents {
		if err := a.Validate(); err != nil {
			return err
		}
		if _, dup := agents[a.ID]; dup {
			return &SchemaError{Path: "agents." + a.ID, Reason: "duplicate id"}
		}
		agents[a.ID] = a
	}

	sequences := make(map[string]*SequenceConfig, len(c.Sequences))
	for _, s := range c.Sequences {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, dup := sequences[s.ID]; dup {
			return &SchemaError{Path: "tool_sequences." + s.ID, Reason: "duplicate id"}
		}
		sequences[s.ID] = s
	}

	if err := c.validateReferences(providers, kbs, tools, agents, sequences); err != nil {
		return err
	}
	return c.validateFallbackGraph(providers)
}

// toolKnown accepts declared tools and the built-in set.
func (c *Config) toolKnown(tools map[string]*ToolConfig, id string) (known, enabled bool) {
	if t, ok := tools[id]; ok {
		return true, t.IsEnabled()
	}
	for _, b := range BuiltinToolIDs {
		if b == id {
			return true, true
		}
	}
	return false, false
}

func (c *Config) validateReferences(
	providers map[string]*ProviderConfig,
	kbs map[string]*KnowledgeBaseConfig,
	tools map[string]*ToolConfig,
	agents map[string]*AgentConfig,
	sequences map[string]*SequenceConfig,
) error {
	providerRef := func(from, id string) error {
		p, ok := providers[id]
		if !ok {
			return &DanglingReferenceError{From: from, To: "provider " + id}
		}
		if !p.IsEnabled() {
			return &SchemaError{Path: from, Reason: fmt.Sprintf("provider %q is disabled", id)}
		}
		return nil
	}

	for _, p := range c.Providers {
		if p.Fallback != "" {
			if err := providerRef("providers."+p.ID+".fallback", p.Fallback); err != nil {
				return err
			}
		}
	}

	for _, kb := range c.KnowledgeBases {
		from := "knowledge_bases." + kb.ID + ".embedding"
		if err := providerRef(from+".provider", kb.Embedding.Provider); err != nil {
			return err
		}
		for _, fb := range kb.Embedding.Fallbacks {
			if err := providerRef(from+".fallbacks", fb); err != nil {
				return err
			}
		}
	}

	for _, a := range c.Agents {
		from := "agents." + a.ID
		for _, toolID := range a.AllowedTools {
			known, enabled := c.toolKnown(tools, toolID)
			if !known {
				return &DanglingReferenceError{From: from + ".allowed_tools", To: "tool " + toolID}
			}
			if !enabled {
				return &SchemaError{Path: from + ".allowed_tools", Reason: fmt.Sprintf("tool %q is disabled", toolID)}
			}
		}
		for _, subID := range a.AllowedSubagents {
			sub, ok := agents[subID]
			if !ok {
				return &DanglingReferenceError{From: from + ".allowed_subagents", To: "agent " + subID}
			}
			if !sub.IsEnabled() {
				return &SchemaError{Path: from + ".allowed_subagents", Reason: fmt.Sprintf("agent %q is disabled", subID)}
			}
		}
		if a.Sequence != "" {
			seq, ok := sequences[a.Sequence]
			if !ok {
				return &DanglingReferenceError{From: from + ".sequence", To: "tool_sequence " + a.Sequence}
			}
			if !seq.IsEnabled() {
				return &SchemaError{Path: from + ".sequence", Reason: fmt.Sprintf("sequence %q is disabled", a.Sequence)}
			}
		}
	}

	for _, s := range c.Sequences {
		for i := range s.Steps {
			step := &s.Steps[i]
			from := fmt.Sprintf("tool_sequences.%s.steps[%d]", s.ID, i)
			if step.ToolID != "" {
				known, enabled := c.toolKnown(tools, step.ToolID)
				if !known {
					return &DanglingReferenceError{From: from + ".tool_id", To: "tool " + step.ToolID}
				}
				if !enabled {
					return &SchemaError{Path: from + ".tool_id", Reason: fmt.Sprintf("tool %q is disabled", step.ToolID)}
				}
			}
			if step.MCPID != "" {
				if err := providerRef(from+".mcp_id", step.MCPID); err != nil {
					return err
				}
			}
			if step.FallbackMCPID != "" {
				if err := providerRef(from+".fallback_mcp_id", step.FallbackMCPID); err != nil {
					return err
				}
			}
		}
	}

	for i, rule := range c.Decision.Rules {
		from := fmt.Sprintf("decision.rules[%d]", i)
		if rule.Strategy == "agent" {
			a, ok := agents[rule.Agent]
			if !ok {
				return &DanglingReferenceError{From: from, To: "agent " + rule.Agent}
			}
			if !a.IsEnabled() {
				return &SchemaError{Path: from, Reason: fmt.Sprintf("agent %q is disabled", rule.Agent)}
			}
		}
		if rule.Strategy == "tool" {
			known, enabled := c.toolKnown(tools, rule.Tool)
			if !known {
				return &DanglingReferenceError{From: from, To: "tool " + rule.Tool}
			}
			if !enabled {
				return &SchemaError{Path: from, Reason: fmt.Sprintf("tool %q is disabled", rule.Tool)}
			}
		}
	}

	// Conflicting tools cannot both be enabled; a disabled tool that
	// an enabled component requires is equally a dead configuration.
	for _, t := range c.Tools {
		if !t.IsEnabled() {
			for _, needer := range t.RequiredBy {
				if a, ok := agents[needer]; ok && a.IsEnabled() {
					return &SchemaError{
						Path:   "tools." + t.ID,
						Reason: fmt.Sprintf("disabled but required by enabled agent %q", needer),
					}
				}
				if s, ok := sequences[needer]; ok && s.IsEnabled() {
					return &SchemaError{
						Path:   "tools." + t.ID,
						Reason: fmt.Sprintf("disabled but required by enabled sequence %q", needer),
					}
				}
			}
			continue
		}
		for _, other := range t.ConflictsWith {
			if o, ok := tools[other]; ok && o.IsEnabled() {
				return &SchemaError{
					Path:   "tools." + t.ID,
					Reason: fmt.Sprintf("conflicts with enabled tool %q", other),
				}
			}
		}
	}
	return nil
}

// validateFallbackGraph walks provider fallback edges depth-first and
// reports the first cycle with its full path.
func (c *Config) validateFallbackGraph(providers map[string]*ProviderConfig) error {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // fully explored
	)
	state := make(map[string]int, len(providers))

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		switch state[id] {
		case gray:
			// Trim the path to the loop itself and close it.
			start := 0
			for i, pid := range path {
				if pid == id {
					start = i
					break
				}
			}
			return &CycleError{Path: append(append([]string{}, path[start:]...), id)}
		case black:
			return nil
		}
		state[id] = gray
		p := providers[id]
		if p != nil && p.Fallback != "" {
			if _, ok := providers[p.Fallback]; ok {
				if err := visit(p.Fallback, append(path, id)); err != nil {
					return err
				}
			}
		}
		state[id] = black
		return nil
	}

	for _, p := range c.Providers {
		if err := visit(p.ID, nil); err != nil {
			return err
		}
	}
	return nil
}

// ProviderByID finds a provider, enabled or not.
func (c *Config) ProviderByID(id string) (*ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// ToolByID finds a declared tool entry; built-ins without an entry
// return false.
func (c *Config) ToolByID(id string) (*ToolConfig, bool) {
	for _, t := range c.Tools {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// AgentByID finds a declared agent.
func (c *Config) AgentByID(id string) (*AgentConfig, bool) {
	for _, a := range c.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return nil, false
}

// SequenceByID finds a declared sequence.
func (c *Config) SequenceByID(id string) (*SequenceConfig, bool) {
	for _, s := range c.Sequences {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// KnowledgeBaseByID finds a declared knowledge base.
func (c *Config) KnowledgeBaseByID(id string) (*KnowledgeBaseConfig, bool) {
	for _, kb := range c.KnowledgeBases {
		if kb.ID == id {
			return kb, true
		}
	}
	return nil, false
}

// CascadeOrder returns the enabled providers in walk order: primary
// first, then ascending priority, then declaration order. The sort is
// stable, so equal keys keep their declared positions.
func (c *Config) CascadeOrder() []*ProviderConfig {
	var out []*ProviderConfig
	for _, p := range c.Providers {
		if p.IsEnabled() {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Primary != out[j].Primary {
			return out[i].Primary
		}
		return out[i].Priority < out[j].Priority
	})
	return out
}

// ToYAML serializes the config. A document written here reloads to an
// equivalent Config.
func (c *Config) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FromYAML parses and fully processes a config document.
func FromYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ParseError{Source: "yaml", Err: err}
	}
	return ProcessConfigPipeline(cfg)
}

package config

import (
	"fmt"
	"regexp"
)

// BoolPtr returns a pointer to the given bool value.
func BoolPtr(b bool) *bool {
	return &b
}

// BoolValue returns the value of the bool pointer, or the default if nil.
func BoolValue(b *bool, defaultValue bool) bool {
	if b == nil {
		return defaultValue
	}
	return *b
}

// SystemConfig holds process-wide settings.
type SystemConfig struct {
	// Name of the deployment, used as the tracing service name.
	Name string `yaml:"name,omitempty" json:"name,omitempty" jsonschema:"title=Name,description=Deployment name"`

	// Version string reported by /health.
	Version string `yaml:"version,omitempty" json:"version,omitempty" jsonschema:"title=Version,description=Deployment version"`

	// Environment label (development, production, test).
	Environment string `yaml:"environment,omitempty" json:"environment,omitempty" jsonschema:"title=Environment,description=Deployment environment,enum=development,enum=production,enum=test,default=development"`

	// Strict rejects configuration documents containing unknown keys.
	Strict *bool `yaml:"strict,omitempty" json:"strict,omitempty" jsonschema:"title=Strict,description=Reject unknown configuration keys,default=true"`

	// HotReload re-reads the source when it changes and swaps the
	// active configuration atomically if the new document validates.
	HotReload bool `yaml:"hot_reload,omitempty" json:"hot_reload,omitempty" jsonschema:"title=Hot Reload,description=Watch the source and reload on change,default=false"`

	// RequestTimeoutMS bounds one chat request end to end.
	RequestTimeoutMS int `yaml:"request_timeout_ms,omitempty" json:"request_timeout_ms,omitempty" jsonschema:"title=Request Timeout,description=End-to-end request timeout in milliseconds,default=60000"`

	// CascadeTimeoutMS bounds one full provider cascade walk. Zero
	// means the walk is bounded only by the request timeout.
	CascadeTimeoutMS int `yaml:"cascade_timeout_ms,omitempty" json:"cascade_timeout_ms,omitempty" jsonschema:"title=Cascade Timeout,description=Provider cascade walk timeout in milliseconds"`

	// DebugLogs includes recent log entries in chat responses.
	DebugLogs bool `yaml:"debug_logs,omitempty" json:"debug_logs,omitempty" jsonschema:"title=Debug Logs,description=Attach recent logs to chat responses,default=false"`
}

// SetDefaults applies default values.
func (c *SystemConfig) SetDefaults() {
	if c.Name == "" {
		c.Name = "stentor"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Strict == nil {
		c.Strict = BoolPtr(true)
	}
	if c.RequestTimeoutMS <= 0 {
		c.RequestTimeoutMS = 60000
	}
}

// Validate checks field values.
func (c *SystemConfig) Validate() error {
	switch c.Environment {
	case "development", "production", "test":
		// valid
	default:
		return &SchemaError{Path: "system.environment", Reason: "must be development, production, or test"}
	}
	return nil
}

// HistoryConfig controls per-session conversation history.
type HistoryConfig struct {
	// MaxTurns caps stored turns per session; older turns are evicted.
	MaxTurns int `yaml:"max_turns,omitempty" json:"max_turns,omitempty" jsonschema:"title=Max Turns,description=Turns kept per session,default=20"`

	// SessionPolicy decides what happens to a request arriving while
	// another request in the same session is still running.
	SessionPolicy string `yaml:"session_policy,omitempty" json:"session_policy,omitempty" jsonschema:"title=Session Policy,description=Concurrent request handling per session,enum=queue,enum=reject,default=queue"`

	// MaxQueue bounds the per-session wait queue under the queue policy.
	MaxQueue int `yaml:"max_queue,omitempty" json:"max_queue,omitempty" jsonschema:"title=Max Queue,description=Queued requests allowed per session,default=16"`
}

// SetDefaults applies default values.
func (c *HistoryConfig) SetDefaults() {
	if c.MaxTurns <= 0 {
		c.MaxTurns = 20
	}
	if c.SessionPolicy == "" {
		c.SessionPolicy = "queue"
	}
	if c.MaxQueue <= 0 {
		c.MaxQueue = 16
	}
}

// Validate checks field values.
func (c *HistoryConfig) Validate() error {
	switch c.SessionPolicy {
	case "queue", "reject":
		// valid
	default:
		return &SchemaError{Path: "history.session_policy", Reason: "must be queue or reject"}
	}
	return nil
}

// RetrievalConfig holds defaults for knowledge base retrieval. A
// knowledge base may override top_k and score_threshold locally.
type RetrievalConfig struct {
	// TopK is the number of chunks requested from the vector store.
	TopK int `yaml:"top_k,omitempty" json:"top_k,omitempty" jsonschema:"title=Top K,description=Chunks requested per query,default=5"`

	// ScoreThreshold drops chunks scoring below it.
	ScoreThreshold float64 `yaml:"score_threshold,omitempty" json:"score_threshold,omitempty" jsonschema:"title=Score Threshold,description=Minimum similarity score,default=0.7"`

	// EmbeddingCacheSize is the LRU capacity for query embeddings.
	EmbeddingCacheSize int `yaml:"embedding_cache_size,omitempty" json:"embedding_cache_size,omitempty" jsonschema:"title=Embedding Cache Size,description=Cached query embeddings,default=256"`

	// ContextBudgetTokens caps the assembled context size.
	ContextBudgetTokens int `yaml:"context_budget_tokens,omitempty" json:"context_budget_tokens,omitempty" jsonschema:"title=Context Budget,description=Token budget for assembled context,default=2048"`

	// TokenizerModel picks the encoding used to count context tokens.
	TokenizerModel string `yaml:"tokenizer_model,omitempty" json:"tokenizer_model,omitempty" jsonschema:"title=Tokenizer Model,description=Model whose tokenizer counts context tokens,default=gpt-4"`

	// DegradeToLLM answers RAG-routed requests without context when
	// retrieval fails, instead of failing the request.
	DegradeToLLM *bool `yaml:"rag_degrade_to_llm,omitempty" json:"rag_degrade_to_llm,omitempty" jsonschema:"title=Degrade To LLM,description=Fall back to plain LLM when retrieval fails,default=true"`
}

// SetDefaults applies default values.
func (c *RetrievalConfig) SetDefaults() {
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.ScoreThreshold == 0 {
		c.ScoreThreshold = 0.7
	}
	if c.EmbeddingCacheSize <= 0 {
		c.EmbeddingCacheSize = 256
	}
	if c.ContextBudgetTokens <= 0 {
		c.ContextBudgetTokens = 2048
	}
	if c.TokenizerModel == "" {
		c.TokenizerModel = "gpt-4"
	}
	if c.DegradeToLLM == nil {
		c.DegradeToLLM = BoolPtr(true)
	}
}

// Validate checks field values.
func (c *RetrievalConfig) Validate() error {
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return &SchemaError{Path: "retrieval.score_threshold", Reason: "must be between 0 and 1"}
	}
	return nil
}

// LoggingConfig controls the event log and console output.
type LoggingConfig struct {
	// RingSize is the in-memory log buffer capacity.
	RingSize int `yaml:"ring_size,omitempty" json:"ring_size,omitempty" jsonschema:"title=Ring Size,description=In-memory log entries kept,default=10000"`

	// Level gates console output only. The ring and the SSE stream
	// always receive every entry.
	Level string `yaml:"level,omitempty" json:"level,omitempty" jsonschema:"title=Level,description=Console log level,enum=debug,enum=info,enum=warn,enum=error,default=info"`

	// Format selects the console line layout.
	Format string `yaml:"format,omitempty" json:"format,omitempty" jsonschema:"title=Format,description=Console format,enum=simple,enum=verbose,default=simple"`

	// Colorize turns ANSI colors on for terminal output.
	Colorize *bool `yaml:"colorize,omitempty" json:"colorize,omitempty" jsonschema:"title=Colorize,description=ANSI colors on terminals,default=true"`
}

// SetDefaults applies default values.
func (c *LoggingConfig) SetDefaults() {
	if c.RingSize <= 0 {
		c.RingSize = 10000
	}
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
	if c.Colorize == nil {
		c.Colorize = BoolPtr(true)
	}
}

// Validate checks field values.
func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "warning", "error":
		// valid
	default:
		return &SchemaError{Path: "logging.level", Reason: "must be debug, info, warn, or error"}
	}
	switch c.Format {
	case "simple", "verbose":
		// valid
	default:
		return &SchemaError{Path: "logging.format", Reason: "must be simple or verbose"}
	}
	return nil
}

// DecisionConfig controls how incoming messages are routed.
type DecisionConfig struct {
	// ConfidenceThreshold is the score below which the engine escalates
	// a rule match to LLM-assisted classification.
	ConfidenceThreshold float64 `yaml:"confidence_threshold,omitempty" json:"confidence_threshold,omitempty" jsonschema:"title=Confidence Threshold,description=Minimum rule confidence before LLM escalation,default=0.7"`

	// LLMAssisted enables the escalation phase. When off, low
	// confidence matches are used as-is.
	LLMAssisted *bool `yaml:"llm_assisted,omitempty" json:"llm_assisted,omitempty" jsonschema:"title=LLM Assisted,description=Escalate low-confidence routing to an LLM,default=true"`

	// Rules run before the built-in seed rules, in declaration order.
	Rules []RuleConfig `yaml:"rules,omitempty" json:"rules,omitempty" jsonschema:"title=Rules,description=Custom routing rules"`

	// ReplaceBuiltinRules drops the seed rules entirely.
	ReplaceBuiltinRules bool `yaml:"replace_builtin_rules,omitempty" json:"replace_builtin_rules,omitempty" jsonschema:"title=Replace Builtin Rules,description=Use only the configured rules,default=false"`

	// CacheTTLSeconds is how long a routing decision stays cached.
	CacheTTLSeconds int `yaml:"cache_ttl_s,omitempty" json:"cache_ttl_s,omitempty" jsonschema:"title=Cache TTL,description=Decision cache entry lifetime in seconds,default=300"`

	// CacheSize is the decision cache capacity.
	CacheSize int `yaml:"cache_size,omitempty" json:"cache_size,omitempty" jsonschema:"title=Cache Size,description=Decision cache entries kept,default=512"`
}

// RuleConfig is one pattern-based routing rule. Named capture groups
// in the pattern become extracted parameters on the decision.
type RuleConfig struct {
	// Pattern is a Go regular expression matched against the message.
	Pattern string `yaml:"pattern" json:"pattern" jsonschema:"title=Pattern,description=Regular expression matched against the message"`

	// Strategy is the route taken when the pattern matches.
	Strategy string `yaml:"strategy" json:"strategy" jsonschema:"title=Strategy,description=Routing strategy,enum=llm,enum=rag,enum=agent,enum=tool"`

	// Confidence assigned to a match.
	Confidence float64 `yaml:"confidence,omitempty" json:"confidence,omitempty" jsonschema:"title=Confidence,description=Confidence score for a match,default=0.9"`

	// Agent names the target for the agent strategy.
	Agent string `yaml:"agent,omitempty" json:"agent,omitempty" jsonschema:"title=Agent,description=Agent id for the agent strategy"`

	// Tool names the target for the tool strategy.
	Tool string `yaml:"tool,omitempty" json:"tool,omitempty" jsonschema:"title=Tool,description=Tool id for the tool strategy"`

	// Reasoning is attached to decisions made by this rule.
	Reasoning string `yaml:"reasoning,omitempty" json:"reasoning,omitempty" jsonschema:"title=Reasoning,description=Explanation recorded on matching decisions"`
}

// SetDefaults applies default values.
func (c *DecisionConfig) SetDefaults() {
	if c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = 0.7
	}
	if c.LLMAssisted == nil {
		c.LLMAssisted = BoolPtr(true)
	}
	if c.CacheTTLSeconds <= 0 {
		c.CacheTTLSeconds = 300
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 512
	}
	for i := range c.Rules {
		if c.Rules[i].Confidence == 0 {
			c.Rules[i].Confidence = 0.9
		}
	}
}

// Validate checks field values. Patterns compile here so a bad
// expression fails the load, not the first request.
func (c *DecisionConfig) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return &SchemaError{Path: "decision.confidence_threshold", Reason: "must be between 0 and 1"}
	}
	for i, rule := range c.Rules {
		if err := rule.Validate(); err != nil {
			return &SchemaError{Path: fmt.Sprintf("decision.rules[%d]", i), Reason: err.Error()}
		}
	}
	return nil
}

// Validate checks a single rule.
func (c *RuleConfig) Validate() error {
	if c.Pattern == "" {
		return fmt.Errorf("pattern is required")
	}
	if _, err := regexp.Compile(c.Pattern); err != nil {
		return fmt.Errorf("invalid pattern: %v", err)
	}
	switch c.Strategy {
	case "llm", "rag", "agent", "tool":
		// valid
	default:
		return fmt.Errorf("invalid strategy %q (must be llm, rag, agent, or tool)", c.Strategy)
	}
	if c.Strategy == "agent" && c.Agent == "" {
		return fmt.Errorf("agent strategy needs an agent id")
	}
	if c.Strategy == "tool" && c.Tool == "" {
		return fmt.Errorf("tool strategy needs a tool id")
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1")
	}
	return nil
}

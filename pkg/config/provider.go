package config

// ProviderKind distinguishes where a provider runs.
type ProviderKind string

const (
	ProviderLocal ProviderKind = "local"
	ProviderCloud ProviderKind = "cloud"
)

// AdapterName identifies the wire protocol spoken to a provider.
type AdapterName string

const (
	AdapterOllama    AdapterName = "ollama"
	AdapterOpenAI    AdapterName = "openai"
	AdapterAnthropic AdapterName = "anthropic"
	AdapterGemini    AdapterName = "gemini"
)

// ProviderConfig describes one LLM endpoint in the cascade. The
// providers section is a list; declaration order is cascade order,
// refined by primary and priority.
type ProviderConfig struct {
	// ID is the unique provider id referenced everywhere else.
	ID string `yaml:"id" json:"id" jsonschema:"title=ID,description=Unique provider id"`

	// Type says whether the endpoint is local or cloud hosted.
	Type ProviderKind `yaml:"type,omitempty" json:"type,omitempty" jsonschema:"title=Type,description=Provider locality,enum=local,enum=cloud,default=cloud"`

	// Adapter selects the wire protocol.
	Adapter AdapterName `yaml:"adapter" json:"adapter" jsonschema:"title=Adapter,description=Wire protocol,enum=ollama,enum=openai,enum=anthropic,enum=gemini"`

	// BaseURL overrides the adapter's default endpoint.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty" jsonschema:"title=Base URL,description=Custom endpoint URL"`

	// Models the provider serves, tried in order after DefaultModel.
	Models []string `yaml:"models,omitempty" json:"models,omitempty" jsonschema:"title=Models,description=Models served by this provider"`

	// DefaultModel is tried first on every call.
	DefaultModel string `yaml:"default_model,omitempty" json:"default_model,omitempty" jsonschema:"title=Default Model,description=Model tried first"`

	// APIKey authenticates cloud providers. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" jsonschema:"title=API Key,description=API key (use ${ENV_VAR})"`

	// Primary pins this provider to the front of the cascade.
	Primary bool `yaml:"primary,omitempty" json:"primary,omitempty" jsonschema:"title=Primary,description=Walk this provider first,default=false"`

	// Priority orders providers after the primary; lower runs earlier.
	// Equal priorities keep declaration order.
	Priority int `yaml:"priority,omitempty" json:"priority,omitempty" jsonschema:"title=Priority,description=Cascade position (lower is earlier),default=100"`

	// Enabled removes the provider from the cascade when false.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled,description=Include in the cascade,default=true"`

	// TimeoutMS bounds one generation attempt against this provider.
	TimeoutMS int `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty" jsonschema:"title=Timeout,description=Per-attempt timeout in milliseconds,default=15000"`

	// Temperature for generation.
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty" jsonschema:"title=Temperature,description=Sampling temperature,minimum=0,maximum=2,default=0.7"`

	// MaxTokens limits response length.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty" jsonschema:"title=Max Tokens,description=Maximum tokens to generate,default=4096"`

	// Fallback names the provider tried when this one is exhausted,
	// overriding plain list order for this hop.
	Fallback string `yaml:"fallback,omitempty" json:"fallback,omitempty" jsonschema:"title=Fallback,description=Provider id tried after this one"`

	// HealthCheck probes the endpoint in the background.
	HealthCheck HealthCheckConfig `yaml:"health_check,omitempty" json:"health_check,omitempty" jsonschema:"title=Health Check,description=Background endpoint probe"`

	// CircuitBreaker protects the cascade from a failing endpoint.
	CircuitBreaker BreakerConfig `yaml:"circuit_breaker,omitempty" json:"circuit_breaker,omitempty" jsonschema:"title=Circuit Breaker,description=Failure isolation settings"`
}

// HealthCheckConfig controls the background endpoint probe.
type HealthCheckConfig struct {
	// Enabled turns the probe on.
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled,description=Probe the endpoint periodically,default=false"`

	// IntervalMS between probes.
	IntervalMS int `yaml:"interval_ms,omitempty" json:"interval_ms,omitempty" jsonschema:"title=Interval,description=Probe interval in milliseconds,default=30000"`

	// TimeoutMS bounds one probe.
	TimeoutMS int `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty" jsonschema:"title=Timeout,description=Probe timeout in milliseconds,default=5000"`
}

// BreakerConfig holds circuit breaker thresholds for one provider.
type BreakerConfig struct {
	// FailureThreshold is consecutive failures before the breaker opens.
	FailureThreshold int `yaml:"failure_threshold,omitempty" json:"failure_threshold,omitempty" jsonschema:"title=Failure Threshold,description=Consecutive failures before opening,default=3"`

	// SuccessThreshold is half-open successes before the breaker closes.
	SuccessThreshold int `yaml:"success_threshold,omitempty" json:"success_threshold,omitempty" jsonschema:"title=Success Threshold,description=Half-open successes before closing,default=1"`

	// OpenTimeoutMS is how long an open breaker rejects before it
	// admits a half-open trial call.
	OpenTimeoutMS int `yaml:"open_timeout_ms,omitempty" json:"open_timeout_ms,omitempty" jsonschema:"title=Open Timeout,description=Milliseconds before a half-open trial,default=30000"`
}

// SetDefaults applies default values.
func (c *ProviderConfig) SetDefaults() {
	if c.Type == "" {
		if c.Adapter == AdapterOllama {
			c.Type = ProviderLocal
		} else {
			c.Type = ProviderCloud
		}
	}
	if c.Priority == 0 {
		c.Priority = 100
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 15000
	}
	if c.Temperature == nil {
		temp := 0.7
		c.Temperature = &temp
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	if c.DefaultModel == "" && len(c.Models) > 0 {
		c.DefaultModel = c.Models[0]
	}
	c.HealthCheck.SetDefaults()
	c.CircuitBreaker.SetDefaults()
}

// SetDefaults applies default values.
func (c *HealthCheckConfig) SetDefaults() {
	if c.IntervalMS <= 0 {
		c.IntervalMS = 30000
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 5000
	}
}

// SetDefaults applies default values.
func (c *BreakerConfig) SetDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	if c.OpenTimeoutMS <= 0 {
		c.OpenTimeoutMS = 30000
	}
}

// Validate checks field values. Cross-references to other providers
// are validated at Config level.
func (c *ProviderConfig) Validate() error {
	if c.ID == "" {
		return &SchemaError{Path: "providers", Reason: "every provider needs an id"}
	}
	switch c.Type {
	case ProviderLocal, ProviderCloud:
		// valid
	default:
		return &SchemaError{Path: "providers." + c.ID + ".type", Reason: "must be local or cloud"}
	}
	switch c.Adapter {
	case AdapterOllama, AdapterOpenAI, AdapterAnthropic, AdapterGemini:
		// valid
	default:
		return &SchemaError{Path: "providers." + c.ID + ".adapter", Reason: "must be ollama, openai, anthropic, or gemini"}
	}
	if c.DefaultModel == "" {
		return &SchemaError{Path: "providers." + c.ID, Reason: "needs a default_model or a non-empty models list"}
	}
	if c.Fallback == c.ID && c.Fallback != "" {
		return &SchemaError{Path: "providers." + c.ID + ".fallback", Reason: "provider cannot fall back to itself"}
	}
	return nil
}

// IsEnabled reports whether the provider participates in the cascade.
func (c *ProviderConfig) IsEnabled() bool {
	return BoolValue(c.Enabled, true)
}

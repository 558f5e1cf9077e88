package config

// VectorBackend names a supported vector store implementation.
type VectorBackend string

const (
	BackendChromem  VectorBackend = "chromem"
	BackendQdrant   VectorBackend = "qdrant"
	BackendPinecone VectorBackend = "pinecone"
)

// KnowledgeBaseConfig binds a vector store to an embedding cascade.
type KnowledgeBaseConfig struct {
	// ID is the unique knowledge base id.
	ID string `yaml:"id" json:"id" jsonschema:"title=ID,description=Unique knowledge base id"`

	// Description shows up in introspection listings.
	Description string `yaml:"description,omitempty" json:"description,omitempty" jsonschema:"title=Description,description=Human readable summary"`

	// Enabled removes the knowledge base from retrieval when false.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled,description=Available for retrieval,default=true"`

	// Store selects and configures the vector backend.
	Store StoreConfig `yaml:"store" json:"store" jsonschema:"title=Store,description=Vector store settings"`

	// Embedding configures how query text becomes a vector.
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding" jsonschema:"title=Embedding,description=Embedding cascade settings"`

	// TopK overrides retrieval.top_k for this knowledge base.
	TopK int `yaml:"top_k,omitempty" json:"top_k,omitempty" jsonschema:"title=Top K,description=Chunks requested per query"`

	// ScoreThreshold overrides retrieval.score_threshold.
	ScoreThreshold float64 `yaml:"score_threshold,omitempty" json:"score_threshold,omitempty" jsonschema:"title=Score Threshold,description=Minimum similarity score"`
}

// StoreConfig selects a vector store backend and its address.
type StoreConfig struct {
	// Backend picks the implementation.
	Backend VectorBackend `yaml:"backend" json:"backend" jsonschema:"title=Backend,description=Vector store implementation,enum=chromem,enum=qdrant,enum=pinecone"`

	// Path is the on-disk location for the embedded backend. Empty
	// keeps the store purely in memory.
	Path string `yaml:"path,omitempty" json:"path,omitempty" jsonschema:"title=Path,description=Persistence path (chromem)"`

	// Host of a remote backend.
	Host string `yaml:"host,omitempty" json:"host,omitempty" jsonschema:"title=Host,description=Remote store host (qdrant)"`

	// Port of a remote backend.
	Port int `yaml:"port,omitempty" json:"port,omitempty" jsonschema:"title=Port,description=Remote store port (qdrant),default=6334"`

	// APIKey authenticates managed backends. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" jsonschema:"title=API Key,description=Store API key (pinecone)"`

	// UseTLS enables TLS for remote backends. Managed qdrant rejects
	// API keys sent over plaintext.
	UseTLS bool `yaml:"use_tls,omitempty" json:"use_tls,omitempty" jsonschema:"title=Use TLS,description=Encrypt the store connection,default=false"`

	// Index is the managed index name (pinecone).
	Index string `yaml:"index,omitempty" json:"index,omitempty" jsonschema:"title=Index,description=Index name (pinecone)"`

	// Collection inside the store.
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty" jsonschema:"title=Collection,description=Collection name,default=default"`

	// Dimension of stored vectors.
	Dimension int `yaml:"dimension,omitempty" json:"dimension,omitempty" jsonschema:"title=Dimension,description=Vector dimension,default=768"`

	// Distance metric used for similarity.
	Distance string `yaml:"distance,omitempty" json:"distance,omitempty" jsonschema:"title=Distance,description=Similarity metric,enum=cosine,enum=dot,enum=euclidean,default=cosine"`
}

// EmbeddingConfig names the provider cascade used to embed queries.
type EmbeddingConfig struct {
	// Provider is the primary embedding provider id.
	Provider string `yaml:"provider" json:"provider" jsonschema:"title=Provider,description=Primary embedding provider id"`

	// Model requested from the provider.
	Model string `yaml:"model,omitempty" json:"model,omitempty" jsonschema:"title=Model,description=Embedding model name"`

	// Fallbacks are provider ids tried in order when the primary fails.
	Fallbacks []string `yaml:"fallbacks,omitempty" json:"fallbacks,omitempty" jsonschema:"title=Fallbacks,description=Provider ids tried after the primary"`

	// TimeoutMS bounds one embedding call.
	TimeoutMS int `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty" jsonschema:"title=Timeout,description=Per-call timeout in milliseconds,default=10000"`
}

// SetDefaults applies default values.
func (c *KnowledgeBaseConfig) SetDefaults() {
	c.Store.SetDefaults()
	c.Embedding.SetDefaults()
}

// SetDefaults applies default values.
func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendChromem
	}
	if c.Collection == "" {
		c.Collection = "default"
	}
	if c.Dimension <= 0 {
		c.Dimension = 768
	}
	if c.Distance == "" {
		c.Distance = "cosine"
	}
	if c.Backend == BackendQdrant && c.Port <= 0 {
		c.Port = 6334
	}
}

// SetDefaults applies default values.
func (c *EmbeddingConfig) SetDefaults() {
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 10000
	}
}

// Validate checks field values. Provider references are validated at
// Config level.
func (c *KnowledgeBaseConfig) Validate() error {
	if c.ID == "" {
		return &SchemaError{Path: "knowledge_bases", Reason: "every knowledge base needs an id"}
	}
	path := "knowledge_bases." + c.ID
	switch c.Store.Backend {
	case BackendChromem, BackendQdrant, BackendPinecone:
		// valid
	default:
		return &SchemaError{Path: path + ".store.backend", Reason: "must be chromem, qdrant, or pinecone"}
	}
	switch c.Store.Distance {
	case "cosine", "dot", "euclidean":
		// valid
	default:
		return &SchemaError{Path: path + ".store.distance", Reason: "must be cosine, dot, or euclidean"}
	}
	if c.Store.Backend == BackendQdrant && c.Store.Host == "" {
		return &SchemaError{Path: path + ".store.host", Reason: "qdrant needs a host"}
	}
	if c.Store.Backend == BackendPinecone {
		if c.Store.APIKey == "" {
			return &SchemaError{Path: path + ".store.api_key", Reason: "pinecone needs an api_key"}
		}
		if c.Store.Index == "" {
			return &SchemaError{Path: path + ".store.index", Reason: "pinecone needs an index"}
		}
	}
	if c.Embedding.Provider == "" {
		return &SchemaError{Path: path + ".embedding.provider", Reason: "an embedding provider is required"}
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return &SchemaError{Path: path + ".score_threshold", Reason: "must be between 0 and 1"}
	}
	return nil
}

// IsEnabled reports whether the knowledge base serves retrieval.
func (c *KnowledgeBaseConfig) IsEnabled() bool {
	return BoolValue(c.Enabled, true)
}

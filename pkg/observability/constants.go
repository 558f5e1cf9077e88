package observability

// Span names and attribute keys used across the request path. Keeping
// them here means a rename shows up everywhere at once.
const (
	AttrTraceID            = "chat.trace_id"
	AttrSessionID          = "chat.session_id"
	AttrStrategy           = "decision.strategy"
	AttrConfidence         = "decision.confidence"
	AttrProviderID         = "provider.id"
	AttrLLMModel           = "llm.model"
	AttrLLMTokensInput     = "llm.tokens.input"
	AttrLLMTokensOutput    = "llm.tokens.output"
	AttrToolName           = "tool.name"
	AttrToolAction         = "tool.action"
	AttrAgentID            = "agent.id"
	AttrSequenceID         = "sequence.id"
	AttrStepOrder          = "sequence.step"
	AttrKnowledgeBase      = "rag.knowledge_base"
	AttrRetrievalHits      = "rag.hits"
	AttrErrorType          = "error.type"
	AttrDurationMS         = "duration_ms"
	AttrCircuitState       = "circuit.state"
	AttrEmbeddingModel     = "embedding.model"
	AttrEmbeddingDimension = "embedding.dimension"

	SpanChatRequest   = "chat.request"
	SpanDecision      = "chat.decide"
	SpanLLMRequest    = "llm.request"
	SpanCascadeWalk   = "llm.cascade"
	SpanToolExecution = "tool.execution"
	SpanAgentCall     = "agent.call"
	SpanSequenceRun   = "sequence.run"
	SpanRetrieval     = "rag.retrieval"
	SpanEmbedding     = "rag.embedding"
	SpanVectorSearch  = "rag.vector_search"

	DefaultServiceName  = "stentor"
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"
)

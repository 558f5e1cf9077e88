// Package decision classifies incoming messages into routing
// strategies. Phase A walks an ordered rule list (configured rules
// first, then the built-in seeds) and takes the first match; Phase B
// escalates low-confidence matches to an LLM classifier when enabled.
// Decisions for identical messages are served from an expiring cache.
package decision

// Routing strategies.
const (
	StrategyLLM   = "llm"
	StrategyRAG   = "rag"
	StrategyAgent = "agent"
	StrategyTool  = "tool"
)

// Decision is the routing verdict for one message. Tool decisions
// carry the action and extracted params the dispatcher will execute
// with; agent decisions name the agent. Decisions are read-only once
// issued: cached copies share the Params map.
type Decision struct {
	Strategy   string         `json:"strategy"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning"`
	Tool       string         `json:"tool,omitempty"`
	Action     string         `json:"action,omitempty"`
	Agent      string         `json:"agent,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
	Cached     bool           `json:"cached,omitempty"`
}

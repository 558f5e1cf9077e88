package orchestrator

import (
	"github.com/stentorlabs/stentor/pkg/logger"
)

// Response strategies beyond the four the decision engine issues.
// Commands never reach the decision engine; error marks a request that
// produced no usable answer.
const (
	StrategyCommand = "command"
	StrategyError   = "error"
)

// maxMessageBytes bounds the request message. A message of exactly this
// size is accepted.
const maxMessageBytes = 8192

// internalErrorText is the only text a caller sees for failures that
// are not their fault. Details stay in Error and in the logs.
const internalErrorText = "Sorry, an internal error occurred."

// ChatRequest is one user turn. Debug is set by the transport, not the
// caller payload.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
	Debug     bool   `json:"-"`
}

// RAGHit is one scored snippet behind a retrieval-grounded answer.
type RAGHit struct {
	Score   float32 `json:"score"`
	Snippet string  `json:"snippet"`
}

// ErrorInfo is the structured error attached to failed responses. Kind
// is from the error taxonomy (validation, busy, timeout, provider,
// circuit_open, all_providers_exhausted, permission, tool, agent,
// template, retrieval, internal).
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ChatResponse is the envelope every accepted request produces exactly
// once. SessionID echoes the request's session or carries the freshly
// issued id the caller needs for the next turn.
type ChatResponse struct {
	OK         bool           `json:"ok"`
	Text       string         `json:"text"`
	Strategy   string         `json:"strategy"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning,omitempty"`
	Provider   string         `json:"provider,omitempty"`
	ToolUsed   string         `json:"tool_used,omitempty"`
	AgentUsed  string         `json:"agent_used,omitempty"`
	RAGHits    []RAGHit       `json:"rag_hits,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	TraceID    string         `json:"trace_id"`
	Logs       []logger.Entry `json:"logs,omitempty"`
	Error      *ErrorInfo     `json:"error,omitempty"`
}

package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stentorlabs/stentor/pkg/orchestrator"
)

// maxBodyBytes bounds the /chat request body. The message itself is
// limited to 8 KB downstream; the rest is JSON framing headroom.
const maxBodyBytes = 1 << 20

type chatBody struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var body chatBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, &orchestrator.ChatResponse{
			OK:       false,
			Strategy: orchestrator.StrategyError,
			Text:     "Invalid request body.",
			TraceID:  RequestIDFrom(r.Context()),
			Error:    &orchestrator.ErrorInfo{Kind: "validation", Message: fmt.Sprintf("invalid request body: %v", err)},
		})
		return
	}

	debug := r.URL.Query().Get("debug")
	resp, err := s.chat.Chat(r.Context(), orchestrator.ChatRequest{
		Message:   body.Message,
		SessionID: body.SessionID,
		TraceID:   RequestIDFrom(r.Context()),
		Debug:     debug == "1" || debug == "true",
	})
	if err != nil || resp == nil {
		// The caller cancelled; the connection is gone and there is no
		// one left to answer.
		return
	}

	writeJSON(w, statusFor(resp), resp)
}

// statusFor maps the response envelope onto an HTTP status. The
// envelope stays the single source of truth; the status is a hint for
// plain HTTP clients.
func statusFor(resp *orchestrator.ChatResponse) int {
	if resp.OK || resp.Error == nil {
		return http.StatusOK
	}
	switch resp.Error.Kind {
	case "validation":
		return http.StatusBadRequest
	case "busy":
		return http.StatusTooManyRequests
	case "timeout":
		return http.StatusGatewayTimeout
	case "permission":
		return http.StatusForbidden
	case "provider", "all_providers_exhausted", "circuit_open":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Health(r.Context()))
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	items := s.status.Tools()
	writeJSON(w, http.StatusOK, map[string]any{"count": len(items), "tools": items})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	items := s.status.Agents()
	writeJSON(w, http.StatusOK, map[string]any{"count": len(items), "agents": items})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	items := s.status.Providers()
	writeJSON(w, http.StatusOK, map[string]any{"count": len(items), "providers": items})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

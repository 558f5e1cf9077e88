package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/stentorlabs/stentor/pkg/logger"
)

// streamBuffer is the per-subscriber channel depth. A consumer slower
// than this loses entries rather than stalling writers.
const streamBuffer = 64

// streamEvent is one frame on /logs/stream.
type streamEvent struct {
	Type string        `json:"type"`
	Log  *logger.Entry `json:"log,omitempty"`
}

// handleLogStream serves the live event log over SSE. The first frame
// is {"type":"connected"}; every entry after that arrives as
// {"type":"log","log":{...}}. Optional level and category query
// parameters narrow the stream.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var minLevel *logger.Level
	if raw := query.Get("level"); raw != "" {
		level, err := logger.ParseEntryLevel(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		minLevel = &level
	}

	var category logger.Category
	if raw := query.Get("category"); raw != "" {
		category = logger.Category(strings.ToLower(strings.TrimSpace(raw)))
		if !category.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown log category: %s", raw))
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming is not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	entries, cancel := s.events.Subscribe(streamBuffer)
	defer cancel()

	if err := writeEvent(w, streamEvent{Type: "connected"}); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		case entry, open := <-entries:
			if !open {
				return
			}
			if minLevel != nil && entry.Level < *minLevel {
				continue
			}
			if category != "" && entry.Category != category {
				continue
			}
			if err := writeEvent(w, streamEvent{Type: "log", Log: &entry}); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, event streamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

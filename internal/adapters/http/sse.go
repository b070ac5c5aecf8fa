package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mkarpenko/grounded-chat/internal/core/domain"
)

type streamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type streamEvent struct {
	Delta        *streamDelta `json:"delta,omitempty"`
	Context      *chatContext `json:"context,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
	SessionState string       `json:"session_state,omitempty"`
	Error        string       `json:"error,omitempty"`
}

func (rt *Router) chatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	sessionID := req.SessionState
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	claims := claimsFromRequest(r)
	mode := resolveModeLabel(req.Context.Overrides)

	result, err := rt.pipeline.Run(r.Context(), req.Messages, req.Context.Overrides, claims, true)
	if err != nil {
		rt.recordOutcome("chat_stream", mode, "error", 0)
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	// Start before committing to the SSE content type, so provider refusal
	// still maps to a proper HTTP status.
	handle, err := result.Stream.Start(r.Context())
	if err != nil {
		rt.recordOutcome("chat_stream", mode, "error", len(result.DataPoints.Text))
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	defer handle.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent(w, flusher, streamEvent{
		Delta: &streamDelta{Role: domain.RoleAssistant},
		Context: &chatContext{
			DataPoints: result.DataPoints,
			Thoughts:   result.Thoughts,
		},
		SessionState: sessionID,
	})

	var answer strings.Builder
	chunks := 0
	start := time.Now()
	for {
		chunk, err := handle.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			rt.logger.Error("stream_consume_failed",
				"request_id", requestIDFromContext(r.Context()),
				"session_id", sessionID,
				"error", err,
			)
			writeEvent(w, flusher, streamEvent{Error: "stream interrupted"})
			rt.recordOutcome("chat_stream", mode, "error", len(result.DataPoints.Text))
			return
		}

		if chunk.Delta != "" {
			answer.WriteString(chunk.Delta)
			chunks++
			writeEvent(w, flusher, streamEvent{Delta: &streamDelta{Content: chunk.Delta}})
		}
		if chunk.FinishReason != "" {
			writeEvent(w, flusher, streamEvent{FinishReason: chunk.FinishReason})
		}
	}

	content := answer.String()
	if wantsFollowups(req.Context.Overrides) {
		var followups []string
		content, followups = extractFollowups(content)
		if len(followups) > 0 {
			writeEvent(w, flusher, streamEvent{
				Context: &chatContext{FollowupQuestions: followups},
			})
		}
	}

	_, _ = io.WriteString(w, "data: [DONE]\n\n")
	flusher.Flush()

	rt.recordOutcome("chat_stream", mode, "success", len(result.DataPoints.Text))
	if rt.metrics != nil {
		rt.metrics.ObserveStage(rt.cfg.ServiceName, "pipeline_stream", time.Since(start))
		rt.metrics.RecordStreamChunks(rt.cfg.ServiceName, chunks)
	}

	question := latestQuestion(req.Messages)
	rt.persistExchange(r.Context(), sessionID, question, content)
	rt.publishTrace(r.Context(), sessionID, question, result)
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, event streamEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}

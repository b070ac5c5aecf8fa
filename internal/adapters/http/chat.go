package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mkarpenko/grounded-chat/internal/core/domain"
)

type chatRequest struct {
	Messages []domain.Turn `json:"messages"`
	Context  struct {
		Overrides domain.Overrides `json:"overrides"`
	} `json:"context"`
	SessionState string `json:"session_state,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatContext struct {
	DataPoints        domain.DataPoints    `json:"data_points"`
	Thoughts          []domain.ThoughtStep `json:"thoughts"`
	FollowupQuestions []string             `json:"followup_questions,omitempty"`
}

type chatResponse struct {
	Message      chatMessage `json:"message"`
	Context      chatContext `json:"context"`
	SessionState string      `json:"session_state"`
}

func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
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

	start := time.Now()
	result, err := rt.pipeline.Run(r.Context(), req.Messages, req.Context.Overrides, claims, false)
	if err != nil {
		rt.recordOutcome("chat", mode, "error", 0)
		rt.logger.Error("chat_failed",
			"request_id", requestIDFromContext(r.Context()),
			"session_id", sessionID,
			"error", err,
		)
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	content := result.Answer.Content
	var followups []string
	if wantsFollowups(req.Context.Overrides) {
		content, followups = extractFollowups(content)
	}

	rt.recordOutcome("chat", mode, "success", len(result.DataPoints.Text))
	if rt.metrics != nil {
		rt.metrics.ObserveStage(rt.cfg.ServiceName, "pipeline", time.Since(start))
		rt.metrics.RecordTokenUsage(rt.cfg.ServiceName, rt.cfg.ChatModel,
			result.Answer.PromptTokens, result.Answer.CompletionTokens)
	}

	question := latestQuestion(req.Messages)
	rt.persistExchange(r.Context(), sessionID, question, content)
	rt.publishTrace(r.Context(), sessionID, question, result)

	writeJSON(w, http.StatusOK, chatResponse{
		Message: chatMessage{Role: domain.RoleAssistant, Content: content},
		Context: chatContext{
			DataPoints:        result.DataPoints,
			Thoughts:          result.Thoughts,
			FollowupQuestions: followups,
		},
		SessionState: sessionID,
	})
}

func (rt *Router) persistExchange(ctx context.Context, sessionID, question, answer string) {
	if rt.sessions == nil {
		return
	}
	if err := rt.sessions.EnsureSession(ctx, sessionID); err != nil {
		rt.logger.Error("ensure_session_failed", "session_id", sessionID, "error", err)
		return
	}
	if err := rt.sessions.AppendExchange(ctx, sessionID, question, answer); err != nil {
		rt.logger.Error("append_exchange_failed", "session_id", sessionID, "error", err)
	}
}

func (rt *Router) publishTrace(ctx context.Context, sessionID, question string, result *domain.PipelineResult) {
	if rt.traces == nil {
		return
	}
	event := domain.TraceEvent{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Question:   question,
		DataPoints: result.DataPoints,
		Thoughts:   result.Thoughts,
		CreatedAt:  time.Now().UTC(),
	}
	if err := rt.traces.PublishTrace(ctx, event); err != nil {
		rt.logger.Error("publish_trace_failed", "session_id", sessionID, "error", err)
	}
}

func (rt *Router) recordOutcome(endpoint, mode, outcome string, sources int) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordChatInvocation(rt.cfg.ServiceName, endpoint, mode, outcome, sources)
}

func claimsFromRequest(r *http.Request) domain.AuthClaims {
	claims := domain.AuthClaims{}
	if oid := strings.TrimSpace(r.Header.Get("X-Auth-Oid")); oid != "" {
		claims["oid"] = oid
	}
	if raw := strings.TrimSpace(r.Header.Get("X-Auth-Groups")); raw != "" {
		var groups []string
		for _, g := range strings.Split(raw, ",") {
			if g = strings.TrimSpace(g); g != "" {
				groups = append(groups, g)
			}
		}
		if len(groups) > 0 {
			claims["groups"] = groups
		}
	}
	return claims
}

func resolveModeLabel(overrides domain.Overrides) string {
	if overrides.RetrievalMode != nil {
		return *overrides.RetrievalMode
	}
	return string(domain.RetrievalModeHybrid)
}

func wantsFollowups(overrides domain.Overrides) bool {
	return overrides.SuggestFollowupQuestions != nil && *overrides.SuggestFollowupQuestions
}

func latestQuestion(turns []domain.Turn) string {
	if len(turns) == 0 {
		return ""
	}
	text, _ := turns[len(turns)-1].Text()
	return text
}

var followupPattern = regexp.MustCompile(`<<([^>]+)>>`)

// extractFollowups splits "<<question>>" markers out of the answer text.
func extractFollowups(content string) (string, []string) {
	matches := followupPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return content, nil
	}

	followups := make([]string, 0, len(matches))
	for _, m := range matches {
		if q := strings.TrimSpace(m[1]); q != "" {
			followups = append(followups, q)
		}
	}
	cleaned := strings.TrimSpace(followupPattern.ReplaceAllString(content, ""))
	return cleaned, followups
}

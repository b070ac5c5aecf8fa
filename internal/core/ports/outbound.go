package ports

import (
	"context"

	"github.com/mkarpenko/grounded-chat/internal/core/domain"
)

// ToolSpec describes one tool offered to the completion service during the
// query rewrite call. Parameters is a JSON schema document.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  []byte
}

// ToolCall is a structured invocation emitted by the model instead of text.
type ToolCall struct {
	Name      string
	Arguments string
}

type CompletionRequest struct {
	Model       string
	Messages    []domain.Message
	Temperature float32
	MaxTokens   int
	N           int
	Seed        *int
	Tools       []ToolSpec
}

type Completion struct {
	Content          string
	ToolCalls        []ToolCall
	PromptTokens     int
	CompletionTokens int
}

// CompletionService issues chat completions. DeferStream prepares a
// streaming completion without sending it; the request goes on the wire only
// when the returned stream is started.
type CompletionService interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
	DeferStream(req CompletionRequest) domain.AnswerStream
}

// EmbeddingService computes query embeddings for vector retrieval.
type EmbeddingService interface {
	EmbedQuery(ctx context.Context, text string) (domain.VectorQuery, error)
}

type SearchRequest struct {
	QueryText           string
	Vectors             []domain.VectorQuery
	Filter              string
	Top                 int
	UseSemanticRanker   bool
	UseSemanticCaptions bool
}

// SearchService performs one hybrid search call. Result order is the
// server-determined relevance order; implementations never re-sort.
type SearchService interface {
	Search(ctx context.Context, req SearchRequest) ([]domain.SearchHit, error)
}

// PromptVars binds the variables a prompt template may reference.
type PromptVars struct {
	UserQuery        string
	PastMessages     []domain.Message
	TextSources      []string
	IncludeFollowups bool
	PromptTemplate   string
}

type RenderedPrompt struct {
	SystemContent   string
	FewShotMessages []domain.Message
	PastMessages    []domain.Message
	NewUserContent  string
}

// PromptRenderer expands a named template into role-tagged message parts.
// Pure template expansion; the pipeline never parses template syntax itself.
type PromptRenderer interface {
	Render(name string, vars PromptVars) (RenderedPrompt, error)
}

// TokenLimitLookup resolves a model's total context-window size. The second
// return reports whether the model was recognized.
type TokenLimitLookup interface {
	LimitFor(model string) (int, bool)
}

// TokenCounter counts prompt tokens with the model's own encoding.
type TokenCounter interface {
	Count(model, text string) int
}

// AccessFilterBuilder turns opaque auth claims and request options into a
// search filter predicate, passed through to the search service unchanged.
type AccessFilterBuilder interface {
	Build(opts domain.Options, claims domain.AuthClaims) string
}

// SessionStore persists chat exchanges per session.
type SessionStore interface {
	EnsureSession(ctx context.Context, sessionID string) error
	AppendExchange(ctx context.Context, sessionID, question, answer string) error
	ListExchanges(ctx context.Context, sessionID string, limit int) ([]domain.Exchange, error)
}

// TraceSink receives thought-trace audit events after completed invocations.
type TraceSink interface {
	PublishTrace(ctx context.Context, event domain.TraceEvent) error
}

// TraceStore persists audit events consumed from the trace sink.
type TraceStore interface {
	SaveTrace(ctx context.Context, event domain.TraceEvent) error
}

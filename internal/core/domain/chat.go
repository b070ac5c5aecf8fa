package domain

import (
	"context"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one element of the incoming conversation history. Content is kept
// as decoded JSON because clients may send structured multi-part content;
// only plain string content is accepted for the latest user turn.
type Turn struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Text returns the content when it is a plain string.
func (t Turn) Text() (string, bool) {
	s, ok := t.Content.(string)
	return s, ok
}

// Message is a role-tagged plain-text prompt message sent to the completion
// service.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Exchange is one persisted question/answer pair of a chat session.
type Exchange struct {
	SessionID string    `json:"session_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

type RetrievalMode string

const (
	RetrievalModeText    RetrievalMode = "text"
	RetrievalModeVectors RetrievalMode = "vectors"
	RetrievalModeHybrid  RetrievalMode = "hybrid"
)

// Flags derives the keyword/vector switches for a retrieval mode. Unknown
// modes disable both so a typo never silently falls back to full hybrid.
func (m RetrievalMode) Flags() (useText, useVector bool) {
	switch m {
	case RetrievalModeText:
		return true, false
	case RetrievalModeVectors:
		return false, true
	case RetrievalModeHybrid, "":
		return true, true
	default:
		return false, false
	}
}

// Overrides is the per-request configuration record. Unknown JSON keys are
// ignored by decoding; nil fields fall back to defaults in Resolve.
type Overrides struct {
	RetrievalMode            *string  `json:"retrieval_mode,omitempty"`
	SemanticRanker           *bool    `json:"semantic_ranker,omitempty"`
	SemanticCaptions         *bool    `json:"semantic_captions,omitempty"`
	Top                      *int     `json:"top,omitempty"`
	MinimumSearchScore       *float64 `json:"minimum_search_score,omitempty"`
	MinimumRerankerScore     *float64 `json:"minimum_reranker_score,omitempty"`
	Temperature              *float64 `json:"temperature,omitempty"`
	Seed                     *int     `json:"seed,omitempty"`
	SuggestFollowupQuestions *bool    `json:"suggest_followup_questions,omitempty"`
	PromptTemplate           *string  `json:"prompt_template,omitempty"`
	ExcludeCategory          *string  `json:"exclude_category,omitempty"`
}

// Options is the fully resolved request configuration. Resolution happens
// once at pipeline entry; stages never read raw overrides.
type Options struct {
	RetrievalMode        RetrievalMode
	UseSemanticRanker    bool
	UseSemanticCaptions  bool
	Top                  int
	MinimumSearchScore   float64
	MinimumRerankerScore float64
	Temperature          float32
	Seed                 *int
	SuggestFollowups     bool
	PromptTemplate       string
	ExcludeCategory      string
}

const (
	DefaultTop         = 3
	DefaultTemperature = 0.3
)

func (o Overrides) Resolve() Options {
	opts := Options{
		RetrievalMode: RetrievalModeHybrid,
		Top:           DefaultTop,
		Temperature:   DefaultTemperature,
	}
	if o.RetrievalMode != nil {
		opts.RetrievalMode = RetrievalMode(*o.RetrievalMode)
	}
	if o.SemanticRanker != nil {
		opts.UseSemanticRanker = *o.SemanticRanker
	}
	if o.SemanticCaptions != nil {
		opts.UseSemanticCaptions = *o.SemanticCaptions
	}
	if o.Top != nil && *o.Top > 0 {
		opts.Top = *o.Top
	}
	if o.MinimumSearchScore != nil {
		opts.MinimumSearchScore = *o.MinimumSearchScore
	}
	if o.MinimumRerankerScore != nil {
		opts.MinimumRerankerScore = *o.MinimumRerankerScore
	}
	if o.Temperature != nil {
		opts.Temperature = float32(*o.Temperature)
	}
	if o.Seed != nil {
		seed := *o.Seed
		opts.Seed = &seed
	}
	if o.SuggestFollowupQuestions != nil {
		opts.SuggestFollowups = *o.SuggestFollowupQuestions
	}
	if o.PromptTemplate != nil {
		opts.PromptTemplate = *o.PromptTemplate
	}
	if o.ExcludeCategory != nil {
		opts.ExcludeCategory = *o.ExcludeCategory
	}
	return opts
}

// AuthClaims is the opaque caller identity; the pipeline only forwards it to
// the access filter builder.
type AuthClaims map[string]any

// RetrievalQuery is the rewritten search query together with its provenance.
type RetrievalQuery struct {
	Text          string `json:"text"`
	ToolArguments string `json:"tool_arguments,omitempty"`
	FromTool      bool   `json:"from_tool"`
}

// VectorQuery is a precomputed embedding for the vector leg of a hybrid
// search call.
type VectorQuery struct {
	Vector   []float32 `json:"vector"`
	KNearest int       `json:"k_nearest"`
	Fields   string    `json:"fields"`
}

// SearchHit is one retrieved document chunk. Immutable once returned by the
// search service.
type SearchHit struct {
	ID            string   `json:"id"`
	SourcePage    string   `json:"sourcepage"`
	Content       string   `json:"content"`
	Caption       string   `json:"caption,omitempty"`
	Score         float64  `json:"score"`
	RerankerScore *float64 `json:"reranker_score,omitempty"`
}

// Serialize renders the hit for the "search results" thought step.
func (h SearchHit) Serialize() map[string]any {
	out := map[string]any{
		"id":         h.ID,
		"sourcepage": h.SourcePage,
		"content":    h.Content,
		"score":      h.Score,
	}
	if h.Caption != "" {
		out["caption"] = h.Caption
	}
	if h.RerankerScore != nil {
		out["reranker_score"] = *h.RerankerScore
	}
	return out
}

// ThoughtStep records the inputs and parameters of one pipeline stage.
// Append-only; never mutated after append.
type ThoughtStep struct {
	Title       string         `json:"title"`
	Description any            `json:"description"`
	Props       map[string]any `json:"props,omitempty"`
}

type DataPoints struct {
	Text []string `json:"text"`
}

// ChatAnswer is a fully materialized non-streaming completion.
type ChatAnswer struct {
	Content          string `json:"content"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

// StreamChunk is one incremental fragment of a streamed answer.
type StreamChunk struct {
	Delta        string `json:"delta"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// StreamHandle is a started answer stream: a lazy, single-pass,
// non-restartable sequence of chunks. Recv returns io.EOF when the stream is
// exhausted.
type StreamHandle interface {
	Recv() (StreamChunk, error)
	Close() error
}

// AnswerStream is an unstarted deferred completion. No network interaction
// happens before Start, so the caller can cancel for free.
type AnswerStream interface {
	Start(ctx context.Context) (StreamHandle, error)
}

// PipelineResult is the outcome of one pipeline invocation. Exactly one of
// Answer and Stream is set, depending on the requested mode.
type PipelineResult struct {
	DataPoints DataPoints    `json:"data_points"`
	Thoughts   []ThoughtStep `json:"thoughts"`
	Answer     *ChatAnswer   `json:"-"`
	Stream     AnswerStream  `json:"-"`
}

// TraceEvent is the audit record published after a completed invocation.
type TraceEvent struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"session_id"`
	Question   string        `json:"question"`
	DataPoints DataPoints    `json:"data_points"`
	Thoughts   []ThoughtStep `json:"thoughts"`
	CreatedAt  time.Time     `json:"created_at"`
}

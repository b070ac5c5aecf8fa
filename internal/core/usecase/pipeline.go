package usecase

import (
	"context"
	"fmt"

	"github.com/mkarpenko/grounded-chat/internal/core/domain"
	"github.com/mkarpenko/grounded-chat/internal/core/ports"
)

// Stage names used to tag collaborator failures.
const (
	stageRewrite  = "rewrite"
	stageRetrieve = "retrieve"
	stageGenerate = "generate"
)

// Thought step labels, in pipeline order.
const (
	thoughtQueryGeneration  = "query generation"
	thoughtSearchQuery      = "search using generated search query"
	thoughtSearchResults    = "search results"
	thoughtAnswerGeneration = "answer generation"
)

// Prompt template names.
const (
	promptQueryRewrite = "chat_query_rewrite"
	promptAnswer       = "chat_answer_question"
)

type Config struct {
	ChatModel string

	// Deployment is the provider-side deployment name, recorded alongside
	// the model in thought steps when set.
	Deployment string

	// StrictModelLimits fails invocations for models missing from the
	// context-window table instead of assuming a conservative default.
	StrictModelLimits bool
}

// ChatPipelineUseCase runs the grounded-answer pipeline: rewrite the latest
// user turn into a retrieval query, search, assemble evidence, generate.
// Stateless across invocations; collaborators are shared, goroutine-safe
// handles injected once at construction.
type ChatPipelineUseCase struct {
	completions ports.CompletionService
	embedder    ports.EmbeddingService
	search      ports.SearchService
	prompts     ports.PromptRenderer
	limits      ports.TokenLimitLookup
	counter     ports.TokenCounter
	filters     ports.AccessFilterBuilder
	cfg         Config
}

func NewChatPipelineUseCase(
	completions ports.CompletionService,
	embedder ports.EmbeddingService,
	search ports.SearchService,
	prompts ports.PromptRenderer,
	limits ports.TokenLimitLookup,
	counter ports.TokenCounter,
	filters ports.AccessFilterBuilder,
	cfg Config,
) *ChatPipelineUseCase {
	return &ChatPipelineUseCase{
		completions: completions,
		embedder:    embedder,
		search:      search,
		prompts:     prompts,
		limits:      limits,
		counter:     counter,
		filters:     filters,
		cfg:         cfg,
	}
}

// Run executes one invocation: REWRITE -> RETRIEVE -> ASSEMBLE -> GENERATE.
// Stages are strictly sequential and never retried here; every collaborator
// failure surfaces wrapped with its stage name. With shouldStream the result
// carries an unstarted answer stream and no completion request has been sent
// when Run returns.
func (uc *ChatPipelineUseCase) Run(
	ctx context.Context,
	history []domain.Turn,
	overrides domain.Overrides,
	claims domain.AuthClaims,
	shouldStream bool,
) (*domain.PipelineResult, error) {
	userQuery, err := latestUserQuery(history)
	if err != nil {
		return nil, err
	}

	opts := overrides.Resolve()
	filter := ""
	if uc.filters != nil {
		filter = uc.filters.Build(opts, claims)
	}
	past := pastMessages(history[:len(history)-1])

	trace := &thoughtTrace{}

	query, err := uc.rewriteQuery(ctx, trace, userQuery, past, opts.Seed)
	if err != nil {
		return nil, err
	}

	hits, err := uc.retrieve(ctx, trace, query, opts, filter)
	if err != nil {
		return nil, err
	}

	sources := AssembleSources(hits, opts.UseSemanticCaptions, false)
	trace.add(thoughtSearchResults, serializeHits(hits), nil)

	rendered, err := uc.prompts.Render(promptAnswer, ports.PromptVars{
		UserQuery:        userQuery,
		PastMessages:     past,
		TextSources:      sources,
		IncludeFollowups: opts.SuggestFollowups,
		PromptTemplate:   opts.PromptTemplate,
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrCollaborator, stageGenerate, err)
	}

	budget, err := uc.remainingBudget(answerResponseTokenReserve)
	if err != nil {
		return nil, err
	}
	messages := uc.buildMessages(rendered, budget)
	trace.add(thoughtAnswerGeneration, messages, uc.modelProps())

	req := ports.CompletionRequest{
		Model:       uc.cfg.ChatModel,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   answerResponseTokenReserve,
		N:           1,
		Seed:        opts.Seed,
	}

	result := &domain.PipelineResult{
		DataPoints: domain.DataPoints{Text: sources},
		Thoughts:   trace.steps,
	}

	if shouldStream {
		result.Stream = uc.completions.DeferStream(req)
		return result, nil
	}

	completion, err := uc.completions.Complete(ctx, req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCollaborator, stageGenerate, err)
	}
	result.Answer = &domain.ChatAnswer{
		Content:          completion.Content,
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
	}
	return result, nil
}

// latestUserQuery validates the history shape before any collaborator call.
func latestUserQuery(history []domain.Turn) (string, error) {
	if len(history) == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "run pipeline",
			fmt.Errorf("conversation history is empty"))
	}
	last := history[len(history)-1]
	if last.Role != domain.RoleUser {
		return "", domain.WrapError(domain.ErrInvalidInput, "run pipeline",
			fmt.Errorf("the last conversation turn must be a user turn, got %q", last.Role))
	}
	text, ok := last.Text()
	if !ok {
		return "", domain.WrapError(domain.ErrInvalidInput, "run pipeline",
			fmt.Errorf("the most recent message content must be a string"))
	}
	return text, nil
}

// pastMessages keeps the plain-text turns preceding the latest user turn.
// Structured content is not forwarded to prompts.
func pastMessages(turns []domain.Turn) []domain.Message {
	out := make([]domain.Message, 0, len(turns))
	for _, turn := range turns {
		text, ok := turn.Text()
		if !ok {
			continue
		}
		out = append(out, domain.Message{Role: turn.Role, Content: text})
	}
	return out
}

func (uc *ChatPipelineUseCase) modelProps() map[string]any {
	props := map[string]any{"model": uc.cfg.ChatModel}
	if uc.cfg.Deployment != "" {
		props["deployment"] = uc.cfg.Deployment
	}
	return props
}

type thoughtTrace struct {
	steps []domain.ThoughtStep
}

func (t *thoughtTrace) add(title string, description any, props map[string]any) {
	t.steps = append(t.steps, domain.ThoughtStep{
		Title:       title,
		Description: description,
		Props:       props,
	})
}

package usecase

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mkarpenko/grounded-chat/internal/core/domain"
	"github.com/mkarpenko/grounded-chat/internal/core/ports"
)

const (
	searchToolName = "search_sources"

	// noResponseSentinel is what the rewrite prompt instructs the model to
	// return when it cannot produce a search query.
	noResponseSentinel = "0"
)

var queryRewriteTool = ports.ToolSpec{
	Name:        searchToolName,
	Description: "Retrieve sources from the knowledge index",
	Parameters: []byte(`{
		"type": "object",
		"properties": {
			"search_query": {
				"type": "string",
				"description": "Query string to retrieve documents from the knowledge index"
			}
		},
		"required": ["search_query"]
	}`),
}

// rewriteQuery turns the latest user turn plus history into a compact
// retrieval query via one deterministic tool-augmented completion.
func (uc *ChatPipelineUseCase) rewriteQuery(
	ctx context.Context,
	trace *thoughtTrace,
	userQuery string,
	past []domain.Message,
	seed *int,
) (domain.RetrievalQuery, error) {
	rendered, err := uc.prompts.Render(promptQueryRewrite, ports.PromptVars{
		UserQuery:    userQuery,
		PastMessages: past,
	})
	if err != nil {
		return domain.RetrievalQuery{}, domain.WrapError(domain.ErrCollaborator, stageRewrite, err)
	}

	budget, err := uc.remainingBudget(queryResponseTokenReserve)
	if err != nil {
		return domain.RetrievalQuery{}, err
	}
	messages := uc.buildMessages(rendered, budget)
	trace.add(thoughtQueryGeneration, messages, uc.modelProps())

	completion, err := uc.completions.Complete(ctx, ports.CompletionRequest{
		Model:       uc.cfg.ChatModel,
		Messages:    messages,
		Temperature: 0,
		MaxTokens:   queryResponseTokenReserve,
		N:           1,
		Seed:        seed,
		Tools:       []ports.ToolSpec{queryRewriteTool},
	})
	if err != nil {
		return domain.RetrievalQuery{}, domain.WrapError(domain.ErrCollaborator, stageRewrite, err)
	}

	return extractSearchQuery(completion, userQuery), nil
}

// extractSearchQuery prefers a search_sources tool call, then plain text,
// then falls back to the raw user query unchanged.
func extractSearchQuery(completion *ports.Completion, userQuery string) domain.RetrievalQuery {
	for _, call := range completion.ToolCalls {
		if call.Name != searchToolName {
			continue
		}
		var args struct {
			SearchQuery string `json:"search_query"`
		}
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			continue
		}
		if args.SearchQuery != "" && args.SearchQuery != noResponseSentinel {
			return domain.RetrievalQuery{
				Text:          args.SearchQuery,
				ToolArguments: call.Arguments,
				FromTool:      true,
			}
		}
	}

	if text := strings.TrimSpace(completion.Content); text != "" && text != noResponseSentinel {
		return domain.RetrievalQuery{Text: text}
	}
	return domain.RetrievalQuery{Text: userQuery}
}

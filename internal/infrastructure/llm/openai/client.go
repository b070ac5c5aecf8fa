package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/mkarpenko/grounded-chat/internal/core/domain"
	"github.com/mkarpenko/grounded-chat/internal/core/ports"
	"github.com/mkarpenko/grounded-chat/internal/infrastructure/resilience"
)

type Config struct {
	APIKey  string
	BaseURL string

	EmbedModel      string
	EmbedDimensions int

	// VectorFields is the index field queried by embeddings produced here.
	VectorFields string

	// VectorKNearest is the k passed with every vector query.
	VectorKNearest int
}

// Client implements chat completions and query embeddings on one shared
// OpenAI-compatible API connection.
type Client struct {
	api      *goopenai.Client
	cfg      Config
	executor *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	apiCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	if cfg.VectorKNearest <= 0 {
		cfg.VectorKNearest = 50
	}
	return &Client{
		api:      goopenai.NewClientWithConfig(apiCfg),
		cfg:      cfg,
		executor: executor,
	}
}

// Complete issues one chat completion and returns the first choice.
func (c *Client) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.Completion, error) {
	apiReq := buildChatRequest(req, false)

	var resp goopenai.ChatCompletionResponse
	err := c.executor.Execute(ctx, "chat_completion", func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.api.CreateChatCompletion(ctx, apiReq)
		return callErr
	}, classifyOpenAIError)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: empty choices")
	}

	choice := resp.Choices[0].Message
	out := &ports.Completion{
		Content:          choice.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	for _, call := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ports.ToolCall{
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return out, nil
}

// DeferStream prepares a streaming completion without touching the network.
func (c *Client) DeferStream(req ports.CompletionRequest) domain.AnswerStream {
	return &deferredStream{
		api: c.api,
		req: buildChatRequest(req, true),
	}
}

// EmbedQuery embeds one retrieval query.
func (c *Client) EmbedQuery(ctx context.Context, text string) (domain.VectorQuery, error) {
	apiReq := goopenai.EmbeddingRequest{
		Input:      []string{text},
		Model:      goopenai.EmbeddingModel(c.cfg.EmbedModel),
		Dimensions: c.cfg.EmbedDimensions,
	}

	var resp goopenai.EmbeddingResponse
	err := c.executor.Execute(ctx, "embed_query", func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.api.CreateEmbeddings(ctx, apiReq)
		return callErr
	}, classifyOpenAIError)
	if err != nil {
		return domain.VectorQuery{}, fmt.Errorf("embed query: %w", err)
	}
	if len(resp.Data) == 0 {
		return domain.VectorQuery{}, fmt.Errorf("embed query: empty embedding result")
	}

	return domain.VectorQuery{
		Vector:   resp.Data[0].Embedding,
		KNearest: c.cfg.VectorKNearest,
		Fields:   c.cfg.VectorFields,
	}, nil
}

func buildChatRequest(req ports.CompletionRequest, stream bool) goopenai.ChatCompletionRequest {
	// ChatCompletionRequest marshals temperature with omitempty, so an exact
	// zero never reaches the wire and the provider substitutes its own
	// default. The smallest positive float32 survives marshalling and the
	// provider treats it as zero.
	temperature := req.Temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	out := goopenai.ChatCompletionRequest{
		Model:       req.Model,
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
		N:           req.N,
		Seed:        req.Seed,
		Stream:      stream,
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, goopenai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  json.RawMessage(tool.Parameters),
			},
		})
	}
	return out
}

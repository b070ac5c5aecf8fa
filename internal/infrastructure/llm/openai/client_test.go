package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mkarpenko/grounded-chat/internal/core/domain"
	"github.com/mkarpenko/grounded-chat/internal/core/ports"
	"github.com/mkarpenko/grounded-chat/internal/infrastructure/resilience"
)

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts: 1,
		BreakerEnabled:   false,
	}, nil)
}

func newTestClient(serverURL string) *Client {
	return New(Config{
		APIKey:          "test-key",
		BaseURL:         serverURL + "/v1",
		EmbedModel:      "text-embedding-3-small",
		EmbedDimensions: 256,
		VectorFields:    "embedding",
		VectorKNearest:  50,
	}, testExecutor())
}

func TestCompleteReturnsToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload["model"] != "gpt-4o" {
			t.Fatalf("model = %v", payload["model"])
		}
		if _, ok := payload["tools"]; !ok {
			t.Fatalf("request carries no tools: %v", payload)
		}
		_, _ = w.Write([]byte(`{
			"choices": [{
				"message": {
					"role": "assistant",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "search_sources", "arguments": "{\"search_query\":\"jane resume\"}"}
					}]
				}
			}],
			"usage": {"prompt_tokens": 40, "completion_tokens": 12}
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	got, err := client.Complete(context.Background(), ports.CompletionRequest{
		Model:    "gpt-4o",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "question"}},
		Tools: []ports.ToolSpec{{
			Name:       "search_sources",
			Parameters: []byte(`{"type":"object"}`),
		}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(got.ToolCalls) != 1 || got.ToolCalls[0].Name != "search_sources" {
		t.Fatalf("tool calls = %+v", got.ToolCalls)
	}
	if got.PromptTokens != 40 || got.CompletionTokens != 12 {
		t.Fatalf("usage = %d/%d", got.PromptTokens, got.CompletionTokens)
	}
}

func TestEmbedQueryCarriesVectorSettings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"data": [{"embedding": [0.1, 0.2, 0.3]}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	got, err := client.EmbedQuery(context.Background(), "jane resume")
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	if len(got.Vector) != 3 {
		t.Fatalf("vector = %v", got.Vector)
	}
	if got.KNearest != 50 || got.Fields != "embedding" {
		t.Fatalf("vector query = %+v", got)
	}
}

func TestDeferStreamSendsNothingUntilStart(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n"))
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"lo\"},\"finish_reason\":\"stop\"}]}\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	stream := client.DeferStream(ports.CompletionRequest{
		Model:    "gpt-4o",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "question"}},
	})
	if requests != 0 {
		t.Fatalf("deferred stream issued %d requests before Start", requests)
	}

	handle, err := stream.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer handle.Close()

	var answer string
	for {
		chunk, err := handle.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		answer += chunk.Delta
	}
	if answer != "Hello" {
		t.Fatalf("streamed answer = %q, want %q", answer, "Hello")
	}
	if requests != 1 {
		t.Fatalf("requests = %d, want 1", requests)
	}
}

func TestCompleteFailsOnEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Complete(context.Background(), ports.CompletionRequest{
		Model:    "gpt-4o",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "question"}},
	})
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestCompleteSerializesZeroTemperature(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "ok"}}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Complete(context.Background(), ports.CompletionRequest{
		Model:       "gpt-4o",
		Messages:    []domain.Message{{Role: domain.RoleUser, Content: "question"}},
		Temperature: 0,
		MaxTokens:   100,
		N:           1,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	raw, ok := body["temperature"]
	if !ok {
		t.Fatalf("temperature missing from wire request: %v", body)
	}
	value, ok := raw.(float64)
	if !ok || value > 1e-6 {
		t.Fatalf("temperature on the wire = %v, want effectively zero", raw)
	}
}

func TestCompletePassesNonZeroTemperature(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "ok"}}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Complete(context.Background(), ports.CompletionRequest{
		Model:       "gpt-4o",
		Messages:    []domain.Message{{Role: domain.RoleUser, Content: "question"}},
		Temperature: 0.3,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	value, _ := body["temperature"].(float64)
	if value < 0.29 || value > 0.31 {
		t.Fatalf("temperature on the wire = %v, want 0.3", body["temperature"])
	}
}

func TestStreamSkipsChoicelessChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"choices\":[],\"prompt_filter_results\":[{\"prompt_index\":0}]}\n\n"))
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n"))
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"lo\"},\"finish_reason\":\"stop\"}]}\n\n"))
		_, _ = w.Write([]byte("data: {\"choices\":[],\"usage\":{\"prompt_tokens\":12,\"completion_tokens\":2}}\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	handle, err := client.DeferStream(ports.CompletionRequest{
		Model:    "gpt-4o",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "question"}},
	}).Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer handle.Close()

	var answer string
	for {
		chunk, err := handle.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		answer += chunk.Delta
	}
	if answer != "Hello" {
		t.Fatalf("streamed answer = %q, want %q", answer, "Hello")
	}
}

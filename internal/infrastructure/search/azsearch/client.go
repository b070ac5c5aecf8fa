package azsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mkarpenko/grounded-chat/internal/core/domain"
	"github.com/mkarpenko/grounded-chat/internal/core/ports"
	"github.com/mkarpenko/grounded-chat/internal/infrastructure/resilience"
)

const defaultAPIVersion = "2024-07-01"

type Config struct {
	Endpoint string
	Index    string
	APIKey   string

	// APIVersion pins the REST contract; empty selects the tested default.
	APIVersion string

	// SemanticConfiguration is the index's semantic ranking configuration
	// name, required when the ranker is requested.
	SemanticConfiguration string

	// ContentField and SourcePageField name the index fields mapped onto
	// hit content and citation source.
	ContentField    string
	SourcePageField string
}

// Client queries one Azure AI Search index over REST.
type Client struct {
	cfg        Config
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.ContentField == "" {
		cfg.ContentField = "content"
	}
	if cfg.SourcePageField == "" {
		cfg.SourcePageField = "sourcepage"
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		executor:   executor,
	}
}

// Search issues one hybrid search call. Hits come back in the service's
// relevance order.
func (c *Client) Search(ctx context.Context, req ports.SearchRequest) ([]domain.SearchHit, error) {
	body := c.buildRequestBody(req)

	var hits []domain.SearchHit
	err := c.executor.Execute(ctx, "index_search", func(ctx context.Context) error {
		var callErr error
		hits, callErr = c.search(ctx, body)
		return callErr
	}, classifySearchError)
	if err != nil {
		return nil, err
	}
	return hits, nil
}

func (c *Client) buildRequestBody(req ports.SearchRequest) map[string]any {
	body := map[string]any{
		"top": req.Top,
	}
	if req.QueryText != "" {
		body["search"] = req.QueryText
	}
	if req.Filter != "" {
		body["filter"] = req.Filter
	}
	if req.UseSemanticRanker {
		body["queryType"] = "semantic"
		body["semanticConfiguration"] = c.cfg.SemanticConfiguration
		if req.UseSemanticCaptions {
			body["captions"] = "extractive"
		}
	}
	if len(req.Vectors) > 0 {
		vectorQueries := make([]map[string]any, 0, len(req.Vectors))
		for _, v := range req.Vectors {
			vectorQueries = append(vectorQueries, map[string]any{
				"kind":   "vector",
				"vector": v.Vector,
				"k":      v.KNearest,
				"fields": v.Fields,
			})
		}
		body["vectorQueries"] = vectorQueries
	}
	return body
}

func (c *Client) search(ctx context.Context, reqBody map[string]any) ([]domain.SearchHit, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/indexes/%s/docs/search?api-version=%s",
		c.cfg.Endpoint, c.cfg.Index, c.cfg.APIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("index search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, newStatusError("index search", resp)
	}

	var raw struct {
		Value []json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.SearchHit, 0, len(raw.Value))
	for _, item := range raw.Value {
		hit, err := c.decodeHit(item)
		if err != nil {
			return nil, err
		}
		out = append(out, hit)
	}
	return out, nil
}

func (c *Client) decodeHit(raw json.RawMessage) (domain.SearchHit, error) {
	var meta struct {
		Score         float64  `json:"@search.score"`
		RerankerScore *float64 `json:"@search.rerankerScore"`
		Captions      []struct {
			Text string `json:"text"`
		} `json:"@search.captions"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return domain.SearchHit{}, fmt.Errorf("decode hit metadata: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return domain.SearchHit{}, fmt.Errorf("decode hit fields: %w", err)
	}

	hit := domain.SearchHit{
		ID:            stringField(fields, "id"),
		SourcePage:    stringField(fields, c.cfg.SourcePageField),
		Content:       stringField(fields, c.cfg.ContentField),
		Score:         meta.Score,
		RerankerScore: meta.RerankerScore,
	}
	if len(meta.Captions) > 0 {
		hit.Caption = meta.Captions[0].Text
	}
	return hit, nil
}

func stringField(fields map[string]any, name string) string {
	v, _ := fields[name].(string)
	return v
}

type statusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func newStatusError(operation string, resp *http.Response) *statusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &statusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("%s status: %s: %s", e.Operation, e.Status, e.Body)
}

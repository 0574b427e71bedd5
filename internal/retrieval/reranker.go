package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"tabula/internal/config"
	"tabula/internal/models"
)

// Reranker re-orders retrieved context by relevance to the query.
type Reranker interface {
	Rerank(ctx context.Context, query string, items []models.ContextItem) ([]models.ContextItem, error)
}

// HTTPReranker implements Reranker against a Cohere-style rerank endpoint.
type HTTPReranker struct {
	url        string
	apiKey     string
	model      string
	minScore   float64
	httpClient *http.Client
}

type rerankRequest struct {
	Model           string   `json:"model"`
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	TopN            int      `json:"top_n"`
	ReturnDocuments bool     `json:"return_documents"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

// NewHTTPReranker creates a reranker client from config. The client timeout
// bounds each rerank call; a stalled endpoint fails over to the fused order
// instead of hanging the request.
func NewHTTPReranker(cfg config.RerankConfig) *HTTPReranker {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPReranker{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		minScore:   cfg.MinScore,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Rerank scores each item against the query and returns the items above the
// minimum score, best first. Items the endpoint does not return are dropped.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, items []models.ContextItem) ([]models.ContextItem, error) {
	if len(items) == 0 {
		return items, nil
	}

	docs := make([]string, len(items))
	for i, item := range items {
		docs[i] = item.Record.Fact
	}

	payload, err := json.Marshal(rerankRequest{
		Model:           r.model,
		Query:           query,
		Documents:       docs,
		TopN:            len(docs),
		ReturnDocuments: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call rerank api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank api returned non-200 status: %s", resp.Status)
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}

	reranked := make([]models.ContextItem, 0, len(parsed.Results))
	for _, result := range parsed.Results {
		if result.Index < 0 || result.Index >= len(items) {
			continue
		}
		if result.RelevanceScore < r.minScore {
			continue
		}
		item := items[result.Index]
		item.Score = result.RelevanceScore
		reranked = append(reranked, item)
	}

	sort.Slice(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})
	return reranked, nil
}

var _ Reranker = (*HTTPReranker)(nil)

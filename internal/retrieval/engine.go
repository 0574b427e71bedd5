package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tabula/internal/config"
	"tabula/internal/embedding"
	"tabula/internal/factstore"
	"tabula/internal/models"
	"tabula/pkg/logger"
)

// maxConcurrentSearches bounds how many per-query searches run at once.
const maxConcurrentSearches = 5

// Engine runs multi-query retrieval: it searches the fact store once per
// generated sub-query, fuses the rankings with reciprocal rank fusion,
// deduplicates by source message, and optionally reranks the final list.
type Engine struct {
	embedder embedding.Embedding
	store    factstore.Store
	reranker Reranker // nil disables the reranking stage
	cfg      config.RetrievalConfig
	log      *logger.Logger
}

// NewEngine creates a retrieval Engine. reranker may be nil.
func NewEngine(embedder embedding.Embedding, store factstore.Store, reranker Reranker, cfg config.RetrievalConfig, log *logger.Logger) *Engine {
	return &Engine{
		embedder: embedder,
		store:    store,
		reranker: reranker,
		cfg:      cfg,
		log:      log,
	}
}

// Retrieve returns the context for a request. analysis may be nil, in which
// case the raw message text is the only search query. Queries are embedded in
// one batch, then searched concurrently. A sub-query whose search fails
// contributes nothing, with one exception: an unreachable store fails the
// whole call with models.ErrStoreUnavailable, because answering from a
// silently empty context would misrepresent what the user taught the agent.
func (e *Engine) Retrieve(ctx context.Context, userID, messageText string, analysis *models.QueryAnalysis) ([]models.ContextItem, error) {
	queries := BuildQueries(analysis, messageText, e.cfg.MaxQueries)
	e.log.WithPayload(map[string]interface{}{
		"query_count": len(queries),
		"queries":     queries,
	}).Debug("running multi-query retrieval")

	vectors, err := e.embedder.EmbedBatch(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("embed queries: %w", err)
	}
	if len(vectors) != len(queries) {
		return nil, fmt.Errorf("embedding returned %d vectors for %d queries", len(vectors), len(queries))
	}

	resultsPerQuery := make([][]models.ContextItem, len(queries))
	errsPerQuery := make([]error, len(queries))

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrentSearches)
	for i := range queries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results, err := e.store.Search(ctx, userID, vectors[i], e.cfg.TopKPerQuery)
			if err != nil {
				e.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "retrieval_error"}).
					Warn(fmt.Sprintf("search failed for query '%s'", queries[i]))
				errsPerQuery[i] = err
				return
			}
			resultsPerQuery[i] = results
		}(i)
	}
	wg.Wait()

	for _, err := range errsPerQuery {
		if errors.Is(err, models.ErrStoreUnavailable) {
			return nil, fmt.Errorf("search store: %w", err)
		}
	}

	fused := ReciprocalRankFusion(resultsPerQuery, e.cfg.FusionK)
	if len(fused) > e.cfg.MaxCandidates {
		fused = fused[:e.cfg.MaxCandidates]
	}

	final := dedupeByMessage(fused, e.cfg.MaxResults)

	if e.reranker != nil && len(final) > 0 {
		reranked, err := e.reranker.Rerank(ctx, messageText, final)
		switch {
		case err != nil:
			e.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "rerank_error"}).
				Warn("reranker failed, keeping fused order")
			final = topItems(final, e.cfg.Rerank.FallbackTopN)
		case len(reranked) == 0:
			// The reranker judged everything irrelevant. Filtering the whole
			// context away is worse than a weak context, so keep the best of
			// the fused order instead.
			e.log.Warn("reranker returned no items, keeping top fused results")
			final = topItems(final, e.cfg.Rerank.FallbackTopN)
		default:
			final = reranked
		}
	}

	e.log.WithPayload(map[string]interface{}{"context_size": len(final)}).Info("retrieval complete")
	return final, nil
}

// dedupeByMessage keeps the best-ranked fact per source message and drops
// records with an empty fact text, capping the result at limit.
func dedupeByMessage(items []models.ContextItem, limit int) []models.ContextItem {
	seen := make(map[string]struct{})
	out := make([]models.ContextItem, 0, limit)
	for _, item := range items {
		if item.Record.Fact == "" {
			continue
		}
		if _, ok := seen[item.Record.MessageUID]; ok {
			continue
		}
		seen[item.Record.MessageUID] = struct{}{}
		out = append(out, item)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func topItems(items []models.ContextItem, n int) []models.ContextItem {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

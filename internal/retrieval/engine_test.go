package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tabula/internal/config"
	"tabula/internal/models"
	"tabula/pkg/logger"
)

type fakeEmbedder struct {
	err        error
	batchCalls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batchCalls++
	out := make([][]float32, len(texts))
	for i := range texts {
		vec, err := f.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

type fakeStore struct {
	results []models.ContextItem
	err     error

	mu    sync.Mutex
	calls int
}

func (f *fakeStore) Insert(ctx context.Context, records []models.FactRecord) error { return nil }

func (f *fakeStore) Search(ctx context.Context, userID string, vector []float32, topK int) ([]models.ContextItem, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (models.FactRecord, error) {
	return models.FactRecord{}, models.ErrNotFound
}

func (f *fakeStore) SetRelevance(ctx context.Context, factID string, relevant bool) error {
	return nil
}

func (f *fakeStore) SetRelevanceByMessageUID(ctx context.Context, userID, messageUID string, relevant bool) error {
	return nil
}

type fakeReranker struct {
	results []models.ContextItem
	err     error
}

func (f *fakeReranker) Rerank(ctx context.Context, query string, items []models.ContextItem) ([]models.ContextItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func testRetrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		MaxQueries:    5,
		TopKPerQuery:  5,
		FusionK:       60,
		MaxCandidates: 15,
		MaxResults:    10,
		Rerank:        config.RerankConfig{FallbackTopN: 2},
	}
}

func TestRetrieveDedupesByMessage(t *testing.T) {
	store := &fakeStore{results: []models.ContextItem{
		item("f1", "msg1", "fact one", 0.9),
		item("f2", "msg1", "fact one again", 0.8),
		item("f3", "msg2", "fact two", 0.7),
	}}
	engine := NewEngine(&fakeEmbedder{}, store, nil, testRetrievalConfig(), logger.New("test", "", ""))

	items, err := engine.Retrieve(context.Background(), "u1", "question", nil)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items after message dedup, got %d", len(items))
	}
	if items[0].Record.MessageUID == items[1].Record.MessageUID {
		t.Errorf("both items came from the same message: %s", items[0].Record.MessageUID)
	}
}

func TestRetrieveSkipsEmptyFacts(t *testing.T) {
	store := &fakeStore{results: []models.ContextItem{
		item("f1", "msg1", "", 0.9),
		item("f2", "msg2", "real fact", 0.8),
	}}
	engine := NewEngine(&fakeEmbedder{}, store, nil, testRetrievalConfig(), logger.New("test", "", ""))

	items, err := engine.Retrieve(context.Background(), "u1", "question", nil)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if len(items) != 1 || items[0].Record.ID != "f2" {
		t.Errorf("expected only f2, got %v", items)
	}
}

func TestRetrieveCapsResults(t *testing.T) {
	var results []models.ContextItem
	for i := 0; i < 20; i++ {
		id := string(rune('a' + i))
		results = append(results, item("f"+id, "msg"+id, "fact "+id, 1.0-float64(i)*0.01))
	}
	store := &fakeStore{results: results}
	cfg := testRetrievalConfig()
	engine := NewEngine(&fakeEmbedder{}, store, nil, cfg, logger.New("test", "", ""))

	items, err := engine.Retrieve(context.Background(), "u1", "question", nil)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if len(items) != cfg.MaxResults {
		t.Errorf("expected %d items, got %d", cfg.MaxResults, len(items))
	}
}

func TestRetrieveToleratesSearchFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("milvus down")}
	engine := NewEngine(&fakeEmbedder{}, store, nil, testRetrievalConfig(), logger.New("test", "", ""))

	items, err := engine.Retrieve(context.Background(), "u1", "question", nil)
	if err != nil {
		t.Fatalf("Retrieve must not fail when a sub-query fails: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected empty context, got %d items", len(items))
	}
}

func TestRetrieveStoreUnavailableFails(t *testing.T) {
	store := &fakeStore{err: models.ErrStoreUnavailable}
	engine := NewEngine(&fakeEmbedder{}, store, nil, testRetrievalConfig(), logger.New("test", "", ""))

	_, err := engine.Retrieve(context.Background(), "u1", "question", nil)
	if err == nil {
		t.Fatal("expected an error when the store is unreachable, got nil")
	}
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Errorf("expected error to wrap ErrStoreUnavailable, got %v", err)
	}
}

func TestRetrieveEmbedFailureFails(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("embedding service down")}
	store := &fakeStore{}
	engine := NewEngine(embedder, store, nil, testRetrievalConfig(), logger.New("test", "", ""))

	_, err := engine.Retrieve(context.Background(), "u1", "question", nil)
	if err == nil {
		t.Fatal("expected an error when embedding fails, got nil")
	}
	if store.calls != 0 {
		t.Errorf("store must not be searched after an embedding failure, got %d calls", store.calls)
	}
}

func TestRetrieveEmbedsQueriesInOneBatch(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := &fakeStore{}
	engine := NewEngine(embedder, store, nil, testRetrievalConfig(), logger.New("test", "", ""))

	analysis := &models.QueryAnalysis{SearchQueries: []string{"q1", "q2", "q3"}}
	if _, err := engine.Retrieve(context.Background(), "u1", "question", analysis); err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if embedder.batchCalls != 1 {
		t.Errorf("expected all queries embedded in a single batch call, got %d", embedder.batchCalls)
	}
	if store.calls < 3 {
		t.Errorf("expected one search per query, got %d", store.calls)
	}
}

func TestRetrieveRerankerFailureFallsBack(t *testing.T) {
	store := &fakeStore{results: []models.ContextItem{
		item("f1", "msg1", "fact one", 0.9),
		item("f2", "msg2", "fact two", 0.8),
		item("f3", "msg3", "fact three", 0.7),
	}}
	reranker := &fakeReranker{err: errors.New("rerank api unreachable")}
	cfg := testRetrievalConfig()
	engine := NewEngine(&fakeEmbedder{}, store, reranker, cfg, logger.New("test", "", ""))

	items, err := engine.Retrieve(context.Background(), "u1", "question", nil)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if len(items) != cfg.Rerank.FallbackTopN {
		t.Errorf("expected fallback to top %d fused items, got %d", cfg.Rerank.FallbackTopN, len(items))
	}
}

func TestRetrieveRerankerEmptyFallsBack(t *testing.T) {
	store := &fakeStore{results: []models.ContextItem{
		item("f1", "msg1", "fact one", 0.9),
		item("f2", "msg2", "fact two", 0.8),
		item("f3", "msg3", "fact three", 0.7),
	}}
	reranker := &fakeReranker{results: []models.ContextItem{}}
	cfg := testRetrievalConfig()
	engine := NewEngine(&fakeEmbedder{}, store, reranker, cfg, logger.New("test", "", ""))

	items, err := engine.Retrieve(context.Background(), "u1", "question", nil)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if len(items) != cfg.Rerank.FallbackTopN {
		t.Errorf("expected fallback to top %d fused items, got %d", cfg.Rerank.FallbackTopN, len(items))
	}
}

func TestRetrieveRerankerOrderWins(t *testing.T) {
	store := &fakeStore{results: []models.ContextItem{
		item("f1", "msg1", "fact one", 0.9),
		item("f2", "msg2", "fact two", 0.8),
	}}
	reranker := &fakeReranker{results: []models.ContextItem{
		item("f2", "msg2", "fact two", 0.99),
		item("f1", "msg1", "fact one", 0.4),
	}}
	engine := NewEngine(&fakeEmbedder{}, store, reranker, testRetrievalConfig(), logger.New("test", "", ""))

	items, err := engine.Retrieve(context.Background(), "u1", "question", nil)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if len(items) != 2 || items[0].Record.ID != "f2" {
		t.Errorf("expected reranked order [f2 f1], got %v", items)
	}
}

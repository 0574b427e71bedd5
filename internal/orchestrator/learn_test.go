package orchestrator

import (
	"context"
	"strings"
	"testing"

	"tabula/internal/config"
	"tabula/internal/conflict"
	"tabula/internal/models"
	"tabula/internal/reasoning"
	"tabula/internal/retrieval"
	"tabula/pkg/logger"
)

// routedLLM answers by matching a fragment of the system prompt, so one fake
// can stand in for every model call the pipeline makes.
type routedLLM struct {
	routes map[string]string
}

func (r *routedLLM) Complete(ctx context.Context, system, user string) (string, error) {
	return r.CompleteJSON(ctx, system, user)
}

func (r *routedLLM) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	for fragment, reply := range r.routes {
		if strings.Contains(system, fragment) {
			return reply, nil
		}
	}
	return "", models.ErrEmptyResponse
}

type learnStore struct {
	recordingStore
	neighbours []models.ContextItem
	retired    []string
}

func (s *learnStore) Search(ctx context.Context, userID string, vector []float32, topK int) ([]models.ContextItem, error) {
	return s.neighbours, nil
}

func (s *learnStore) SetRelevanceByMessageUID(ctx context.Context, userID, messageUID string, relevant bool) error {
	s.retired = append(s.retired, messageUID)
	return nil
}

func newPipelineOrchestrator(client *routedLLM, store *learnStore, cfg config.ConflictConfig) *Orchestrator {
	log := logger.New("test", "", "")
	embedder := &fakeEmbedder{}

	retrievalCfg := config.RetrievalConfig{
		MaxQueries:    5,
		TopKPerQuery:  5,
		FusionK:       60,
		MaxCandidates: 15,
		MaxResults:    10,
		Rerank:        config.RerankConfig{FallbackTopN: 5},
	}

	analyzer := retrieval.NewAnalyzer(client, log)
	engine := retrieval.NewEngine(embedder, store, nil, retrievalCfg, log)
	loop := reasoning.NewLoop(client, reasoning.NewRegistry(reasoning.NewSearchTool(embedder, store), log), 3, log)
	detector := conflict.NewDetector(embedder, store, client, cfg, log)
	resolver := conflict.NewResolver(store, nil, nil, log)
	indexer := NewIndexer(client, embedder, store, log)

	return New(client, analyzer, engine, detector, resolver, loop, indexer, nil, cfg, log)
}

func TestLearnAutoRetiresEveryConflict(t *testing.T) {
	store := &learnStore{neighbours: []models.ContextItem{
		{Record: models.FactRecord{ID: "old1", MessageUID: "m-old1", Fact: "the user prefers vim", IsRelevant: true}},
		{Record: models.FactRecord{ID: "old2", MessageUID: "m-old2", Fact: "the user prefers nano", IsRelevant: true}},
	}}
	client := &routedLLM{routes: map[string]string{
		"self-contained statements": `{"memory_updates": ["the user prefers emacs"]}`,
		"break a statement down":    `{"fact": "the user prefers emacs", "description": "editor preference"}`,
		"classify their relation":   `{"conflict_type": "direct", "confidence": 0.9, "explanation": "contradicts"}`,
	}}
	cfg := config.ConflictConfig{ConfidenceThreshold: 0.7, ResolutionMode: "auto"}
	o := newPipelineOrchestrator(client, store, cfg)

	resp, err := o.learn(context.Background(), "u1", &models.TextRequest{UID: "m1", Text: "I prefer emacs now"}, logger.New("test", "", ""))
	if err != nil {
		t.Fatalf("learn returned error: %v", err)
	}
	if len(store.retired) != 2 {
		t.Fatalf("expected both conflicting messages retired, got %v", store.retired)
	}
	got := map[string]bool{store.retired[0]: true, store.retired[1]: true}
	if !got["m-old1"] || !got["m-old2"] {
		t.Errorf("retired messages = %v, want m-old1 and m-old2", store.retired)
	}
	if len(store.inserted) != 1 {
		t.Errorf("expected 1 stored fact, got %d", len(store.inserted))
	}
	if strings.Count(resp.Response, "previously") != 2 {
		t.Errorf("response should carry one update note per retired fact, got %q", resp.Response)
	}
}

func TestLearnStoresStatementsInOrder(t *testing.T) {
	store := &learnStore{}
	client := &routedLLM{routes: map[string]string{
		"self-contained statements": `{"memory_updates": ["fact alpha", "fact beta", "fact gamma"]}`,
	}}
	cfg := config.ConflictConfig{ConfidenceThreshold: 0.7, ResolutionMode: "auto"}
	o := newPipelineOrchestrator(client, store, cfg)

	resp, err := o.learn(context.Background(), "u1", &models.TextRequest{UID: "m1", Text: "three facts"}, logger.New("test", "", ""))
	if err != nil {
		t.Fatalf("learn returned error: %v", err)
	}
	if len(store.inserted) != 3 {
		t.Fatalf("expected 3 stored facts, got %d", len(store.inserted))
	}
	want := []string{"fact alpha", "fact beta", "fact gamma"}
	for i, record := range store.inserted {
		if record.Fact != want[i] {
			t.Errorf("stored fact %d = %q, want %q", i, record.Fact, want[i])
		}
	}
	if !strings.Contains(resp.Response, "3 statements") {
		t.Errorf("response should mention the count, got %q", resp.Response)
	}
}

func TestLearnThenSolveMergesBothPaths(t *testing.T) {
	store := &learnStore{}
	client := &routedLLM{routes: map[string]string{
		"self-contained statements":       `{"memory_updates": ["loops are written as repeat N"]}`,
		"break a statement down":          `{"fact": "loops are written as repeat N", "description": "loop syntax"}`,
		"plan retrieval":                  `{"intent": "write a loop", "search_queries": ["loop syntax"]}`,
		"deciding the next step":          `{"thought": "the context covers loop syntax", "action": "answer"}`,
		"using only the provided context": "repeat 10: print the counter",
	}}
	cfg := config.ConflictConfig{ConfidenceThreshold: 0.7, ResolutionMode: "auto"}
	o := newPipelineOrchestrator(client, store, cfg)

	resp, err := o.learnThenSolve(context.Background(), "u1",
		&models.TextRequest{UID: "m1", Text: "Loops are written as repeat N. Now write one that counts to 10."},
		logger.New("test", "", ""))
	if err != nil {
		t.Fatalf("learnThenSolve returned error: %v", err)
	}
	if !strings.Contains(resp.Response, "Got it") {
		t.Errorf("merged response should open with the learn acknowledgement, got %q", resp.Response)
	}
	if !strings.Contains(resp.Response, "repeat 10") {
		t.Errorf("merged response should end with the answer, got %q", resp.Response)
	}
	if len(store.inserted) != 1 {
		t.Errorf("the stated knowledge must be stored before solving, got %d records", len(store.inserted))
	}
	if len(resp.Reasoning) == 0 {
		t.Error("merged response should carry the solve reasoning trace")
	}
}

func TestSolveEmptyAnswerApology(t *testing.T) {
	store := &learnStore{}
	client := &routedLLM{routes: map[string]string{
		"plan retrieval":                  `{"intent": "question", "search_queries": ["anything"]}`,
		"deciding the next step":          `{"thought": "nothing more to search", "action": "answer"}`,
		"using only the provided context": "",
	}}
	cfg := config.ConflictConfig{ConfidenceThreshold: 0.7, ResolutionMode: "auto"}
	o := newPipelineOrchestrator(client, store, cfg)

	resp, err := o.solve(context.Background(), "u1", &models.TextRequest{UID: "m-42", Text: "what is my name?"}, logger.New("test", "", ""))
	if err != nil {
		t.Fatalf("solve returned error: %v", err)
	}
	if !strings.Contains(resp.Response, "m-42") {
		t.Errorf("apology must reference the message uid, got %q", resp.Response)
	}
	if resp.Response != emptyAnswerFallback("m-42") {
		t.Errorf("response = %q, want the empty answer apology", resp.Response)
	}
}

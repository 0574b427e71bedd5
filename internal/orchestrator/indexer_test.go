package orchestrator

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"tabula/internal/models"
	"tabula/pkg/logger"
)

type fakeEmbedder struct{}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1}
	}
	return out, nil
}

type recordingStore struct {
	inserted []models.FactRecord
}

func (r *recordingStore) Insert(ctx context.Context, records []models.FactRecord) error {
	r.inserted = append(r.inserted, records...)
	return nil
}

func (r *recordingStore) Search(ctx context.Context, userID string, vector []float32, topK int) ([]models.ContextItem, error) {
	return nil, nil
}

func (r *recordingStore) GetByID(ctx context.Context, id string) (models.FactRecord, error) {
	return models.FactRecord{}, models.ErrNotFound
}

func (r *recordingStore) SetRelevance(ctx context.Context, factID string, relevant bool) error {
	return nil
}

func (r *recordingStore) SetRelevanceByMessageUID(ctx context.Context, userID, messageUID string, relevant bool) error {
	return nil
}

func TestExtractUpdatesSplitsStatements(t *testing.T) {
	client := &fakeLLM{reply: `{"memory_updates": ["my name is Oleh", "I live in Kyiv"]}`}
	ix := NewIndexer(client, &fakeEmbedder{}, &recordingStore{}, logger.New("test", "", ""))

	updates := ix.ExtractUpdates(context.Background(), "My name is Oleh and I live in Kyiv")
	want := []string{"my name is Oleh", "I live in Kyiv"}
	if !reflect.DeepEqual(updates, want) {
		t.Errorf("ExtractUpdates = %v, want %v", updates, want)
	}
}

func TestExtractUpdatesFailureKeepsWholeMessage(t *testing.T) {
	client := &fakeLLM{err: errors.New("model down")}
	ix := NewIndexer(client, &fakeEmbedder{}, &recordingStore{}, logger.New("test", "", ""))

	text := "My name is Oleh"
	updates := ix.ExtractUpdates(context.Background(), text)
	if len(updates) != 1 || updates[0] != text {
		t.Errorf("expected the whole message as one statement, got %v", updates)
	}
}

func TestExtractUpdatesEmptyList(t *testing.T) {
	client := &fakeLLM{reply: `{"memory_updates": []}`}
	ix := NewIndexer(client, &fakeEmbedder{}, &recordingStore{}, logger.New("test", "", ""))

	updates := ix.ExtractUpdates(context.Background(), "hello there")
	if len(updates) != 0 {
		t.Errorf("expected no updates, got %v", updates)
	}
}

func TestIndexFactFallsBackToStatement(t *testing.T) {
	client := &fakeLLM{reply: "not json at all"}
	ix := NewIndexer(client, &fakeEmbedder{}, &recordingStore{}, logger.New("test", "", ""))

	extraction := ix.IndexFact(context.Background(), "pi equals 3.14")
	if extraction.Fact != "pi equals 3.14" || extraction.Description != "pi equals 3.14" {
		t.Errorf("fallback extraction = %+v", extraction)
	}
}

func TestIndexFactFillsMissingDescription(t *testing.T) {
	client := &fakeLLM{reply: `{"fact": "pi equals 3.14", "description": ""}`}
	ix := NewIndexer(client, &fakeEmbedder{}, &recordingStore{}, logger.New("test", "", ""))

	extraction := ix.IndexFact(context.Background(), "pi equals 3.14")
	if extraction.Description != extraction.Fact {
		t.Errorf("empty description should default to the fact, got %+v", extraction)
	}
}

func TestStoreFactRecord(t *testing.T) {
	store := &recordingStore{}
	ix := NewIndexer(&fakeLLM{}, &fakeEmbedder{}, store, logger.New("test", "", ""))

	record, err := ix.StoreFact(context.Background(), "u1", "msg1", factExtraction{
		Fact:        "pi equals 3.14",
		Description: "the value of pi",
	})
	if err != nil {
		t.Fatalf("StoreFact returned error: %v", err)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("expected 1 inserted record, got %d", len(store.inserted))
	}
	if !record.IsRelevant {
		t.Error("new records must start relevant")
	}
	if record.UserID != "u1" || record.MessageUID != "msg1" {
		t.Errorf("record ownership = %s/%s", record.UserID, record.MessageUID)
	}
	if len(record.Vector) == 0 {
		t.Error("record must carry its embedding")
	}
}

func TestFactIDDeterministic(t *testing.T) {
	a := factID("u1", "msg1", "pi equals 3.14")
	b := factID("u1", "msg1", "pi equals 3.14")
	c := factID("u1", "msg2", "pi equals 3.14")

	if a != b {
		t.Errorf("same inputs must give the same id: %s vs %s", a, b)
	}
	if a == c {
		t.Error("different messages must give different ids")
	}
}

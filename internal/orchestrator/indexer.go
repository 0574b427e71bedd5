package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tabula/internal/embedding"
	"tabula/internal/factstore"
	"tabula/internal/llm"
	"tabula/internal/models"
	"tabula/pkg/logger"
)

const extractSystemPrompt = `You split a user message into self-contained statements worth remembering.
Each statement must be understandable on its own, without the rest of the message.
Reply with a JSON object: {"memory_updates": ["statement", ...]}.
Return an empty list if the message contains nothing worth remembering.`

const indexSystemPrompt = `You break a statement down for indexing. Use only information from the statement itself.
Reply with a JSON object:
{"fact": "the statement condensed to one short sentence",
 "description": "a fuller explanation of the statement",
 "examples": ["complete example", ...]}
Leave examples empty when the statement contains none.`

type factExtraction struct {
	Fact        string   `json:"fact"`
	Description string   `json:"description"`
	Examples    []string `json:"examples"`
}

type memoryUpdates struct {
	MemoryUpdates []string `json:"memory_updates"`
}

// Indexer turns raw message text into stored fact records.
type Indexer struct {
	llm      llm.LLM
	embedder embedding.Embedding
	store    factstore.Store
	log      *logger.Logger
}

// NewIndexer creates an Indexer.
func NewIndexer(client llm.LLM, embedder embedding.Embedding, store factstore.Store, log *logger.Logger) *Indexer {
	return &Indexer{
		llm:      client,
		embedder: embedder,
		store:    store,
		log:      log,
	}
}

// ExtractUpdates splits a message into self-contained statements. When
// extraction fails the whole message is treated as one statement, so a model
// outage never drops knowledge.
func (ix *Indexer) ExtractUpdates(ctx context.Context, text string) []string {
	raw, err := ix.llm.CompleteJSON(ctx, extractSystemPrompt, text)
	if err != nil {
		ix.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "extract_error"}).
			Warn("memory update extraction failed, keeping full message")
		return []string{text}
	}

	var parsed memoryUpdates
	if err := llm.DecodeJSON(raw, &parsed); err != nil {
		ix.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "extract_error"}).
			Warn("memory update reply unreadable, keeping full message")
		return []string{text}
	}

	var updates []string
	for _, update := range parsed.MemoryUpdates {
		if update != "" {
			updates = append(updates, update)
		}
	}
	return updates
}

// IndexFact condenses one statement into a fact with description and
// examples. On failure the statement doubles as its own fact and description.
func (ix *Indexer) IndexFact(ctx context.Context, statement string) factExtraction {
	raw, err := ix.llm.CompleteJSON(ctx, indexSystemPrompt, statement)
	if err == nil {
		var parsed factExtraction
		if decodeErr := llm.DecodeJSON(raw, &parsed); decodeErr == nil && parsed.Fact != "" {
			if parsed.Description == "" {
				parsed.Description = parsed.Fact
			}
			return parsed
		}
	}

	ix.log.Warn("fact indexing failed, storing statement as-is")
	return factExtraction{Fact: statement, Description: statement}
}

// StoreFact embeds and persists one indexed fact. The description carries
// more retrieval signal than the condensed fact, so it is what gets embedded.
// Record ids are derived deterministically from user, message and fact text,
// which makes re-storing after a retry an overwrite instead of a duplicate.
func (ix *Indexer) StoreFact(ctx context.Context, userID, messageUID string, extraction factExtraction) (models.FactRecord, error) {
	embedText := extraction.Description
	if embedText == "" {
		embedText = extraction.Fact
	}

	vector, err := ix.embedder.Embed(ctx, embedText)
	if err != nil {
		return models.FactRecord{}, fmt.Errorf("embed fact: %w", err)
	}

	record := models.FactRecord{
		ID:          factID(userID, messageUID, extraction.Fact),
		UserID:      userID,
		Fact:        extraction.Fact,
		Description: extraction.Description,
		Examples:    extraction.Examples,
		MessageUID:  messageUID,
		IsRelevant:  true,
		Vector:      vector,
		CreatedAt:   time.Now().UTC(),
	}

	if err := ix.store.Insert(ctx, []models.FactRecord{record}); err != nil {
		return models.FactRecord{}, fmt.Errorf("store fact: %w", err)
	}
	return record, nil
}

func factID(userID, messageUID, fact string) string {
	name := fmt.Sprintf("%s:%s:%s", userID, messageUID, fact)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

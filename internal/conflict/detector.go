package conflict

import (
	"context"
	"fmt"

	"tabula/internal/config"
	"tabula/internal/embedding"
	"tabula/internal/factstore"
	"tabula/internal/llm"
	"tabula/internal/models"
	"tabula/pkg/logger"
)

// similarFactLimit is how many stored neighbours each new fact is checked against.
const similarFactLimit = 3

const classifySystemPrompt = `You compare a new statement against a previously stored one and classify their relation.
The possible relations are:
- "direct": the statements cannot both be true
- "temporal": the new statement describes a later state of the same thing; this is an update, not a contradiction
- "contextual": the statements apply in different contexts and can coexist
- "degree": the statements differ only in intensity or amount
- "partial": the statements overlap and genuinely disagree on the overlapping part
- "none": the statements are unrelated or agree

Reply with a JSON object:
{"conflict_type": "...", "confidence": 0.0-1.0, "explanation": "one sentence"}`

// classification is the structured reply of the conflict classifier.
type classification struct {
	ConflictType string  `json:"conflict_type"`
	Confidence   float64 `json:"confidence"`
	Explanation  string  `json:"explanation"`
}

// Detector finds stored facts that contradict a new one.
//
// Only "direct" and "partial" relations count as conflicts. A classification
// below the confidence threshold is treated as no conflict, and so is any
// classifier failure: an unreadable reply must never block storing knowledge.
type Detector struct {
	embedder embedding.Embedding
	store    factstore.Store
	llm      llm.LLM
	cfg      config.ConflictConfig
	log      *logger.Logger
}

// NewDetector creates a Detector.
func NewDetector(embedder embedding.Embedding, store factstore.Store, client llm.LLM, cfg config.ConflictConfig, log *logger.Logger) *Detector {
	return &Detector{
		embedder: embedder,
		store:    store,
		llm:      client,
		cfg:      cfg,
		log:      log,
	}
}

// Detect checks one new fact against the user's most similar stored facts and
// returns the blocking conflicts found.
func (d *Detector) Detect(ctx context.Context, userID, newFact string) ([]models.Conflict, error) {
	vector, err := d.embedder.Embed(ctx, newFact)
	if err != nil {
		return nil, fmt.Errorf("embed new fact: %w", err)
	}

	neighbours, err := d.store.Search(ctx, userID, vector, similarFactLimit)
	if err != nil {
		return nil, fmt.Errorf("search similar facts: %w", err)
	}
	if len(neighbours) == 0 {
		return nil, nil
	}

	var conflicts []models.Conflict
	for _, neighbour := range neighbours {
		existing := neighbour.Record
		if len(existing.Fact) < 5 {
			continue
		}

		result, err := d.classify(ctx, newFact, existing.Fact)
		if err != nil {
			d.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "conflict_classify_error"}).
				Warn("conflict classification failed, treating as no conflict")
			continue
		}

		conflictType := models.ConflictType(result.ConflictType)
		if !conflictType.IsBlocking() {
			continue
		}
		if result.Confidence < d.cfg.ConfidenceThreshold {
			d.log.WithPayload(map[string]interface{}{
				"confidence": result.Confidence,
				"threshold":  d.cfg.ConfidenceThreshold,
			}).Debug("classification below confidence threshold, ignoring")
			continue
		}

		conflicts = append(conflicts, models.Conflict{
			NewFact:     newFact,
			Existing:    existing,
			Type:        conflictType,
			Confidence:  result.Confidence,
			Explanation: result.Explanation,
		})
	}
	return conflicts, nil
}

func (d *Detector) classify(ctx context.Context, newFact, oldFact string) (*classification, error) {
	user := fmt.Sprintf("New statement: %q\nStored statement: %q", newFact, oldFact)

	raw, err := d.llm.CompleteJSON(ctx, classifySystemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("classification completion: %w", err)
	}

	var result classification
	if err := llm.DecodeJSON(raw, &result); err != nil {
		return nil, fmt.Errorf("classification reply: %w", err)
	}

	switch models.ConflictType(result.ConflictType) {
	case models.ConflictDirect, models.ConflictTemporal, models.ConflictContextual,
		models.ConflictDegree, models.ConflictPartial, models.ConflictNone:
	default:
		return nil, fmt.Errorf("%w: unknown conflict type %q", models.ErrSchemaDecode, result.ConflictType)
	}
	return &result, nil
}

package factstore

import (
	"context"

	"tabula/internal/models"
)

// Store persists facts and supports similarity search over them.
//
// Facts are soft-deleted only: SetRelevance flips the is_relevant flag and
// Search never returns records whose flag is false. No operation removes a
// record from the store.
type Store interface {
	// Insert stores the given fact records with their embeddings.
	Insert(ctx context.Context, records []models.FactRecord) error

	// Search returns the topK most similar relevant facts for the user.
	Search(ctx context.Context, userID string, vector []float32, topK int) ([]models.ContextItem, error)

	// GetByID fetches a single fact record regardless of its relevance flag.
	// Returns models.ErrNotFound when no record has that id.
	GetByID(ctx context.Context, id string) (models.FactRecord, error)

	// SetRelevance flips the relevance flag of one fact. Applying the same
	// value twice is a no-op.
	SetRelevance(ctx context.Context, factID string, relevant bool) error

	// SetRelevanceByMessageUID flips the relevance flag of every fact that
	// originated from the given message.
	SetRelevanceByMessageUID(ctx context.Context, userID, messageUID string, relevant bool) error
}

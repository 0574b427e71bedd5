package conflict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"tabula/internal/models"
)

const pendingKeyPrefix = "pending_resolution:"

// PendingStore keeps unresolved conflicts in Redis until the user answers.
// One pending resolution is held per user; a new conflict for the same user
// replaces the previous unanswered one.
type PendingStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPendingStore creates a PendingStore. ttl bounds how long an unanswered
// conflict waits before expiring.
func NewPendingStore(client *redis.Client, ttl time.Duration) *PendingStore {
	return &PendingStore{client: client, ttl: ttl}
}

func pendingKey(userID string) string {
	return pendingKeyPrefix + userID
}

// Save stores the pending resolution for its user.
func (s *PendingStore) Save(ctx context.Context, pending *models.PendingResolution) error {
	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("marshal pending resolution: %w", err)
	}
	if err := s.client.Set(ctx, pendingKey(pending.UserID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save pending resolution: %w", err)
	}
	return nil
}

// Get returns the user's pending resolution, or models.ErrNotFound when none
// is waiting.
func (s *PendingStore) Get(ctx context.Context, userID string) (*models.PendingResolution, error) {
	data, err := s.client.Get(ctx, pendingKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("get pending resolution: %w", err)
	}

	var pending models.PendingResolution
	if err := json.Unmarshal(data, &pending); err != nil {
		return nil, fmt.Errorf("unmarshal pending resolution: %w", err)
	}
	return &pending, nil
}

// Delete removes the user's pending resolution. Deleting when none exists is
// not an error.
func (s *PendingStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, pendingKey(userID)).Err(); err != nil {
		return fmt.Errorf("delete pending resolution: %w", err)
	}
	return nil
}

package messagestore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tabula/internal/models"
)

// Store archives incoming messages in MySQL. Every request is persisted
// before processing so fact provenance can be traced back to its message.
type Store struct {
	DB *gorm.DB
}

// NewStore creates a Store and ensures the messages table exists.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&models.MessageRecord{}); err != nil {
		return nil, fmt.Errorf("migrate messages table: %w", err)
	}
	return &Store{DB: db}, nil
}

// Save archives a message. The uid column is unique; saving the same uid
// again leaves the original row untouched, which makes request retries safe.
func (s *Store) Save(ctx context.Context, record *models.MessageRecord) error {
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "uid"}},
			DoNothing: true,
		}).
		Create(record).Error
	if err != nil {
		return fmt.Errorf("save message '%s': %w", record.UID, err)
	}
	return nil
}

// GetByUID looks up an archived message by its uid.
func (s *Store) GetByUID(ctx context.Context, uid string) (*models.MessageRecord, error) {
	var record models.MessageRecord
	err := s.DB.WithContext(ctx).Where("uid = ?", uid).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("get message '%s': %w", uid, err)
	}
	return &record, nil
}

// UpdateIntent records the classified intent of an archived message.
func (s *Store) UpdateIntent(ctx context.Context, uid string, intent models.Intent) error {
	err := s.DB.WithContext(ctx).
		Model(&models.MessageRecord{}).
		Where("uid = ?", uid).
		Update("intent", string(intent)).Error
	if err != nil {
		return fmt.Errorf("update intent for message '%s': %w", uid, err)
	}
	return nil
}

// ListByUser returns the most recent messages for a user, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]models.MessageRecord, error) {
	var records []models.MessageRecord
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list messages for user '%s': %w", userID, err)
	}
	return records, nil
}

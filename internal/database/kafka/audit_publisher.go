package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"tabula/internal/config"
)

// AuditEvent records a change to stored knowledge, published so downstream
// consumers can trace why a fact was marked irrelevant or suspended.
type AuditEvent struct {
	UserID     string    `json:"user_id"`
	MessageUID string    `json:"message_uid"`
	FactID     string    `json:"fact_id,omitempty"`
	Action     string    `json:"action"` // e.g. "fact_stored", "auto_resolved", "resolution_pending", "resolution_applied"
	Detail     string    `json:"detail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// AuditPublisher sends audit events to Kafka.
type AuditPublisher struct {
	writer *kafka.Writer
}

// NewAuditPublisher creates a publisher for the configured topic.
func NewAuditPublisher(cfg *config.KafkaConfig) *AuditPublisher {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	})
	return &AuditPublisher{writer: writer}
}

// Publish serializes the event as JSON and writes it, keyed by user so
// events for one user stay ordered.
func (p *AuditPublisher) Publish(ctx context.Context, event *AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.UserID),
		Value: jsonData,
	})
	if err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

// Close shuts down the underlying writer.
func (p *AuditPublisher) Close() error {
	return p.writer.Close()
}

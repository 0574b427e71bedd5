package conflict

import (
	"context"
	"fmt"

	"tabula/internal/database/kafka"
	"tabula/internal/factstore"
	"tabula/internal/models"
	"tabula/pkg/logger"
)

// Choice is the user's answer to an interactive conflict question.
type Choice int

const (
	// KeepNew accepts the new statement and retires the stored one.
	KeepNew Choice = iota + 1
	// KeepOld rejects the new statement and keeps the stored one.
	KeepOld
	// KeepBoth keeps both statements, treating them as different contexts.
	KeepBoth
)

// Resolver applies conflict resolutions to the fact store.
//
// In auto mode new information always wins: the conflicting stored facts are
// marked irrelevant and the new fact is stored. In interactive mode the
// conflicted fact is suspended and the user is asked; unrelated facts from
// the same message are stored normally either way.
type Resolver struct {
	store   factstore.Store
	pending *PendingStore
	audit   *kafka.AuditPublisher // nil disables audit events
	log     *logger.Logger
}

// NewResolver creates a Resolver. audit may be nil.
func NewResolver(store factstore.Store, pending *PendingStore, audit *kafka.AuditPublisher, log *logger.Logger) *Resolver {
	return &Resolver{
		store:   store,
		pending: pending,
		audit:   audit,
		log:     log,
	}
}

// ResolveAuto retires the stored side of the conflict so the new statement
// can take its place. The operation is idempotent: resolving the same
// conflict twice leaves the store unchanged.
func (r *Resolver) ResolveAuto(ctx context.Context, userID, messageUID string, c models.Conflict) error {
	err := r.store.SetRelevanceByMessageUID(ctx, userID, c.Existing.MessageUID, false)
	if err != nil {
		return fmt.Errorf("retire conflicting facts: %w", err)
	}

	r.log.WithPayload(map[string]interface{}{
		"conflict_type": string(c.Type),
		"old_fact_id":   c.Existing.ID,
	}).Info("auto-resolved conflict, new information accepted")

	r.publishAudit(ctx, &kafka.AuditEvent{
		UserID:     userID,
		MessageUID: messageUID,
		FactID:     c.Existing.ID,
		Action:     "auto_resolved",
		Detail:     fmt.Sprintf("replaced by: %s", c.NewFact),
	})
	return nil
}

// Suspend records the conflict as pending and keeps the conflicted fact out
// of the store until the user answers.
func (r *Resolver) Suspend(ctx context.Context, pending *models.PendingResolution) error {
	if err := r.pending.Save(ctx, pending); err != nil {
		return err
	}

	r.publishAudit(ctx, &kafka.AuditEvent{
		UserID:     pending.UserID,
		MessageUID: pending.MessageUID,
		FactID:     pending.Conflict.Existing.ID,
		Action:     "resolution_pending",
		Detail:     pending.Conflict.NewFact,
	})
	return nil
}

// Pending returns the user's waiting resolution, or models.ErrNotFound.
// A resolver without a pending store never has anything waiting.
func (r *Resolver) Pending(ctx context.Context, userID string) (*models.PendingResolution, error) {
	if r.pending == nil {
		return nil, models.ErrNotFound
	}
	return r.pending.Get(ctx, userID)
}

// Apply executes the user's choice for a pending resolution and reports
// whether the suspended fact should now be stored.
func (r *Resolver) Apply(ctx context.Context, pending *models.PendingResolution, choice Choice) (storeNew bool, err error) {
	switch choice {
	case KeepNew:
		err = r.store.SetRelevanceByMessageUID(ctx, pending.UserID, pending.Conflict.Existing.MessageUID, false)
		if err != nil {
			return false, fmt.Errorf("retire conflicting facts: %w", err)
		}
		storeNew = true
	case KeepOld:
		storeNew = false
	case KeepBoth:
		storeNew = true
	default:
		return false, fmt.Errorf("unknown resolution choice: %d", choice)
	}

	if err := r.pending.Delete(ctx, pending.UserID); err != nil {
		return false, err
	}

	r.publishAudit(ctx, &kafka.AuditEvent{
		UserID:     pending.UserID,
		MessageUID: pending.MessageUID,
		FactID:     pending.Conflict.Existing.ID,
		Action:     "resolution_applied",
		Detail:     fmt.Sprintf("choice=%d", choice),
	})
	return storeNew, nil
}

// Question formats the clarification question shown to the user when a
// conflict needs interactive resolution.
func Question(c models.Conflict) string {
	return fmt.Sprintf(
		"I found a contradiction with something you told me earlier.\n\n"+
			"Previously stored:\n> %s\n\n"+
			"New information:\n> %s\n\n"+
			"How should I resolve this?\n"+
			"1. Use the new information\n"+
			"2. Keep the old information\n"+
			"3. Both are correct (different contexts)",
		c.Existing.Fact, c.NewFact,
	)
}

func (r *Resolver) publishAudit(ctx context.Context, event *kafka.AuditEvent) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Publish(ctx, event); err != nil {
		// Audit is best effort; a broker outage must not fail the request.
		r.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "audit_publish_error"}).
			Warn("failed to publish audit event")
	}
}

package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tabula/internal/conflict"
	"tabula/internal/models"
	"tabula/pkg/logger"
)

// maxConcurrentChecks bounds how many statements are conflict-checked at once.
const maxConcurrentChecks = 5

// statementOutcome is the result of indexing and conflict-checking one
// statement, gathered concurrently before resolutions are applied.
type statementOutcome struct {
	extraction factExtraction
	conflicts  []models.Conflict
}

// learn stores the knowledge a message contains, resolving conflicts with
// what is already known. One message can carry several independent
// statements; a conflict on one of them never blocks the others.
//
// Indexing and detection run concurrently per statement under a bounded gate;
// resolutions and stores are then applied in statement order so responses and
// suspended questions stay deterministic. Two statements from the same
// message are not checked against each other, only against already-stored
// facts; a contradiction inside one message surfaces on the next.
func (o *Orchestrator) learn(ctx context.Context, userID string, req *models.TextRequest, log *logger.Logger) (*models.TextResponse, error) {
	updates := o.indexer.ExtractUpdates(ctx, req.Text)
	if len(updates) == 0 {
		return &models.TextResponse{
			Response: "I did not find anything to remember in that message.",
		}, nil
	}

	outcomes := make([]statementOutcome, len(updates))

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrentChecks)
	for i, statement := range updates {
		wg.Add(1)
		go func(i int, statement string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			extraction := o.indexer.IndexFact(ctx, statement)

			conflicts, err := o.detector.Detect(ctx, userID, extraction.Fact)
			if err != nil {
				// Detection needs the store and the model; when either is down,
				// storing unverified beats losing the fact.
				log.WithError(models.ErrorInfo{Message: err.Error(), Type: "conflict_detect_error"}).
					Warn("conflict detection failed, storing fact unchecked")
				conflicts = nil
			}
			outcomes[i] = statementOutcome{extraction: extraction, conflicts: conflicts}
		}(i, statement)
	}
	wg.Wait()

	var (
		references  []models.FactRecord
		updateNotes []string
		question    string
		storedCount int
		skipped     []string
	)

	for _, outcome := range outcomes {
		if len(outcome.conflicts) == 0 {
			record, err := o.indexer.StoreFact(ctx, userID, req.UID, outcome.extraction)
			if err != nil {
				return nil, err
			}
			references = append(references, record)
			storedCount++
			continue
		}

		if o.cfg.ResolutionMode == "auto" {
			// New information wins, and every confirmed conflicting record is
			// retired, not just the closest one.
			for _, c := range outcome.conflicts {
				if err := o.resolver.ResolveAuto(ctx, userID, req.UID, c); err != nil {
					return nil, err
				}
				references = append(references, c.Existing)
				updateNotes = append(updateNotes, fmt.Sprintf(
					"Updated: previously %q, now %q.", c.Existing.Fact, c.NewFact))
			}
			record, err := o.indexer.StoreFact(ctx, userID, req.UID, outcome.extraction)
			if err != nil {
				return nil, err
			}
			references = append(references, record)
			storedCount++
			continue
		}

		// Interactive mode: the first conflict becomes the question, and
		// only that statement is held back. One question at a time; further
		// conflicted statements wait for the next message.
		first := outcome.conflicts[0]
		if question == "" {
			pending := &models.PendingResolution{
				UserID:     userID,
				MessageUID: req.UID,
				Conflict:   first,
			}
			if err := o.resolver.Suspend(ctx, pending); err != nil {
				return nil, err
			}
			references = append(references, first.Existing)
			question = conflict.Question(first)
		} else {
			skipped = append(skipped, outcome.extraction.Fact)
		}
	}

	response := buildLearnResponse(storedCount, updateNotes, question, skipped)
	return &models.TextResponse{Response: response, References: references}, nil
}

func buildLearnResponse(storedCount int, updateNotes []string, question string, skipped []string) string {
	var parts []string

	if question != "" {
		parts = append(parts, question)
		if storedCount > 0 {
			parts = append(parts, fmt.Sprintf("The other %d statement(s) from your message were saved.", storedCount))
		}
		for _, fact := range skipped {
			parts = append(parts, fmt.Sprintf("I also held back %q until this is resolved.", fact))
		}
		return strings.Join(parts, "\n\n")
	}

	parts = append(parts, updateNotes...)
	switch {
	case storedCount == 1 && len(updateNotes) == 0:
		parts = append(parts, "Got it, I will remember that.")
	case storedCount > 0 && len(updateNotes) == 0:
		parts = append(parts, fmt.Sprintf("Got it, I saved %d statements.", storedCount))
	case storedCount > len(updateNotes):
		parts = append(parts, fmt.Sprintf("I also saved %d other statement(s).", storedCount-len(updateNotes)))
	}
	return strings.Join(parts, "\n")
}

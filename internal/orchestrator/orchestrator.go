package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tabula/internal/config"
	"tabula/internal/conflict"
	"tabula/internal/llm"
	"tabula/internal/messagestore"
	"tabula/internal/models"
	"tabula/internal/reasoning"
	"tabula/internal/retrieval"
	"tabula/pkg/logger"
)

const classifySystemPrompt = `Classify the user's message.

1. "learn": the user states information, facts, definitions, procedures or rules.
   Examples: "My name is Oleh", "The capital of Ukraine is Kyiv", "pi equals 3.14",
   "To bake bread, first knead the dough", "Variables are declared as: keyword name = value".

2. "solve": the user asks a question or asks to do, create, check or apply something.
   Examples: "What is my name?", "What is pi?", "Write a sorting procedure",
   "Using the syntax I gave you, create...", "Is this correct?".

3. "both": the message does both in one turn, stating information and then asking
   to use it. Example: "Loops are written as repeat N: ... Now write a loop that counts to 10".

Reply with JSON: {"intent": "learn", "solve" or "both"}`

// Orchestrator drives a message through the full pipeline: archive, pending
// conflict handling, intent classification, then the learn or solve path.
// The agent learns before it solves: knowledge stated in a message is stored
// before any question about it could arrive.
type Orchestrator struct {
	llm       llm.LLM
	analyzer  *retrieval.Analyzer
	retriever *retrieval.Engine
	detector  *conflict.Detector
	resolver  *conflict.Resolver
	loop      *reasoning.Loop
	indexer   *Indexer
	messages  *messagestore.Store
	cfg       config.ConflictConfig
	log       *logger.Logger
}

// New creates an Orchestrator.
func New(
	client llm.LLM,
	analyzer *retrieval.Analyzer,
	retriever *retrieval.Engine,
	detector *conflict.Detector,
	resolver *conflict.Resolver,
	loop *reasoning.Loop,
	indexer *Indexer,
	messages *messagestore.Store,
	cfg config.ConflictConfig,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		llm:       client,
		analyzer:  analyzer,
		retriever: retriever,
		detector:  detector,
		resolver:  resolver,
		loop:      loop,
		indexer:   indexer,
		messages:  messages,
		cfg:       cfg,
		log:       log,
	}
}

// HandleText processes one incoming message and produces the reply.
func (o *Orchestrator) HandleText(ctx context.Context, userID string, req *models.TextRequest) (*models.TextResponse, error) {
	log := logger.New("orchestrator", req.UID, userID)

	// Archive first so provenance is never lost, whatever happens later.
	err := o.messages.Save(ctx, &models.MessageRecord{
		UID:    req.UID,
		UserID: userID,
		Text:   req.Text,
	})
	if err != nil {
		return nil, fmt.Errorf("archive message: %w", err)
	}

	// An unanswered conflict question takes precedence over everything else.
	pending, err := o.resolver.Pending(ctx, userID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if pending != nil {
		return o.handlePendingAnswer(ctx, userID, req, pending, log)
	}

	intent := o.classify(ctx, req.Text, log)
	if err := o.messages.UpdateIntent(ctx, req.UID, intent); err != nil {
		log.WithError(models.ErrorInfo{Message: err.Error(), Type: "archive_error"}).
			Warn("failed to record message intent")
	}

	switch intent {
	case models.IntentLearn:
		return o.learn(ctx, userID, req, log)
	case models.IntentBoth:
		return o.learnThenSolve(ctx, userID, req, log)
	default:
		return o.solve(ctx, userID, req, log)
	}
}

// learnThenSolve handles a message that both teaches and asks: the learn path
// runs first so the solve path retrieves against the just-stored knowledge.
// When learning raised a conflict question the question must be answered
// before anything else, so solving is postponed.
func (o *Orchestrator) learnThenSolve(ctx context.Context, userID string, req *models.TextRequest, log *logger.Logger) (*models.TextResponse, error) {
	learned, err := o.learn(ctx, userID, req, log)
	if err != nil {
		return nil, err
	}
	if waiting, err := o.resolver.Pending(ctx, userID); err == nil && waiting != nil {
		return learned, nil
	}

	solved, err := o.solve(ctx, userID, req, log)
	if err != nil {
		return nil, err
	}
	return mergeResponses(learned, solved), nil
}

// mergeResponses combines the learn and solve halves of one turn.
func mergeResponses(learned, solved *models.TextResponse) *models.TextResponse {
	merged := &models.TextResponse{
		Response:   solved.Response,
		References: append(learned.References, solved.References...),
		Reasoning:  solved.Reasoning,
	}
	if learned.Response != "" {
		merged.Response = learned.Response + "\n\n" + solved.Response
	}
	return merged
}

// classify decides whether the message teaches or asks. When the model is
// unavailable a question mark is the best remaining signal.
func (o *Orchestrator) classify(ctx context.Context, text string, log *logger.Logger) models.Intent {
	raw, err := o.llm.CompleteJSON(ctx, classifySystemPrompt, text)
	if err == nil {
		var parsed struct {
			Intent string `json:"intent"`
		}
		if decodeErr := llm.DecodeJSON(raw, &parsed); decodeErr == nil {
			switch models.Intent(strings.ToLower(strings.TrimSpace(parsed.Intent))) {
			case models.IntentLearn:
				return models.IntentLearn
			case models.IntentSolve:
				return models.IntentSolve
			case models.IntentBoth:
				return models.IntentBoth
			}
		}
	}

	log.Warn("intent classification failed, falling back to heuristic")
	if strings.Contains(text, "?") {
		return models.IntentSolve
	}
	return models.IntentLearn
}

// handlePendingAnswer interprets the message as the answer to an open
// conflict question. An unreadable answer re-asks the question rather than
// guessing what the user meant.
func (o *Orchestrator) handlePendingAnswer(ctx context.Context, userID string, req *models.TextRequest, pending *models.PendingResolution, log *logger.Logger) (*models.TextResponse, error) {
	choice, ok := parseChoice(req.Text)
	if !ok {
		log.Info("could not interpret conflict answer, asking again")
		return &models.TextResponse{
			Response:   "I did not understand the answer.\n\n" + conflict.Question(pending.Conflict),
			References: []models.FactRecord{pending.Conflict.Existing},
		}, nil
	}

	storeNew, err := o.resolver.Apply(ctx, pending, choice)
	if err != nil {
		return nil, fmt.Errorf("apply conflict resolution: %w", err)
	}

	response := "Understood, I kept the earlier information."
	var references []models.FactRecord

	if storeNew {
		record, err := o.indexer.StoreFact(ctx, userID, pending.MessageUID, factExtraction{
			Fact:        pending.Conflict.NewFact,
			Description: pending.Conflict.NewFact,
		})
		if err != nil {
			return nil, err
		}
		references = append(references, record)
		response = "Understood, I updated my knowledge: " + pending.Conflict.NewFact
		if choice == conflict.KeepBoth {
			response = "Understood, I kept both: they apply in different contexts."
			references = append(references, pending.Conflict.Existing)
		}
	}

	return &models.TextResponse{Response: response, References: references}, nil
}

// parseChoice maps a free-form user answer onto a resolution choice.
func parseChoice(text string) (conflict.Choice, bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	switch {
	// "both" must win before "keep": "keep both" chooses option 3, not 2.
	case normalized == "3" || strings.Contains(normalized, "both"):
		return conflict.KeepBoth, true
	case normalized == "1" || strings.Contains(normalized, "new"):
		return conflict.KeepNew, true
	case normalized == "2" || strings.Contains(normalized, "old") || strings.Contains(normalized, "keep"):
		return conflict.KeepOld, true
	default:
		return 0, false
	}
}

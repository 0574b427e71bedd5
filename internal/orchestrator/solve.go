package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tabula/internal/models"
	"tabula/pkg/logger"
)

const answerSystemPrompt = `You answer the user's question using only the provided context from their stored knowledge.
When the context defines terms, rules or procedures, follow those definitions even when they differ from common knowledge.
If the context does not contain the answer, say so plainly instead of inventing one.`

// solve answers a question from stored knowledge: analyze the request,
// retrieve and fuse context, reason over it, then generate the reply.
func (o *Orchestrator) solve(ctx context.Context, userID string, req *models.TextRequest, log *logger.Logger) (*models.TextResponse, error) {
	analysis, err := o.analyzer.Analyze(ctx, req.Text)
	if err != nil {
		// Retrieval works without an analysis; it just searches less broadly.
		log.WithError(models.ErrorInfo{Message: err.Error(), Type: "analysis_error"}).
			Warn("query analysis failed, retrieving with raw text only")
		analysis = nil
	}

	items, err := o.retriever.Retrieve(ctx, userID, req.Text, analysis)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	result, err := o.loop.Run(ctx, userID, req.Text, contextText(items))
	if err != nil {
		return nil, fmt.Errorf("reasoning loop: %w", err)
	}

	answer, err := o.generateAnswer(ctx, req.Text, result.Context)
	switch {
	case errors.Is(err, models.ErrEmptyResponse):
		answer = emptyAnswerFallback(req.UID)
	case err != nil:
		return nil, err
	case answer == "":
		answer = emptyAnswerFallback(req.UID)
	}

	references := make([]models.FactRecord, 0, len(items))
	for _, item := range items {
		references = append(references, item.Record)
	}

	return &models.TextResponse{
		Response:   answer,
		References: references,
		Reasoning:  result.Steps,
	}, nil
}

// emptyAnswerFallback is the reply when the model produced nothing usable.
// The message uid lets the user point support at the exact failing request.
func emptyAnswerFallback(uid string) string {
	return fmt.Sprintf("I am sorry, I could not produce an answer for message %s. Please try rephrasing your request.", uid)
}

func (o *Orchestrator) generateAnswer(ctx context.Context, question, contextBlock string) (string, error) {
	prompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextBlock, question)
	answer, err := o.llm.Complete(ctx, answerSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

// contextText flattens retrieved items into the prompt context block. The
// description usually explains the fact; both are shown.
func contextText(items []models.ContextItem) string {
	var sb strings.Builder
	for _, item := range items {
		sb.WriteString("- ")
		sb.WriteString(item.Record.Fact)
		if item.Record.Description != "" && item.Record.Description != item.Record.Fact {
			sb.WriteString(": ")
			sb.WriteString(item.Record.Description)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

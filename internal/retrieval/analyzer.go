package retrieval

import (
	"context"
	"fmt"
	"strings"

	"tabula/internal/llm"
	"tabula/internal/models"
	"tabula/pkg/logger"
)

const analyzerSystemPrompt = `You analyze a user request to plan retrieval from a personal knowledge base.
Reply with a JSON object with these fields:
- "intent": one short sentence describing what the user wants
- "search_queries": up to 3 focused search queries covering different aspects of the request
- "key_entities": names, terms and identifiers mentioned in the request
- "information_needs": what pieces of stored knowledge would help fulfil the request
- "required_tools_or_methods": tools, methods or techniques the request mentions or implies

Reply with JSON only.`

// Analyzer breaks a user request into the structured parts that drive
// multi-query retrieval.
type Analyzer struct {
	llm llm.LLM
	log *logger.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(client llm.LLM, log *logger.Logger) *Analyzer {
	return &Analyzer{llm: client, log: log}
}

// Analyze asks the model to break the request down. Callers must tolerate an
// error here: retrieval falls back to searching with the raw text alone.
func (a *Analyzer) Analyze(ctx context.Context, text string) (*models.QueryAnalysis, error) {
	raw, err := a.llm.CompleteJSON(ctx, analyzerSystemPrompt, text)
	if err != nil {
		return nil, fmt.Errorf("query analysis completion: %w", err)
	}

	var analysis models.QueryAnalysis
	if err := llm.DecodeJSON(raw, &analysis); err != nil {
		return nil, fmt.Errorf("query analysis: %w", err)
	}
	return &analysis, nil
}

// BuildQueries assembles the search query list from an analysis. Sources are
// added in priority order: search queries first, then mentioned tools, then
// the top entities and information needs, and finally the raw message text so
// retrieval never misses context the analysis overlooked. Duplicates are
// removed preserving order, and the list is capped at maxQueries with the raw
// text always surviving the cap.
func BuildQueries(analysis *models.QueryAnalysis, messageText string, maxQueries int) []string {
	var queries []string

	if analysis != nil {
		queries = append(queries, analysis.SearchQueries...)
		queries = append(queries, analysis.RequiredTools...)
		queries = append(queries, topN(analysis.KeyEntities, 3)...)
		queries = append(queries, topN(analysis.InformationNeeds, 3)...)
	}
	queries = append(queries, messageText)

	seen := make(map[string]struct{})
	deduped := queries[:0]
	for _, q := range queries {
		norm := strings.ToLower(strings.TrimSpace(q))
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		deduped = append(deduped, strings.TrimSpace(q))
	}

	if maxQueries > 0 && len(deduped) > maxQueries {
		trimmed := deduped[:maxQueries]
		if !contains(trimmed, messageText) {
			trimmed[maxQueries-1] = messageText
		}
		return trimmed
	}
	return deduped
}

func topN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}

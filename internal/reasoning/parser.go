package reasoning

import (
	"strings"
	"unicode"

	"tabula/internal/llm"
	"tabula/internal/models"
)

// minToolInputLen is the shortest tool input accepted as a real query.
const minToolInputLen = 3

var (
	answerKeywords = []string{"ready", "enough", "answer", "sufficient"}
	searchKeywords = []string{"search", "find", "need", "look up", "missing"}
)

// Decision is one parsed step choice of the reasoning model.
type Decision struct {
	Thought   string `json:"thought"`
	Action    string `json:"action"`
	ToolName  string `json:"tool_name"`
	ToolInput string `json:"tool_input"`
}

// ParseDecision interprets a model reply. It first tries the structured JSON
// schema; when that fails the whole reply is treated as the thought and the
// action is inferred from keywords, defaulting to answer. Parsing never
// fails: an unreadable reply becomes an answer decision so the loop always
// terminates.
func ParseDecision(raw string) *Decision {
	var decision Decision
	if err := llm.DecodeJSON(raw, &decision); err == nil && strings.TrimSpace(decision.Thought) != "" {
		decision.Thought = strings.TrimSpace(decision.Thought)
		decision.Action = normalizeAction(decision.Action)
		decision.ToolInput = strings.TrimSpace(decision.ToolInput)
		if decision.Action == string(models.ActionSearch) && decision.ToolInput == "" {
			decision.ToolInput = decision.Thought
		}
		return &decision
	}

	thought := strings.TrimSpace(raw)
	return &Decision{
		Thought: thought,
		Action:  inferAction(thought),
	}
}

// Valid reports whether the decision can be executed as-is. A search with a
// missing, too short or punctuation-only input is not a usable query.
func (d *Decision) Valid() bool {
	if d.Thought == "" {
		return false
	}
	if d.Action != string(models.ActionSearch) {
		return true
	}
	return usableQuery(d.ToolInput)
}

func usableQuery(input string) bool {
	trimmed := strings.TrimSpace(input)
	if len(trimmed) < minToolInputLen {
		return false
	}
	for _, r := range trimmed {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func normalizeAction(action string) string {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case string(models.ActionSearch):
		return string(models.ActionSearch)
	default:
		return string(models.ActionAnswer)
	}
}

func inferAction(thought string) string {
	lower := strings.ToLower(thought)
	for _, keyword := range answerKeywords {
		if strings.Contains(lower, keyword) {
			return string(models.ActionAnswer)
		}
	}
	for _, keyword := range searchKeywords {
		if strings.Contains(lower, keyword) {
			return string(models.ActionSearch)
		}
	}
	return string(models.ActionAnswer)
}

// normalizeQuery canonicalizes a search query for duplicate detection:
// lowercased, punctuation stripped, whitespace collapsed. "Capital of
// France?" and "capital of France" are the same search.
func normalizeQuery(query string) string {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, strings.ToLower(query))
	return strings.Join(strings.Fields(stripped), " ")
}

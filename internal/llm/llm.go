package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"tabula/internal/config"
	"tabula/internal/models"
)

// LLM is the contract every completion provider implements.
type LLM interface {
	// Complete sends a system and user prompt and returns the model's text reply.
	Complete(ctx context.Context, system, user string) (string, error)

	// CompleteJSON is like Complete but asks the provider for a JSON reply
	// where the backend supports a JSON response mode.
	CompleteJSON(ctx context.Context, system, user string) (string, error)
}

// NewClient builds the completion provider selected by cfg.Provider.
func NewClient(cfg config.LLMConfig) (LLM, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg.OpenAI.Model, cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	case "gemini":
		return NewGemini(context.Background(), cfg.Gemini.Model, cfg.Gemini.APIKey)
	case "ollama":
		return NewOllama(cfg.Ollama.Model, cfg.Ollama.Host)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// DecodeJSON parses a model reply into out. Models often wrap JSON in code
// fences or surrounding prose, so the reply is trimmed to the outermost
// object before decoding. A reply that still does not decode returns
// models.ErrSchemaDecode so callers can fall back to free-text parsing.
func DecodeJSON(raw string, out interface{}) error {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return models.ErrEmptyResponse
	}

	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		cleaned = cleaned[start : end+1]
	}

	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("%w: %v", models.ErrSchemaDecode, err)
	}
	return nil
}

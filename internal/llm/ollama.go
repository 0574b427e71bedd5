package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"

	"tabula/internal/models"
)

// Ollama is a completion client for a local Ollama instance.
type Ollama struct {
	client *ollama.Client
	model  string
}

// NewOllama creates an Ollama client. baseURL defaults to
// "http://localhost:11434" when empty.
func NewOllama(model, baseURL string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	hc := &http.Client{
		Timeout: 120 * time.Second,
	}
	return &Ollama{
		client: ollama.NewClient(parsedURL, hc),
		model:  model,
	}, nil
}

// Complete sends a system and user prompt and returns the model's text reply.
func (o *Ollama) Complete(ctx context.Context, system, user string) (string, error) {
	return o.complete(ctx, system, user, nil)
}

// CompleteJSON requests a reply in Ollama's JSON format mode.
func (o *Ollama) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	return o.complete(ctx, system, user, json.RawMessage(`"json"`))
}

func (o *Ollama) complete(ctx context.Context, system, user string, format json.RawMessage) (string, error) {
	stream := false
	req := &ollama.ChatRequest{
		Model: o.model,
		Messages: []ollama.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Stream: &stream,
		Format: format,
	}

	var sb strings.Builder
	err := o.client.Chat(ctx, req, func(resp ollama.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	if sb.Len() == 0 {
		return "", models.ErrEmptyResponse
	}
	return sb.String(), nil
}

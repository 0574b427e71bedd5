package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"tabula/internal/models"
)

// Gemini is a completion client for the Gemini API.
type Gemini struct {
	client    *genai.Client
	modelName string
}

// NewGemini creates a Gemini client.
func NewGemini(ctx context.Context, model, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &Gemini{client: client, modelName: model}, nil
}

// Complete sends a system and user prompt and returns the model's text reply.
func (g *Gemini) Complete(ctx context.Context, system, user string) (string, error) {
	return g.complete(ctx, system, user, "")
}

// CompleteJSON requests an application/json reply.
func (g *Gemini) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	return g.complete(ctx, system, user, "application/json")
}

func (g *Gemini) complete(ctx context.Context, system, user, mimeType string) (string, error) {
	model := g.client.GenerativeModel(g.modelName)
	if system != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}
	if mimeType != "" {
		model.GenerationConfig.ResponseMIMEType = mimeType
	}

	resp, err := model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", models.ErrEmptyResponse
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", models.ErrEmptyResponse
	}
	return sb.String(), nil
}

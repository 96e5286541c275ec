package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type gemini struct {
	client *genai.Client
	model  string
}

func newGemini(ctx context.Context, apiKey, model, baseURL string) (*gemini, error) {
	cfg := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if baseURL != "" {
		cfg.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &gemini{client: client, model: model}, nil
}

func (c *gemini) Complete(ctx context.Context, messages []Message) (string, error) {
	var system *genai.Content
	var contents []*genai.Content

	// The system prompt becomes the systemInstruction; assistant turns map
	// to the "model" role.
	for _, m := range messages {
		parts := []*genai.Part{{Text: m.Content}}
		switch m.Role {
		case "system":
			system = &genai.Content{Parts: parts}
		case "assistant":
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: parts})
		}
	}
	if len(contents) == 0 {
		return "", errors.New("gemini: no conversation messages")
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: system,
		MaxOutputTokens:   maxCompletionTokens,
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini completion: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("gemini: empty completion")
	}
	return text, nil
}

// Package llm abstracts the chat-completion providers the coaching
// feedback can be configured with. A model reference is a single
// "provider/model" string, e.g. "openai/gpt-4o-mini".
package llm

import (
	"context"
	"fmt"
	"strings"
)

type Message struct {
	Role    string
	Content string
}

// Client produces one completion for an ordered message sequence.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// maxCompletionTokens bounds provider responses. Coaching notes are a page
// of markdown at most.
const maxCompletionTokens = 2048

// ParseModel splits a "provider/model" reference.
func ParseModel(ref string) (provider, model string, err error) {
	provider, model, ok := strings.Cut(ref, "/")
	if !ok || provider == "" || model == "" {
		return "", "", fmt.Errorf("invalid model reference %q: want provider/model", ref)
	}
	return provider, model, nil
}

// NewClient builds a completion client for one of the supported providers.
func NewClient(provider, apiKey, model string) (Client, error) {
	switch provider {
	case "openai":
		return newOpenAI(apiKey, model, ""), nil
	case "anthropic":
		return newAnthropic(apiKey, model, ""), nil
	case "gemini":
		return newGemini(context.Background(), apiKey, model, "")
	default:
		return nil, fmt.Errorf("unsupported provider %q: want openai, anthropic, or gemini", provider)
	}
}

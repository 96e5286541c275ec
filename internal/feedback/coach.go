// Package feedback turns a completed session's scored answers into
// coaching notes via a configurable LLM provider.
package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkale/intervue/internal/interview"
	"github.com/pkale/intervue/internal/llm"
)

type ClientFactory func(provider, model string) (llm.Client, error)

const systemPrompt = "You are an interview coach. Review the candidate's answers below, each with the expected answer, the detected emotion, and an accuracy score. Give concise markdown feedback: strengths, weak answers to revisit, and delivery notes."

type Coach struct {
	model   string
	factory ClientFactory
	sleep   func(time.Duration)
}

// NewCoach builds a coach for a provider/model string such as
// "openai/gpt-4o-mini" or "anthropic/claude-sonnet-4-20250514".
func NewCoach(model string, factory ClientFactory) *Coach {
	if strings.TrimSpace(model) == "" {
		model = "openai/gpt-4o-mini"
	}

	return &Coach{
		model:   model,
		factory: factory,
		sleep:   time.Sleep,
	}
}

// Generate produces markdown coaching notes for a finished session.
// Returns empty with no error when there is nothing to review.
func (c *Coach) Generate(ctx context.Context, results []interview.Result) (string, error) {
	if len(results) == 0 {
		return "", nil
	}

	provider, modelName, err := llm.ParseModel(c.model)
	if err != nil {
		return "", err
	}

	client, err := c.factory(provider, modelName)
	if err != nil {
		return "", fmt.Errorf("create llm client: %w", err)
	}

	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: renderResults(results)},
	}

	backoff := []time.Duration{1 * time.Second, 4 * time.Second, 16 * time.Second}
	var lastErr error
	for attempt := 0; attempt < len(backoff); attempt++ {
		notes, err := client.Complete(ctx, messages)
		if err == nil {
			return strings.TrimSpace(notes), nil
		}

		lastErr = err
		if attempt < len(backoff)-1 {
			c.sleep(backoff[attempt])
		}
	}

	return "", fmt.Errorf("feedback failed after retries: %w", lastErr)
}

func renderResults(results []interview.Result) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "Q%d: %s\n", i+1, r.Question)
		fmt.Fprintf(&b, "Expected: %s\n", r.CorrectAnswer)
		fmt.Fprintf(&b, "Answered: %s\n", r.UserAnswer)
		fmt.Fprintf(&b, "Emotion: %s, Accuracy: %.1f%%\n\n", r.Emotion, r.Similarity)
	}
	return b.String()
}

package factcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

const perplexityBaseURL = "https://api.perplexity.ai"

// PerplexityChecker verifies claims with Perplexity's sonar models, which
// speak the OpenAI chat-completions dialect and search the live web.
type PerplexityChecker struct {
	client *openai.Client
	model  string
}

// NewPerplexity creates a Perplexity-backed checker.
func NewPerplexity(apiKey, model string) (*PerplexityChecker, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("perplexity API key is required")
	}
	if model == "" {
		model = "sonar-pro"
	}

	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = perplexityBaseURL

	return &PerplexityChecker{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}, nil
}

// Check verifies a single claim.
func (c *PerplexityChecker) Check(ctx context.Context, claim string, filter SourceFilter) (*Result, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: buildSystemPrompt(filter, time.Now()),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Statement to verify: %q", claim),
			},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("perplexity chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from perplexity")
	}

	content := resp.Choices[0].Message.Content
	var raw rawResult
	if err := json.Unmarshal([]byte(stripFences(content)), &raw); err != nil {
		return nil, fmt.Errorf("parse perplexity response: %w", err)
	}

	result := normalize(raw.Verdict, raw.Confidence, raw.Evidence)
	return &result, nil
}

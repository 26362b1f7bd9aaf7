package factcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// GeminiChecker verifies claims with the Gemini API, grounded by Google
// Search retrieval.
type GeminiChecker struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini-backed checker.
func NewGemini(ctx context.Context, apiKey, model string) (*GeminiChecker, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiChecker{client: client, model: model}, nil
}

type rawResult struct {
	Verdict    string  `json:"verdict"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence"`
}

// Check verifies a single claim.
func (c *GeminiChecker) Check(ctx context.Context, claim string, filter SourceFilter) (*Result, error) {
	prompt := buildSystemPrompt(filter, time.Now()) +
		fmt.Sprintf("\n\nStatement to verify: %q", claim)

	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			Tools: []*genai.Tool{
				{GoogleSearch: &genai.GoogleSearch{}},
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("empty response from gemini")
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	result := normalize(raw.Verdict, raw.Confidence, raw.Evidence)
	result.Citations = groundingURLs(resp)
	return &result, nil
}

// groundingURLs pulls source links out of the search grounding metadata.
func groundingURLs(resp *genai.GenerateContentResponse) []string {
	var urls []string
	for _, cand := range resp.Candidates {
		if cand.GroundingMetadata == nil {
			continue
		}
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk.Web != nil && chunk.Web.URI != "" {
				urls = append(urls, chunk.Web.URI)
			}
		}
	}
	return urls
}

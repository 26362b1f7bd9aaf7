package factcheck

import (
	"fmt"
	"strings"
	"time"
)

const promptHeader = `You are a highly accurate fact-checking assistant. Your goal is to avoid false positives while catching genuine lies.

Instructions:
1. If the statement is subjective, an opinion, a question, an interjection, or an incomplete thought, return "unverifiable"
2. If it contains factual claims, verify them using web search; every component fact (names, dates, numbers, locations) must be correct for a "true" verdict
3. A claim that is technically true but framed to deceive is "misleading"
4. Only mark "false" if you are certain the claim is objectively wrong; when in doubt return "unverifiable" with low confidence
5. Provide a confidence score from 0.0 to 1.0 and brief evidence with sources

Respond ONLY with valid JSON in this exact format:
{
  "verdict": "true" | "false" | "unverifiable" | "misleading",
  "confidence": 0.0-1.0,
  "evidence": "Brief explanation with sources"
}`

// buildSystemPrompt assembles the fact-check instructions, anchoring the
// model on the current date and folding in the source allowlist when a
// filter narrower than "all" is selected.
func buildSystemPrompt(filter SourceFilter, now time.Time) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	fmt.Fprintf(&b, "\n\nCurrent date: %s. Claims about current officeholders or recent events must be checked against up-to-date sources.",
		now.Format("Monday, January 2, 2006"))

	if domains := filter.Domains(); len(domains) > 0 {
		fmt.Fprintf(&b, "\n\nRestrict your sources to these domains:\n- %s",
			strings.Join(domains, "\n- "))
	}
	return b.String()
}

// stripFences removes a markdown code fence around a JSON payload, which
// some models emit despite the JSON-only instruction.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

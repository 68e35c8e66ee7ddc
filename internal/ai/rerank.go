package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const rerankPromptTemplate = `You are a relevance judge. Given a search query
and numbered passages, score how well each passage answers the query on a
scale of 0.0 to 1.0. Respond with a JSON array of numbers only, one score
per passage, in passage order.

Query: %s

%s`

// ScoreRelevance returns a cross-encoder style relevance score in [0,1]
// for each candidate text against the query, in candidate order.
func (c *Client) ScoreRelevance(ctx context.Context, query string, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for i, text := range candidates {
		if len(text) > 1200 {
			text = text[:1200]
		}
		fmt.Fprintf(&sb, "Passage %d:\n%s\n\n", i+1, text)
	}

	prompt := fmt.Sprintf(rerankPromptTemplate, query, sb.String())
	raw, err := c.generateText(ctx, prompt, 512)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}

	scores, err := parseScores(raw, len(candidates))
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	return scores, nil
}

func parseScores(raw string, want int) ([]float64, error) {
	// The model sometimes wraps JSON in a code fence.
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var scores []float64
	if err := json.Unmarshal([]byte(raw), &scores); err != nil {
		return nil, fmt.Errorf("unparseable scores %q: %w", raw, err)
	}
	if len(scores) != want {
		return nil, fmt.Errorf("score count mismatch: got %d want %d", len(scores), want)
	}
	for i, s := range scores {
		if s < 0 {
			scores[i] = 0
		} else if s > 1 {
			scores[i] = 1
		}
	}
	return scores, nil
}

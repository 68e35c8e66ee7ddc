package ai

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"knowledge-base-service/internal/logger"
)

const enrichPromptTemplate = `<document>
%s
</document>
Here is the chunk we want to situate within the whole document:
<chunk>
%s
</chunk>
Please give a short succinct context to situate this chunk within the overall
document for the purposes of improving search retrieval of the chunk. Answer
only with the succinct context and nothing else.`

// EnrichChunk prepends a synthesized summary of the chunk's place in the
// larger document. docContext is truncated to the configured character
// budget so the enrichment call stays inside the provider token budget.
func (c *Client) EnrichChunk(ctx context.Context, chunkText, docContext string) (string, error) {
	if len(docContext) > c.cfg.ContextualCharBudget {
		docContext = docContext[:c.cfg.ContextualCharBudget]
	}

	prompt := fmt.Sprintf(enrichPromptTemplate, docContext, chunkText)
	summary, err := c.generateText(ctx, prompt, 256)
	if err != nil {
		return "", fmt.Errorf("enrich chunk: %w", err)
	}
	if summary == "" {
		return chunkText, nil
	}
	return summary + "\n---\n" + chunkText, nil
}

// EnrichAll enriches a slice of chunk texts with a fixed-size worker pool.
// Enrichment shares the rate-limited provider with embedding calls, so the
// pool is deliberately small. A per-chunk failure degrades to the raw text
// and is logged as a warning; it never fails the caller.
func (c *Client) EnrichAll(ctx context.Context, chunkTexts []string, docContext string) []string {
	enriched := make([]string, len(chunkTexts))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.ContextualWorkers)

	for i, text := range chunkTexts {
		g.Go(func() error {
			out, err := c.EnrichChunk(gctx, text, docContext)
			if err != nil {
				logger.Warn("Chunk enrichment failed, using raw text", "chunk", i, "error", err)
				out = text
			}
			mu.Lock()
			enriched[i] = out
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; degradation is per-chunk

	return enriched
}

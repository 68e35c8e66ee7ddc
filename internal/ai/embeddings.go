package ai

import (
	"context"
	"fmt"
	"time"

	genai "github.com/google/generative-ai-go/genai"

	"knowledge-base-service/internal/logger"
)

// EmbedBatch embeds up to EmbeddingBatchSize texts in one provider call.
// Transient provider errors (429, transient 5xx) are retried with
// exponential backoff up to EmbeddingMaxRetries attempts; exhaustion or a
// non-transient failure returns ErrEmbeddingUnavailable wrapped with the
// triggering error. Every returned vector is asserted against the
// configured dimensionality.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > c.cfg.EmbeddingBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds configured size %d", len(texts), c.cfg.EmbeddingBatchSize)
	}

	var lastErr error
	wait := c.cfg.EmbeddingRetryBaseWait

	for attempt := 1; attempt <= c.cfg.EmbeddingMaxRetries; attempt++ {
		vectors, err := c.embedBatchOnce(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		if !isTransient(err) {
			break
		}
		logger.Warn("Transient embedding error, backing off",
			"attempt", attempt, "wait", wait.String(), "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}

	return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, lastErr)
}

func (c *Client) embedBatchOnce(ctx context.Context, texts []string) ([][]float32, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		model := c.client.EmbeddingModel(c.cfg.GoogleEmbeddingsModel)
		batch := model.NewBatch()
		for _, text := range texts {
			batch.AddContent(genai.Text(text))
		}
		return model.BatchEmbedContents(ctx, batch)
	})
	if err != nil {
		return nil, err
	}

	resp := result.(*genai.BatchEmbedContentsResponse)
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d want %d", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		if len(emb.Values) != c.cfg.VectorDimensions {
			return nil, fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(emb.Values), c.cfg.VectorDimensions)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// EmbedQuery embeds a single query text with the same model and
// dimensionality as stored chunks.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Package search answers retrieval queries over the stored chunks:
// vector similarity, optional hybrid fusion with keyword results, and
// optional AI reranking.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"knowledge-base-service/internal/ai"
	"knowledge-base-service/internal/config"
	"knowledge-base-service/internal/logger"
	"knowledge-base-service/internal/store"
	"knowledge-base-service/models"
)

// Vectorizer embeds a query string.
type Vectorizer interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Reranker scores candidate texts against a query, 0 to 1.
type Reranker interface {
	ScoreRelevance(ctx context.Context, query string, candidates []string) ([]float64, error)
}

// ChunkSearcher is the retrieval surface of the store.
type ChunkSearcher interface {
	VectorSearch(ctx context.Context, opt store.SearchOptions) ([]store.ScoredChunk, error)
	KeywordSearch(ctx context.Context, query string, k int, sourceID *string) ([]store.ScoredChunk, error)
	VectorSearchCode(ctx context.Context, opt store.SearchOptions) ([]store.ScoredCodeExample, error)
}

// Engine runs the query pipeline: embed, overfetch, fuse, rerank, trim.
type Engine struct {
	cfg      *config.Config
	embedder Vectorizer
	reranker Reranker
	store    ChunkSearcher
}

func NewEngine(cfg *config.Config, emb Vectorizer, rr Reranker, st ChunkSearcher) *Engine {
	return &Engine{cfg: cfg, embedder: emb, reranker: rr, store: st}
}

// Query answers one search request under the given settings snapshot.
// When the embedding provider is down and the settings are hybrid
// tolerant, the response degrades to keyword-only results and says so.
func (e *Engine) Query(ctx context.Context, req models.SearchRequest, settings models.RagSettings) (*models.SearchResponse, error) {
	k := e.clampK(req.K)
	overfetch := k * e.cfg.SearchOverfetchFactor

	embedding, err := e.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		if errors.Is(err, ai.ErrEmbeddingUnavailable) && settings.HybridTolerant {
			logger.Warn("embeddings unavailable, answering keyword-only", "error", err)
			return e.keywordOnly(ctx, req, k)
		}
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates, err := e.store.VectorSearch(ctx, store.SearchOptions{
		Embedding: embedding,
		K:         overfetch,
		SourceID:  req.SourceID,
	})
	if err != nil {
		return nil, err
	}

	if settings.UseHybridSearch {
		keyword, err := e.store.KeywordSearch(ctx, req.Query, overfetch, req.SourceID)
		if err != nil {
			// keyword leg is an enhancement; vector results still stand
			logger.Warn("keyword search failed, using vector results alone", "error", err)
		} else {
			candidates = FuseRRF(candidates, keyword)
		}
	}

	results := chunkResults(candidates)
	if e.shouldRerank(req, settings) {
		results = e.rerank(ctx, req.Query, results)
	}
	if len(results) > k {
		results = results[:k]
	}
	return &models.SearchResponse{Results: results, TotalFound: len(results)}, nil
}

// QueryCodeExamples searches the extracted code examples by vector
// similarity, with the same optional reranking as chunk queries.
func (e *Engine) QueryCodeExamples(ctx context.Context, req models.SearchRequest, settings models.RagSettings) (*models.SearchResponse, error) {
	k := e.clampK(req.K)

	embedding, err := e.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := e.store.VectorSearchCode(ctx, store.SearchOptions{
		Embedding: embedding,
		K:         k * e.cfg.SearchOverfetchFactor,
		SourceID:  req.SourceID,
	})
	if err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		content := hit.Example.Code
		if hit.Example.Summary != "" {
			content = hit.Example.Summary + "\n\n" + hit.Example.Code
		}
		results = append(results, models.SearchResult{
			Content:    content,
			SourceID:   hit.Example.SourceID,
			URL:        hit.Example.URL,
			Language:   hit.Example.Language,
			Similarity: hit.Score,
		})
	}
	if e.shouldRerank(req, settings) {
		results = e.rerank(ctx, req.Query, results)
	}
	if len(results) > k {
		results = results[:k]
	}
	return &models.SearchResponse{Results: results, TotalFound: len(results)}, nil
}

func (e *Engine) clampK(k int) int {
	if k <= 0 {
		k = e.cfg.SearchDefaultK
	}
	if k > e.cfg.SearchMaxK {
		k = e.cfg.SearchMaxK
	}
	return k
}

// shouldRerank honors the per-request override, falling back to the
// settings snapshot.
func (e *Engine) shouldRerank(req models.SearchRequest, settings models.RagSettings) bool {
	if req.Rerank != nil {
		return *req.Rerank
	}
	return settings.UseReranking
}

// keywordOnly is the degraded path for embedding outages.
func (e *Engine) keywordOnly(ctx context.Context, req models.SearchRequest, k int) (*models.SearchResponse, error) {
	hits, err := e.store.KeywordSearch(ctx, req.Query, k, req.SourceID)
	if err != nil {
		return nil, err
	}
	results := chunkResults(hits)
	if len(results) > k {
		results = results[:k]
	}
	return &models.SearchResponse{Results: results, TotalFound: len(results), Degraded: true}, nil
}

// rerank rescores the candidates with the AI relevance scorer. A scorer
// failure keeps the similarity ordering instead of failing the query.
func (e *Engine) rerank(ctx context.Context, query string, results []models.SearchResult) []models.SearchResult {
	if len(results) == 0 {
		return results
	}
	texts := make([]string, len(results))
	for i := range results {
		texts[i] = results[i].Content
	}
	scores, err := e.reranker.ScoreRelevance(ctx, query, texts)
	if err != nil {
		logger.Warn("rerank unavailable, keeping similarity order", "error", err)
		return results
	}
	for i := range results {
		s := scores[i]
		results[i].RerankScore = &s
	}
	sort.SliceStable(results, func(i, j int) bool {
		return *results[i].RerankScore > *results[j].RerankScore
	})
	return results
}

func chunkResults(hits []store.ScoredChunk) []models.SearchResult {
	out := make([]models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		out = append(out, models.SearchResult{
			Content:    hit.Chunk.Text,
			SourceID:   hit.Chunk.SourceID,
			URL:        hit.Chunk.URL,
			Title:      hit.Chunk.Title,
			Similarity: hit.Score,
		})
	}
	return out
}

package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"knowledge-base-service/models"
)

// InsertChunkBatch persists one embedded batch. Chunks without an
// embedding vector are rejected outright: a chunk must never become
// searchable with a partial or empty vector.
func (s *Store) InsertChunkBatch(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]interface{}, len(chunks))
	now := time.Now()
	for i, ch := range chunks {
		if len(ch.Embedding) != s.cfg.VectorDimensions {
			return fmt.Errorf("insert chunks: chunk %d has %d-dim embedding, want %d",
				ch.Order, len(ch.Embedding), s.cfg.VectorDimensions)
		}
		if ch.CreatedAt.IsZero() {
			ch.CreatedAt = now
		}
		docs[i] = ch
	}

	if _, err := s.chunks.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	return nil
}

// InsertCodeExamples persists extracted code examples for a revision.
func (s *Store) InsertCodeExamples(ctx context.Context, examples []models.CodeExample) error {
	if len(examples) == 0 {
		return nil
	}

	docs := make([]interface{}, len(examples))
	now := time.Now()
	for i, ex := range examples {
		if len(ex.Embedding) != s.cfg.VectorDimensions {
			return fmt.Errorf("insert code examples: example %d has %d-dim embedding, want %d",
				i, len(ex.Embedding), s.cfg.VectorDimensions)
		}
		if ex.CreatedAt.IsZero() {
			ex.CreatedAt = now
		}
		docs[i] = ex
	}

	if _, err := s.code.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert code examples: %w", err)
	}
	return nil
}

// CountChunks returns the number of queryable (active revision) chunks for
// a source.
func (s *Store) CountChunks(ctx context.Context, sourceID string) (int64, error) {
	src, err := s.GetSource(ctx, sourceID)
	if err != nil {
		return 0, err
	}
	n, err := s.chunks.CountDocuments(ctx, bson.M{"source_id": sourceID, "revision": src.ActiveRevision})
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

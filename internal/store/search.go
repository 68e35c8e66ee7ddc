package store

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"knowledge-base-service/models"
)

// SearchOptions is the single request shape for similarity search. The
// source filter is an optional field here, not a second entry point.
type SearchOptions struct {
	Embedding []float32
	K         int
	SourceID  *string
}

// ScoredChunk is a chunk with its cosine similarity to the query.
type ScoredChunk struct {
	Chunk models.Chunk
	Score float64
}

// ScoredCodeExample is a code example with its cosine similarity.
type ScoredCodeExample struct {
	Example models.CodeExample
	Score   float64
}

// VectorSearch returns the top-K active-revision chunks by cosine
// similarity, optionally filtered to one source. Uses Atlas $vectorSearch
// when enabled, otherwise an in-process cosine scan with the same
// contract.
func (s *Store) VectorSearch(ctx context.Context, opt SearchOptions) ([]ScoredChunk, error) {
	if len(opt.Embedding) != s.cfg.VectorDimensions {
		return nil, fmt.Errorf("vector search: query embedding has %d dims, want %d",
			len(opt.Embedding), s.cfg.VectorDimensions)
	}
	if opt.K <= 0 {
		opt.K = 10
	}

	revisions, err := s.activeRevisions(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []models.Chunk
	if s.cfg.VectorSearchEnabled {
		candidates, err = s.atlasVectorSearch(ctx, s.chunks, opt)
	} else {
		candidates, err = s.scanCandidates(ctx, s.chunks, opt.SourceID)
	}
	if err != nil {
		return nil, err
	}

	scored := make([]ScoredChunk, 0, len(candidates))
	for _, ch := range candidates {
		if revisions[ch.SourceID] != ch.Revision {
			continue // stale revision caught mid-replace
		}
		scored = append(scored, ScoredChunk{Chunk: ch, Score: CosineSimilarity(opt.Embedding, ch.Embedding)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.ID.Hex() < scored[j].Chunk.ID.Hex()
	})
	if len(scored) > opt.K {
		scored = scored[:opt.K]
	}
	return scored, nil
}

// VectorSearchCode is VectorSearch over the code example collection.
func (s *Store) VectorSearchCode(ctx context.Context, opt SearchOptions) ([]ScoredCodeExample, error) {
	if len(opt.Embedding) != s.cfg.VectorDimensions {
		return nil, fmt.Errorf("vector search: query embedding has %d dims, want %d",
			len(opt.Embedding), s.cfg.VectorDimensions)
	}
	if opt.K <= 0 {
		opt.K = 10
	}

	revisions, err := s.activeRevisions(ctx)
	if err != nil {
		return nil, err
	}

	filter := bson.M{}
	if opt.SourceID != nil {
		filter["source_id"] = *opt.SourceID
	}
	cursor, err := s.code.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("code search: %w", err)
	}
	defer cursor.Close(ctx)

	var scored []ScoredCodeExample
	for cursor.Next(ctx) {
		var ex models.CodeExample
		if err := cursor.Decode(&ex); err != nil {
			return nil, fmt.Errorf("code search: %w", err)
		}
		if revisions[ex.SourceID] != ex.Revision {
			continue
		}
		scored = append(scored, ScoredCodeExample{Example: ex, Score: CosineSimilarity(opt.Embedding, ex.Embedding)})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("code search: %w", err)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Example.ID.Hex() < scored[j].Example.ID.Hex()
	})
	if len(scored) > opt.K {
		scored = scored[:opt.K]
	}
	return scored, nil
}

// KeywordSearch runs full-text ranking over active chunks: Atlas $search
// when enabled, the Mongo text index otherwise.
func (s *Store) KeywordSearch(ctx context.Context, query string, k int, sourceID *string) ([]ScoredChunk, error) {
	if k <= 0 {
		k = 10
	}

	revisions, err := s.activeRevisions(ctx)
	if err != nil {
		return nil, err
	}

	var cursor *mongo.Cursor
	if s.cfg.AtlasTextSearchEnabled {
		cursor, err = s.chunks.Aggregate(ctx, keywordSearchPipeline(s.cfg.SearchIndexName, query, k, sourceID))
	} else {
		filter := bson.M{"$text": bson.M{"$search": query}}
		if sourceID != nil {
			filter["source_id"] = *sourceID
		}
		opts := options.Find().
			SetProjection(bson.M{"search_score": bson.M{"$meta": "textScore"}, "source_id": 1, "url": 1,
				"title": 1, "text": 1, "order": 1, "revision": 1, "metadata": 1, "created_at": 1}).
			SetSort(bson.M{"search_score": bson.M{"$meta": "textScore"}}).
			SetLimit(int64(k * 4))
		cursor, err = s.chunks.Find(ctx, filter, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer cursor.Close(ctx)

	var scored []ScoredChunk
	for cursor.Next(ctx) {
		var doc struct {
			models.Chunk `bson:",inline"`
			SearchScore  float64 `bson:"search_score"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("keyword search: %w", err)
		}
		if revisions[doc.SourceID] != doc.Revision {
			continue
		}
		if sourceID != nil && doc.SourceID != *sourceID {
			continue
		}
		scored = append(scored, ScoredChunk{Chunk: doc.Chunk, Score: doc.SearchScore})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// keywordSearchPipeline builds the Atlas $search aggregation. The source
// filter narrows the pipeline before $limit, or a minority source gets
// crowded out of the window.
func keywordSearchPipeline(indexName, query string, k int, sourceID *string) mongo.Pipeline {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$search", Value: bson.D{
			{Key: "index", Value: indexName},
			{Key: "text", Value: bson.D{
				{Key: "query", Value: query},
				{Key: "path", Value: bson.A{"text", "title"}},
			}},
		}}},
	}
	if sourceID != nil {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.D{{Key: "source_id", Value: *sourceID}}}})
	}
	return append(pipeline,
		bson.D{{Key: "$limit", Value: k * 4}},
		bson.D{{Key: "$addFields", Value: bson.D{
			{Key: "search_score", Value: bson.D{{Key: "$meta", Value: "searchScore"}}},
		}}},
	)
}

func (s *Store) atlasVectorSearch(ctx context.Context, col *mongo.Collection, opt SearchOptions) ([]models.Chunk, error) {
	stage := bson.D{
		{Key: "index", Value: s.cfg.VectorIndexName},
		{Key: "path", Value: "embedding"},
		{Key: "queryVector", Value: opt.Embedding},
		{Key: "numCandidates", Value: opt.K * 10},
		{Key: "limit", Value: opt.K * 2},
	}
	if opt.SourceID != nil {
		stage = append(stage, bson.E{Key: "filter", Value: bson.D{{Key: "source_id", Value: *opt.SourceID}}})
	}

	cursor, err := col.Aggregate(ctx, mongo.Pipeline{bson.D{{Key: "$vectorSearch", Value: stage}}})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer cursor.Close(ctx)

	var chunks []models.Chunk
	if err := cursor.All(ctx, &chunks); err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return chunks, nil
}

// scanCandidates loads candidate chunks for the in-process cosine
// fallback.
func (s *Store) scanCandidates(ctx context.Context, col *mongo.Collection, sourceID *string) ([]models.Chunk, error) {
	filter := bson.M{}
	if sourceID != nil {
		filter["source_id"] = *sourceID
	}
	cursor, err := col.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("vector scan: %w", err)
	}
	defer cursor.Close(ctx)

	var chunks []models.Chunk
	if err := cursor.All(ctx, &chunks); err != nil {
		return nil, fmt.Errorf("vector scan: %w", err)
	}
	return chunks, nil
}

// CosineSimilarity of two vectors; 0 when either is empty or lengths
// differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

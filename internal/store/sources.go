package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"knowledge-base-service/models"
)

// EnsureSource creates the source record on first ingestion or refreshes
// its display metadata on re-ingestion. The active revision is left
// untouched until CommitRevision.
func (s *Store) EnsureSource(ctx context.Context, src models.Source) error {
	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"display_name": src.DisplayName,
			"source_type":  src.SourceType,
			"seed_url":     src.SeedURL,
			"tags":         src.Tags,
		},
		"$setOnInsert": bson.M{
			"created_at":      now,
			"last_refresh_at": now,
			"active_revision": int64(0),
		},
	}
	_, err := s.sources.UpdateOne(ctx, bson.M{"_id": src.SourceID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("ensure source: %w", err)
	}
	return nil
}

// CommitRevision makes revision the queryable chunk set for the source and
// deletes stale rows. Partial revisions are committed too: a cancelled or
// failed job keeps the batches it already persisted.
func (s *Store) CommitRevision(ctx context.Context, sourceID string, revision int64, pageCount, wordCount int) error {
	chunkCount, err := s.chunks.CountDocuments(ctx, bson.M{"source_id": sourceID, "revision": revision})
	if err != nil {
		return fmt.Errorf("commit revision: %w", err)
	}

	res, err := s.sources.UpdateOne(ctx, bson.M{"_id": sourceID}, bson.M{
		"$set": bson.M{
			"active_revision": revision,
			"page_count":      pageCount,
			"chunk_count":     chunkCount,
			"word_count":      wordCount,
			"last_refresh_at": time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit revision: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrSourceNotFound
	}

	// Old revisions are invisible already; removing them is cleanup.
	stale := bson.M{"source_id": sourceID, "revision": bson.M{"$ne": revision}}
	if _, err := s.chunks.DeleteMany(ctx, stale); err != nil {
		return fmt.Errorf("delete stale chunks: %w", err)
	}
	if _, err := s.code.DeleteMany(ctx, stale); err != nil {
		return fmt.Errorf("delete stale code examples: %w", err)
	}
	return nil
}

// GetSource returns one source record.
func (s *Store) GetSource(ctx context.Context, sourceID string) (*models.Source, error) {
	var src models.Source
	err := s.sources.FindOne(ctx, bson.M{"_id": sourceID}).Decode(&src)
	if err == mongo.ErrNoDocuments {
		return nil, ErrSourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return &src, nil
}

// ListSources returns all known sources, most recently refreshed first.
func (s *Store) ListSources(ctx context.Context) ([]models.Source, error) {
	cursor, err := s.sources.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "last_refresh_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer cursor.Close(ctx)

	var sources []models.Source
	if err := cursor.All(ctx, &sources); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

// ListSourcesRefreshedBefore returns URL sources whose last refresh is
// older than cutoff, for the refresh scheduler.
func (s *Store) ListSourcesRefreshedBefore(ctx context.Context, cutoff time.Time) ([]models.Source, error) {
	filter := bson.M{
		"source_type":     models.SourceTypeURL,
		"last_refresh_at": bson.M{"$lt": cutoff},
	}
	cursor, err := s.sources.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list stale sources: %w", err)
	}
	defer cursor.Close(ctx)

	var sources []models.Source
	if err := cursor.All(ctx, &sources); err != nil {
		return nil, fmt.Errorf("list stale sources: %w", err)
	}
	return sources, nil
}

// DeleteSource removes the source and cascades to all of its chunks and
// code examples.
func (s *Store) DeleteSource(ctx context.Context, sourceID string) error {
	res, err := s.sources.DeleteOne(ctx, bson.M{"_id": sourceID})
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrSourceNotFound
	}

	owned := bson.M{"source_id": sourceID}
	if _, err := s.chunks.DeleteMany(ctx, owned); err != nil {
		return fmt.Errorf("delete source chunks: %w", err)
	}
	if _, err := s.code.DeleteMany(ctx, owned); err != nil {
		return fmt.Errorf("delete source code examples: %w", err)
	}
	return nil
}

// activeRevisions maps every source id to its committed revision.
func (s *Store) activeRevisions(ctx context.Context) (map[string]int64, error) {
	cursor, err := s.sources.Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"_id": 1, "active_revision": 1}))
	if err != nil {
		return nil, fmt.Errorf("active revisions: %w", err)
	}
	defer cursor.Close(ctx)

	revisions := make(map[string]int64)
	for cursor.Next(ctx) {
		var doc struct {
			ID       string `bson:"_id"`
			Revision int64  `bson:"active_revision"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("active revisions: %w", err)
		}
		revisions[doc.ID] = doc.Revision
	}
	return revisions, cursor.Err()
}

package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"knowledge-base-service/models"
)

const settingsDocID = "rag_settings"

// LoadRagSettings returns the persisted retrieval settings, or the
// defaults when nothing has been saved yet.
func (s *Store) LoadRagSettings(ctx context.Context) (models.RagSettings, error) {
	var doc struct {
		Settings models.RagSettings `bson:"settings"`
	}
	err := s.settings.FindOne(ctx, bson.M{"_id": settingsDocID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.DefaultRagSettings(), nil
	}
	if err != nil {
		return models.RagSettings{}, fmt.Errorf("load settings: %w", err)
	}
	return doc.Settings, nil
}

// SaveRagSettings replaces the single settings document.
func (s *Store) SaveRagSettings(ctx context.Context, settings models.RagSettings) error {
	_, err := s.settings.UpdateOne(ctx,
		bson.M{"_id": settingsDocID},
		bson.M{"$set": bson.M{"settings": settings}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

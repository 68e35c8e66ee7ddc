package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	// Create indexes
	err = createIndexes(client, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

func createIndexes(client *mongo.Client, dbName string) error {
	db := client.Database(dbName)
	ctx := context.Background()

	chunksCollection := db.Collection("chunks")
	chunkIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "source_id", Value: 1}, {Key: "revision", Value: 1}, {Key: "order", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "text", Value: "text"}, {Key: "title", Value: "text"}},
			Options: options.Index().SetName("chunks_text_fallback"),
		},
	}
	if _, err := chunksCollection.Indexes().CreateMany(ctx, chunkIndexes); err != nil {
		return err
	}

	codeCollection := db.Collection("code_examples")
	codeIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "source_id", Value: 1}, {Key: "revision", Value: 1}},
		},
	}
	if _, err := codeCollection.Indexes().CreateMany(ctx, codeIndexes); err != nil {
		return err
	}

	sourcesCollection := db.Collection("sources")
	sourceIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "last_refresh_at", Value: 1}},
		},
	}
	if _, err := sourcesCollection.Indexes().CreateMany(ctx, sourceIndexes); err != nil {
		return err
	}

	return nil
}

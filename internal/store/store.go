// Package store is the sole writer of embedded content. Chunks and code
// examples are written in revisions: a re-ingestion inserts a fresh
// revision, commits it by flipping the source's active revision, then
// deletes stale rows. Searches only ever surface the active revision, so a
// replace is atomic from the caller's perspective.
package store

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"knowledge-base-service/internal/config"
)

// ErrSourceNotFound is returned for operations on an unknown source.
var ErrSourceNotFound = errors.New("source not found")

type Store struct {
	cfg      *config.Config
	db       *mongo.Database
	rdb      *redis.Client
	sources  *mongo.Collection
	chunks   *mongo.Collection
	code     *mongo.Collection
	settings *mongo.Collection
}

func New(cfg *config.Config, client *mongo.Client, rdb *redis.Client) *Store {
	db := client.Database(cfg.DBName)
	return &Store{
		cfg:      cfg,
		db:       db,
		rdb:      rdb,
		sources:  db.Collection("sources"),
		chunks:   db.Collection("chunks"),
		code:     db.Collection("code_examples"),
		settings: db.Collection("settings"),
	}
}

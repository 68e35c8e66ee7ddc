package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Chunk is the unit of embedding and retrieval. Chunks are written in
// revisions: a re-ingestion writes a fresh revision and flips the owning
// source's active revision, so a chunk is never queryable before its
// embedding is persisted.
type Chunk struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SourceID  string             `bson:"source_id" json:"source_id"`
	URL       string             `bson:"url" json:"url"`
	Title     string             `bson:"title,omitempty" json:"title,omitempty"`
	Text      string             `bson:"text" json:"text"`
	Embedding []float32          `bson:"embedding" json:"-"`
	Order     int                `bson:"order" json:"order"`
	Revision  int64              `bson:"revision" json:"-"`
	Metadata  ChunkMetadata      `bson:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// ChunkMetadata carries positional and provenance details for a chunk.
type ChunkMetadata struct {
	Headers       []string `bson:"headers,omitempty" json:"headers,omitempty"`
	CharCount     int      `bson:"char_count,omitempty" json:"char_count,omitempty"`
	WordCount     int      `bson:"word_count,omitempty" json:"word_count,omitempty"`
	CrawlStrategy string   `bson:"crawl_strategy,omitempty" json:"crawl_strategy,omitempty"`
	Contextual    bool     `bson:"contextual,omitempty" json:"contextual,omitempty"`
	Oversize      bool     `bson:"oversize,omitempty" json:"oversize,omitempty"`
}

// CodeExample is a fenced code block extracted from a crawled page, with
// its own embedding and an AI-generated summary. It shares the parent
// source's lifecycle but extraction may lag chunk ingestion.
type CodeExample struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SourceID  string             `bson:"source_id" json:"source_id"`
	URL       string             `bson:"url" json:"url"`
	Language  string             `bson:"language,omitempty" json:"language,omitempty"`
	Code      string             `bson:"code" json:"code"`
	Summary   string             `bson:"summary,omitempty" json:"summary,omitempty"`
	Embedding []float32          `bson:"embedding" json:"-"`
	Revision  int64              `bson:"revision" json:"-"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

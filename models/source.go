package models

import "time"

// Source is a logical origin of knowledge: a crawled domain or an
// uploaded document. Chunks and code examples cascade-delete with it.
type Source struct {
	SourceID       string    `bson:"_id" json:"source_id"`
	DisplayName    string    `bson:"display_name" json:"display_name"`
	SourceType     string    `bson:"source_type" json:"source_type"` // url, file
	SeedURL        string    `bson:"seed_url,omitempty" json:"seed_url,omitempty"`
	Tags           []string  `bson:"tags,omitempty" json:"tags,omitempty"`
	PageCount      int       `bson:"page_count" json:"page_count"`
	ChunkCount     int       `bson:"chunk_count" json:"chunk_count"`
	WordCount      int       `bson:"word_count" json:"word_count"`
	ActiveRevision int64     `bson:"active_revision" json:"-"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	LastRefreshAt  time.Time `bson:"last_refresh_at" json:"last_refresh_at"`
}

// SourceType constants
const (
	SourceTypeURL  = "url"
	SourceTypeFile = "file"
)

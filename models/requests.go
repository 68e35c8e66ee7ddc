package models

// CrawlIngestRequest is the body of POST /api/knowledge/crawl.
type CrawlIngestRequest struct {
	URL        string   `json:"url" binding:"required,url"`
	SourceType string   `json:"source_type,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	MaxDepth   int      `json:"max_depth,omitempty" binding:"omitempty,min=1,max=5"`
	ChunkSize  int      `json:"chunk_size,omitempty" binding:"omitempty,min=500,max=20000"`
}

// SearchRequest is the body of POST /api/search and /api/search/code.
// SourceID is a single optional filter field rather than a second
// overloaded endpoint.
type SearchRequest struct {
	Query    string  `json:"query" binding:"required"`
	SourceID *string `json:"source_id,omitempty"`
	K        int     `json:"k,omitempty" binding:"omitempty,min=1,max=50"`
	Rerank   *bool   `json:"rerank,omitempty"`
}

// SearchResult is one ranked, source-attributed hit.
type SearchResult struct {
	Content     string   `json:"content"`
	SourceID    string   `json:"source_id"`
	URL         string   `json:"url"`
	Title       string   `json:"title,omitempty"`
	Language    string   `json:"language,omitempty"`
	Similarity  float64  `json:"similarity_score"`
	RerankScore *float64 `json:"rerank_score,omitempty"`
}

// SearchResponse wraps ranked results. Degraded is set when hybrid-tolerant
// mode answered with keyword-only results during an embedding outage.
type SearchResponse struct {
	Results    []SearchResult `json:"results"`
	TotalFound int            `json:"total_found"`
	Degraded   bool           `json:"degraded,omitempty"`
}

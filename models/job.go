package models

import "time"

// IngestJob phases. Linear state machine; the only loop is per-batch
// retry inside embedding_storage.
const (
	PhaseAnalyzing        = "analyzing"
	PhaseCrawling         = "crawling"
	PhaseChunking         = "chunking"
	PhaseSourceCreation   = "source_creation"
	PhaseEmbeddingStorage = "embedding_storage"
	PhaseCodeExtraction   = "code_extraction"
	PhaseFinalizing       = "finalizing"
	PhaseCompleted        = "completed"
	PhaseFailed           = "failed"
	PhaseCancelled        = "cancelled"
)

// Terminal outcomes
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeCancelled = "cancelled"
)

// IngestRequest is the originating request of one ingestion job. Exactly
// one of URL or FilePath is set.
type IngestRequest struct {
	URL        string   `json:"url,omitempty"`
	FilePath   string   `json:"file_path,omitempty"`
	FileName   string   `json:"file_name,omitempty"`
	SourceType string   `json:"source_type,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	MaxDepth   int      `json:"max_depth,omitempty"`  // 1-5, default 2
	ChunkSize  int      `json:"chunk_size,omitempty"` // default 5000 chars
}

// IngestJob is ephemeral job state. It lives in Redis for the duration of
// the job plus a short retention window; it is never written to Mongo.
type IngestJob struct {
	JobID     string        `json:"job_id"`
	Request   IngestRequest `json:"request"`
	Settings  RagSettings   `json:"settings"` // snapshot taken at creation
	StartedAt time.Time     `json:"started_at"`
}

// ProgressEvent is one update on a job's progress stream. Percentage is
// monotonically non-decreasing across the whole job and reaches exactly
// 100 on success.
type ProgressEvent struct {
	JobID        string   `json:"job_id"`
	Phase        string   `json:"phase"`
	Percentage   int      `json:"percentage"`
	Message      string   `json:"message"`
	LogLines     []string `json:"log_lines,omitempty"`
	Outcome      string   `json:"outcome,omitempty"`
	Error        string   `json:"error,omitempty"`
	ChunksStored int      `json:"chunks_stored,omitempty"`
	DurationMS   int64    `json:"duration_ms,omitempty"`
}

// Terminal reports whether the event closes the job's stream.
func (e ProgressEvent) Terminal() bool {
	return e.Phase == PhaseCompleted || e.Phase == PhaseFailed || e.Phase == PhaseCancelled
}

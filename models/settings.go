package models

// RagSettings are runtime strategy toggles, persisted in the settings
// collection and editable without a restart. Jobs and queries read an
// immutable snapshot at creation time so behavior never changes mid-flight.
type RagSettings struct {
	UseContextualEmbeddings bool `bson:"use_contextual_embeddings" json:"use_contextual_embeddings"`
	UseHybridSearch         bool `bson:"use_hybrid_search" json:"use_hybrid_search"`
	UseReranking            bool `bson:"use_reranking" json:"use_reranking"`
	ExtractCodeExamples     bool `bson:"extract_code_examples" json:"extract_code_examples"`
	// HybridTolerant lets a query degrade to keyword-only results when the
	// embedding provider is down, instead of failing the query.
	HybridTolerant bool `bson:"hybrid_tolerant" json:"hybrid_tolerant"`
}

// DefaultRagSettings returns the settings used before any have been saved.
func DefaultRagSettings() RagSettings {
	return RagSettings{
		ExtractCodeExamples: true,
	}
}

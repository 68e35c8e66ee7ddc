package store

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestCosineSimilarityIdenticalVectors(t *testing.T) {
	v := []float32{0.5, 0.25, 0.8}
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.InDelta(t, 0.0, CosineSimilarity(a, b), 1e-9)
}

func TestCosineSimilarityOpposite(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{-1, -2, -3}
	assert.InDelta(t, -1.0, CosineSimilarity(a, b), 1e-9)
}

func TestCosineSimilarityDegenerateInputs(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func stageName(stage bson.D) string {
	if len(stage) == 0 {
		return ""
	}
	return stage[0].Key
}

func TestKeywordSearchPipelineFiltersBeforeLimit(t *testing.T) {
	src := "docs.example.com"
	pipeline := keywordSearchPipeline("chunks_text", "compaction", 5, &src)

	var stages []string
	for _, stage := range pipeline {
		stages = append(stages, stageName(stage))
	}
	require.Equal(t, []string{"$search", "$match", "$limit", "$addFields"}, stages)

	match, ok := pipeline[1][0].Value.(bson.D)
	require.True(t, ok)
	assert.Equal(t, "source_id", match[0].Key)
	assert.Equal(t, src, match[0].Value)
}

func TestKeywordSearchPipelineUnfiltered(t *testing.T) {
	pipeline := keywordSearchPipeline("chunks_text", "compaction", 5, nil)

	var stages []string
	for _, stage := range pipeline {
		stages = append(stages, stageName(stage))
	}
	assert.Equal(t, []string{"$search", "$limit", "$addFields"}, stages)
}

func TestCosineSimilarityScaleInvariant(t *testing.T) {
	a := []float32{0.3, 0.7, 0.1}
	scaled := make([]float32, len(a))
	for i := range a {
		scaled[i] = a[i] * 42
	}
	got := CosineSimilarity(a, scaled)
	if math.Abs(got-1.0) > 1e-6 {
		t.Fatalf("expected scale-invariant similarity near 1, got %f", got)
	}
}

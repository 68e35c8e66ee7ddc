package search

import (
	"sort"

	"knowledge-base-service/internal/store"
)

// rrfK dampens the rank contribution so deep-tail hits cannot dominate.
const rrfK = 60

// FuseRRF merges a vector-ranked and a keyword-ranked candidate list
// with reciprocal rank fusion. Each candidate scores the sum of
// 1/(k+rank) over the lists it appears in; ties break on ascending
// chunk id so the ordering is deterministic across runs.
func FuseRRF(vector, keyword []store.ScoredChunk) []store.ScoredChunk {
	type fused struct {
		chunk      store.ScoredChunk
		score      float64
		similarity float64
	}
	byID := make(map[string]*fused, len(vector)+len(keyword))

	add := func(list []store.ScoredChunk, keepSimilarity bool) {
		for rank, sc := range list {
			id := sc.Chunk.ID.Hex()
			entry, ok := byID[id]
			if !ok {
				entry = &fused{chunk: sc}
				byID[id] = entry
			}
			entry.score += 1.0 / float64(rrfK+rank+1)
			if keepSimilarity {
				entry.similarity = sc.Score
			}
		}
	}
	add(vector, true)
	add(keyword, false)

	out := make([]store.ScoredChunk, 0, len(byID))
	for _, entry := range byID {
		sc := entry.chunk
		// cosine similarity when the vector pass saw it, RRF mass otherwise
		if entry.similarity != 0 {
			sc.Score = entry.similarity
		}
		out = append(out, sc)
	}

	scores := make(map[string]float64, len(byID))
	for id, entry := range byID {
		scores[id] = entry.score
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := scores[out[i].Chunk.ID.Hex()], scores[out[j].Chunk.ID.Hex()]
		if si != sj {
			return si > sj
		}
		return out[i].Chunk.ID.Hex() < out[j].Chunk.ID.Hex()
	})
	return out
}

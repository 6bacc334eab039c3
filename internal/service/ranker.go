package service

import (
	"log/slog"
	"math"
	"sort"

	"github.com/SEPPAN-hub/aikomon/internal/models"
)

// CosineSimilarity returns dot(a,b) / (|a| * |b|) computed in double precision.
// The second return is false when the vectors are non-comparable: mismatched
// dimensions or a zero-norm operand.
func CosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, false
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}

// Rank scores every corpus record against the query vector and returns up to
// topK records with similarity >= minSimilarity, best first. Ties keep the
// original corpus order so results are deterministic for a fixed corpus and query.
//
// Records whose embeddings are absent, of the wrong dimension, or zero-norm are
// skipped (logged at debug), never surfaced as a search failure. This is a full
// linear scan per query; it holds while the corpus fits in memory, and a larger
// deployment should swap in an ANN index behind the same contract.
func Rank(query []float32, corpus []models.MessageRecord, topK int, minSimilarity float64) []models.RankedRecord {
	if topK <= 0 || len(corpus) == 0 {
		return nil
	}

	ranked := make([]models.RankedRecord, 0, len(corpus))

	for i := range corpus {
		similarity, ok := CosineSimilarity(query, corpus[i].Embedding)
		if !ok {
			slog.Debug("ranker: skipping non-comparable record",
				"record_id", corpus[i].ID, "embedding_len", len(corpus[i].Embedding))

			continue
		}

		if similarity < minSimilarity {
			continue
		}

		ranked = append(ranked, models.RankedRecord{
			MessageRecord: corpus[i],
			Similarity:    similarity,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Similarity > ranked[j].Similarity
	})

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	return ranked
}

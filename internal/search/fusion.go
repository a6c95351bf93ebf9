// Package search composes dense vector and keyword results from IndexStore
// into a single ranking using Reciprocal Rank Fusion.
package search

import "sort"

// DefaultRRFConstant is the standard RRF smoothing parameter.
// k=60 is empirically validated across domains (used by Azure AI Search, OpenSearch, etc.).
const DefaultRRFConstant = 60

// DefaultSemanticWeight and DefaultKeywordWeight are the default display-score
// weights for combined_score, applied only to modalities a chunk appears in.
const (
	DefaultSemanticWeight = 0.7
	DefaultKeywordWeight  = 0.3
)

// DefaultOverFetchMultiplier is how many times limit is over-fetched per
// modality before fusion in hybrid mode (k' = limit * m).
const DefaultOverFetchMultiplier = 3

// DefaultKeywordScoreDivisor normalises a raw BM25 score to [0,1] via
// min(1, raw/divisor). BM25 scores are unbounded above, so this is a rough
// calibration rather than a true probability.
const DefaultKeywordScoreDivisor = 10.0

// FusedResult is a single chunk after RRF fusion of semantic and keyword
// rank lists, carrying both the fusion score and the separate weighted
// display score.
type FusedResult struct {
	ChunkID       string
	RRFScore      float64
	CombinedScore float64

	SemanticScore float64
	SemanticRank  int // 1-indexed, 0 if absent
	KeywordScore  float64
	KeywordRank   int // 1-indexed, 0 if absent
}

// RRFFusion fuses two ranked result lists.
//
// Algorithm: rrf(c) = Σ_i 1 / (k + rank_i(c)), summed over the modalities in
// which c appears. No weighting is applied to this sum; weights only affect
// the separately computed CombinedScore display value.
type RRFFusion struct {
	K int // RRF smoothing constant (default: 60)

	SemanticWeight float64
	KeywordWeight  float64
}

// NewRRFFusion creates an RRF fusion instance with default k=60 and default
// combined-score weights (0.7 semantic / 0.3 keyword).
func NewRRFFusion() *RRFFusion {
	return NewRRFFusionWithK(DefaultRRFConstant)
}

// NewRRFFusionWithK creates an RRF fusion with a custom k value. If k <= 0,
// defaults to 60.
func NewRRFFusionWithK(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k, SemanticWeight: DefaultSemanticWeight, KeywordWeight: DefaultKeywordWeight}
}

// semanticHit and keywordHit are the minimal shape fusion needs from each
// modality's over-fetched, score-descending result list.
type semanticHit struct {
	ChunkID string
	Score   float64
}

type keywordHit struct {
	ChunkID string
	Score   float64
}

// Fuse combines semantic and keyword rank lists via Reciprocal Rank Fusion.
// Both slices must already be sorted by descending score; rank is derived
// from position. Results are sorted per the ordering guarantee: RRFScore
// desc, then SemanticRank asc, KeywordRank asc, ChunkID asc.
func (f *RRFFusion) Fuse(semantic []semanticHit, keyword []keywordHit) []*FusedResult {
	if len(semantic) == 0 && len(keyword) == 0 {
		return []*FusedResult{}
	}

	hits := make(map[string]*FusedResult, len(semantic)+len(keyword))

	for rank, h := range semantic {
		r := f.getOrCreate(hits, h.ChunkID)
		r.SemanticScore = h.Score
		r.SemanticRank = rank + 1
		r.RRFScore += 1.0 / float64(f.K+rank+1)
	}

	for rank, h := range keyword {
		r := f.getOrCreate(hits, h.ChunkID)
		r.KeywordScore = h.Score
		r.KeywordRank = rank + 1
		r.RRFScore += 1.0 / float64(f.K+rank+1)
	}

	semWeight := f.SemanticWeight
	kwWeight := f.KeywordWeight
	if semWeight == 0 && kwWeight == 0 {
		semWeight, kwWeight = DefaultSemanticWeight, DefaultKeywordWeight
	}

	results := make([]*FusedResult, 0, len(hits))
	for _, r := range hits {
		r.CombinedScore = combinedScore(r, semWeight, kwWeight)
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		return f.less(results[i], results[j])
	})

	return results
}

// combinedScore computes the display score w_sem·s_sem + w_kw·s_kw, using
// only the modalities the chunk actually appeared in (absent modalities
// contribute neither score nor weight).
func combinedScore(r *FusedResult, semWeight, kwWeight float64) float64 {
	var sum, weight float64
	if r.SemanticRank > 0 {
		sum += semWeight * r.SemanticScore
		weight += semWeight
	}
	if r.KeywordRank > 0 {
		sum += kwWeight * r.KeywordScore
		weight += kwWeight
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}

func (f *RRFFusion) getOrCreate(m map[string]*FusedResult, id string) *FusedResult {
	if r, ok := m[id]; ok {
		return r
	}
	r := &FusedResult{ChunkID: id}
	m[id] = r
	return r
}

// less orders a before b per the ordering guarantee: RRFScore desc, then
// SemanticRank asc (0/absent sorts last), KeywordRank asc (same), then
// ChunkID asc.
func (f *RRFFusion) less(a, b *FusedResult) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}
	if ar, br := rankOrInfinite(a.SemanticRank), rankOrInfinite(b.SemanticRank); ar != br {
		return ar < br
	}
	if ar, br := rankOrInfinite(a.KeywordRank), rankOrInfinite(b.KeywordRank); ar != br {
		return ar < br
	}
	return a.ChunkID < b.ChunkID
}

// rankOrInfinite treats an absent rank (0) as sorting after every present
// rank, per the tie-break guarantee.
func rankOrInfinite(rank int) int {
	if rank == 0 {
		return int(^uint(0) >> 1)
	}
	return rank
}

// Package search composes IndexStore's dense and keyword retrieval into a
// single hybrid ranking, fused with Reciprocal Rank Fusion.
package search

import (
	"context"
	"time"

	"github.com/ragdhq/ragd/internal/store"
)

// Mode selects which modalities a search draws results from.
type Mode string

const (
	ModeHybrid   Mode = "hybrid"
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
)

// Searcher composes dense and keyword results from IndexStore into a single
// ranking.
type Searcher interface {
	// Search executes a query against the configured mode and returns
	// results ordered per the fusion/ordering rules for that mode.
	Search(ctx context.Context, query string, opts Options) ([]*Result, error)
}

// Weights configures the relative importance of semantic vs keyword scores
// in the hybrid mode's combined_score display value. They do not affect the
// RRF fusion score itself, which is unweighted.
type Weights struct {
	Semantic float64
	Keyword  float64
}

// DefaultWeights returns the default combined_score weights (0.7 semantic,
// 0.3 keyword).
func DefaultWeights() Weights {
	return Weights{Semantic: DefaultSemanticWeight, Keyword: DefaultKeywordWeight}
}

// Options configures a single search call.
type Options struct {
	// Mode selects hybrid, semantic, or keyword retrieval. Defaults to hybrid.
	Mode Mode

	// Limit is the maximum number of results to return.
	Limit int

	// MinScore filters out results below this threshold. Its meaning is
	// mode-dependent: a vector similarity floor in semantic mode, a
	// normalised BM25 floor in keyword mode, and an OR across combined_score
	// and rrf_score in hybrid mode.
	MinScore float64

	// Filter restricts candidates by document/chunk attributes before
	// scoring (passed straight through to IndexStore).
	Filter store.Filter

	// Weights overrides the default hybrid combined_score weights.
	Weights *Weights

	// RRFConstant overrides the default RRF smoothing constant k=60.
	RRFConstant int

	// OverFetchMultiplier controls how many candidates are pulled per
	// modality before fusion in hybrid mode: k' = limit * m. Default 3.
	OverFetchMultiplier int
}

// DefaultOptions returns sensible defaults: hybrid mode, limit 10, no score
// floor, default weights, k=60, m=3.
func DefaultOptions() Options {
	return Options{
		Mode:                ModeHybrid,
		Limit:               10,
		RRFConstant:         DefaultRRFConstant,
		OverFetchMultiplier: DefaultOverFetchMultiplier,
	}
}

// Result is a single ranked chunk returned by Search.
type Result struct {
	Content    string
	DocumentID string
	Filename   string
	ChunkID    string
	ChunkIndex  int
	Metadata    map[string]string
	Location    string // e.g. "page 4", populated when the chunk records page numbers
	PageNumbers []int  // sorted, raw page numbers backing Location; empty when the source has none
	CharStart   int
	CharEnd     int

	CombinedScore float64
	RRFScore      float64

	SemanticScore *float64
	KeywordScore  *float64
	SemanticRank  *int
	KeywordRank   *int
}

// Stats reports engine-level statistics, mirroring IndexStore.Stats.
type Stats struct {
	DocumentCount int
	ChunkCount    int
	Dimension     int
	BackendType   string
}

// Config configures a HybridSearcher instance.
type Config struct {
	DefaultLimit        int
	MaxLimit            int
	DefaultWeights      Weights
	RRFConstant         int
	OverFetchMultiplier int
	KeywordScoreDivisor float64 // normalises raw BM25 scores: s_norm = min(1, raw/divisor)
	SearchTimeout       time.Duration
}

// DefaultConfig returns the HybridSearcher's default configuration.
func DefaultConfig() Config {
	return Config{
		DefaultLimit:        10,
		MaxLimit:            100,
		DefaultWeights:      DefaultWeights(),
		RRFConstant:         DefaultRRFConstant,
		OverFetchMultiplier: DefaultOverFetchMultiplier,
		KeywordScoreDivisor: DefaultKeywordScoreDivisor,
		SearchTimeout:       30 * time.Second,
	}
}

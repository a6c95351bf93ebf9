package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ragdhq/ragd/internal/embed"
	"github.com/ragdhq/ragd/internal/store"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// HybridSearcher composes dense and keyword retrieval from an IndexStore
// into a single ranking. It owns no storage of its own.
type HybridSearcher struct {
	index    *store.IndexStore
	embedder embed.Embedder
	config   Config

	mu sync.RWMutex
}

var _ Searcher = (*HybridSearcher)(nil)

// NewHybridSearcher creates a HybridSearcher over an already-constructed
// IndexStore and embedder. Returns an error if either is nil.
func NewHybridSearcher(index *store.IndexStore, embedder embed.Embedder, config Config) (*HybridSearcher, error) {
	if index == nil {
		return nil, fmt.Errorf("%w: index store is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	return &HybridSearcher{index: index, embedder: embedder, config: config}, nil
}

// Search executes query against the requested mode and returns results
// ordered per that mode's ranking rules.
func (h *HybridSearcher) Search(ctx context.Context, query string, opts Options) ([]*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	h.mu.RLock()
	cfg := h.config
	h.mu.RUnlock()

	opts = ApplyDefaults(opts, cfg)
	if err := ValidateOptions(opts); err != nil {
		return nil, fmt.Errorf("invalid search options: %w", err)
	}

	var results []*Result
	var err error

	switch opts.Mode {
	case ModeSemantic:
		results, err = h.searchSemantic(ctx, query, opts)
	case ModeKeyword:
		results, err = h.searchKeyword(ctx, query, opts, cfg)
	default:
		results, err = h.searchHybrid(ctx, query, opts, cfg)
	}
	if err != nil {
		return nil, err
	}

	if err := h.enrichResults(ctx, results); err != nil {
		return nil, fmt.Errorf("enrich results: %w", err)
	}
	return results, nil
}

// searchSemantic embeds the query, calls IndexStore.VectorSearch, and
// filters by min_score.
func (h *HybridSearcher) searchSemantic(ctx context.Context, query string, opts Options) ([]*Result, error) {
	vector, err := h.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := h.index.VectorSearch(ctx, vector, opts.Limit, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results := make([]*Result, 0, len(hits))
	for _, hit := range hits {
		score := float64(hit.Score)
		if score < opts.MinScore {
			continue
		}
		results = append(results, &Result{
			Content:       hit.Content,
			DocumentID:    hit.DocumentID,
			ChunkID:       hit.ChunkID,
			Metadata:      hit.Metadata,
			CombinedScore: score,
			RRFScore:      score,
			SemanticScore: &score,
		})
	}
	return results, nil
}

// searchKeyword parses the boolean query via IndexStore.KeywordSearch,
// normalises raw BM25 scores, and filters by min_score.
func (h *HybridSearcher) searchKeyword(ctx context.Context, query string, opts Options, cfg Config) ([]*Result, error) {
	hits, err := h.index.KeywordSearch(ctx, query, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	divisor := keywordScoreDivisor(cfg)

	results := make([]*Result, 0, len(hits))
	for _, hit := range hits {
		norm := math.Min(1.0, hit.BM25Score/divisor)
		if norm < opts.MinScore {
			continue
		}
		rank := hit.Rank
		results = append(results, &Result{
			Content:       hit.Content,
			DocumentID:    hit.DocumentID,
			ChunkID:       hit.ChunkID,
			CombinedScore: norm,
			RRFScore:      norm,
			KeywordScore:  &norm,
			KeywordRank:   &rank,
		})
	}
	return results, nil
}

// searchHybrid over-fetches from both modalities, fuses via RRF, computes
// the weighted combined_score, and trims to limit.
func (h *HybridSearcher) searchHybrid(ctx context.Context, query string, opts Options, cfg Config) ([]*Result, error) {
	overFetch := opts.Limit * opts.OverFetchMultiplier

	semanticHits, keywordHits, err := h.parallelSearch(ctx, query, overFetch, opts.Filter)
	if err != nil {
		if semanticHits == nil && keywordHits == nil {
			return nil, err
		}
		slog.Warn("hybrid search degraded: one modality failed", slog.String("error", err.Error()))
	}

	semanticList := make([]semanticHit, len(semanticHits))
	for i, hit := range semanticHits {
		semanticList[i] = semanticHit{ChunkID: hit.ChunkID, Score: float64(hit.Score)}
	}
	divisor := keywordScoreDivisor(cfg)
	keywordList := make([]keywordHit, len(keywordHits))
	for i, hit := range keywordHits {
		keywordList[i] = keywordHit{ChunkID: hit.ChunkID, Score: math.Min(1.0, hit.BM25Score/divisor)}
	}

	fusion := NewRRFFusionWithK(opts.RRFConstant)
	if opts.Weights != nil {
		fusion.SemanticWeight = opts.Weights.Semantic
		fusion.KeywordWeight = opts.Weights.Keyword
	}
	fused := fusion.Fuse(semanticList, keywordList)

	contentByID := make(map[string]*store.VectorSearchResult, len(semanticHits))
	for _, hit := range semanticHits {
		contentByID[hit.ChunkID] = hit
	}
	keywordByID := make(map[string]*store.KeywordSearchResult, len(keywordHits))
	for _, hit := range keywordHits {
		keywordByID[hit.ChunkID] = hit
	}

	results := make([]*Result, 0, len(fused))
	for _, f := range fused {
		if !passesMinScore(f.CombinedScore, f.RRFScore, opts.MinScore) {
			continue
		}
		results = append(results, fusedToResult(f, contentByID, keywordByID))
	}

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func keywordScoreDivisor(cfg Config) float64 {
	if cfg.KeywordScoreDivisor > 0 {
		return cfg.KeywordScoreDivisor
	}
	return DefaultKeywordScoreDivisor
}

// parallelSearch runs the semantic and keyword over-fetch independently so
// either can be cancelled without blocking the other, per the cancellation
// guarantee: a cancelled search discards partial fused results rather than
// returning them.
func (h *HybridSearcher) parallelSearch(ctx context.Context, query string, overFetch int, filter store.Filter) (
	[]*store.VectorSearchResult, []*store.KeywordSearchResult, error,
) {
	g, gctx := errgroup.WithContext(ctx)

	var semanticHits []*store.VectorSearchResult
	var keywordHits []*store.KeywordSearchResult
	var semanticErr, keywordErr error

	g.Go(func() error {
		vector, err := h.embedder.Embed(gctx, query)
		if err != nil {
			semanticErr = fmt.Errorf("embed query: %w", err)
			return nil
		}
		semanticHits, semanticErr = h.index.VectorSearch(gctx, vector, overFetch, filter)
		return nil
	})

	g.Go(func() error {
		var err error
		keywordHits, err = h.index.KeywordSearch(gctx, query, overFetch)
		keywordErr = err
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if semanticErr != nil && keywordErr != nil {
		return nil, nil, errors.Join(semanticErr, keywordErr)
	}
	if semanticErr != nil {
		return nil, keywordHits, semanticErr
	}
	if keywordErr != nil {
		return semanticHits, nil, keywordErr
	}
	return semanticHits, keywordHits, nil
}

// fusedToResult hydrates a FusedResult with content from whichever
// modality produced it (semantic hits carry metadata the keyword path
// doesn't).
func fusedToResult(f *FusedResult, semantic map[string]*store.VectorSearchResult, keyword map[string]*store.KeywordSearchResult) *Result {
	r := &Result{
		ChunkID:       f.ChunkID,
		CombinedScore: f.CombinedScore,
		RRFScore:      f.RRFScore,
	}

	if f.SemanticRank > 0 {
		score := f.SemanticScore
		rank := f.SemanticRank
		r.SemanticScore = &score
		r.SemanticRank = &rank
	}
	if f.KeywordRank > 0 {
		score := f.KeywordScore
		rank := f.KeywordRank
		r.KeywordScore = &score
		r.KeywordRank = &rank
	}

	if hit, ok := semantic[f.ChunkID]; ok {
		r.Content = hit.Content
		r.DocumentID = hit.DocumentID
		r.Metadata = hit.Metadata
	} else if hit, ok := keyword[f.ChunkID]; ok {
		r.Content = hit.Content
		r.DocumentID = hit.DocumentID
	}

	return r
}

// enrichResults fills Filename, ChunkIndex, and Location (page, when the
// chunk records page numbers) from the chunk and document rows, batching
// lookups so a result page costs one chunk fetch plus one document fetch
// per distinct document rather than per chunk.
func (h *HybridSearcher) enrichResults(ctx context.Context, results []*Result) error {
	if len(results) == 0 {
		return nil
	}

	chunkIDs := make([]string, len(results))
	for i, r := range results {
		chunkIDs[i] = r.ChunkID
	}
	chunks, err := h.index.GetChunksByIDs(ctx, chunkIDs)
	if err != nil {
		return fmt.Errorf("fetch chunks: %w", err)
	}
	chunkByID := make(map[string]*store.Chunk, len(chunks))
	for _, c := range chunks {
		chunkByID[c.ChunkID] = c
	}

	documents := make(map[string]*store.Document)
	for _, r := range results {
		chunk, ok := chunkByID[r.ChunkID]
		if !ok {
			continue
		}
		r.ChunkIndex = chunk.ChunkIndex
		r.CharStart = chunk.CharStart
		r.CharEnd = chunk.CharEnd
		if r.Metadata == nil {
			r.Metadata = chunk.Metadata
		}
		if len(chunk.PageNumbers) > 0 {
			r.Location = fmt.Sprintf("page %d", chunk.PageNumbers[0])
			r.PageNumbers = chunk.PageNumbers
		}

		if _, ok := documents[r.DocumentID]; !ok {
			doc, err := h.index.GetDocument(ctx, r.DocumentID)
			if err != nil {
				documents[r.DocumentID] = nil
				continue
			}
			documents[r.DocumentID] = doc
		}
		if doc := documents[r.DocumentID]; doc != nil {
			r.Filename = doc.Filename
		}
	}

	return nil
}

// Stats reports index-level statistics.
func (h *HybridSearcher) Stats(ctx context.Context) (*Stats, error) {
	s, err := h.index.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		DocumentCount: s.DocumentCount,
		ChunkCount:    s.ChunkCount,
		Dimension:     s.Dimension,
		BackendType:   s.BackendType,
	}, nil
}

// SortByOrderingGuarantee re-sorts results per the documented tie-break:
// rrf_score desc, semantic_rank asc, keyword_rank asc, chunk_id asc. Exposed
// separately from Fuse's own sort for callers re-merging results from
// multiple HybridSearcher calls (e.g. cascading retrieval).
func SortByOrderingGuarantee(results []*Result) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.RRFScore != b.RRFScore {
			return a.RRFScore > b.RRFScore
		}
		if ar, br := rankOrInfinite(intPtrOrZero(a.SemanticRank)), rankOrInfinite(intPtrOrZero(b.SemanticRank)); ar != br {
			return ar < br
		}
		if ar, br := rankOrInfinite(intPtrOrZero(a.KeywordRank)), rankOrInfinite(intPtrOrZero(b.KeywordRank)); ar != br {
			return ar < br
		}
		return a.ChunkID < b.ChunkID
	})
}

func intPtrOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

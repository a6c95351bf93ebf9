package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	ragderrors "github.com/ragdhq/ragd/internal/errors"
)

// IndexStore owns the three coupled physical stores (vector, keyword,
// metadata) and guarantees cross-store consistency per document. It is the
// only component permitted to mutate them; everything else reads through
// HybridSearcher.
type IndexStore struct {
	// writerMu serialises add_document/delete_document across all three
	// stores. Search never takes it.
	writerMu sync.Mutex

	vectors  VectorStore
	keyword  BM25Index
	metadata MetadataStore

	dimension   int
	backendType string

	vectorPath  string
	keywordPath string

	overFetchMultiplier int // candidate count above which the two-stage ANN over-fetches instead of scoring exactly
}

// NewIndexStore composes already-constructed physical stores into an
// IndexStore. vectorPath/keywordPath are used by Persist to flush the
// file-backed stores; the metadata store persists continuously via SQLite.
func NewIndexStore(vectors VectorStore, keyword BM25Index, metadata MetadataStore, dimension int, backendType, vectorPath, keywordPath string) *IndexStore {
	return &IndexStore{
		vectors:             vectors,
		keyword:             keyword,
		metadata:            metadata,
		dimension:           dimension,
		backendType:         backendType,
		vectorPath:          vectorPath,
		keywordPath:         keywordPath,
		overFetchMultiplier: 10,
	}
}

// VectorSearchResult is a single vector_search hit.
type VectorSearchResult struct {
	ChunkID    string
	Score      float32
	Content    string
	DocumentID string
	Metadata   map[string]string
}

// KeywordSearchResult is a single keyword_search hit.
type KeywordSearchResult struct {
	ChunkID    string
	BM25Score  float64
	Content    string
	DocumentID string
	Rank       int // 1-based
}

// IndexStoreStats summarises the index for the `ragd stats` command.
type IndexStoreStats struct {
	DocumentCount  int
	ChunkCount     int
	Dimension      int
	BackendType    string
	IndexSizeBytes int64
}

// HealthStatus reports IndexStore operability.
type HealthStatus struct {
	Status    string // "healthy", "degraded", "unhealthy"
	LatencyMS float64
	Message   string
}

// AddDocument adds a document and all its chunks/vectors/postings
// atomically: metadata first, then vectors, then keyword postings. Any
// failure compensates prior steps so nothing is left partially visible.
func (s *IndexStore) AddDocument(ctx context.Context, doc *Document, chunks []*Chunk, vectors [][]float32, metadatas []map[string]string) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	if metadatas != nil && len(metadatas) != len(chunks) {
		return fmt.Errorf("chunks and metadatas length mismatch: %d vs %d", len(chunks), len(metadatas))
	}

	if existingID, exists, err := s.metadata.DocumentExistsByHash(ctx, doc.ContentHash); err != nil {
		return fmt.Errorf("failed to check content hash: %w", err)
	} else if exists {
		return ragderrors.DuplicateError(fmt.Sprintf("document with content hash %s already indexed as %s", doc.ContentHash, existingID))
	}

	for i, vec := range vectors {
		if len(vec) != s.dimension {
			return ragderrors.DimensionMismatchError(
				fmt.Sprintf("chunk %s has %d dimensions, engine expects %d", chunks[i].ChunkID, len(vec), s.dimension), nil)
		}
	}

	if metadatas != nil {
		for i, m := range metadatas {
			if chunks[i].Metadata == nil {
				chunks[i].Metadata = m
			} else {
				for k, v := range m {
					chunks[i].Metadata[k] = v
				}
			}
		}
	}

	doc.ChunkCount = len(chunks)
	if doc.IndexedAt.IsZero() {
		doc.IndexedAt = time.Now().UTC()
	}
	if doc.SchemaVersion == 0 {
		doc.SchemaVersion = CurrentSchemaVersion
	}

	// Step 1: metadata (document row + chunk rows).
	if err := s.metadata.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	if err := s.metadata.SaveChunks(ctx, chunks); err != nil {
		_ = s.metadata.DeleteDocument(ctx, doc.DocumentID)
		return fmt.Errorf("failed to save chunks: %w", err)
	}

	// Step 2: vectors.
	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		chunkIDs[i] = c.ChunkID
	}
	if err := s.vectors.Add(ctx, chunkIDs, vectors); err != nil {
		_ = s.metadata.DeleteDocument(ctx, doc.DocumentID)
		return fmt.Errorf("failed to add vectors: %w", err)
	}

	// Step 3: keyword postings.
	keywordDocs := make([]*KeywordDocument, len(chunks))
	for i, c := range chunks {
		keywordDocs[i] = &KeywordDocument{ID: c.ChunkID, Content: c.Text}
	}
	if err := s.keyword.Index(ctx, keywordDocs); err != nil {
		_ = s.vectors.Delete(ctx, chunkIDs)
		_ = s.metadata.DeleteDocument(ctx, doc.DocumentID)
		return fmt.Errorf("failed to index keyword postings: %w", err)
	}

	return nil
}

// DeleteDocument removes a document and every chunk, vector, and posting
// that references it. Idempotent: deleting an unknown document is not an
// error.
func (s *IndexStore) DeleteDocument(ctx context.Context, documentID string) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	chunks, err := s.metadata.GetChunksByDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to list chunks for document %s: %w", documentID, err)
	}

	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		chunkIDs[i] = c.ChunkID
	}

	if len(chunkIDs) > 0 {
		if err := s.keyword.Delete(ctx, chunkIDs); err != nil {
			return fmt.Errorf("failed to delete keyword postings: %w", err)
		}
		if err := s.vectors.Delete(ctx, chunkIDs); err != nil {
			return fmt.Errorf("failed to delete vectors: %w", err)
		}
	}

	if err := s.metadata.DeleteDocument(ctx, documentID); err != nil {
		if _, ok := err.(ErrNotFound); !ok {
			return fmt.Errorf("failed to delete document %s: %w", documentID, err)
		}
	}

	return nil
}

func (s *IndexStore) GetDocument(ctx context.Context, documentID string) (*Document, error) {
	return s.metadata.GetDocument(ctx, documentID)
}

func (s *IndexStore) ListDocuments(ctx context.Context, filter Filter, cursor string, limit int) ([]*Document, string, error) {
	return s.metadata.ListDocuments(ctx, filter, cursor, limit)
}

func (s *IndexStore) DocumentExists(ctx context.Context, contentHash string) (string, bool, error) {
	return s.metadata.DocumentExistsByHash(ctx, contentHash)
}

// VectorSearch performs semantic search, applying the two-stage filtered
// ANN strategy when filter is non-nil: candidates are resolved from the
// metadata store, then scored exactly if there are few enough, else used to
// intersect an over-fetched ANN result.
func (s *IndexStore) VectorSearch(ctx context.Context, queryVector []float32, k int, filter Filter) ([]*VectorSearchResult, error) {
	if len(queryVector) != s.dimension {
		return nil, ragderrors.DimensionMismatchError(
			fmt.Sprintf("query vector has %d dimensions, engine expects %d", len(queryVector), s.dimension), nil)
	}

	var hits []*VectorResult
	var err error

	if filter == nil {
		hits, err = s.vectors.Search(ctx, queryVector, k)
		if err != nil {
			return nil, fmt.Errorf("vector search failed: %w", err)
		}
	} else {
		hits, err = s.filteredVectorSearch(ctx, queryVector, k, filter)
		if err != nil {
			return nil, err
		}
	}

	return s.hydrateVectorResults(ctx, hits)
}

func (s *IndexStore) filteredVectorSearch(ctx context.Context, queryVector []float32, k int, filter Filter) ([]*VectorResult, error) {
	candidateIDs, err := s.metadata.CandidateChunkIDs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve filter candidates: %w", err)
	}
	if len(candidateIDs) == 0 {
		return nil, nil
	}

	if len(candidateIDs) <= s.overFetchMultiplier*k {
		return s.exactScoreCandidates(ctx, queryVector, candidateIDs, k)
	}

	overFetchK := k * s.overFetchMultiplier
	raw, err := s.vectors.Search(ctx, queryVector, overFetchK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	candidateSet := make(map[string]struct{}, len(candidateIDs))
	for _, id := range candidateIDs {
		candidateSet[id] = struct{}{}
	}

	filtered := make([]*VectorResult, 0, k)
	for _, r := range raw {
		if _, ok := candidateSet[r.ID]; ok {
			filtered = append(filtered, r)
			if len(filtered) == k {
				break
			}
		}
	}
	return filtered, nil
}

func (s *IndexStore) exactScoreCandidates(ctx context.Context, queryVector []float32, candidateIDs []string, k int) ([]*VectorResult, error) {
	vecs, err := s.vectors.GetVectors(ctx, candidateIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candidate vectors: %w", err)
	}

	normalizedQuery := make([]float32, len(queryVector))
	copy(normalizedQuery, queryVector)
	normalizeVectorInPlace(normalizedQuery)

	metric := "cos"
	results := make([]*VectorResult, 0, len(vecs))
	for id, vec := range vecs {
		distance := vectorDistance(normalizedQuery, vec, metric)
		results = append(results, &VectorResult{
			ID:       id,
			Distance: distance,
			Score:    distanceToScore(distance, metric),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func (s *IndexStore) hydrateVectorResults(ctx context.Context, hits []*VectorResult) ([]*VectorSearchResult, error) {
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	chunks, err := s.metadata.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunk content: %w", err)
	}
	byID := make(map[string]*Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ChunkID] = c
	}

	results := make([]*VectorSearchResult, 0, len(hits))
	for _, h := range hits {
		// Read-time safety net: a chunk with a vector but no metadata row
		// is a partially-written artefact and must stay invisible.
		chunk, ok := byID[h.ID]
		if !ok {
			continue
		}
		results = append(results, &VectorSearchResult{
			ChunkID:    h.ID,
			Score:      h.Score,
			Content:    chunk.Text,
			DocumentID: chunk.DocumentID,
			Metadata:   chunk.Metadata,
		})
	}
	return results, nil
}

// KeywordSearch performs BM25 keyword search with boolean query support.
func (s *IndexStore) KeywordSearch(ctx context.Context, queryString string, k int) ([]*KeywordSearchResult, error) {
	hits, err := s.keyword.Search(ctx, queryString, k)
	if err != nil {
		var syntaxErr *QuerySyntaxError
		if e, ok := err.(*QuerySyntaxError); ok {
			syntaxErr = e
		}
		if syntaxErr != nil {
			return nil, ragderrors.QueryParseError(syntaxErr.Error(), syntaxErr)
		}
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.DocID
	}
	chunks, err := s.metadata.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunk content: %w", err)
	}
	byID := make(map[string]*Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ChunkID] = c
	}

	results := make([]*KeywordSearchResult, 0, len(hits))
	rank := 0
	for _, h := range hits {
		chunk, ok := byID[h.DocID]
		if !ok {
			continue
		}
		rank++
		results = append(results, &KeywordSearchResult{
			ChunkID:    h.DocID,
			BM25Score:  h.Score,
			Content:    chunk.Text,
			DocumentID: chunk.DocumentID,
			Rank:       rank,
		})
	}
	return results, nil
}

// GetChunksByIDs batch-fetches chunk content and metadata.
func (s *IndexStore) GetChunksByIDs(ctx context.Context, chunkIDs []string) ([]*Chunk, error) {
	return s.metadata.GetChunks(ctx, chunkIDs)
}

// GetVectors batch-fetches the raw dense vectors for the given chunk IDs,
// for callers outside the package that need the underlying embeddings
// directly (archive export). IDs not present in the store are omitted.
func (s *IndexStore) GetVectors(ctx context.Context, chunkIDs []string) (map[string][]float32, error) {
	return s.vectors.GetVectors(ctx, chunkIDs)
}

// GetChunksByDocument returns every live chunk belonging to one document, in
// storage order.
func (s *IndexStore) GetChunksByDocument(ctx context.Context, documentID string) ([]*Chunk, error) {
	return s.metadata.GetChunksByDocument(ctx, documentID)
}

// Dimension reports the engine-wide embedding dimension this store enforces.
func (s *IndexStore) Dimension() int {
	return s.dimension
}

// Stats reports document/chunk counts and backend configuration.
func (s *IndexStore) Stats(ctx context.Context) (*IndexStoreStats, error) {
	docCount, err := s.metadata.CountDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	chunkCount, err := s.metadata.CountChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	return &IndexStoreStats{
		DocumentCount: docCount,
		ChunkCount:    chunkCount,
		Dimension:     s.dimension,
		BackendType:   s.backendType,
	}, nil
}

// HealthCheck probes each physical store with a cheap operation and reports
// overall status. A single store failing to respond quickly degrades the
// result; none of them being reachable is unhealthy.
func (s *IndexStore) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()

	var problems []string

	if _, err := s.metadata.GetState(ctx, StateKeyIndexDimension); err != nil {
		problems = append(problems, fmt.Sprintf("metadata: %v", err))
	}
	if _, err := s.vectors.Search(ctx, make([]float32, s.dimension), 1); err != nil {
		problems = append(problems, fmt.Sprintf("vector: %v", err))
	}
	if _, err := s.keyword.AllIDs(); err != nil {
		problems = append(problems, fmt.Sprintf("keyword: %v", err))
	}

	latency := time.Since(start).Seconds() * 1000

	switch len(problems) {
	case 0:
		return &HealthStatus{Status: "healthy", LatencyMS: latency}
	case 1:
		return &HealthStatus{Status: "degraded", LatencyMS: latency, Message: problems[0]}
	default:
		return &HealthStatus{Status: "unhealthy", LatencyMS: latency, Message: strings.Join(problems, "; ")}
	}
}

// Persist flushes the file-backed vector and keyword stores to disk. The
// metadata store persists continuously through SQLite's own durability.
func (s *IndexStore) Persist(ctx context.Context) error {
	if s.vectorPath != "" {
		if err := s.vectors.Save(s.vectorPath); err != nil {
			return fmt.Errorf("failed to persist vector store: %w", err)
		}
	}
	if s.keywordPath != "" {
		if err := s.keyword.Save(s.keywordPath); err != nil {
			return fmt.Errorf("failed to persist keyword store: %w", err)
		}
	}
	return nil
}

// Reset destructively clears all three stores. Used by `ragd reindex
// --force` and test teardown.
func (s *IndexStore) Reset(ctx context.Context) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	cursor := ""
	for {
		docs, next, err := s.metadata.ListDocuments(ctx, nil, cursor, 500)
		if err != nil {
			return fmt.Errorf("failed to list documents during reset: %w", err)
		}
		for _, doc := range docs {
			if err := s.metadata.DeleteDocument(ctx, doc.DocumentID); err != nil {
				return fmt.Errorf("failed to delete document %s during reset: %w", doc.DocumentID, err)
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}

	if ids := s.vectors.AllIDs(); len(ids) > 0 {
		if err := s.vectors.Delete(ctx, ids); err != nil {
			return fmt.Errorf("failed to clear vector store during reset: %w", err)
		}
	}
	if ids, err := s.keyword.AllIDs(); err != nil {
		return fmt.Errorf("failed to list keyword postings during reset: %w", err)
	} else if len(ids) > 0 {
		if err := s.keyword.Delete(ctx, ids); err != nil {
			return fmt.Errorf("failed to clear keyword index during reset: %w", err)
		}
	}

	return nil
}

package store

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FlatVectorStore is an exact linear-scan vector store used for corpora
// below the HNSW promotion threshold. Because it scores every vector
// directly, it also serves as the reference implementation backing
// HNSWStore's two-stage filtered ANN exact-scoring path when the candidate
// set is small.
type FlatVectorStore struct {
	mu      sync.RWMutex
	config  VectorStoreConfig
	vectors map[string][]float32
	closed  bool
}

// flatVectorStoreFile is the gob-encoded on-disk representation.
type flatVectorStoreFile struct {
	Config  VectorStoreConfig
	Vectors map[string][]float32
}

// NewFlatVectorStore creates a new exact-scan vector store.
func NewFlatVectorStore(cfg VectorStoreConfig) (*FlatVectorStore, error) {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	return &FlatVectorStore{
		config:  cfg,
		vectors: make(map[string][]float32),
	}, nil
}

// Add inserts vectors with their IDs. If an ID exists, it is replaced.
func (s *FlatVectorStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}
		s.vectors[id] = vec
	}

	return nil
}

// Search finds the k nearest neighbours by scoring every stored vector.
func (s *FlatVectorStore) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}

	normalizedQuery := make([]float32, len(query))
	copy(normalizedQuery, query)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(normalizedQuery)
	}

	results := make([]*VectorResult, 0, len(s.vectors))
	for id, vec := range s.vectors {
		distance := vectorDistance(normalizedQuery, vec, s.config.Metric)
		results = append(results, &VectorResult{
			ID:       id,
			Distance: distance,
			Score:    distanceToScore(distance, s.config.Metric),
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

// GetVectors returns the stored (normalised) vectors for the given IDs.
func (s *FlatVectorStore) GetVectors(ctx context.Context, ids []string) (map[string][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	result := make(map[string][]float32, len(ids))
	for _, id := range ids {
		if vec, ok := s.vectors[id]; ok {
			result[id] = vec
		}
	}
	return result, nil
}

// Delete removes vectors by ID.
func (s *FlatVectorStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	for _, id := range ids {
		delete(s.vectors, id)
	}
	return nil
}

// AllIDs returns all vector IDs in the store.
func (s *FlatVectorStore) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil
	}
	ids := make([]string, 0, len(s.vectors))
	for id := range s.vectors {
		ids = append(ids, id)
	}
	return ids
}

// Contains checks if an ID exists.
func (s *FlatVectorStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	_, ok := s.vectors[id]
	return ok
}

// Count returns the number of vectors.
func (s *FlatVectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.vectors)
}

// Save persists the store to disk as a gob-encoded file, using the same
// atomic temp-file-then-rename pattern as HNSWStore.
func (s *FlatVectorStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(flatVectorStoreFile{Config: s.config, Vectors: s.vectors}); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode flat vector store: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Load loads the store from disk.
func (s *FlatVectorStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open flat vector store file: %w", err)
	}
	defer file.Close()

	var data flatVectorStoreFile
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&data); err != nil {
		return fmt.Errorf("decode flat vector store: %w", err)
	}

	s.config = data.Config
	s.vectors = data.Vectors
	if s.vectors == nil {
		s.vectors = make(map[string][]float32)
	}
	return nil
}

// Close releases resources.
func (s *FlatVectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

var _ VectorStore = (*FlatVectorStore)(nil)

// vectorDistance computes the distance between two vectors using the given
// metric, mirroring the semantics HNSWStore gets for free from coder/hnsw's
// Graph.Distance, so the two backends produce identical scores for the same
// inputs.
func vectorDistance(a, b []float32, metric string) float32 {
	switch metric {
	case "l2":
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return float32(math.Sqrt(sum))
	default: // "cos"
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		// Inputs are already unit-normalised, so cosine distance is 1 - cos(theta),
		// scaled to the same 0-2 range coder/hnsw's CosineDistance uses.
		return float32(1.0 - dot)
	}
}

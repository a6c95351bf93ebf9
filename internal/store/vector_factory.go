package store

import (
	"fmt"
)

// VectorBackend represents the vector store backend type.
type VectorBackend string

const (
	// VectorBackendFlat is an exact linear-scan store, used below
	// flatPromotionThreshold vectors where an ANN index buys nothing.
	VectorBackendFlat VectorBackend = "flat"

	// VectorBackendHNSW is an approximate nearest-neighbour graph index,
	// used at and above flatPromotionThreshold vectors.
	VectorBackendHNSW VectorBackend = "hnsw"
)

// flatPromotionThreshold is the vector count above which HNSW's approximate
// search starts outperforming a full linear scan; below it, FlatVectorStore
// gives exact results at comparable latency.
const flatPromotionThreshold = 10000

// SelectVectorBackend picks a backend for a corpus of the given chunk count.
func SelectVectorBackend(chunkCount int) VectorBackend {
	if chunkCount < flatPromotionThreshold {
		return VectorBackendFlat
	}
	return VectorBackendHNSW
}

// NewVectorStoreWithBackend creates a VectorStore using the specified
// backend. basePath is the base path without extension; the extension is
// chosen per backend (.flat for flat, .hnsw for HNSW).
//
// An empty backend auto-selects based on existingChunkCount.
func NewVectorStoreWithBackend(basePath string, cfg VectorStoreConfig, backend string, existingChunkCount int) (VectorStore, error) {
	if backend == "" {
		backend = string(SelectVectorBackend(existingChunkCount))
	}

	switch VectorBackend(backend) {
	case VectorBackendFlat:
		return NewFlatVectorStore(cfg)
	case VectorBackendHNSW:
		return NewHNSWStore(cfg)
	default:
		return nil, fmt.Errorf("unknown vector backend: %s (valid options: flat, hnsw)", backend)
	}
}

// VectorStorePath returns the path for a vector store file given its backend.
func VectorStorePath(basePath string, backend VectorBackend) string {
	switch backend {
	case VectorBackendFlat:
		return basePath + ".flat"
	default:
		return basePath + ".hnsw"
	}
}

// DetectVectorBackend detects which backend an existing store uses, based
// on file existence. Returns an empty string if no store exists yet.
func DetectVectorBackend(basePath string) VectorBackend {
	if fileExists(basePath + ".flat") {
		return VectorBackendFlat
	}
	if fileExists(basePath + ".hnsw") {
		return VectorBackendHNSW
	}
	return ""
}

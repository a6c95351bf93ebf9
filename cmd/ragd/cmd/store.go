package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/ragdhq/ragd/internal/config"
	"github.com/ragdhq/ragd/internal/store"
)

// defaultDimension is used when neither the config nor a prior index run
// records an embedding dimension (a brand new data directory).
const defaultDimension = 768

// openIndexStore composes the vector, keyword, and metadata stores rooted at
// dataDir into an IndexStore, reopening whatever backend an existing index
// was built with. It is the one place every subcommand that touches an
// existing index goes through, so a data directory is always opened the
// same way regardless of which command is driving it.
func openIndexStore(ctx context.Context, dataDir string, cfg *config.Config) (indexStore *store.IndexStore, cleanup func(), err error) {
	metadataPath := filepath.Join(dataDir, "metadata.db")
	metadata, err := store.NewSQLiteMetadataStore(metadataPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open metadata store: %w", err)
	}

	dimension := resolveDimension(ctx, metadata, cfg)

	bm25BasePath := filepath.Join(dataDir, "bm25")
	bm25, err := store.NewBM25IndexWithBackend(bm25BasePath, store.DefaultBM25Config(), cfg.Search.BM25Backend)
	if err != nil {
		_ = metadata.Close()
		return nil, nil, fmt.Errorf("open keyword index: %w", err)
	}

	vectorBasePath := filepath.Join(dataDir, "vectors")
	existingBackend := store.DetectVectorBackend(vectorBasePath)

	vectorCfg := store.DefaultVectorStoreConfig(dimension)
	vectorCfg.Quantization = cfg.Vector.Quantization
	vectorCfg.Metric = cfg.Vector.Metric
	vectorCfg.M = cfg.Vector.M
	vectorCfg.EfConstruction = cfg.Vector.EfConstruction
	vectorCfg.EfSearch = cfg.Vector.EfSearch

	// A brand new index has no backend on disk yet; let config pin one
	// (ragd backend set) instead of always deferring to corpus-size
	// auto-selection. An existing index keeps whatever backend it was
	// built with — config.Vector.Backend only ever affects initial creation.
	requestedBackend := string(existingBackend)
	if existingBackend == "" && isValidVectorBackend(cfg.Vector.Backend) {
		requestedBackend = cfg.Vector.Backend
	}

	vector, err := store.NewVectorStoreWithBackend(vectorBasePath, vectorCfg, requestedBackend, 0)
	if err != nil {
		_ = metadata.Close()
		_ = bm25.Close()
		return nil, nil, fmt.Errorf("open vector store: %w", err)
	}

	backendType := string(existingBackend)
	if existingBackend != "" {
		if err := vector.Load(store.VectorStorePath(vectorBasePath, existingBackend)); err != nil {
			_ = metadata.Close()
			_ = bm25.Close()
			_ = vector.Close()
			return nil, nil, fmt.Errorf("load vector store: %w", err)
		}
	} else if requestedBackend != "" {
		backendType = requestedBackend
	} else {
		backendType = string(store.SelectVectorBackend(0))
	}

	indexStore = store.NewIndexStore(vector, bm25, metadata, dimension, backendType, store.VectorStorePath(vectorBasePath, store.VectorBackend(backendType)), bm25BasePath)

	cleanup = func() {
		_ = metadata.Close()
		_ = bm25.Close()
		_ = vector.Close()
	}

	return indexStore, cleanup, nil
}

// isValidVectorBackend reports whether s names a known vector backend.
// Empty means "no preference, auto-select".
func isValidVectorBackend(s string) bool {
	switch store.VectorBackend(s) {
	case store.VectorBackendFlat, store.VectorBackendHNSW:
		return true
	default:
		return false
	}
}

// resolveDimension prefers a configured dimension, falls back to whatever
// an existing index recorded at ingest time, and only then to the default.
func resolveDimension(ctx context.Context, metadata store.MetadataStore, cfg *config.Config) int {
	if cfg.Embeddings.Dimensions > 0 {
		return cfg.Embeddings.Dimensions
	}
	if stored, err := metadata.GetState(ctx, store.StateKeyIndexDimension); err == nil && stored != "" {
		if parsed, err := strconv.Atoi(stored); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultDimension
}

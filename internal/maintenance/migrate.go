package maintenance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ragdhq/ragd/internal/store"
)

// MigrationResult summarises a completed backend migration.
type MigrationResult struct {
	DocumentsMigrated int
	ChunksMigrated    int
}

// MigrateBackend copies every document, chunk, and vector from src into dst
// via dst's own AddDocument, so dst ends up with an independently-built
// index under whatever backend it was constructed with (e.g. moving a
// corpus from the flat vector tier to HNSW, or from a bleve BM25 index to
// FTS5). src is read-only throughout; dst is assumed empty. The caller is
// responsible for holding a FileLock around this call if concurrent access
// to src or dst must be prevented.
func MigrateBackend(ctx context.Context, src, dst *store.IndexStore) (*MigrationResult, error) {
	log := slog.With(slog.String("component", "maintenance_migrate"))
	result := &MigrationResult{}

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		docs, next, err := src.ListDocuments(ctx, nil, cursor, 200)
		if err != nil {
			return nil, fmt.Errorf("list documents on source: %w", err)
		}

		for _, doc := range docs {
			chunks, err := src.GetChunksByDocument(ctx, doc.DocumentID)
			if err != nil {
				return nil, fmt.Errorf("chunks for document %s: %w", doc.DocumentID, err)
			}
			if len(chunks) == 0 {
				continue
			}

			chunkIDs := make([]string, len(chunks))
			for i, c := range chunks {
				chunkIDs[i] = c.ChunkID
			}
			vectorsByID, err := src.GetVectors(ctx, chunkIDs)
			if err != nil {
				return nil, fmt.Errorf("vectors for document %s: %w", doc.DocumentID, err)
			}

			vectors := make([][]float32, len(chunks))
			metadatas := make([]map[string]string, len(chunks))
			for i, c := range chunks {
				vec, ok := vectorsByID[c.ChunkID]
				if !ok {
					return nil, fmt.Errorf("no vector recorded for chunk %s (document %s)", c.ChunkID, doc.DocumentID)
				}
				vectors[i] = vec
				metadatas[i] = c.Metadata
			}

			if err := dst.AddDocument(ctx, doc, chunks, vectors, metadatas); err != nil {
				return nil, fmt.Errorf("migrate document %s: %w", doc.DocumentID, err)
			}
			result.DocumentsMigrated++
			result.ChunksMigrated += len(chunks)
		}

		if next == "" {
			break
		}
		cursor = next
	}

	if err := dst.Persist(ctx); err != nil {
		return nil, fmt.Errorf("persist migrated store: %w", err)
	}

	log.Info("backend migration complete",
		slog.Int("documents", result.DocumentsMigrated), slog.Int("chunks", result.ChunksMigrated))

	return result, nil
}

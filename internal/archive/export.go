package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/ragdhq/ragd/internal/store"
)

// Options narrows an export to a subset of the knowledge base and controls
// whether embeddings are included.
type Options struct {
	IncludeEmbeddings bool
	Tags              []string
	Project           string
	Since             string // RFC 3339, inclusive
	Until             string // RFC 3339, inclusive
}

// DefaultOptions exports everything, embeddings included.
func DefaultOptions() Options {
	return Options{IncludeEmbeddings: true}
}

// Result summarises a completed export.
type Result struct {
	Manifest      Manifest
	DocumentCount int
	ChunkCount    int
	ArchiveBytes  int64
}

// Exporter writes IndexStore contents to the portable archive format.
type Exporter struct {
	store       *store.IndexStore
	ragdVersion string
	log         *slog.Logger
}

// NewExporter constructs an Exporter over the given store. ragdVersion is
// recorded in the manifest for operator diagnostics.
func NewExporter(indexStore *store.IndexStore, ragdVersion string) *Exporter {
	return &Exporter{store: indexStore, ragdVersion: ragdVersion, log: slog.With(slog.String("component", "archive_export"))}
}

// stagedFile is one file buffered in memory before being written to the tar,
// so its checksum can be computed and recorded in checksums.sha256 and the
// manifest before the archive is finalised.
type stagedFile struct {
	path string
	data []byte
}

// Export writes a gzip-compressed tar archive to w containing every
// document (and its chunks, and optionally its embeddings) matching opts.
func (e *Exporter) Export(ctx context.Context, w io.Writer, opts Options) (*Result, error) {
	filter := buildExportFilter(opts)

	var staged []stagedFile
	var documents []ArchivedDocument
	var allChunkIDs []string
	var chunkIndexEntries []chunkIndexEntry
	chunkCount := 0

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		docs, next, err := e.store.ListDocuments(ctx, filter, cursor, 200)
		if err != nil {
			return nil, fmt.Errorf("archive: list documents: %w", err)
		}
		for _, doc := range docs {
			archivedDoc := documentToArchived(doc)
			docJSON, err := json.MarshalIndent(archivedDoc, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("archive: marshal document %s: %w", doc.DocumentID, err)
			}
			staged = append(staged, stagedFile{path: fmt.Sprintf("documents/metadata/%s.json", doc.DocumentID), data: docJSON})
			documents = append(documents, archivedDoc)

			chunks, err := e.store.GetChunksByDocument(ctx, doc.DocumentID)
			if err != nil {
				return nil, fmt.Errorf("archive: chunks for document %s: %w", doc.DocumentID, err)
			}
			for _, c := range chunks {
				archivedChunk := chunkToArchived(c)
				chunkJSON, err := json.MarshalIndent(archivedChunk, "", "  ")
				if err != nil {
					return nil, fmt.Errorf("archive: marshal chunk %s: %w", c.ChunkID, err)
				}
				staged = append(staged, stagedFile{
					path: fmt.Sprintf("chunks/data/%s/%s.json", doc.DocumentID, c.ChunkID),
					data: chunkJSON,
				})
				chunkIndexEntries = append(chunkIndexEntries, chunkIndexEntry{ChunkID: c.ChunkID, DocumentID: doc.DocumentID})
				allChunkIDs = append(allChunkIDs, c.ChunkID)
				chunkCount++
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}

	docIDs := make([]string, len(documents))
	for i, d := range documents {
		docIDs[i] = d.ID
	}
	docIndexJSON, err := json.MarshalIndent(documentIndex{DocumentIDs: docIDs}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("archive: marshal document index: %w", err)
	}
	staged = append(staged, stagedFile{path: "documents/index.json", data: docIndexJSON})

	chunkIndexJSON, err := json.MarshalIndent(chunkIndex{Chunks: chunkIndexEntries}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("archive: marshal chunk index: %w", err)
	}
	staged = append(staged, stagedFile{path: "chunks/index.json", data: chunkIndexJSON})

	embeddingModel, embeddingDim := "", e.store.Dimension()
	if len(documents) > 0 {
		embeddingModel = documents[0].EmbeddingModel
	}

	if opts.IncludeEmbeddings && len(allChunkIDs) > 0 {
		vectors, err := e.store.GetVectors(ctx, allChunkIDs)
		if err != nil {
			return nil, fmt.Errorf("archive: fetch vectors: %w", err)
		}
		records := make([]embeddingRecord, 0, len(allChunkIDs))
		for _, id := range allChunkIDs {
			if v, ok := vectors[id]; ok {
				records = append(records, embeddingRecord{ChunkID: id, Embedding: v})
			}
		}
		embeddingJSON, err := json.Marshal(records)
		if err != nil {
			return nil, fmt.Errorf("archive: marshal embeddings: %w", err)
		}
		staged = append(staged, stagedFile{path: "embeddings/embeddings.json", data: embeddingJSON})
	}

	checksums := make(map[string]string, len(staged))
	for _, f := range staged {
		sum := sha256.Sum256(f.data)
		checksums[f.path] = "sha256:" + hex.EncodeToString(sum[:])
	}

	manifest := Manifest{
		Version:     CurrentVersion,
		RagdVersion: e.ragdVersion,
		Statistics:  Statistics{DocumentCount: len(documents), ChunkCount: chunkCount},
		Embeddings: EmbeddingInfo{
			Included:   opts.IncludeEmbeddings,
			Model:      embeddingModel,
			Dimensions: embeddingDim,
			Format:     "json",
		},
		Compression: "gzip",
		Filters: Filters{
			Tags:     opts.Tags,
			Project:  opts.Project,
			DateFrom: opts.Since,
			DateTo:   opts.Until,
		},
		Checksums: checksums,
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("archive: marshal manifest: %w", err)
	}
	staged = append(staged, stagedFile{path: "manifest.json", data: manifestJSON})

	checksumLines := make([]string, 0, len(checksums))
	for path, sum := range checksums {
		checksumLines = append(checksumLines, fmt.Sprintf("%s  %s", sum, path))
	}
	sort.Strings(checksumLines)
	checksumsFile := []byte{}
	for _, line := range checksumLines {
		checksumsFile = append(checksumsFile, []byte(line+"\n")...)
	}
	staged = append(staged, stagedFile{path: "checksums.sha256", data: checksumsFile})

	sort.Slice(staged, func(i, j int) bool { return staged[i].path < staged[j].path })

	counting := &countingWriter{w: w}
	gz := gzip.NewWriter(counting)
	tw := tar.NewWriter(gz)
	for _, f := range staged {
		hdr := &tar.Header{Name: f.path, Mode: 0o644, Size: int64(len(f.data))}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("archive: write tar header %s: %w", f.path, err)
		}
		if _, err := tw.Write(f.data); err != nil {
			return nil, fmt.Errorf("archive: write tar content %s: %w", f.path, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("archive: finalise tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("archive: finalise gzip: %w", err)
	}

	e.log.Info("export complete",
		slog.Int("documents", len(documents)), slog.Int("chunks", chunkCount), slog.Int64("bytes", counting.n))

	return &Result{Manifest: manifest, DocumentCount: len(documents), ChunkCount: chunkCount, ArchiveBytes: counting.n}, nil
}

func buildExportFilter(opts Options) store.Filter {
	var clauses []store.Filter
	if opts.Project != "" {
		clauses = append(clauses, store.FilterLeaf{Field: "project", Op: store.FilterOpEq, Value: opts.Project})
	}
	if len(opts.Tags) > 0 {
		values := make([]any, len(opts.Tags))
		for i, t := range opts.Tags {
			values[i] = t
		}
		clauses = append(clauses, store.FilterLeaf{Field: "tags", Op: store.FilterOpIn, Value: values})
	}
	if opts.Since != "" {
		clauses = append(clauses, store.FilterLeaf{Field: "indexed_at", Op: store.FilterOpGte, Value: opts.Since})
	}
	if opts.Until != "" {
		clauses = append(clauses, store.FilterLeaf{Field: "indexed_at", Op: store.FilterOpLte, Value: opts.Until})
	}
	if len(clauses) == 0 {
		return nil
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return store.FilterAnd{Clauses: clauses}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

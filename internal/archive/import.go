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
	"path/filepath"
	"strings"

	ragderrors "github.com/ragdhq/ragd/internal/errors"
	"github.com/ragdhq/ragd/internal/store"
)

// maxArchiveEntrySize bounds a single archive member, guarding against a
// crafted manifest claiming an implausible size and exhausting memory during
// extraction.
const maxArchiveEntrySize = 512 * 1024 * 1024

// ValidationResult reports what Validate found without committing any data.
type ValidationResult struct {
	Valid            bool
	Version          string
	DocumentCount    int
	ChunkCount       int
	ChecksumVerified bool
	Warnings         []string
}

// ImportResult summarises a completed import.
type ImportResult struct {
	DocumentsImported int
	DocumentsSkipped  int
	ChunksImported    int
}

// Importer reads the portable archive format and writes it into an
// IndexStore.
type Importer struct {
	store *store.IndexStore
	log   *slog.Logger
}

// NewImporter constructs an Importer over the given store.
func NewImporter(indexStore *store.IndexStore) *Importer {
	return &Importer{store: indexStore, log: slog.With(slog.String("component", "archive_import"))}
}

// extractedArchive is the in-memory result of safely unpacking a tar.gz
// archive: every member keyed by its cleaned, root-relative path.
type extractedArchive struct {
	files map[string][]byte
}

// extract reads a gzip-compressed tar stream, rejecting any entry that would
// escape the archive root via an absolute path, a ".." component, or a
// symlink. The reference implementation this format is ported from performs
// no such check; this one does, per the format's own safety requirement.
func extract(r io.Reader) (*extractedArchive, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, ragderrors.New(ragderrors.ErrCodeArchiveInvalid, "not a gzip stream", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	files := make(map[string][]byte)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ragderrors.New(ragderrors.ErrCodeArchiveInvalid, "corrupt tar stream", err)
		}

		cleanPath, err := safeArchivePath(hdr.Name)
		if err != nil {
			return nil, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			continue
		case tar.TypeSymlink, tar.TypeLink:
			return nil, ragderrors.New(ragderrors.ErrCodeArchivePathUnsafe,
				fmt.Sprintf("archive entry %q is a link, refusing to follow", hdr.Name), nil)
		case tar.TypeReg:
			if hdr.Size > maxArchiveEntrySize {
				return nil, ragderrors.New(ragderrors.ErrCodeArchiveInvalid,
					fmt.Sprintf("archive entry %q exceeds maximum size", hdr.Name), nil)
			}
			data, err := io.ReadAll(io.LimitReader(tr, hdr.Size+1))
			if err != nil {
				return nil, ragderrors.New(ragderrors.ErrCodeArchiveInvalid,
					fmt.Sprintf("reading archive entry %q", hdr.Name), err)
			}
			files[cleanPath] = data
		default:
			// ignore anything else (char/block devices, fifos, etc.)
			continue
		}
	}

	return &extractedArchive{files: files}, nil
}

// safeArchivePath rejects absolute paths and any path whose cleaned form
// escapes the archive root, and returns the cleaned, slash-separated
// relative path.
func safeArchivePath(name string) (string, error) {
	name = filepath.ToSlash(name)
	if strings.HasPrefix(name, "/") || (len(name) >= 2 && name[1] == ':') {
		return "", ragderrors.New(ragderrors.ErrCodeArchivePathUnsafe,
			fmt.Sprintf("archive entry %q has an absolute path", name), nil)
	}
	cleaned := filepath.ToSlash(filepath.Clean(name))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.HasPrefix(cleaned, "/") {
		return "", ragderrors.New(ragderrors.ErrCodeArchivePathUnsafe,
			fmt.Sprintf("archive entry %q escapes the archive root", name), nil)
	}
	return cleaned, nil
}

func (a *extractedArchive) readJSON(path string, v any) error {
	data, ok := a.files[path]
	if !ok {
		return ragderrors.New(ragderrors.ErrCodeArchiveInvalid, fmt.Sprintf("archive is missing %s", path), nil)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return ragderrors.New(ragderrors.ErrCodeArchiveInvalid, fmt.Sprintf("parsing %s", path), err)
	}
	return nil
}

// verifyChecksums recomputes SHA-256 over every file the manifest recorded a
// checksum for and compares it against the recorded value. A file the
// manifest mentions but the archive lacks, or one whose content doesn't
// match, fails the whole import before anything is written to the store.
func verifyChecksums(a *extractedArchive, manifest *Manifest) error {
	for path, want := range manifest.Checksums {
		data, ok := a.files[path]
		if !ok {
			return ragderrors.New(ragderrors.ErrCodeArchiveInvalid, fmt.Sprintf("checksum manifest references missing file %s", path), nil)
		}
		sum := sha256.Sum256(data)
		got := "sha256:" + hex.EncodeToString(sum[:])
		if got != want {
			return ragderrors.New(ragderrors.ErrCodeArchiveInvalid, fmt.Sprintf("checksum mismatch for %s", path), nil)
		}
	}
	return nil
}

// Validate unpacks and checks an archive's integrity without writing
// anything to the store: version compatibility, checksum agreement, and
// that the manifest's declared statistics aren't wildly off from what the
// archive actually contains.
func Validate(r io.Reader) (*ValidationResult, error) {
	extracted, err := extract(r)
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := extracted.readJSON("manifest.json", &manifest); err != nil {
		return nil, err
	}

	result := &ValidationResult{Version: manifest.Version}

	if !IsSupportedVersion(manifest.Version) {
		return nil, ragderrors.New(ragderrors.ErrCodeArchiveInvalid,
			fmt.Sprintf("unsupported archive version %q", manifest.Version), nil)
	}

	if len(manifest.Checksums) > 0 {
		if err := verifyChecksums(extracted, &manifest); err != nil {
			return nil, err
		}
		result.ChecksumVerified = true
	} else {
		result.Warnings = append(result.Warnings, "archive carries no checksums to verify")
	}

	var docIndex documentIndex
	if err := extracted.readJSON("documents/index.json", &docIndex); err != nil {
		return nil, err
	}
	var chunkIdx chunkIndex
	if err := extracted.readJSON("chunks/index.json", &chunkIdx); err != nil {
		return nil, err
	}

	result.DocumentCount = len(docIndex.DocumentIDs)
	result.ChunkCount = len(chunkIdx.Chunks)

	if result.DocumentCount != manifest.Statistics.DocumentCount {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"manifest claims %d documents, archive contains %d", manifest.Statistics.DocumentCount, result.DocumentCount))
	}
	if result.ChunkCount != manifest.Statistics.ChunkCount {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"manifest claims %d chunks, archive contains %d", manifest.Statistics.ChunkCount, result.ChunkCount))
	}

	result.Valid = true
	return result, nil
}

// Import unpacks r, verifies it, and writes every document and chunk it
// contains into the store. Document-level fields recorded in the archive
// (sensitivity, embedding model, embedding dimension) are restored from the
// archive's own JSON regardless of whether a metadata store sidecar already
// tracks them, so an import is self-contained.
func (im *Importer) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	extracted, err := extract(r)
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := extracted.readJSON("manifest.json", &manifest); err != nil {
		return nil, err
	}
	if !IsSupportedVersion(manifest.Version) {
		return nil, ragderrors.New(ragderrors.ErrCodeArchiveInvalid,
			fmt.Sprintf("unsupported archive version %q", manifest.Version), nil)
	}
	if len(manifest.Checksums) > 0 {
		if err := verifyChecksums(extracted, &manifest); err != nil {
			return nil, err
		}
	}

	var docIndex documentIndex
	if err := extracted.readJSON("documents/index.json", &docIndex); err != nil {
		return nil, err
	}
	var chunkIdx chunkIndex
	if err := extracted.readJSON("chunks/index.json", &chunkIdx); err != nil {
		return nil, err
	}

	chunksByDoc := make(map[string][]string)
	for _, entry := range chunkIdx.Chunks {
		chunksByDoc[entry.DocumentID] = append(chunksByDoc[entry.DocumentID], entry.ChunkID)
	}

	var embeddings map[string][]float32
	if data, ok := extracted.files["embeddings/embeddings.json"]; ok {
		var records []embeddingRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, ragderrors.New(ragderrors.ErrCodeArchiveInvalid, "parsing embeddings/embeddings.json", err)
		}
		embeddings = make(map[string][]float32, len(records))
		for _, rec := range records {
			embeddings[rec.ChunkID] = rec.Embedding
		}
	}

	result := &ImportResult{}

	for _, docID := range docIndex.DocumentIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var archivedDoc ArchivedDocument
		if err := extracted.readJSON(fmt.Sprintf("documents/metadata/%s.json", docID), &archivedDoc); err != nil {
			return nil, err
		}
		doc := archivedDoc.toDocument()

		chunkIDs := chunksByDoc[docID]
		chunks := make([]*store.Chunk, 0, len(chunkIDs))
		vectors := make([][]float32, 0, len(chunkIDs))
		metadatas := make([]map[string]string, 0, len(chunkIDs))

		for _, chunkID := range chunkIDs {
			var archivedChunk ArchivedChunk
			if err := extracted.readJSON(fmt.Sprintf("chunks/data/%s/%s.json", docID, chunkID), &archivedChunk); err != nil {
				return nil, err
			}

			vec, ok := embeddings[chunkID]
			if !ok {
				im.log.Warn("no embedding recorded for chunk, skipping", slog.String("chunk_id", chunkID), slog.String("document_id", docID))
				continue
			}

			chunk := archivedChunk.toChunk()
			chunks = append(chunks, chunk)
			metadatas = append(metadatas, chunk.Metadata)
			vectors = append(vectors, vec)
		}

		if len(chunks) == 0 {
			im.log.Warn("document has no importable chunks, skipping", slog.String("document_id", docID))
			continue
		}

		if err := im.store.AddDocument(ctx, doc, chunks, vectors, metadatas); err != nil {
			if ragderrors.GetCode(err) == ragderrors.ErrCodeDuplicate {
				im.log.Info("skipping already-indexed document on import", slog.String("document_id", docID))
				result.DocumentsSkipped++
				continue
			}
			return nil, fmt.Errorf("archive: import document %s: %w", docID, err)
		}

		result.DocumentsImported++
		result.ChunksImported += len(chunks)
	}

	im.log.Info("import complete",
		slog.Int("documents_imported", result.DocumentsImported),
		slog.Int("documents_skipped", result.DocumentsSkipped),
		slog.Int("chunks_imported", result.ChunksImported))

	return result, nil
}

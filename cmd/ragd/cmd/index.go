package cmd

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/ragdhq/ragd/internal/config"
	"github.com/ragdhq/ragd/internal/ingest"
	"github.com/ragdhq/ragd/internal/logging"
	"github.com/ragdhq/ragd/internal/output"
)

// Default chunk window: long enough to hold a few paragraphs of context,
// short enough that overlap doesn't dominate the window.
const (
	defaultChunkSize    = 2000
	defaultChunkOverlap = 200
)

func newIndexCmd() *cobra.Command {
	var (
		force bool
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index files under a directory",
		Long: `index walks a directory, splits each text file into overlapping
chunks, embeds them, and commits the result to the index.

Binary and oversized files are skipped. Use --force to clear the existing
index and rebuild from scratch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(ctx, cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Clear the existing index before rebuilding")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, force bool) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	out := output.New(cmd.OutOrStdout())

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("access path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}
	dataDir := filepath.Join(root, ".ragd")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	if force {
		if err := clearIndexData(dataDir); err != nil {
			return fmt.Errorf("clear existing index: %w", err)
		}
		out.Status("", "Cleared existing index data, starting fresh")
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	embedder, err := newCLIEmbedder(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	if cfg.Embeddings.Dimensions == 0 {
		cfg.Embeddings.Dimensions = embedder.Dimensions()
	}

	indexStore, cleanup, err := openIndexStore(ctx, dataDir, cfg)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer cleanup()

	coordinator := ingest.NewCoordinator(indexStore, ingest.DefaultConfig(indexStore.Dimension()))

	files, err := discoverFiles(absPath)
	if err != nil {
		return fmt.Errorf("walk directory: %w", err)
	}
	if len(files) == 0 {
		out.Status("", fmt.Sprintf("No indexable files found under %s", absPath))
		return nil
	}

	var indexed, skipped, failed int
	for i, file := range files {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		out.Progress(i+1, len(files), filepath.Base(file))

		result, err := indexFile(ctx, coordinator, embedder, root, file)
		if err != nil {
			return fmt.Errorf("index %s: %w", file, err)
		}
		switch {
		case result.Success:
			indexed++
		case result.FailureCategory == "":
			skipped++ // duplicate content, benign
		default:
			failed++
			slog.Warn("file rejected", slog.String("file", file), slog.String("reason", result.Remediation))
		}
	}
	out.ProgressDone()

	if err := indexStore.Persist(ctx); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}

	out.Successf("Indexed %d files (%d skipped as duplicates, %d rejected)", indexed, skipped, failed)
	return nil
}

// indexFile reads, chunks, embeds, and commits a single file.
func indexFile(ctx context.Context, coordinator *ingest.Coordinator, embedder embedderFor, root, path string) (*ingest.Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	text := string(raw)
	note := ingest.FailureNone
	if !utf8.Valid(raw) {
		note = ingest.FailureMalformed
	}

	relPath, err := filepath.Rel(root, path)
	if err != nil {
		relPath = path
	}
	documentID := contentID(relPath)
	hash := sha256.Sum256(raw)
	contentHash := hex.EncodeToString(hash[:])

	chunks := splitChunks(text, defaultChunkSize, defaultChunkOverlap)

	var embeddings [][]float32
	if note == ingest.FailureNone && len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		embeddings, err = embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
	}

	req := ingest.Request{
		DocumentID:     documentID,
		Path:           relPath,
		Filename:       filepath.Base(path),
		FileType:       strings.TrimPrefix(filepath.Ext(path), "."),
		FileSize:       int64(len(raw)),
		NormalizedText: text,
		ContentHash:    contentHash,
		Chunks:         chunks,
		Embeddings:     embeddings,
		Attributes: ingest.DocumentAttributes{
			EmbeddingModel:   embedder.ModelName(),
			ExtractionMethod: "plain_text",
		},
		ExtractionNote: note,
	}

	return coordinator.Ingest(ctx, req)
}

// embedderFor is the subset of embed.Embedder indexFile needs, named
// separately so callers can't accidentally pass something index-only.
type embedderFor interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

// contentID derives a stable document ID from a path so re-indexing the same
// file produces the same ID across runs.
func contentID(relPath string) string {
	sum := sha256.Sum256([]byte(relPath))
	return "doc_" + hex.EncodeToString(sum[:8])
}

// splitChunks breaks text into overlapping windows of size chunkSize,
// stepping back overlap characters each time so context isn't lost at a
// chunk boundary. It is a deliberately simple, format-agnostic splitter:
// document-aware chunking is the extractor's job, upstream of this engine.
func splitChunks(text string, chunkSize, overlap int) []ingest.ChunkInput {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}

	var chunks []ingest.ChunkInput
	step := chunkSize - overlap
	for start, idx := 0, 0; start < len(text); start += step {
		end := start + chunkSize
		if end > len(text) {
			end = len(text)
		}
		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			chunks = append(chunks, ingest.ChunkInput{
				Text:       chunk,
				ChunkIndex: idx,
				CharStart:  start,
				CharEnd:    end,
			})
			idx++
		}
		if end == len(text) {
			break
		}
	}
	return chunks
}

// discoverFiles walks root and returns plausibly-text files, skipping
// hidden directories (including the .ragd data directory itself), oversized
// files, and files that look binary.
func discoverFiles(root string) ([]string, error) {
	const maxFileSize = 10 * 1024 * 1024

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() != "." && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() == 0 || info.Size() > maxFileSize {
			return nil
		}
		if looksBinary(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// looksBinary samples a file's first bytes for a NUL byte, the same
// heuristic git and most text tools use to distinguish text from binary.
func looksBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	buf := make([]byte, 8000)
	r := bufio.NewReader(f)
	n, _ := r.Read(buf)
	for _, b := range buf[:n] {
		if b == 0 {
			return true
		}
	}
	return false
}

// clearIndexData removes all index-related files from the data directory,
// leaving everything else in it (such as checkpoints/ and audit/) in place.
func clearIndexData(dataDir string) error {
	targets := []string{
		filepath.Join(dataDir, "metadata.db"),
		filepath.Join(dataDir, "metadata.db-shm"),
		filepath.Join(dataDir, "metadata.db-wal"),
		filepath.Join(dataDir, "bm25"),
		filepath.Join(dataDir, "bm25.bleve"),
		filepath.Join(dataDir, "bm25.db"),
		filepath.Join(dataDir, "bm25.db-wal"),
		filepath.Join(dataDir, "bm25.db-shm"),
		filepath.Join(dataDir, "vectors"),
		filepath.Join(dataDir, "vectors.flat"),
		filepath.Join(dataDir, "vectors.hnsw"),
		filepath.Join(dataDir, "vectors.hnsw.meta"),
	}
	for _, path := range targets {
		if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

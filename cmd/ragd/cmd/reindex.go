package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ragdhq/ragd/internal/config"
	"github.com/ragdhq/ragd/internal/ingest"
	"github.com/ragdhq/ragd/internal/output"
	"github.com/ragdhq/ragd/internal/store"
)

func newReindexCmd() *cobra.Command {
	var pruneOnly bool

	cmd := &cobra.Command{
		Use:   "reindex [path]",
		Short: "Refresh the index against the files on disk",
		Long: `reindex removes documents whose source file no longer exists, then
re-walks path (the project root by default) and indexes anything new or
changed. Unchanged files are skipped by content hash, so reindex is safe
to run repeatedly.

Use --prune-only to remove stale documents without indexing new ones.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runReindex(cmd, path, pruneOnly)
		},
	}

	cmd.Flags().BoolVar(&pruneOnly, "prune-only", false, "Only remove documents whose source file is gone")

	return cmd
}

func runReindex(cmd *cobra.Command, path string, pruneOnly bool) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := output.New(cmd.OutOrStdout())

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}
	dataDir := filepath.Join(root, ".ragd")
	if !fileExists(filepath.Join(dataDir, "metadata.db")) {
		return fmt.Errorf("no index found at %s; run 'ragd init' first", dataDir)
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	indexStore, cleanup, err := openIndexStore(ctx, dataDir, cfg)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer cleanup()

	pruned, err := pruneStaleDocuments(ctx, indexStore, root)
	if err != nil {
		return fmt.Errorf("prune stale documents: %w", err)
	}
	out.Statusf("🧹", "Pruned %d stale document(s)", pruned)

	if pruneOnly {
		return indexStore.Persist(ctx)
	}

	embedder, err := newCLIEmbedder(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	coordinator := ingest.NewCoordinator(indexStore, ingest.DefaultConfig(indexStore.Dimension()))

	files, err := discoverFiles(absPath)
	if err != nil {
		return fmt.Errorf("walk directory: %w", err)
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
			skipped++
		default:
			failed++
			slog.Warn("file rejected", slog.String("file", file), slog.String("reason", result.Remediation))
		}
	}
	out.ProgressDone()

	if err := indexStore.Persist(ctx); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}

	out.Successf("Reindex complete: %d indexed, %d unchanged, %d rejected", indexed, skipped, failed)
	return nil
}

// pruneStaleDocuments deletes every indexed document whose recorded path no
// longer exists under root.
func pruneStaleDocuments(ctx context.Context, indexStore *store.IndexStore, root string) (int, error) {
	var stale []string

	cursor := ""
	for {
		docs, next, err := indexStore.ListDocuments(ctx, nil, cursor, 200)
		if err != nil {
			return 0, fmt.Errorf("list documents: %w", err)
		}
		for _, doc := range docs {
			if !fileExists(filepath.Join(root, doc.Path)) {
				stale = append(stale, doc.DocumentID)
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}

	for _, id := range stale {
		if err := indexStore.DeleteDocument(ctx, id); err != nil {
			return 0, fmt.Errorf("delete stale document %s: %w", id, err)
		}
	}

	return len(stale), nil
}

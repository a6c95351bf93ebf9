package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ragdhq/ragd/internal/archive"
	"github.com/ragdhq/ragd/internal/config"
	"github.com/ragdhq/ragd/internal/output"
)

func newImportCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <archive.tar.gz>",
		Short: "Import documents from a portable archive",
		Long: `import reads an archive written by 'ragd export' and commits its
documents, chunks, and embeddings into the current index. Documents whose
content hash already exists are skipped.

Use --dry-run to validate the archive (version, checksums) without
writing anything.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args[0], dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate the archive without importing")

	return cmd
}

func runImport(cmd *cobra.Command, archivePath string, dryRun bool) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := output.New(cmd.OutOrStdout())

	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	if dryRun {
		result, err := archive.Validate(f)
		if err != nil {
			return fmt.Errorf("validate archive: %w", err)
		}
		out.Statusf("✅", "Archive version %s: %d documents, %d chunks, checksums verified: %v", result.Version, result.DocumentCount, result.ChunkCount, result.ChecksumVerified)
		for _, w := range result.Warnings {
			out.Warning(w)
		}
		return nil
	}

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
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

	importer := archive.NewImporter(indexStore)
	result, err := importer.Import(ctx, f)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	if err := indexStore.Persist(ctx); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}

	out.Successf("Imported %d documents (%d chunks); %d skipped as duplicates", result.DocumentsImported, result.ChunksImported, result.DocumentsSkipped)
	return nil
}

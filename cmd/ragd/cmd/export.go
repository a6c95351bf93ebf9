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
	"github.com/ragdhq/ragd/pkg/version"
)

func newExportCmd() *cobra.Command {
	var (
		noEmbeddings bool
		tags         []string
		project      string
		since        string
		until        string
	)

	cmd := &cobra.Command{
		Use:   "export <archive.tar.gz>",
		Short: "Export the knowledge base to a portable archive",
		Long: `export writes every document, its chunks, and (by default) its
embeddings to a gzip-compressed tar archive that 'ragd import' can read
back into a fresh index.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := archive.DefaultOptions()
			opts.IncludeEmbeddings = !noEmbeddings
			opts.Tags = tags
			opts.Project = project
			opts.Since = since
			opts.Until = until
			return runExport(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&noEmbeddings, "no-embeddings", false, "Omit embeddings from the archive")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Only export documents carrying this tag (repeatable)")
	cmd.Flags().StringVar(&project, "project", "", "Only export documents assigned to this project")
	cmd.Flags().StringVar(&since, "since", "", "Only export documents indexed at or after this RFC 3339 time")
	cmd.Flags().StringVar(&until, "until", "", "Only export documents indexed at or before this RFC 3339 time")

	return cmd
}

func runExport(cmd *cobra.Command, archivePath string, opts archive.Options) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := output.New(cmd.OutOrStdout())

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	dataDir := filepath.Join(root, ".ragd")
	if !fileExists(filepath.Join(dataDir, "metadata.db")) {
		return fmt.Errorf("no index found at %s; run 'ragd index' first", dataDir)
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

	f, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer f.Close()

	exporter := archive.NewExporter(indexStore, version.Version)
	result, err := exporter.Export(ctx, f, opts)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	out.Successf("Exported %d documents (%d chunks) to %s (%d bytes)", result.DocumentCount, result.ChunkCount, archivePath, result.ArchiveBytes)
	return nil
}

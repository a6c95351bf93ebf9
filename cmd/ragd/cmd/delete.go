package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ragdhq/ragd/internal/config"
	"github.com/ragdhq/ragd/internal/output"
)

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <document-id>...",
		Short: "Remove documents from the index",
		Long: `delete removes one or more documents by ID, along with their chunks,
vectors, and keyword postings. Use 'ragd list' to find document IDs.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd, args)
		},
	}
	return cmd
}

func runDelete(cmd *cobra.Command, documentIDs []string) error {
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

	var deleted, failed int
	for _, id := range documentIDs {
		if err := indexStore.DeleteDocument(ctx, id); err != nil {
			out.Errorf("%s: %v", id, err)
			failed++
			continue
		}
		out.Successf("Deleted %s", id)
		deleted++
	}

	if err := indexStore.Persist(ctx); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d deletions failed", failed, len(documentIDs))
	}
	out.Statusf("🗑️ ", "%d document(s) deleted", deleted)
	return nil
}

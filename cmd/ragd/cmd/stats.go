package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ragdhq/ragd/internal/config"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Long: `stats reports the document and chunk counts, embedding dimension,
and vector backend of the index at the current data directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStats(cmd *cobra.Command, jsonOutput bool) error {
	ctx := cmd.Context()

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

	stats, err := indexStore.Stats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Index Statistics")
	fmt.Fprintln(w, "================")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Documents:  %d\n", stats.DocumentCount)
	fmt.Fprintf(w, "Chunks:     %d\n", stats.ChunkCount)
	fmt.Fprintf(w, "Dimension:  %d\n", stats.Dimension)
	fmt.Fprintf(w, "Backend:    %s\n", stats.BackendType)
	fmt.Fprintf(w, "Index size: %d bytes\n", stats.IndexSizeBytes)

	return nil
}

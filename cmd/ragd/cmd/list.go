package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ragdhq/ragd/internal/config"
	"github.com/ragdhq/ragd/internal/output"
	"github.com/ragdhq/ragd/internal/store"
)

func newListCmd() *cobra.Command {
	var (
		tag        string
		project    string
		jsonOutput bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indexed documents",
		Long: `list walks the metadata store page by page and prints every indexed
document's ID, path, chunk count, and index time.

Use --tag or --project to narrow the listing to documents carrying that
classification.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, tag, project, jsonOutput, limit)
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "Only list documents carrying this tag")
	cmd.Flags().StringVar(&project, "project", "", "Only list documents assigned to this project")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum documents to list (0 = all)")

	return cmd
}

func runList(cmd *cobra.Command, tag, project string, jsonOutput bool, limit int) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

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

	filter := buildListFilter(tag, project)

	var docs []*store.Document
	cursor := ""
	for {
		page, next, err := indexStore.ListDocuments(ctx, filter, cursor, 200)
		if err != nil {
			return fmt.Errorf("list documents: %w", err)
		}
		docs = append(docs, page...)
		if limit > 0 && len(docs) >= limit {
			docs = docs[:limit]
			break
		}
		if next == "" {
			break
		}
		cursor = next
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	}

	out := output.New(cmd.OutOrStdout())
	if len(docs) == 0 {
		out.Status("", "No documents indexed")
		return nil
	}
	for _, d := range docs {
		out.Statusf("", "%s  %s  (%d chunks, indexed %s)", d.DocumentID, d.Path, d.ChunkCount, d.IndexedAt.Format("2006-01-02 15:04"))
	}
	out.Statusf("📋", "%d document(s)", len(docs))

	return nil
}

// buildListFilter returns a Filter matching tag and/or project, or nil if
// neither is set (an unfiltered listing).
func buildListFilter(tag, project string) store.Filter {
	var leaves []store.Filter
	if tag != "" {
		leaves = append(leaves, store.FilterLeaf{Field: "tags", Op: store.FilterOpIn, Value: []any{tag}})
	}
	if project != "" {
		leaves = append(leaves, store.FilterLeaf{Field: "project", Op: store.FilterOpEq, Value: project})
	}
	switch len(leaves) {
	case 0:
		return nil
	case 1:
		return leaves[0]
	default:
		return store.FilterAnd{Clauses: leaves}
	}
}

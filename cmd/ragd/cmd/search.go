package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ragdhq/ragd/internal/config"
	"github.com/ragdhq/ragd/internal/embed"
	"github.com/ragdhq/ragd/internal/output"
	"github.com/ragdhq/ragd/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit      int
	mode       string // "hybrid", "semantic", "keyword"
	format     string // "text", "json"
	minScore   float64
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed knowledge base",
		Long: `search runs a hybrid (BM25 + semantic) query against the index,
fused with reciprocal rank fusion.

Examples:
  ragd search "quarterly revenue projections"
  ragd search "onboarding checklist" --mode keyword --limit 5
  ragd search "incident postmortem" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "hybrid", "Search mode: hybrid, semantic, keyword")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "Minimum combined score to include a result")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
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
	if _, statErr := os.Stat(filepath.Join(dataDir, "metadata.db")); os.IsNotExist(statErr) {
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

	embedder, err := newCLIEmbedder(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	searchCfg := search.DefaultConfig()
	searchCfg.DefaultLimit = cfg.Search.DefaultLimit
	searchCfg.MaxLimit = cfg.Search.MaxLimit
	searchCfg.RRFConstant = cfg.Search.RRFConstant
	searchCfg.OverFetchMultiplier = cfg.Search.OverFetchMultiplier
	searchCfg.KeywordScoreDivisor = cfg.Search.BM25NormalizationDivisor
	if cfg.Search.BM25Weight > 0 || cfg.Search.SemanticWeight > 0 {
		searchCfg.DefaultWeights = search.Weights{Semantic: cfg.Search.SemanticWeight, Keyword: cfg.Search.BM25Weight}
	}

	searcher, err := search.NewHybridSearcher(indexStore, embedder, searchCfg)
	if err != nil {
		return fmt.Errorf("create searcher: %w", err)
	}

	searchOpts := search.DefaultOptions()
	searchOpts.Mode = parseSearchMode(opts.mode)
	searchOpts.Limit = opts.limit
	searchOpts.MinScore = opts.minScore

	results, err := searcher.Search(ctx, query, searchOpts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}

	switch opts.format {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	default:
		return formatSearchResults(out, query, results)
	}
}

func parseSearchMode(s string) search.Mode {
	switch strings.ToLower(s) {
	case "semantic":
		return search.ModeSemantic
	case "keyword":
		return search.ModeKeyword
	default:
		return search.ModeHybrid
	}
}

// formatSearchResults renders results as a numbered list: filename/location,
// combined score, and the first few lines of matched content.
func formatSearchResults(out *output.Writer, query string, results []*search.Result) error {
	out.Statusf("🔍", "Found %d results for %q:", len(results), query)
	out.Newline()

	for i, r := range results {
		location := r.Filename
		if r.Location != "" {
			location = fmt.Sprintf("%s (%s)", r.Filename, r.Location)
		}
		out.Statusf("", "%d. %s (score: %.3f)", i+1, location, r.CombinedScore)

		for _, line := range getSnippet(r.Content, 3) {
			out.Status("", "   "+line)
		}
		out.Newline()
	}

	return nil
}

// getSnippet returns the first n non-empty-trailing lines of content.
func getSnippet(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// newCLIEmbedder constructs the embedder the config selects, wiring MLX
// endpoint settings through before construction since the factory reads
// them from package-level state rather than a parameter.
func newCLIEmbedder(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	embed.SetMLXConfig(embed.MLXServerConfig{
		Endpoint: cfg.Embeddings.MLXEndpoint,
		Model:    cfg.Embeddings.MLXModel,
	})
	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	return embed.NewEmbedder(ctx, provider, cfg.Embeddings.Model)
}

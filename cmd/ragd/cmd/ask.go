package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ragdhq/ragd/internal/config"
	"github.com/ragdhq/ragd/internal/orchestrator"
	"github.com/ragdhq/ragd/internal/output"
	"github.com/ragdhq/ragd/internal/search"
	"github.com/ragdhq/ragd/internal/session"
)

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question of the knowledge base",
		Long: `ask retrieves context for the question, runs it through the agentic
retrieval loop (CRAG relevance correction, Self-RAG faithfulness
correction), and prints the generated answer with its citations.

It holds no history; use 'chat' for a multi-turn conversation.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, strings.Join(args, " "))
		},
	}
	return cmd
}

func runAsk(cmd *cobra.Command, question string) error {
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

	embedder, err := newCLIEmbedder(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	searcher, err := search.NewHybridSearcher(indexStore, embedder, newSearchConfig(cfg))
	if err != nil {
		return fmt.Errorf("create searcher: %w", err)
	}

	orch, err := orchestrator.New(searcher, newGenerator(cfg), newOrchestratorConfig(cfg), contextConfigFromSearch(cfg))
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	resp, err := orch.Answer(ctx, question, nil)
	if err != nil {
		return fmt.Errorf("answer: %w", err)
	}

	return printAnswer(out, resp)
}

// printAnswer renders an orchestrator response: the answer text, a
// retrieval-quality/confidence line, and numbered citations.
func printAnswer(out *output.Writer, resp *orchestrator.Response) error {
	out.Newline()
	out.Status("", resp.AnswerText)
	out.Newline()

	if !resp.Success {
		out.Warningf("incomplete answer: %s", resp.Reason)
		return nil
	}

	out.Statusf("📊", "confidence: %.2f   quality: %s   strategy: %s", resp.Confidence, resp.RetrievalQuality, resp.StrategyUsed)

	if len(resp.Citations) > 0 {
		out.Newline()
		out.Status("", "Sources:")
		for i, c := range resp.Citations {
			loc := c.Filename
			if c.PageNumber != nil {
				loc = fmt.Sprintf("%s p.%d", c.Filename, *c.PageNumber)
			}
			out.Statusf("", "  [%d] %s", i+1, loc)
		}
	}

	return nil
}

// recentHistory returns the last n turns of a session's history, or all of
// them if there are n or fewer.
func recentHistory(turns []session.ChatTurn, n int) []session.ChatTurn {
	if n <= 0 || len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

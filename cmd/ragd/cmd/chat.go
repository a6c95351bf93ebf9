package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ragdhq/ragd/internal/config"
	"github.com/ragdhq/ragd/internal/orchestrator"
	"github.com/ragdhq/ragd/internal/output"
	"github.com/ragdhq/ragd/internal/search"
	"github.com/ragdhq/ragd/internal/session"
)

func newChatCmd() *cobra.Command {
	var sessionName string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive, history-aware chat session",
		Long: `chat opens a REPL over the knowledge base: each question is answered
through the same agentic retrieval loop as 'ask', with prior turns fed to
the query rewriter so follow-up questions can refer back to earlier ones.

Turns are persisted under the session name so 'ragd chat --session <name>'
resumes where it left off. Type /exit or press Ctrl-D to leave.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, sessionName)
		},
	}

	cmd.Flags().StringVarP(&sessionName, "session", "s", "default", "Session name to persist and resume history under")

	return cmd
}

func runChat(cmd *cobra.Command, sessionName string) error {
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

	manager, err := session.NewManager(session.ManagerConfig{
		StoragePath: cfg.Sessions.StoragePath,
		MaxSessions: cfg.Sessions.MaxSessions,
	})
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	sess, err := manager.Open(sessionName)
	if err != nil {
		return fmt.Errorf("open session %q: %w", sessionName, err)
	}
	history, err := manager.History(sessionName)
	if err != nil {
		return fmt.Errorf("load session history: %w", err)
	}

	out.Statusf("💬", "Session %q (%d prior turns). Type /exit or Ctrl-D to leave.", sessionName, len(history))

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(cmd.OutOrStdout(), "\n> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "/exit" || question == "/quit" {
			break
		}

		resp, err := orch.Answer(ctx, question, recentHistory(history, cfg.Agentic.RewriteHistoryTurns))
		if err != nil {
			out.Errorf("answer failed: %v", err)
			continue
		}
		if err := printAnswer(out, resp); err != nil {
			return err
		}

		userTurn := session.ChatTurn{Role: session.RoleUser, Content: question, Timestamp: time.Now()}
		assistantTurn := session.ChatTurn{Role: session.RoleAssistant, Content: resp.AnswerText, Citations: citedFilenames(resp), Timestamp: time.Now()}
		if cfg.Sessions.AutoSave {
			if err := manager.RecordTurn(sessionName, userTurn); err != nil {
				out.Warningf("could not persist turn: %v", err)
			} else if err := manager.RecordTurn(sessionName, assistantTurn); err != nil {
				out.Warningf("could not persist turn: %v", err)
			}
		}
		history = append(history, userTurn, assistantTurn)
	}

	if err := manager.Save(sess); err != nil {
		out.Warningf("could not save session metadata: %v", err)
	}

	return nil
}

// citedFilenames collects the distinct filenames an answer's citations
// reference, for recording alongside the chat turn.
func citedFilenames(resp *orchestrator.Response) []string {
	seen := make(map[string]bool, len(resp.Citations))
	var names []string
	for _, c := range resp.Citations {
		if !seen[c.Filename] {
			seen[c.Filename] = true
			names = append(names, c.Filename)
		}
	}
	return names
}

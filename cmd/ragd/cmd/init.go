package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ragdhq/ragd/configs"
	"github.com/ragdhq/ragd/internal/config"
	"github.com/ragdhq/ragd/internal/output"
)

// dataDirLayout is every directory created under the data directory on
// init. They are created empty: the stores themselves are files beside
// them (metadata.db, the keyword index bm25.db or bm25.bleve, and the
// vector store vectors.flat or vectors.hnsw), and nothing in this module
// writes into vector/, checkpoints/ or audit/.
var dataDirLayout = []string{"vector", "checkpoints", "audit"}

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the engine's data directory",
		Long: `init lays out a fresh data directory: empty vector/, checkpoints/
and audit/ directories, metadata.db, the keyword index (bm25.db, or
bm25.bleve with the bleve backend) and the vector store file. It also
seeds .ragd.yaml in the project root from the project config template;
no config file is written inside the data directory.

Run 'ragd index' afterwards to populate it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Reinitialize even if a data directory already exists")

	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get current directory: %w", err)
	}
	root, err := config.FindProjectRoot(cwd)
	if err != nil {
		root = cwd
	}

	dataDir := filepath.Join(root, ".ragd")
	out.Statusf("📁", "Data directory: %s", dataDir)

	if _, err := os.Stat(dataDir); err == nil && !force {
		out.Warning("Data directory already exists")
		out.Status("💡", "Use --force to reinitialize (existing index data is preserved)")
		return nil
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	for _, dir := range dataDirLayout {
		if err := os.MkdirAll(filepath.Join(dataDir, dir), 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	out.Success("Created vector/, checkpoints/, audit/")

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	indexStore, cleanup, err := openIndexStore(ctx, dataDir, cfg)
	if err != nil {
		return fmt.Errorf("initialize stores: %w", err)
	}
	defer cleanup()
	if err := indexStore.Persist(ctx); err != nil {
		return fmt.Errorf("persist empty index: %w", err)
	}
	out.Success("Created keyword index, vector store and metadata.db")

	if err := writeProjectConfig(out, root); err != nil {
		out.Warningf("Could not create .ragd.yaml: %v", err)
	}

	out.Newline()
	out.Success("Initialization complete")
	out.Status("📋", "Next: run 'ragd index <path>' to populate the knowledge base")

	return nil
}

// writeProjectConfig seeds .ragd.yaml from the embedded template, unless a
// project config already exists under either supported extension.
func writeProjectConfig(out *output.Writer, root string) error {
	yamlPath := filepath.Join(root, ".ragd.yaml")
	if fileExists(yamlPath) {
		out.Status("ℹ️ ", "Existing .ragd.yaml preserved")
		return nil
	}
	if fileExists(filepath.Join(root, ".ragd.yml")) {
		out.Status("ℹ️ ", "Existing .ragd.yml preserved")
		return nil
	}

	if err := os.WriteFile(yamlPath, []byte(configs.ProjectConfigTemplate), 0644); err != nil {
		return fmt.Errorf("write .ragd.yaml: %w", err)
	}
	out.Statusf("📝", "Created .ragd.yaml (optional project configuration)")
	return nil
}

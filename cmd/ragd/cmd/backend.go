package cmd

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ragdhq/ragd/internal/config"
	"github.com/ragdhq/ragd/internal/maintenance"
	"github.com/ragdhq/ragd/internal/output"
	"github.com/ragdhq/ragd/internal/store"
)

// newBackendCmd groups the vector-backend inspection and migration verbs
// under one parent, the way cobra CLIs conventionally nest a resource's
// sub-operations.
func newBackendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Inspect, pin, and migrate the vector store backend",
	}

	cmd.AddCommand(newBackendShowCmd())
	cmd.AddCommand(newBackendListCmd())
	cmd.AddCommand(newBackendSetCmd())
	cmd.AddCommand(newBackendHealthCmd())
	cmd.AddCommand(newBackendBenchmarkCmd())
	cmd.AddCommand(newBackendMigrateCmd())

	return cmd
}

func newBackendShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the backend the current index was built with",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOpenIndex(cmd, func(ctx context.Context, indexStore *store.IndexStore, cfg *config.Config, out *output.Writer) error {
				stats, err := indexStore.Stats(ctx)
				if err != nil {
					return fmt.Errorf("get stats: %w", err)
				}
				out.Statusf("", "backend:   %s", stats.BackendType)
				out.Statusf("", "documents: %d", stats.DocumentCount)
				out.Statusf("", "chunks:    %d", stats.ChunkCount)
				if cfg.Vector.Backend != "" {
					out.Statusf("", "pinned (new index): %s", cfg.Vector.Backend)
				}
				return nil
			})
		},
	}
}

func newBackendListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available vector backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())
			out.Statusf("", "%s  exact linear scan, used below %d chunks", store.VectorBackendFlat, 10000)
			out.Statusf("", "%s  approximate nearest-neighbour graph, used at or above %d chunks", store.VectorBackendHNSW, 10000)
			return nil
		},
	}
}

func newBackendSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <flat|hnsw>",
		Short: "Pin the backend a brand-new index will be created with",
		Long: `set writes vector.backend into .ragd.yaml. It has no effect on an
index that already exists on disk — use 'backend migrate' for that.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackendSet(cmd, args[0])
		},
	}
}

func runBackendSet(cmd *cobra.Command, backend string) error {
	if !isValidVectorBackend(backend) {
		return fmt.Errorf("unknown backend %q (valid options: flat, hnsw)", backend)
	}

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}
	cfg.Vector.Backend = backend

	path := filepath.Join(root, ".ragd.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	output.New(cmd.OutOrStdout()).Successf("Pinned backend %q for future new indexes in %s", backend, path)
	return nil
}

func newBackendHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the vector, keyword, and metadata stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOpenIndex(cmd, func(ctx context.Context, indexStore *store.IndexStore, cfg *config.Config, out *output.Writer) error {
				root, err := config.FindProjectRoot(".")
				if err != nil {
					root, _ = os.Getwd()
				}
				lock := maintenance.NewFileLock(filepath.Join(root, ".ragd"))
				report := maintenance.CheckHealth(ctx, indexStore, lock)
				out.Statusf("", "status:      %s", report.Store.Status)
				out.Statusf("", "latency:     %.2fms", report.Store.LatencyMS)
				if report.Store.Message != "" {
					out.Statusf("", "message:     %s", report.Store.Message)
				}
				out.Statusf("", "lock held:   %v", report.LockHeld)
				return nil
			})
		},
	}
}

func newBackendBenchmarkCmd() *cobra.Command {
	var iterations int

	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Time sample vector searches against the current index",
		Long: `benchmark runs a handful of nearest-neighbour searches against random
query vectors (not real embeddings — this measures the backend's own
lookup cost, independent of the embedder) and reports average latency.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOpenIndex(cmd, func(ctx context.Context, indexStore *store.IndexStore, cfg *config.Config, out *output.Writer) error {
				return runBackendBenchmark(ctx, indexStore, out, iterations)
			})
		},
	}
	cmd.Flags().IntVar(&iterations, "iterations", 20, "Number of sample searches to time")

	return cmd
}

func runBackendBenchmark(ctx context.Context, indexStore *store.IndexStore, out *output.Writer, iterations int) error {
	if iterations <= 0 {
		iterations = 20
	}
	dim := indexStore.Dimension()
	rng := rand.New(rand.NewSource(1))

	var total time.Duration
	for i := 0; i < iterations; i++ {
		query := make([]float32, dim)
		for j := range query {
			query[j] = rng.Float32()*2 - 1
		}
		start := time.Now()
		if _, err := indexStore.VectorSearch(ctx, query, 10, nil); err != nil {
			return fmt.Errorf("sample search %d: %w", i, err)
		}
		total += time.Since(start)
	}

	avg := total / time.Duration(iterations)
	out.Statusf("⏱️ ", "%d searches, avg %.2fms, total %.2fms", iterations, float64(avg.Microseconds())/1000, float64(total.Microseconds())/1000)
	return nil
}

func newBackendMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <flat|hnsw>",
		Short: "Rebuild the index under a different vector backend",
		Long: `migrate copies every document into a fresh index built with the
requested backend, then atomically replaces the current data directory
with it. The original is kept at .ragd.migrate-backup until the next
successful migrate or a manual cleanup.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackendMigrate(cmd, args[0])
		},
	}
}

func runBackendMigrate(cmd *cobra.Command, targetBackend string) error {
	if !isValidVectorBackend(targetBackend) {
		return fmt.Errorf("unknown backend %q (valid options: flat, hnsw)", targetBackend)
	}
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

	lock := maintenance.NewFileLock(dataDir)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire maintenance lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	src, srcCleanup, err := openIndexStore(ctx, dataDir, cfg)
	if err != nil {
		return fmt.Errorf("open source index: %w", err)
	}
	defer srcCleanup()

	srcStats, err := src.Stats(ctx)
	if err != nil {
		return fmt.Errorf("get source stats: %w", err)
	}
	if srcStats.BackendType == targetBackend {
		out.Status("", fmt.Sprintf("Index is already on backend %q; nothing to do", targetBackend))
		return nil
	}

	tmpDir := dataDir + ".migrate-tmp"
	if err := os.RemoveAll(tmpDir); err != nil {
		return fmt.Errorf("clear temp migration directory: %w", err)
	}
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return fmt.Errorf("create temp migration directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	dstCfg := *cfg
	dstCfg.Vector.Backend = targetBackend
	dstCfg.Embeddings.Dimensions = srcStats.Dimension
	dst, dstCleanup, err := openIndexStore(ctx, tmpDir, &dstCfg)
	if err != nil {
		return fmt.Errorf("open destination index: %w", err)
	}
	defer dstCleanup()

	result, err := maintenance.MigrateBackend(ctx, src, dst)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := dst.Persist(ctx); err != nil {
		return fmt.Errorf("persist migrated index: %w", err)
	}

	srcCleanup()
	dstCleanup()

	backupDir := dataDir + ".migrate-backup"
	_ = os.RemoveAll(backupDir)
	if err := os.Rename(dataDir, backupDir); err != nil {
		return fmt.Errorf("back up current index: %w", err)
	}
	if err := os.Rename(tmpDir, dataDir); err != nil {
		_ = os.Rename(backupDir, dataDir)
		return fmt.Errorf("install migrated index: %w", err)
	}

	out.Successf("Migrated %d documents (%d chunks) to backend %q", result.DocumentsMigrated, result.ChunksMigrated, targetBackend)
	out.Status("💾", fmt.Sprintf("Previous index preserved at %s", backupDir))
	return nil
}

// withOpenIndex resolves the project root and config, opens the index
// store, and runs fn with it, closing the store afterward. It exists so the
// backend subcommands don't each repeat the same setup boilerplate.
func withOpenIndex(cmd *cobra.Command, fn func(ctx context.Context, indexStore *store.IndexStore, cfg *config.Config, out *output.Writer) error) error {
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

	return fn(ctx, indexStore, cfg, output.New(cmd.OutOrStdout()))
}

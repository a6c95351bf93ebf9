package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete ragd engine configuration. Load reads it
// from the user config (~/.config/ragd/config.yaml) and the project config
// (.ragd.yaml or .ragd.yml in the project root); no config file is kept
// under the data directory.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Agentic    AgenticConfig    `yaml:"agentic" json:"agentic"`
	Vector     VectorConfig     `yaml:"vector" json:"vector"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Sessions   SessionsConfig   `yaml:"sessions" json:"sessions"`
}

// PathsConfig locates the engine's on-disk state. Under DataDir live
// metadata.db, the keyword index (bm25.db, or bm25.bleve with the bleve
// backend), the vector store (vectors.flat or vectors.hnsw), and the
// directories vector/, checkpoints/ and audit/ that init creates empty.
type PathsConfig struct {
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// SearchConfig configures hybrid (BM25 + semantic) search fusion.
// Weights and thresholds are configurable via, in increasing precedence:
//  1. user config (~/.config/ragd/config.yaml)
//  2. project config (.ragd.yaml)
//  3. env vars (RAGD_BM25_WEIGHT, RAGD_SEMANTIC_WEIGHT, RAGD_RRF_CONSTANT)
type SearchConfig struct {
	// BM25Weight and SemanticWeight are the hybrid fusion weights
	// (0.0-1.0); they must sum to 1.0.
	BM25Weight     float64 `yaml:"bm25_weight" json:"bm25_weight"`
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`

	// RRFConstant is the reciprocal-rank-fusion smoothing constant (k).
	// Default 60, the value used by Azure AI Search and OpenSearch.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// BM25Backend selects the keyword index backend: "sqlite" (FTS5, WAL
	// mode, concurrent multi-process access) or "bleve".
	BM25Backend string `yaml:"bm25_backend" json:"bm25_backend"`

	// BM25NormalizationDivisor normalises raw BM25 scores into [0,1] via
	// s_norm = min(1, raw/divisor). The per-query-max alternative is not
	// implemented: it would make the normalised score depend on the
	// requested limit, which breaks monotonicity in isolation.
	BM25NormalizationDivisor float64 `yaml:"bm25_normalization_divisor" json:"bm25_normalization_divisor"`

	DefaultLimit        int    `yaml:"default_limit" json:"default_limit"`
	MaxLimit            int    `yaml:"max_limit" json:"max_limit"`
	OverFetchMultiplier int    `yaml:"over_fetch_multiplier" json:"over_fetch_multiplier"`
	Timeout             string `yaml:"timeout" json:"timeout"` // e.g. "30s"; unbounded for in-process ANN backends
}

// EmbeddingsConfig configures the embedding provider. The engine treats
// the embedder as an external collaborator; these settings select and
// tune the local binding to it.
type EmbeddingsConfig struct {
	// Provider selects the embedder backend: "ollama" (default,
	// cross-platform), "mlx" (opt-in on Apple Silicon), or "static"
	// (hash-based fallback with no external dependency).
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"` // 0 = auto-detect from embedder
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`

	// Timeout bounds a single embed call. Default 60s.
	Timeout              string        `yaml:"timeout" json:"timeout"`
	ModelDownloadTimeout time.Duration `yaml:"model_download_timeout" json:"model_download_timeout"`

	OllamaHost  string `yaml:"ollama_host" json:"ollama_host"`
	MLXEndpoint string `yaml:"mlx_endpoint" json:"mlx_endpoint"`
	MLXModel    string `yaml:"mlx_model" json:"mlx_model"`
}

// AgenticConfig configures the agentic retrieval orchestrator: query
// rewriting, cascading fallback, CRAG relevance gating, and Self-RAG
// faithfulness checking.
type AgenticConfig struct {
	// Enabled turns the rewrite/refine loop on. When false, answer()
	// retrieves once and generates once, with no scoring gates.
	Enabled bool `yaml:"enabled" json:"enabled"`

	RelevanceThreshold    float64 `yaml:"relevance_threshold" json:"relevance_threshold"`
	FaithfulnessThreshold float64 `yaml:"faithfulness_threshold" json:"faithfulness_threshold"`
	MaxRewrites           int     `yaml:"max_rewrites" json:"max_rewrites"`
	MaxRefinements        int     `yaml:"max_refinements" json:"max_refinements"`

	// RewriteHistoryTurns bounds how many trailing chat turns are fed to
	// the query rewriter. A value below 4 risks missing the turn that
	// introduced the current topic; accepted but logged as a warning
	// rather than rejected, since an operator may have a legitimate
	// short-memory use case.
	RewriteHistoryTurns int `yaml:"rewrite_history_turns" json:"rewrite_history_turns"`

	// GeneratorTimeout bounds a single generator call. Default 120s.
	GeneratorTimeout string `yaml:"generator_timeout" json:"generator_timeout"`
}

// VectorConfig tunes the vector store backend (flat or HNSW) independent
// of which one is selected automatically by corpus size.
type VectorConfig struct {
	Quantization   string `yaml:"quantization" json:"quantization"` // "f32", "f16", "i8"
	Metric         string `yaml:"metric" json:"metric"`             // "cos", "l2"
	M              int    `yaml:"m" json:"m"`                       // HNSW max connections per layer
	EfConstruction int    `yaml:"ef_construction" json:"ef_construction"`
	EfSearch       int    `yaml:"ef_search" json:"ef_search"`

	// Backend pins the vector backend ("flat" or "hnsw") for a brand new
	// index, overriding corpus-size auto-selection. Empty means auto.
	// Ignored once an index already exists on disk; use "backend migrate"
	// to move an existing index to a different backend.
	Backend string `yaml:"backend" json:"backend"`
}

// ServerConfig configures the engine's MCP binding, when one is attached.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	Port      int    `yaml:"port" json:"port"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// SessionsConfig configures chat-history persistence for the agentic
// orchestrator's history parameter.
type SessionsConfig struct {
	StoragePath string `yaml:"storage_path" json:"storage_path"`
	AutoSave    bool   `yaml:"auto_save" json:"auto_save"`
	MaxSessions int    `yaml:"max_sessions" json:"max_sessions"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: defaultDataDir(),
		},
		Search: SearchConfig{
			BM25Weight:               0.5,
			SemanticWeight:           0.5,
			RRFConstant:              60,
			BM25Backend:              "sqlite",
			BM25NormalizationDivisor: 10.0,
			DefaultLimit:             10,
			MaxLimit:                 100,
			OverFetchMultiplier:      3,
			Timeout:                  "30s",
		},
		Embeddings: EmbeddingsConfig{
			Provider:             "", // empty triggers auto-detection: Ollama -> static
			Model:                "nomic-embed-text",
			Dimensions:           0,
			BatchSize:            32,
			Timeout:              "60s",
			ModelDownloadTimeout: 10 * time.Minute,
			OllamaHost:           "",
			MLXEndpoint:          "",
			MLXModel:             "",
		},
		Agentic: AgenticConfig{
			Enabled:               true,
			RelevanceThreshold:    0.6,
			FaithfulnessThreshold: 0.7,
			MaxRewrites:           2,
			MaxRefinements:        1,
			RewriteHistoryTurns:   4,
			GeneratorTimeout:      "120s",
		},
		Vector: VectorConfig{
			Quantization:   "f16",
			Metric:         "cos",
			M:              32,
			EfConstruction: 128,
			EfSearch:       64,
		},
		Server: ServerConfig{
			Transport: "stdio",
			Port:      8765,
			LogLevel:  "info",
		},
		Sessions: SessionsConfig{
			StoragePath: defaultSessionsPath(),
			AutoSave:    true,
			MaxSessions: 20,
		},
	}
}

// defaultDataDir returns the default engine data directory: ./.ragd under
// the current working directory, mirroring how the CLI locates a project.
func defaultDataDir() string {
	return ".ragd"
}

// defaultSessionsPath returns the default sessions storage path.
func defaultSessionsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".ragd", "sessions")
	}
	return filepath.Join(home, ".ragd", "sessions")
}

// GetUserConfigPath returns the path to the user/global configuration
// file, following the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/ragd/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/ragd/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ragd", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "ragd", "config.yaml")
	}
	return filepath.Join(home, ".config", "ragd", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns a nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration for a data directory, applying sources in
// order of increasing precedence:
//  1. hardcoded defaults
//  2. user/global config (~/.config/ragd/config.yaml)
//  3. project config (.ragd.yaml in dir)
//  4. environment variables (RAGD_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .ragd.yaml or .ragd.yml
// in dir. Absence of either file is not an error; defaults apply.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".ragd.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".ragd.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}

	if other.Search.BM25Weight != 0 {
		c.Search.BM25Weight = other.Search.BM25Weight
	}
	if other.Search.SemanticWeight != 0 {
		c.Search.SemanticWeight = other.Search.SemanticWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.BM25Backend != "" {
		c.Search.BM25Backend = other.Search.BM25Backend
	}
	if other.Search.BM25NormalizationDivisor != 0 {
		c.Search.BM25NormalizationDivisor = other.Search.BM25NormalizationDivisor
	}
	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.MaxLimit != 0 {
		c.Search.MaxLimit = other.Search.MaxLimit
	}
	if other.Search.OverFetchMultiplier != 0 {
		c.Search.OverFetchMultiplier = other.Search.OverFetchMultiplier
	}
	if other.Search.Timeout != "" {
		c.Search.Timeout = other.Search.Timeout
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.Timeout != "" {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}
	if other.Embeddings.ModelDownloadTimeout != 0 {
		c.Embeddings.ModelDownloadTimeout = other.Embeddings.ModelDownloadTimeout
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.MLXEndpoint != "" {
		c.Embeddings.MLXEndpoint = other.Embeddings.MLXEndpoint
	}
	if other.Embeddings.MLXModel != "" {
		c.Embeddings.MLXModel = other.Embeddings.MLXModel
	}

	if other.Agentic.RelevanceThreshold != 0 {
		c.Agentic.RelevanceThreshold = other.Agentic.RelevanceThreshold
	}
	if other.Agentic.FaithfulnessThreshold != 0 {
		c.Agentic.FaithfulnessThreshold = other.Agentic.FaithfulnessThreshold
	}
	if other.Agentic.MaxRewrites != 0 {
		c.Agentic.MaxRewrites = other.Agentic.MaxRewrites
	}
	if other.Agentic.MaxRefinements != 0 {
		c.Agentic.MaxRefinements = other.Agentic.MaxRefinements
	}
	if other.Agentic.RewriteHistoryTurns != 0 {
		c.Agentic.RewriteHistoryTurns = other.Agentic.RewriteHistoryTurns
	}
	if other.Agentic.GeneratorTimeout != "" {
		c.Agentic.GeneratorTimeout = other.Agentic.GeneratorTimeout
	}

	if other.Vector.Quantization != "" {
		c.Vector.Quantization = other.Vector.Quantization
	}
	if other.Vector.Metric != "" {
		c.Vector.Metric = other.Vector.Metric
	}
	if other.Vector.M != 0 {
		c.Vector.M = other.Vector.M
	}
	if other.Vector.EfConstruction != 0 {
		c.Vector.EfConstruction = other.Vector.EfConstruction
	}
	if other.Vector.EfSearch != 0 {
		c.Vector.EfSearch = other.Vector.EfSearch
	}
	if other.Vector.Backend != "" {
		c.Vector.Backend = other.Vector.Backend
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}

	if other.Sessions.StoragePath != "" {
		c.Sessions.StoragePath = other.Sessions.StoragePath
		c.Sessions.AutoSave = other.Sessions.AutoSave
	}
	if other.Sessions.MaxSessions > 0 {
		c.Sessions.MaxSessions = other.Sessions.MaxSessions
	}
}

// applyEnvOverrides applies RAGD_* environment variable overrides, the
// highest-precedence configuration layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RAGD_BM25_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.BM25Weight = w
		}
	}
	if v := os.Getenv("RAGD_SEMANTIC_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.SemanticWeight = w
		}
	}
	if v := os.Getenv("RAGD_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}

	if v := os.Getenv("RAGD_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("RAGD_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("RAGD_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("RAGD_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("RAGD_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}

	if v := os.Getenv("RAGD_AGENTIC_ENABLED"); v != "" {
		c.Agentic.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("RAGD_RELEVANCE_THRESHOLD"); v != "" {
		if t, err := parseFloat64(v); err == nil && t >= 0 && t <= 1 {
			c.Agentic.RelevanceThreshold = t
		}
	}
	if v := os.Getenv("RAGD_FAITHFULNESS_THRESHOLD"); v != "" {
		if t, err := parseFloat64(v); err == nil && t >= 0 && t <= 1 {
			c.Agentic.FaithfulnessThreshold = t
		}
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// FindProjectRoot walks up from startDir looking for a .git directory or
// a .ragd.yaml/.yml file, returning the first directory found or startDir
// itself if none is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".ragd.yaml")) ||
			fileExists(filepath.Join(currentDir, ".ragd.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.BM25Weight < 0 || c.Search.BM25Weight > 1 {
		return fmt.Errorf("bm25_weight must be between 0 and 1, got %f", c.Search.BM25Weight)
	}
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("semantic_weight must be between 0 and 1, got %f", c.Search.SemanticWeight)
	}

	sum := c.Search.BM25Weight + c.Search.SemanticWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("bm25_weight + semantic_weight must equal 1.0, got %.2f", sum)
	}

	if c.Search.MaxLimit < 0 {
		return fmt.Errorf("max_limit must be non-negative, got %d", c.Search.MaxLimit)
	}

	validBackends := map[string]bool{"sqlite": true, "bleve": true}
	if !validBackends[strings.ToLower(c.Search.BM25Backend)] {
		return fmt.Errorf("search.bm25_backend must be 'sqlite' or 'bleve', got %s", c.Search.BM25Backend)
	}

	if c.Embeddings.Provider != "" {
		validProviders := map[string]bool{"static": true, "ollama": true, "mlx": true}
		if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
			return fmt.Errorf("embeddings.provider must be 'static', 'ollama', 'mlx', or empty (auto-detect), got %s", c.Embeddings.Provider)
		}
	}

	validTransports := map[string]bool{"stdio": true, "sse": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'sse', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	if c.Agentic.RewriteHistoryTurns > 0 && c.Agentic.RewriteHistoryTurns < 4 {
		// Not rejected: an operator may have a legitimate short-memory
		// use case. Logged as a warning instead.
		slog.Warn("agentic.rewrite_history_turns below 4 may miss the turn that introduced the current topic",
			slog.Int("rewrite_history_turns", c.Agentic.RewriteHistoryTurns))
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// MergeNewDefaults adds new default fields while preserving existing
// values already set on c. Returns the list of field names that were
// added along with their default values, for a one-time upgrade notice.
func (c *Config) MergeNewDefaults() []string {
	defaults := NewConfig()
	var added []string

	if c.Search.BM25Weight == 0 {
		c.Search.BM25Weight = defaults.Search.BM25Weight
		added = append(added, "search.bm25_weight")
	}
	if c.Search.SemanticWeight == 0 {
		c.Search.SemanticWeight = defaults.Search.SemanticWeight
		added = append(added, "search.semantic_weight")
	}
	if c.Search.RRFConstant == 0 {
		c.Search.RRFConstant = defaults.Search.RRFConstant
		added = append(added, "search.rrf_constant")
	}
	if c.Search.BM25NormalizationDivisor == 0 {
		c.Search.BM25NormalizationDivisor = defaults.Search.BM25NormalizationDivisor
		added = append(added, "search.bm25_normalization_divisor")
	}

	if c.Agentic.RelevanceThreshold == 0 {
		c.Agentic.RelevanceThreshold = defaults.Agentic.RelevanceThreshold
		added = append(added, "agentic.relevance_threshold")
	}
	if c.Agentic.FaithfulnessThreshold == 0 {
		c.Agentic.FaithfulnessThreshold = defaults.Agentic.FaithfulnessThreshold
		added = append(added, "agentic.faithfulness_threshold")
	}
	if c.Agentic.RewriteHistoryTurns == 0 {
		c.Agentic.RewriteHistoryTurns = defaults.Agentic.RewriteHistoryTurns
		added = append(added, "agentic.rewrite_history_turns")
	}

	if c.Sessions.StoragePath == "" {
		c.Sessions.StoragePath = defaults.Sessions.StoragePath
		added = append(added, "sessions.storage_path")
	}
	if c.Sessions.MaxSessions == 0 {
		c.Sessions.MaxSessions = defaults.Sessions.MaxSessions
		added = append(added, "sessions.max_sessions")
	}

	return added
}

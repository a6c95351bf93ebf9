package cmd

import (
	"time"

	"github.com/ragdhq/ragd/internal/config"
	"github.com/ragdhq/ragd/internal/context"
	"github.com/ragdhq/ragd/internal/generate"
	"github.com/ragdhq/ragd/internal/orchestrator"
	"github.com/ragdhq/ragd/internal/search"
)

// newSearchConfig translates the project config's search tuning into a
// search.Config, the same mapping runSearch uses.
func newSearchConfig(cfg *config.Config) search.Config {
	searchCfg := search.DefaultConfig()
	searchCfg.DefaultLimit = cfg.Search.DefaultLimit
	searchCfg.MaxLimit = cfg.Search.MaxLimit
	searchCfg.RRFConstant = cfg.Search.RRFConstant
	searchCfg.OverFetchMultiplier = cfg.Search.OverFetchMultiplier
	searchCfg.KeywordScoreDivisor = cfg.Search.BM25NormalizationDivisor
	if cfg.Search.BM25Weight > 0 || cfg.Search.SemanticWeight > 0 {
		searchCfg.DefaultWeights = search.Weights{Semantic: cfg.Search.SemanticWeight, Keyword: cfg.Search.BM25Weight}
	}
	return searchCfg
}

// newOrchestratorConfig translates the project config's agentic tuning into
// an orchestrator.Config, leaving everything the config doesn't expose at
// its package default.
func newOrchestratorConfig(cfg *config.Config) orchestrator.Config {
	oc := orchestrator.DefaultConfig()
	oc.CRAGEnabled = cfg.Agentic.Enabled
	oc.SelfRAGEnabled = cfg.Agentic.Enabled
	if cfg.Agentic.RelevanceThreshold > 0 {
		oc.RelevanceThreshold = cfg.Agentic.RelevanceThreshold
	}
	if cfg.Agentic.FaithfulnessThreshold > 0 {
		oc.FaithfulnessThreshold = cfg.Agentic.FaithfulnessThreshold
	}
	if cfg.Agentic.MaxRewrites > 0 {
		oc.MaxRewrites = cfg.Agentic.MaxRewrites
	}
	if cfg.Agentic.MaxRefinements > 0 {
		oc.MaxRefinements = cfg.Agentic.MaxRefinements
	}
	if cfg.Agentic.RewriteHistoryTurns > 0 {
		oc.RewriteHistoryTurns = cfg.Agentic.RewriteHistoryTurns
	}
	return oc
}

// newGenerator builds the Ollama-backed generator the orchestrator and chat
// commands answer through.
func newGenerator(cfg *config.Config) generate.Generator {
	timeout := generate.DefaultTimeout
	if d, err := time.ParseDuration(cfg.Agentic.GeneratorTimeout); err == nil && d > 0 {
		timeout = d
	}
	return generate.NewOllamaGenerator(generate.OllamaConfig{
		Host:    cfg.Embeddings.OllamaHost,
		Timeout: timeout,
	})
}

// contextConfigFromSearch derives a context.Config sized to the search
// limit the config requests, since the two aren't independently configured
// yet.
func contextConfigFromSearch(cfg *config.Config) context.Config {
	cc := context.DefaultConfig()
	if cfg.Search.MaxLimit > 0 {
		cc.MaxResults = cfg.Search.MaxLimit
	}
	return cc
}

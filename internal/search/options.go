package search

import "fmt"

// ApplyDefaults fills in zero-valued fields of opts from cfg, clamping Limit
// to cfg.MaxLimit.
func ApplyDefaults(opts Options, cfg Config) Options {
	if opts.Mode == "" {
		opts.Mode = ModeHybrid
	}
	if opts.Limit <= 0 {
		opts.Limit = cfg.DefaultLimit
	}
	if opts.Limit > cfg.MaxLimit {
		opts.Limit = cfg.MaxLimit
	}
	if opts.Weights == nil {
		w := cfg.DefaultWeights
		opts.Weights = &w
	}
	if opts.RRFConstant <= 0 {
		opts.RRFConstant = cfg.RRFConstant
	}
	if opts.OverFetchMultiplier <= 0 {
		opts.OverFetchMultiplier = cfg.OverFetchMultiplier
	}
	return opts
}

// ValidateOptions checks that options are internally consistent.
func ValidateOptions(opts Options) error {
	switch opts.Mode {
	case "", ModeHybrid, ModeSemantic, ModeKeyword:
	default:
		return fmt.Errorf("unknown search mode: %q (valid: hybrid, semantic, keyword)", opts.Mode)
	}
	if opts.MinScore < 0 || opts.MinScore > 1 {
		return fmt.Errorf("min_score must be in [0,1], got %v", opts.MinScore)
	}
	if opts.Weights != nil {
		if opts.Weights.Semantic < 0 || opts.Weights.Keyword < 0 {
			return fmt.Errorf("weights must be non-negative")
		}
	}
	return nil
}

// passesMinScore implements the hybrid mode's score floor: a chunk survives
// if EITHER its combined_score or its rrf_score clears min_score.
func passesMinScore(combined, rrf, minScore float64) bool {
	return combined >= minScore || rrf >= minScore
}

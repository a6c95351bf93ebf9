package orchestrator

// DefaultRewriteHistoryTurns is the number of trailing chat turns fed to the
// query rewriter. It must be large enough to still contain the turn that
// introduced the topic a short follow-up refers back to; values below this
// are accepted (an operator may have a legitimate short-memory use case) but
// logged as a warning rather than rejected.
const DefaultRewriteHistoryTurns = 4

// Default CRAG/Self-RAG thresholds and weights.
const (
	DefaultRelevanceThreshold    = 0.6
	DefaultFaithfulnessThreshold = 0.7
	DefaultMaxRewrites           = 2
	DefaultMaxRefinements        = 1
	DefaultMinRelevance          = 0.3
	DefaultFallbackMinRelevance  = 0.15
	DefaultEnableFallback        = true

	DefaultConfidenceRelevanceWeight    = 0.4
	DefaultConfidenceFaithfulnessWeight = 0.6

	DefaultExcellentThreshold = 0.8
	DefaultGoodThreshold      = 0.6
	DefaultPoorThreshold      = 0.4
)

// Config configures an AgenticOrchestrator.
type Config struct {
	// CRAGEnabled turns on the corrective-retrieval relevance loop.
	CRAGEnabled bool

	// SelfRAGEnabled turns on the post-generation faithfulness loop.
	SelfRAGEnabled bool

	RelevanceThreshold    float64
	FaithfulnessThreshold float64
	MaxRewrites           int
	MaxRefinements        int

	// MinRelevance is the combined-score floor for the primary retrieval
	// strategies (rewritten and original query).
	MinRelevance float64

	// EnableFallbackRetrieval allows a third cascading-retrieval strategy:
	// retrying the original query at FallbackMinRelevance.
	EnableFallbackRetrieval bool
	FallbackMinRelevance    float64

	// RewriteHistoryTurns bounds how many trailing turns are fed to the
	// query rewriter. Defaults to DefaultRewriteHistoryTurns.
	RewriteHistoryTurns int

	ConfidenceRelevanceWeight    float64
	ConfidenceFaithfulnessWeight float64

	ExcellentThreshold float64
	GoodThreshold      float64
	PoorThreshold      float64

	// SearchLimit is the max_results passed to the searcher and context
	// builder for each retrieval attempt.
	SearchLimit int

	// RewriteTemperature/RewriteMaxTokens bound the query-rewrite call.
	RewriteTemperature float64
	RewriteMaxTokens   int

	// EvalTemperature/EvalMaxTokens bound the relevance/faithfulness judge
	// calls, which want a short, near-deterministic numeric reply.
	EvalTemperature float64
	EvalMaxTokens   int

	// AnswerTemperature/AnswerMaxTokens bound the main answer-generation call.
	AnswerTemperature float64
	AnswerMaxTokens   int

	// RefineTemperature/RefineMaxTokens bound the Self-RAG refinement call.
	RefineTemperature float64
	RefineMaxTokens   int
}

// DefaultConfig returns the orchestrator's default configuration, grounded
// on the cascading-retrieval and CRAG/Self-RAG defaults.
func DefaultConfig() Config {
	return Config{
		CRAGEnabled:                  true,
		SelfRAGEnabled:               true,
		RelevanceThreshold:           DefaultRelevanceThreshold,
		FaithfulnessThreshold:        DefaultFaithfulnessThreshold,
		MaxRewrites:                  DefaultMaxRewrites,
		MaxRefinements:               DefaultMaxRefinements,
		MinRelevance:                 DefaultMinRelevance,
		EnableFallbackRetrieval:      DefaultEnableFallback,
		FallbackMinRelevance:         DefaultFallbackMinRelevance,
		RewriteHistoryTurns:          DefaultRewriteHistoryTurns,
		ConfidenceRelevanceWeight:    DefaultConfidenceRelevanceWeight,
		ConfidenceFaithfulnessWeight: DefaultConfidenceFaithfulnessWeight,
		ExcellentThreshold:           DefaultExcellentThreshold,
		GoodThreshold:                DefaultGoodThreshold,
		PoorThreshold:                DefaultPoorThreshold,
		SearchLimit:                  5,
		RewriteTemperature:           0.3,
		RewriteMaxTokens:             100,
		EvalTemperature:              0.0,
		EvalMaxTokens:                10,
		AnswerTemperature:            0.7,
		AnswerMaxTokens:              1024,
		RefineTemperature:            0.3,
		RefineMaxTokens:              1024,
	}
}

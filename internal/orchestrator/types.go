package orchestrator

import (
	"github.com/ragdhq/ragd/internal/context"
)

// Quality labels a retrieval's relevance score.
type Quality string

const (
	QualityExcellent  Quality = "excellent"
	QualityGood       Quality = "good"
	QualityPoor       Quality = "poor"
	QualityIrrelevant Quality = "irrelevant"
)

// Strategy tags which cascading-retrieval step produced the context used
// for generation.
type Strategy string

const (
	StrategyRewritten        Strategy = "rewritten"
	StrategyOriginal         Strategy = "original"
	StrategyLoweredThreshold Strategy = "lowered_threshold"
	StrategyNone             Strategy = "none"
)

// Response is the result of AgenticOrchestrator.Answer.
type Response struct {
	Success bool
	// Reason explains a non-success response (generator failure, no
	// results); empty on success.
	Reason string

	AnswerText           string
	Confidence           float64
	RetrievalQuality      Quality
	RewritesAttempted    int
	RefinementsAttempted int
	Citations            []context.Citation
	StrategyUsed         Strategy

	Metadata map[string]any
}

// noResultsResponse builds the well-formed response for cascading retrieval
// strategy 4 ("none"): every strategy failed to surface a usable context.
func noResultsResponse(question string) *Response {
	return &Response{
		Success: true,
		AnswerText: "I couldn't find any relevant information in your knowledge base for: \"" +
			question + "\". Try indexing more documents or rephrasing your question.",
		Confidence:       0,
		RetrievalQuality: QualityIrrelevant,
		StrategyUsed:     StrategyNone,
		Citations:        []context.Citation{},
		Metadata:         map[string]any{"relevance_score": 0.0, "faithfulness_score": 0.0},
	}
}

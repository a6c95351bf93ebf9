// Package orchestrator implements agentic retrieval-augmented generation:
// cascading retrieval, a CRAG relevance-correction loop, and a Self-RAG
// faithfulness-correction loop, composed around a Searcher and a Generator.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	ragcontext "github.com/ragdhq/ragd/internal/context"
	"github.com/ragdhq/ragd/internal/generate"
	"github.com/ragdhq/ragd/internal/search"
	"github.com/ragdhq/ragd/internal/session"
)

// AgenticOrchestrator answers questions by retrieving context, judging and
// correcting that retrieval, generating an answer, and judging and
// correcting the answer's faithfulness to the context. It holds no
// per-question mutable state, so concurrent questions on a shared instance
// are independent.
type AgenticOrchestrator struct {
	searcher  search.Searcher
	generator generate.Generator
	builder   *ragcontext.Builder
	config    Config
	log       *slog.Logger
}

// New constructs an AgenticOrchestrator. Returns an error if searcher or
// generator is nil.
func New(searcher search.Searcher, generator generate.Generator, config Config, contextConfig ragcontext.Config) (*AgenticOrchestrator, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if config.RewriteHistoryTurns <= 0 {
		config.RewriteHistoryTurns = DefaultRewriteHistoryTurns
	}

	return &AgenticOrchestrator{
		searcher:  searcher,
		generator: generator,
		builder:   ragcontext.NewBuilder(contextConfig),
		config:    config,
		log:       slog.With(slog.String("component", "orchestrator")),
	}, nil
}

// Answer runs the full agentic pipeline for one question. The returned
// error is non-nil only for caller-initiated cancellation; generator
// failures are reported through Response.Success/Reason instead.
func (o *AgenticOrchestrator) Answer(ctx context.Context, question string, history []session.ChatTurn) (*Response, error) {
	assembled, strategy, effectiveQuery, err := o.retrieveCascading(ctx, question, history)
	if err != nil {
		return nil, err
	}
	if assembled == nil {
		return noResultsResponse(question), nil
	}

	cragResult, rewrites, err := o.runCRAG(ctx, history, effectiveQuery, assembled, strategy)
	if err != nil {
		return nil, err
	}
	assembled, strategy = cragResult.assembled, cragResult.strategy

	answerText, genErr := o.generateAnswer(ctx, question, assembled.Text)
	if genErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &Response{Success: false, Reason: genErr.Error()}, nil
	}

	finalAnswer, faithfulness, refinements := o.runSelfRAG(ctx, question, answerText, assembled.Text)

	confidence := o.calculateConfidence(cragResult.score, faithfulness)

	return &Response{
		Success:              true,
		AnswerText:           finalAnswer,
		Confidence:           confidence,
		RetrievalQuality:     o.qualityFromScore(cragResult.score),
		RewritesAttempted:    rewrites,
		RefinementsAttempted: refinements,
		Citations:            assembled.Citations,
		StrategyUsed:         strategy,
		Metadata: map[string]any{
			"relevance_score":    cragResult.score,
			"faithfulness_score": faithfulness,
			"strategy_used":      string(strategy),
		},
	}, nil
}

// retrieveCascading runs the four cascading-retrieval strategies in order
// and returns the first one that produces admitted context. A nil Assembled
// means every strategy failed (strategy 4, "none").
func (o *AgenticOrchestrator) retrieveCascading(ctx context.Context, question string, history []session.ChatTurn) (*ragcontext.Assembled, Strategy, string, error) {
	if len(history) > 0 && isFollowUp(question) {
		turns := session.LastNTurns(history, o.config.RewriteHistoryTurns)
		if len(history) < o.config.RewriteHistoryTurns {
			o.log.Warn("rewrite_history_turns configured above available history",
				slog.Int("configured", o.config.RewriteHistoryTurns), slog.Int("available", len(history)))
		}

		rewritten, ok := o.rewriteQuery(ctx, turns, question)
		if ok && rewritten != "" && rewritten != question {
			results, err := o.retrieve(ctx, rewritten, o.config.MinRelevance)
			if err != nil {
				return nil, "", "", err
			}
			if len(results) > 0 {
				return o.builder.Build(results), StrategyRewritten, rewritten, nil
			}
		}
	}

	results, err := o.retrieve(ctx, question, o.config.MinRelevance)
	if err != nil {
		return nil, "", "", err
	}
	if len(results) > 0 {
		return o.builder.Build(results), StrategyOriginal, question, nil
	}

	if o.config.EnableFallbackRetrieval {
		results, err = o.retrieve(ctx, question, o.config.FallbackMinRelevance)
		if err != nil {
			return nil, "", "", err
		}
		if len(results) > 0 {
			return o.builder.Build(results), StrategyLoweredThreshold, question, nil
		}
	}

	return nil, StrategyNone, question, nil
}

// crag is the small bundle of mutable loop state threaded through runCRAG;
// it is local to one Answer call, never shared across goroutines.
type crag struct {
	assembled *ragcontext.Assembled
	strategy  Strategy
	score     float64
}

// runCRAG evaluates retrieval relevance and, while it stays below
// RelevanceThreshold, rewrites the query and retries retrieval up to
// MaxRewrites times.
func (o *AgenticOrchestrator) runCRAG(ctx context.Context, history []session.ChatTurn, query string, assembled *ragcontext.Assembled, strategy Strategy) (crag, int, error) {
	state := crag{assembled: assembled, strategy: strategy, score: 1.0}
	if !o.config.CRAGEnabled {
		return state, 0, nil
	}

	state.score = o.evaluateRelevance(ctx, query, assembled.Text)

	rewrites := 0
	for state.score < o.config.RelevanceThreshold && rewrites < o.config.MaxRewrites {
		if err := ctx.Err(); err != nil {
			return state, rewrites, err
		}
		rewrites++

		turns := session.LastNTurns(history, o.config.RewriteHistoryTurns)
		rewritten, ok := o.rewriteQuery(ctx, turns, query)
		if !ok || rewritten == "" || rewritten == query {
			break
		}

		results, err := o.retrieve(ctx, rewritten, o.config.MinRelevance)
		if err != nil {
			return state, rewrites, err
		}
		if len(results) == 0 {
			break
		}

		query = rewritten
		state.assembled = o.builder.Build(results)
		state.strategy = StrategyRewritten
		state.score = o.evaluateRelevance(ctx, query, state.assembled.Text)
	}

	return state, rewrites, nil
}

// runSelfRAG evaluates answer faithfulness and, if it falls below
// FaithfulnessThreshold, refines the answer once (bounded by
// MaxRefinements) and re-scores.
func (o *AgenticOrchestrator) runSelfRAG(ctx context.Context, question, answer, contextText string) (string, float64, int) {
	if !o.config.SelfRAGEnabled {
		return answer, 1.0, 0
	}

	faithfulness := o.evaluateFaithfulness(ctx, answer, contextText)
	refinements := 0
	if faithfulness < o.config.FaithfulnessThreshold && refinements < o.config.MaxRefinements {
		refinements++
		answer = o.refineAnswer(ctx, question, answer, contextText)
		faithfulness = o.evaluateFaithfulness(ctx, answer, contextText)
	}

	return answer, faithfulness, refinements
}

// retrieve runs a single search attempt, degrading a search-layer failure
// to an empty result set rather than propagating it (mirroring the
// per-call-failure semantics the orchestrator extends to the generator).
// Caller cancellation is the one error that does propagate.
func (o *AgenticOrchestrator) retrieve(ctx context.Context, query string, minRelevance float64) ([]*search.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results, err := o.searcher.Search(ctx, query, search.Options{
		Mode:     search.ModeHybrid,
		Limit:    o.config.SearchLimit,
		MinScore: minRelevance,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		o.log.Warn("retrieval failed, treating as no results", slog.String("error", err.Error()))
		return nil, nil
	}
	return results, nil
}

func (o *AgenticOrchestrator) rewriteQuery(ctx context.Context, turns []session.ChatTurn, question string) (string, bool) {
	resp, err := o.generator.Generate(ctx, generate.Request{
		Prompt:      buildRewritePrompt(turns, question),
		Temperature: o.config.RewriteTemperature,
		MaxTokens:   o.config.RewriteMaxTokens,
	})
	if err != nil {
		o.log.Warn("query rewrite failed, keeping original query", slog.String("error", err.Error()))
		return "", false
	}
	return strings.TrimSpace(resp.Content), true
}

func (o *AgenticOrchestrator) evaluateRelevance(ctx context.Context, query, contextText string) float64 {
	resp, err := o.generator.Generate(ctx, generate.Request{
		Prompt:      buildRelevanceEvalPrompt(query, contextText),
		Temperature: o.config.EvalTemperature,
		MaxTokens:   o.config.EvalMaxTokens,
	})
	if err != nil {
		o.log.Warn("relevance evaluation failed, defaulting to neutral score", slog.String("error", err.Error()))
		return defaultScore
	}
	return extractScore(resp.Content)
}

func (o *AgenticOrchestrator) evaluateFaithfulness(ctx context.Context, answer, contextText string) float64 {
	resp, err := o.generator.Generate(ctx, generate.Request{
		Prompt:      buildFaithfulnessEvalPrompt(answer, contextText),
		Temperature: o.config.EvalTemperature,
		MaxTokens:   o.config.EvalMaxTokens,
	})
	if err != nil {
		o.log.Warn("faithfulness evaluation failed, defaulting to neutral score", slog.String("error", err.Error()))
		return defaultScore
	}
	return extractScore(resp.Content)
}

func (o *AgenticOrchestrator) generateAnswer(ctx context.Context, question, contextText string) (string, error) {
	system, user := buildAnswerPrompt(question, contextText)
	resp, err := o.generator.Generate(ctx, generate.Request{
		Prompt:       user,
		SystemPrompt: system,
		Temperature:  o.config.AnswerTemperature,
		MaxTokens:    o.config.AnswerMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (o *AgenticOrchestrator) refineAnswer(ctx context.Context, question, answer, contextText string) string {
	resp, err := o.generator.Generate(ctx, generate.Request{
		Prompt:      buildRefinePrompt(question, answer, contextText),
		Temperature: o.config.RefineTemperature,
		MaxTokens:   o.config.RefineMaxTokens,
	})
	if err != nil {
		o.log.Warn("answer refinement failed, keeping prior answer", slog.String("error", err.Error()))
		return answer
	}
	return resp.Content
}

func (o *AgenticOrchestrator) calculateConfidence(relevance, faithfulness float64) float64 {
	return o.config.ConfidenceRelevanceWeight*relevance + o.config.ConfidenceFaithfulnessWeight*faithfulness
}

func (o *AgenticOrchestrator) qualityFromScore(score float64) Quality {
	switch {
	case score >= o.config.ExcellentThreshold:
		return QualityExcellent
	case score >= o.config.GoodThreshold:
		return QualityGood
	case score >= o.config.PoorThreshold:
		return QualityPoor
	default:
		return QualityIrrelevant
	}
}

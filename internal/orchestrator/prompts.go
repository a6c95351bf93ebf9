package orchestrator

import (
	"fmt"
	"strings"

	"github.com/ragdhq/ragd/internal/session"
)

// followUpMarkers are phrases that, combined with non-empty history,
// indicate a question refers back to the preceding conversation rather than
// standing on its own.
var followUpMarkers = []string{
	"tell me more",
	"what else",
	"elaborate",
	"go on",
	"what about",
	"summarise",
	"summarize",
	"expand on",
	"more detail",
}

// barePronounStarts flags a question opening with a pronoun that can only
// be resolved against prior turns ("it", "that paper", "they").
var barePronounStarts = []string{"it ", "that ", "this ", "they ", "those ", "these "}

// isFollowUp reports whether question looks like it depends on prior
// conversation turns rather than being self-contained.
func isFollowUp(question string) bool {
	lower := strings.ToLower(strings.TrimSpace(question))
	if lower == "" {
		return false
	}
	for _, marker := range followUpMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	for _, prefix := range barePronounStarts {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// buildRewritePrompt composes the CRAG query-rewrite prompt: the last N
// turns, the filenames cited in them, and the follow-up question.
func buildRewritePrompt(turns []session.ChatTurn, question string) string {
	var sb strings.Builder
	sb.WriteString("Given the recent conversation below, rewrite the follow-up question into a standalone search query that preserves the original topic.\n\n")

	sb.WriteString("Conversation:\n")
	for _, t := range turns {
		sb.WriteString(fmt.Sprintf("%s: %s\n", t.Role, t.Content))
	}

	if cited := session.CitedFilenames(turns); len(cited) > 0 {
		sb.WriteString("\nDocuments cited: ")
		sb.WriteString(strings.Join(cited, ", "))
		sb.WriteString("\n")
	}

	sb.WriteString("\nFollow-up question: ")
	sb.WriteString(question)
	sb.WriteString("\n\nStandalone query:")
	return sb.String()
}

// buildRelevanceEvalPrompt asks the generator to judge, as a number in
// [0,1], how relevant the assembled context is to the query.
func buildRelevanceEvalPrompt(query, contextText string) string {
	return fmt.Sprintf(
		"Rate how relevant the following context is to answering the query, as a single number from 0 to 1.\n\n"+
			"Query: %s\n\nContext:\n%s\n\nRelevance score (0-1):",
		query, contextText)
}

// buildFaithfulnessEvalPrompt asks the generator to judge, as a number in
// [0,1], whether the answer is supported by the context.
func buildFaithfulnessEvalPrompt(answer, contextText string) string {
	return fmt.Sprintf(
		"Rate how faithfully the following response is supported by the context, as a single number from 0 to 1. "+
			"A response that states facts not present in the context should score low.\n\n"+
			"Response: %s\n\nContext:\n%s\n\nFaithfulness score (0-1):",
		answer, contextText)
}

// buildRefinePrompt asks the generator to rewrite an answer so it is more
// faithful to the supplied context.
func buildRefinePrompt(question, answer, contextText string) string {
	return fmt.Sprintf(
		"The following answer may contain claims not supported by the context. Rewrite it so every claim is grounded in the context, "+
			"keeping it focused on the original question.\n\n"+
			"Question: %s\n\nContext:\n%s\n\nOriginal answer: %s\n\nRevised answer:",
		question, contextText, answer)
}

// buildAnswerPrompt returns the system and user prompt for the main
// answer-generation call.
func buildAnswerPrompt(question, contextText string) (systemPrompt, userPrompt string) {
	systemPrompt = "You are a helpful assistant answering questions using only the provided context. " +
		"Cite sources using their bracketed numbers, e.g. [1]. If the context does not contain the answer, say so."
	userPrompt = fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer:", contextText, question)
	return systemPrompt, userPrompt
}

// Package context assembles ranked search results into a token-budgeted
// text block and a matching citation list, for handing to a generator.
package context

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ragdhq/ragd/internal/search"
)

// charsPerToken approximates one token as four characters, a common rough
// heuristic when an exact tokeniser is unavailable.
const charsPerToken = 4

// emptySentinel is returned as Text when no chunk clears the budget or
// relevance floor, so callers can tell "nothing relevant" apart from a
// generator call that happens to produce empty text.
const emptySentinel = "No relevant context found"

// Config bounds a single Build call.
type Config struct {
	// MaxTokens is the total token budget available to the caller (context
	// window minus whatever the caller reserves elsewhere).
	MaxTokens int

	// ReservedTokens is subtracted from MaxTokens up front, for the
	// question and system prompt the caller will also send.
	ReservedTokens int

	// MaxResults caps how many chunks are admitted regardless of budget.
	// Zero means no cap.
	MaxResults int

	// MinRelevance filters out chunks below this combined score before
	// budgeting is applied.
	MinRelevance float64
}

// DefaultConfig returns reasonable defaults for a mid-sized context window.
func DefaultConfig() Config {
	return Config{
		MaxTokens:      4000,
		ReservedTokens: 500,
		MaxResults:     20,
	}
}

// Citation describes one document's contribution to the assembled text, in
// the same first-appearance order used to number that text.
type Citation struct {
	DocumentID string
	Filename   string

	// PageNumber is set when the group's admitted chunks span exactly one
	// page; AllPages is set instead when they span more than one.
	PageNumber *int
	AllPages   []int

	CharStart int
	CharEnd   int

	// Relevance is the best combined score among the group's admitted chunks.
	Relevance float64
}

// Assembled is the result of a Build call.
type Assembled struct {
	Text      string
	Citations []Citation

	// Empty is true when no chunk was admitted; Text is then the sentinel
	// string and Citations is empty.
	Empty bool
}

// Builder turns ranked search.Results into an Assembled context block.
type Builder struct {
	config Config
}

// NewBuilder constructs a Builder with the given budget configuration.
func NewBuilder(config Config) *Builder {
	return &Builder{config: config}
}

// EstimateTokens approximates the token cost of text. It is monotone in
// character count, so two calls against the same budget always agree on
// whether a chunk fits.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / charsPerToken
	if n == 0 {
		n = 1
	}
	return n
}

type chunkEntry struct {
	text      string
	pages     []int
	charStart int
	charEnd   int
	relevance float64
}

type group struct {
	documentID string
	filename   string
	chunks     []chunkEntry
}

// Build admits results in the order given, greedily, until the token budget
// or MaxResults is exhausted, groups the admitted chunks by document in
// first-appearance order, and renders both the formatted text block and its
// matching citation list. Results below MinRelevance are skipped without
// consuming budget.
func (b *Builder) Build(results []*search.Result) *Assembled {
	available := b.config.MaxTokens - b.config.ReservedTokens
	if available < 0 {
		available = 0
	}

	order := make([]string, 0, len(results))
	groups := make(map[string]*group, len(results))

	used := 0
	admitted := 0
	for _, r := range results {
		if b.config.MaxResults > 0 && admitted >= b.config.MaxResults {
			break
		}
		if r.CombinedScore < b.config.MinRelevance {
			continue
		}
		cost := EstimateTokens(r.Content)
		if used+cost > available {
			continue
		}

		g, ok := groups[r.DocumentID]
		if !ok {
			g = &group{documentID: r.DocumentID, filename: r.Filename}
			groups[r.DocumentID] = g
			order = append(order, r.DocumentID)
		}
		g.chunks = append(g.chunks, chunkEntry{
			text:      r.Content,
			pages:     r.PageNumbers,
			charStart: r.CharStart,
			charEnd:   r.CharEnd,
			relevance: r.CombinedScore,
		})

		used += cost
		admitted++
	}

	if admitted == 0 {
		return &Assembled{Text: emptySentinel, Citations: nil, Empty: true}
	}

	var sb strings.Builder
	citations := make([]Citation, 0, len(order))

	for i, docID := range order {
		g := groups[docID]
		n := i + 1

		for _, c := range g.chunks {
			sb.WriteString(fmt.Sprintf("[%d] %s%s\n%s\n\n", n, g.filename, pageSuffix(c.pages), c.text))
		}

		citations = append(citations, buildCitation(g))
	}

	return &Assembled{Text: sb.String(), Citations: citations}
}

// buildCitation aggregates a group's admitted chunks into one citation:
// pages deduplicated and sorted, relevance the best constituent score, char
// range taken from whichever chunk carries that best score.
func buildCitation(g *group) Citation {
	pageSet := make(map[int]struct{})
	best := g.chunks[0]
	for _, c := range g.chunks {
		for _, p := range c.pages {
			pageSet[p] = struct{}{}
		}
		if c.relevance > best.relevance {
			best = c
		}
	}

	pages := make([]int, 0, len(pageSet))
	for p := range pageSet {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	c := Citation{
		DocumentID: g.documentID,
		Filename:   g.filename,
		CharStart:  best.charStart,
		CharEnd:    best.charEnd,
		Relevance:  best.relevance,
	}
	switch len(pages) {
	case 0:
	case 1:
		c.PageNumber = &pages[0]
	default:
		c.AllPages = pages
	}
	return c
}

func pageSuffix(pages []int) string {
	switch len(pages) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf(" (page %d)", pages[0])
	default:
		parts := make([]string, len(pages))
		for i, p := range pages {
			parts[i] = fmt.Sprintf("%d", p)
		}
		return fmt.Sprintf(" (pages %s)", strings.Join(parts, ", "))
	}
}

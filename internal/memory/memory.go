// Package memory stores and retrieves cross-session context for the
// RELEVANT MEMORY prompt section. Retrieval is budget-aware: it is handed
// the live turn allocator and returns only as much text as a share of the
// remaining budget allows, so recalled context can never starve the
// sections that follow it.
package memory

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/kindred-ai/kindred/internal/budget"
)

// NoPriorContext is returned when nothing relevant is stored, and is also
// the fallback substituted when retrieval times out or fails.
const NoPriorContext = "[No prior relevant context]"

// embeddingDim matches the vector size reserved in the retrieval contract.
const embeddingDim = 1536

// Query carries everything retrieval may rank on.
type Query struct {
	UserID    string
	SessionID string
	Text      string
	Embedding []float32
	Domains   []string
}

// Service retrieves context text for a turn. Implementations must respect
// ctx and return promptly; the orchestrator bounds the wait.
type Service interface {
	Retrieve(ctx context.Context, q Query, alloc *budget.Allocator) (string, error)
}

// Memory is a single stored piece of cross-session knowledge.
type Memory struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id,omitempty"`
	Content   string    `json:"content"`
	Domains   []string  `json:"domains"`
	CreatedAt time.Time `json:"created_at"`
}

// ZeroEmbedding returns the placeholder query vector. Embedding generation
// is not wired yet; retrieval ranks on keywords and domains instead.
func ZeroEmbedding() []float32 {
	return make([]float32, embeddingDim)
}

// stopwords excluded from keyword extraction.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true,
	"has": true, "his": true, "how": true, "its": true, "may": true,
	"that": true, "this": true, "with": true, "have": true, "from": true,
	"your": true, "what": true, "about": true, "just": true, "like": true,
	"know": true, "been": true, "they": true, "them": true, "when": true,
	"could": true, "would": true, "should": true, "there": true,
}

// significantWords extracts up to eight lowercase keywords from text,
// skipping stopwords and words shorter than three runes.
func significantWords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool)
	var words []string
	for _, w := range fields {
		if len([]rune(w)) < 3 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		words = append(words, w)
		if len(words) == 8 {
			break
		}
	}
	return words
}

// Package budget estimates prompt token counts and trims retrieved context
// to fit. Generation backends use different tokenizers, so estimation uses a
// conservative character heuristic of 1 token per 4 characters.
package budget

import (
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/rag"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// blockOverhead approximates the tokens spent on a context block's
	// "From <source>:" header and separators.
	blockOverhead = 4

	// DefaultMaxContextTokens is the default budget for retrieved context.
	// It leaves room for instructions, the question and the answer within
	// a 4k-context model.
	DefaultMaxContextTokens = 3000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// EstimateChunk returns the estimated cost of c as a context block.
func EstimateChunk(c rag.RetrievedChunk) int {
	return blockOverhead + Estimate(c.Source) + Estimate(c.Text)
}

// FitChunks returns the longest prefix of chunks whose estimated cost fits
// in maxTokens. chunks are expected in relevance order, so the least
// relevant are dropped first. The first chunk is always kept, even when it
// alone exceeds the budget. maxTokens <= 0 disables trimming.
func FitChunks(chunks []rag.RetrievedChunk, maxTokens int) []rag.RetrievedChunk {
	if len(chunks) <= 1 || maxTokens <= 0 {
		return chunks
	}
	used := EstimateChunk(chunks[0])
	for i := 1; i < len(chunks); i++ {
		used += EstimateChunk(chunks[i])
		if used > maxTokens {
			return chunks[:i]
		}
	}
	return chunks
}

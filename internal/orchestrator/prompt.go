package orchestrator

import (
	"strings"

	"github.com/54b3r/docqa-go/internal/rag"
)

// NotFoundText is the exact phrase the model is told to use when the context
// does not contain the answer.
const NotFoundText = "I couldn't find that information in the provided documents"

const promptTemplate = `Answer the question using only the context below.

Context:
{context}

Question: {question}

Instructions:
- Answer only from the context above. Do not use outside knowledge.
- If the answer is not in the context, say exactly: "` + NotFoundText + `"
- Cite the sources you used.
- Be concise and factual. Do not speculate.

Answer:`

// BuildPrompt renders the grounded prompt for question over chunks. The
// question is embedded verbatim.
func BuildPrompt(question string, chunks []rag.RetrievedChunk) string {
	r := strings.NewReplacer("{context}", FormatContext(chunks), "{question}", question)
	return r.Replace(promptTemplate)
}

// FormatContext renders chunks as "From <source>:\n<text>" blocks separated
// by blank lines, in retrieval order.
func FormatContext(chunks []rag.RetrievedChunk) string {
	blocks := make([]string, 0, len(chunks))
	for _, c := range chunks {
		blocks = append(blocks, "From "+c.Source+":\n"+c.Text)
	}
	return strings.Join(blocks, "\n\n")
}

// Sources returns the distinct sources of chunks in first-seen order.
func Sources(chunks []rag.RetrievedChunk) []string {
	seen := make(map[string]struct{}, len(chunks))
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := seen[c.Source]; ok {
			continue
		}
		seen[c.Source] = struct{}{}
		out = append(out, c.Source)
	}
	return out
}

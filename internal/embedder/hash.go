package embedder

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashEmbedder is a local, deterministic embedder based on signed feature
// hashing of lower-cased word tokens. It needs no network or model, so it
// serves offline use and tests; its vectors capture lexical overlap only.
// It is safe for concurrent use.
type HashEmbedder struct {
	// dim is the output vector length.
	dim int
}

// NewHashEmbedder constructs a HashEmbedder producing vectors of length dim.
func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{dim: dim}
}

// Embed hashes each text into a term-frequency vector.
func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashEmbedder) vector(text string) []float32 {
	v := make([]float32, h.dim)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, tok := range tokens {
		f := fnv.New32a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum32()
		// The top bit picks the sign so colliding tokens tend to cancel
		// rather than accumulate.
		sign := float32(1)
		if sum&(1<<31) != 0 {
			sign = -1
		}
		v[int(sum%uint32(h.dim))] += sign
	}
	return v
}

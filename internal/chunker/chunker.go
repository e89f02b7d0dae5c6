// Package chunker splits document text into overlapping, size-bounded
// chunks using recursive separator splitting: paragraphs first, then
// lines, then words, and characters only when asked to break long words.
package chunker

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/docqa-go/internal/rag"
)

const (
	// DefaultMaxSize is the default chunk length in characters.
	DefaultMaxSize = 500
	// DefaultOverlap is the default number of trailing characters carried
	// into the next chunk.
	DefaultOverlap = 50
)

// DefaultSeparators lists the split points from coarsest to finest. The
// empty separator splits into single characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Config holds the splitting parameters. Lengths are counted in runes.
type Config struct {
	// MaxSize is the upper bound on chunk length. A single word longer than
	// MaxSize is emitted whole unless BreakLongWords is set.
	MaxSize int
	// Overlap is how many trailing characters of a chunk are repeated at
	// the start of the next one.
	Overlap int
	// Separators overrides DefaultSeparators.
	Separators []string
	// BreakLongWords enables the character-level split for words that do
	// not fit in MaxSize.
	BreakLongWords bool
}

// DefaultConfig returns the 500/50 configuration.
func DefaultConfig() Config {
	return Config{MaxSize: DefaultMaxSize, Overlap: DefaultOverlap}
}

// ConfigFromEnv returns DefaultConfig overridden by CHUNK_SIZE and
// CHUNK_OVERLAP. Unparseable values are ignored.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v, err := strconv.Atoi(os.Getenv("CHUNK_SIZE")); err == nil {
		cfg.MaxSize = v
	}
	if v, err := strconv.Atoi(os.Getenv("CHUNK_OVERLAP")); err == nil {
		cfg.Overlap = v
	}
	return cfg
}

// IsZero reports whether cfg is the zero value.
func (c Config) IsZero() bool {
	return c.MaxSize == 0 && c.Overlap == 0 && len(c.Separators) == 0 && !c.BreakLongWords
}

// Validate checks the size parameters.
func (c Config) Validate() error {
	if c.MaxSize <= 0 {
		return fmt.Errorf("chunker: max size must be positive, got %d: %w", c.MaxSize, rag.ErrValidation)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("chunker: overlap must not be negative, got %d: %w", c.Overlap, rag.ErrValidation)
	}
	if c.Overlap >= c.MaxSize {
		return fmt.Errorf("chunker: overlap %d must be smaller than max size %d: %w", c.Overlap, c.MaxSize, rag.ErrValidation)
	}
	return nil
}

// Splitter is an immutable, validated chunker. It is safe for concurrent use.
type Splitter struct {
	maxSize    int
	overlap    int
	separators []string
}

// New validates cfg and builds a Splitter.
func New(cfg Config) (*Splitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seps := cfg.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	// The character level is opt-in; without it a long word stays atomic.
	resolved := make([]string, 0, len(seps)+1)
	for _, s := range seps {
		if s != "" {
			resolved = append(resolved, s)
		}
	}
	if cfg.BreakLongWords {
		resolved = append(resolved, "")
	}
	return &Splitter{maxSize: cfg.MaxSize, overlap: cfg.Overlap, separators: resolved}, nil
}

// Chunk is a convenience wrapper that builds a Splitter and splits text.
func Chunk(text, source string, maxSize, overlap int) ([]rag.Chunk, error) {
	s, err := New(Config{MaxSize: maxSize, Overlap: overlap})
	if err != nil {
		return nil, err
	}
	return s.Chunk(text, source), nil
}

// Chunk splits text into ordered chunks tagged with source. Empty or
// whitespace-only text yields an empty slice.
func (s *Splitter) Chunk(text, source string) []rag.Chunk {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return []rag.Chunk{}
	}

	pieces := s.split(text, s.separators)
	chunks := make([]rag.Chunk, 0, len(pieces))
	for _, p := range pieces {
		chunks = append(chunks, rag.Chunk{Text: p, Source: source, SequenceIndex: len(chunks)})
	}
	return chunks
}

// split recursively divides text using the first separator that occurs in
// it, descending to finer separators for pieces that are still too long.
func (s *Splitter) split(text string, separators []string) []string {
	sep, rest := pickSeparator(text, separators)

	var parts []string
	if sep == "" {
		parts = strings.Split(text, "")
	} else {
		parts = strings.Split(text, sep)
	}

	var (
		out  []string
		good []string
	)
	for _, p := range parts {
		if p == "" {
			continue
		}
		if runeLen(p) <= s.maxSize {
			good = append(good, p)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good, sep)...)
			good = nil
		}
		if len(rest) == 0 {
			if t := strings.TrimSpace(p); t != "" {
				out = append(out, t)
			}
			continue
		}
		out = append(out, s.split(p, rest)...)
	}
	if len(good) > 0 {
		out = append(out, s.merge(good, sep)...)
	}
	return out
}

// pickSeparator returns the coarsest separator present in text and the
// finer separators after it. The last separator is used when none match.
func pickSeparator(text string, separators []string) (string, []string) {
	for i, sep := range separators {
		if sep == "" || strings.Contains(text, sep) {
			return sep, separators[i+1:]
		}
	}
	if len(separators) == 0 {
		return " ", nil
	}
	return separators[len(separators)-1], nil
}

// merge packs pieces left to right into chunks of at most maxSize, keeping
// up to overlap characters of trailing pieces as the next chunk's prefix.
func (s *Splitter) merge(pieces []string, sep string) []string {
	sepLen := runeLen(sep)

	var (
		out     []string
		current []string
		total   int
	)
	joinCost := func() int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}

	for _, p := range pieces {
		n := runeLen(p)
		if total+n+joinCost() > s.maxSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
				out = append(out, doc)
			}
			for total > s.overlap || (total > 0 && total+n+joinCost() > s.maxSize) {
				drop := runeLen(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		total += n + joinCost()
		current = append(current, p)
	}
	if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
		out = append(out, doc)
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

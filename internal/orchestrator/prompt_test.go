package orchestrator

import (
	"strings"
	"testing"

	"github.com/54b3r/docqa-go/internal/rag"
)

func contains(s, sub string) bool { return strings.Contains(s, sub) }

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	question := "What is {context}? Tell me."
	got := BuildPrompt(question, []rag.RetrievedChunk{
		{Source: "doc1", Text: "The sky is blue."},
		{Source: "https://example.com", Text: "Water is wet."},
	})

	for _, want := range []string{
		"From doc1:\nThe sky is blue.\n\nFrom https://example.com:\nWater is wet.",
		"Question: " + question + "\n",
		`"` + NotFoundText + `"`,
		"Cite the sources",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
}

func TestFormatContext_Empty(t *testing.T) {
	t.Parallel()

	if got := FormatContext(nil); got != "" {
		t.Errorf("FormatContext(nil) = %q, want empty", got)
	}
}

func TestSources(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"empty", nil, []string{}},
		{"distinct", []string{"a", "b"}, []string{"a", "b"}},
		{"repeats keep first position", []string{"c", "a", "c", "b", "a"}, []string{"c", "a", "b"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cs := make([]rag.RetrievedChunk, len(tc.in))
			for i, s := range tc.in {
				cs[i] = rag.RetrievedChunk{Source: s}
			}
			got := Sources(cs)
			if got == nil {
				t.Fatal("Sources returned nil")
			}
			if strings.Join(got, ",") != strings.Join(tc.want, ",") {
				t.Errorf("Sources = %v, want %v", got, tc.want)
			}
		})
	}
}

package ingestion

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Kind classifies a document by how its text is extracted.
type Kind string

const (
	// KindURL is a web page fetched over HTTP.
	KindURL Kind = "url"
	// KindPDF is a PDF document.
	KindPDF Kind = "pdf"
	// KindImage is a scanned page read by OCR.
	KindImage Kind = "image"
	// KindText is a plain-text or Markdown file.
	KindText Kind = "text"
)

// Extraction failure kinds. Both are rag.ErrExtraction.
var (
	// ErrUnsupportedType is returned for file types no extractor handles.
	ErrUnsupportedType = fmt.Errorf("unsupported file type: %w", rag.ErrExtraction)

	// ErrInsufficientText is returned when extraction yields too little text
	// to index.
	ErrInsufficientText = fmt.Errorf("insufficient extracted text: %w", rag.ErrExtraction)
)

// extensionKinds maps lower-case file extensions (without the dot) to kinds.
var extensionKinds = map[string]Kind{
	"jpg":  KindImage,
	"jpeg": KindImage,
	"png":  KindImage,
	"pdf":  KindPDF,
	"txt":  KindText,
	"md":   KindText,
}

// DetectKind classifies filename by its extension.
func DetectKind(filename string) (Kind, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if k, ok := extensionKinds[ext]; ok {
		return k, nil
	}
	if ext == "" {
		return "", fmt.Errorf("ingestion: %q has no file extension: %w", filename, ErrUnsupportedType)
	}
	return "", fmt.Errorf("ingestion: .%s files are not supported: %w", ext, ErrUnsupportedType)
}

// ResolveKind classifies filename by extension, falling back to hint (an
// extension such as "pdf" or "png") when the extension is missing or
// unknown.
func ResolveKind(filename, hint string) (Kind, error) {
	kind, err := DetectKind(filename)
	if err == nil || hint == "" {
		return kind, err
	}
	if k, ok := extensionKinds[strings.ToLower(strings.TrimPrefix(hint, "."))]; ok {
		return k, nil
	}
	return "", fmt.Errorf("ingestion: file type %q is not supported: %w", hint, ErrUnsupportedType)
}

// validateURL accepts absolute http and https URLs with a host.
func validateURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("ingestion: invalid URL %q: %w: %w", rawURL, rag.ErrValidation, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("ingestion: URL %q must use http or https: %w", rawURL, rag.ErrValidation)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("ingestion: URL %q has no host: %w", rawURL, rag.ErrValidation)
	}
	return u, nil
}

package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/rag"
)

// Result describes one loaded document.
type Result struct {
	// Source is the URL or filename the chunks are attributed to.
	Source string `json:"source"`
	// Chunks is the number of chunks stored.
	Chunks int `json:"chunks"`
	// Kind is how the text was extracted.
	Kind Kind `json:"kind"`
}

// Loader extracts text from URLs and uploaded files and indexes it.
type Loader struct {
	urls     *URLExtractor
	pdfs     *PDFExtractor
	images   *ImageExtractor
	ingester Ingester
	log      *slog.Logger
}

// NewLoader constructs a Loader. A nil urls uses NewURLExtractor(0).
func NewLoader(ingester Ingester, urls *URLExtractor, ocr OCRRunner, log *slog.Logger) (*Loader, error) {
	if ingester == nil {
		return nil, fmt.Errorf("ingestion: ingester must not be nil")
	}
	if ocr == nil {
		return nil, fmt.Errorf("ingestion: ocr runner must not be nil")
	}
	if urls == nil {
		urls = NewURLExtractor(0)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Loader{
		urls:     urls,
		pdfs:     NewPDFExtractor(),
		images:   NewImageExtractor(ocr),
		ingester: ingester,
		log:      log,
	}, nil
}

// LoadURL fetches rawURL, extracts its text, and indexes it.
func (l *Loader) LoadURL(ctx context.Context, rawURL string) (Result, error) {
	rawURL = strings.TrimSpace(rawURL)
	text, kind, err := l.urls.Extract(ctx, rawURL)
	if err != nil {
		return Result{}, err
	}
	return l.index(ctx, text, rawURL, kind)
}

// LoadFile classifies filename by extension and indexes its content.
func (l *Loader) LoadFile(ctx context.Context, filename string, data []byte) (Result, error) {
	kind, err := DetectKind(filename)
	if err != nil {
		return Result{}, err
	}
	return l.LoadFileKind(ctx, filename, kind, data)
}

// LoadFileKind extracts data as the given kind and indexes it under filename.
func (l *Loader) LoadFileKind(ctx context.Context, filename string, kind Kind, data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{}, fmt.Errorf("ingestion: %s is empty: %w", filename, ErrInsufficientText)
	}

	var (
		text string
		err  error
	)
	switch kind {
	case KindPDF:
		text, err = l.pdfs.Extract(data)
	case KindImage:
		text, err = l.images.Extract(ctx, data)
	case KindText:
		if !utf8.Valid(data) {
			err = fmt.Errorf("ingestion: %s is not valid UTF-8 text: %w", filename, rag.ErrExtraction)
		}
		text = string(data)
	default:
		err = fmt.Errorf("ingestion: kind %q: %w", kind, ErrUnsupportedType)
	}
	if err != nil {
		return Result{}, err
	}
	return l.index(ctx, text, filename, kind)
}

func (l *Loader) index(ctx context.Context, text, source string, kind Kind) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, fmt.Errorf("ingestion: no text extracted from %s: %w", source, ErrInsufficientText)
	}
	l.log.Debug("ingestion: extracted text",
		slog.String("source", source),
		slog.String("kind", string(kind)),
		slog.Int("chars", utf8.RuneCountInString(text)),
	)

	n, err := l.ingester.Ingest(ctx, text, source, chunker.Config{})
	if err != nil {
		return Result{}, err
	}
	return Result{Source: source, Chunks: n, Kind: kind}, nil
}

package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // register JPEG decoder
	"image/png"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/54b3r/docqa-go/internal/rag"
)

const (
	// DefaultFetchTimeout bounds a single URL fetch.
	DefaultFetchTimeout = 10 * time.Second

	// DefaultUserAgent is sent with every fetch; some sites refuse clients
	// that do not look like a browser.
	DefaultUserAgent = "Mozilla/5.0"

	// MaxFetchBytes caps how much of a response body is read.
	MaxFetchBytes = 32 << 20

	// MinImageText is the shortest OCR result, in characters, worth indexing.
	MinImageText = 20

	// binarizeThreshold splits grayscale pixels into black and white before OCR.
	binarizeThreshold = 128
)

// skippedElements are HTML subtrees that carry no document text.
var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Iframe:   true,
	atom.Noscript: true,
}

// URLExtractor fetches a web page and returns its visible text. PDF
// responses are handed to a PDFExtractor. It is safe for concurrent use.
type URLExtractor struct {
	// client performs the fetch.
	client *http.Client
	// userAgent is the User-Agent header value.
	userAgent string
	// pdf extracts text from PDF responses.
	pdf *PDFExtractor
}

// NewURLExtractor constructs a URLExtractor. A zero timeout uses
// DefaultFetchTimeout.
func NewURLExtractor(timeout time.Duration) *URLExtractor {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &URLExtractor{
		client:    &http.Client{Timeout: timeout},
		userAgent: DefaultUserAgent,
		pdf:       NewPDFExtractor(),
	}
}

// Extract fetches rawURL and returns its text and the kind of document it
// turned out to be (KindURL for web pages, KindPDF for PDF responses).
func (e *URLExtractor) Extract(ctx context.Context, rawURL string) (string, Kind, error) {
	u, err := validateURL(rawURL)
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", "", fmt.Errorf("ingestion: creating request: %w: %w", rag.ErrValidation, err)
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("ingestion: fetch %s: %w: %w", u, rag.ErrExtraction, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("ingestion: fetch %s: unexpected status %d: %w", u, resp.StatusCode, rag.ErrExtraction)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxFetchBytes))
	if err != nil {
		return "", "", fmt.Errorf("ingestion: reading %s: %w: %w", u, rag.ErrExtraction, err)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "" {
		mediaType, _, _ = mime.ParseMediaType(http.DetectContentType(body))
	}

	switch {
	case mediaType == "application/pdf":
		text, err := e.pdf.Extract(body)
		return text, KindPDF, err
	case strings.Contains(mediaType, "html"):
		text, err := htmlText(bytes.NewReader(body))
		return text, KindURL, err
	case strings.HasPrefix(mediaType, "text/"):
		return strings.TrimSpace(string(body)), KindURL, nil
	default:
		return "", "", fmt.Errorf("ingestion: %s returned %q: %w", u, mediaType, ErrUnsupportedType)
	}
}

// htmlText returns the page's text nodes, trimmed and joined by single
// spaces, without the subtrees in skippedElements.
func htmlText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("ingestion: parse html: %w: %w", rag.ErrExtraction, err)
	}

	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(parts, " "), nil
}

// PDFExtractor returns the plain text of a PDF document.
type PDFExtractor struct{}

// NewPDFExtractor constructs a PDFExtractor.
func NewPDFExtractor() *PDFExtractor { return &PDFExtractor{} }

// Extract returns the trimmed plain text of data. Malformed documents are
// reported as rag.ErrExtraction.
func (e *PDFExtractor) Extract(data []byte) (text string, err error) {
	// The PDF parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("ingestion: malformed pdf: %v: %w", r, rag.ErrExtraction)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("ingestion: open pdf: %w: %w", rag.ErrExtraction, err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("ingestion: read pdf text: %w: %w", rag.ErrExtraction, err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("ingestion: read pdf text: %w: %w", rag.ErrExtraction, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// ImageExtractor reads text from a scanned JPEG or PNG page by OCR.
type ImageExtractor struct {
	// runner performs the OCR.
	runner OCRRunner
	// minText is the shortest acceptable result in characters.
	minText int
}

// NewImageExtractor constructs an ImageExtractor around runner.
func NewImageExtractor(runner OCRRunner) *ImageExtractor {
	return &ImageExtractor{runner: runner, minText: MinImageText}
}

// Extract decodes data, binarizes it, and runs OCR. Results shorter than
// MinImageText characters are rejected with ErrInsufficientText.
func (e *ImageExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("ingestion: decode image: %w: %w", rag.ErrExtraction, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, binarize(img)); err != nil {
		return "", fmt.Errorf("ingestion: encode image: %w: %w", rag.ErrExtraction, err)
	}

	text, err := e.runner.Recognize(ctx, buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("ingestion: ocr: %w: %w", rag.ErrExtraction, err)
	}
	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n < e.minText {
		return "", fmt.Errorf("ingestion: ocr found %d characters, need at least %d: %w", n, e.minText, ErrInsufficientText)
	}
	return text, nil
}

// binarize converts img to pure black and white grayscale.
func binarize(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			if g.Y < binarizeThreshold {
				out.SetGray(x, y, color.Gray{Y: 0})
			} else {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// OCRRunner recognizes text in an image. The image is PNG-encoded.
// Implementations must be safe for concurrent use.
type OCRRunner interface {
	Recognize(ctx context.Context, png []byte) (string, error)
}

// TesseractRunner implements OCRRunner by executing the tesseract binary
// found on PATH, streaming the image through stdin and reading the text
// from stdout.
type TesseractRunner struct {
	// binary is the executable name or path.
	binary string
	// lang is the tesseract language code; empty uses tesseract's default.
	lang string
}

// NewTesseractRunner returns a TesseractRunner for the given language
// (e.g. "eng"). The binary is looked up on each call, so the server starts
// without tesseract and only image ingestion fails.
func NewTesseractRunner(lang string) *TesseractRunner {
	return &TesseractRunner{binary: "tesseract", lang: lang}
}

// Available reports whether the tesseract binary is on PATH.
func (r *TesseractRunner) Available() error {
	if _, err := exec.LookPath(r.binary); err != nil {
		return fmt.Errorf("ingestion: %s binary not found on PATH, install tesseract-ocr for image ingestion", r.binary)
	}
	return nil
}

// Recognize runs `tesseract stdin stdout [-l lang]` on png.
func (r *TesseractRunner) Recognize(ctx context.Context, png []byte) (string, error) {
	if err := r.Available(); err != nil {
		return "", err
	}

	args := []string{"stdin", "stdout"}
	if r.lang != "" {
		args = append(args, "-l", r.lang)
	}
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Stdin = bytes.NewReader(png)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("ingestion: tesseract exited with code %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("ingestion: failed to run tesseract: %w", err)
	}
	return stdout.String(), nil
}

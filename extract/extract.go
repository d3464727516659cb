// Package extract pulls plain text out of uploaded PDF documents by shelling
// out to pdftotext (poppler-utils).
package extract

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrPDFToolNotFound indicates pdftotext is not installed or not in PATH.
var ErrPDFToolNotFound = errors.New("pdftotext not found in PATH (install poppler: 'brew install poppler' or 'apt install poppler-utils')")

// ErrEmptyDocument indicates the document produced no extractable text, for
// example a scanned PDF with no text layer.
var ErrEmptyDocument = errors.New("no text found in document")

// CommandRunner executes an external command and returns its combined output.
// It exists so tests can substitute a fake for the real pdftotext binary.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// CheckAvailable reports whether pdftotext can be found in PATH.
func CheckAvailable() error {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return ErrPDFToolNotFound
	}
	return nil
}

// PDFExtractor extracts text from PDF files on disk.
type PDFExtractor struct {
	runner CommandRunner
}

// NewPDF returns a PDFExtractor backed by the real pdftotext binary.
func NewPDF() *PDFExtractor {
	return NewPDFWithRunner(execRunner{})
}

// NewPDFWithRunner returns a PDFExtractor with a custom command runner.
func NewPDFWithRunner(runner CommandRunner) *PDFExtractor {
	return &PDFExtractor{runner: runner}
}

// Extract runs pdftotext over the file at path and returns its text content
// with page layout preserved. A document with no extractable text returns
// ErrEmptyDocument.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (string, error) {
	// "-" writes the text to stdout.
	out, err := e.runner.Run(ctx, "pdftotext", "-layout", path, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w", err)
	}

	text := string(out)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}

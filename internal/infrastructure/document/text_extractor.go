package document

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/buffrsign/esign-orchestrator/internal/application/port"
	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// DefaultMaxPages bounds how many PDF pages are sent for analysis
const DefaultMaxPages = 30

// TextExtractor extracts text from PDFs with mupdf and passes text files through
type TextExtractor struct {
	maxPages int
	logger   *zap.Logger
}

// NewTextExtractor creates an extractor; maxPages <= 0 uses DefaultMaxPages
func NewTextExtractor(maxPages int, logger *zap.Logger) *TextExtractor {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TextExtractor{maxPages: maxPages, logger: logger}
}

// ExtractText returns the text of the document named filename
func (e *TextExtractor) ExtractText(ctx context.Context, content []byte, filename string) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("document %s is empty", filename)
	}

	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".pdf":
		return e.extractPDF(ctx, content, filename)
	case ".txt", ".md", ".text", "":
		if !utf8.Valid(content) {
			return "", fmt.Errorf("document %s is not valid UTF-8 text", filename)
		}
		return string(content), nil
	default:
		return "", fmt.Errorf("unsupported document type: %s", ext)
	}
}

func (e *TextExtractor) extractPDF(ctx context.Context, content []byte, filename string) (string, error) {
	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF %s: %w", filename, err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	limit := pageCount
	if limit > e.maxPages {
		limit = e.maxPages
		e.logger.Warn("Truncating PDF for analysis",
			zap.String("document", filename),
			zap.Int("total_pages", pageCount),
			zap.Int("max_pages", e.maxPages))
	}

	var b strings.Builder
	for page := 0; page < limit; page++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := doc.Text(page)
		if err != nil {
			e.logger.Warn("Failed to extract page text",
				zap.String("document", filename),
				zap.Int("page", page),
				zap.Error(err))
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.TrimSpace(text))
	}

	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("no text found in PDF %s", filename)
	}

	e.logger.Debug("Extracted PDF text",
		zap.String("document", filename),
		zap.Int("pages", limit),
		zap.Int("length", b.Len()))
	return b.String(), nil
}

var _ port.TextExtractor = (*TextExtractor)(nil)

package loader

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/models"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor emits one document per page that has text.
type PDFExtractor struct{}

func (PDFExtractor) Extensions() []string { return []string{".pdf"} }

func (PDFExtractor) Extract(ctx context.Context, path string) (docs []models.Document, err error) {
	// the pdf package panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("parse %s: %v", path, r)
		}
	}()

	reader, closeFn, err := openPDF(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	base := baseMetadata(path)
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		// nil lets the reader build the page's font encoders
		text, err := page.GetPlainText(nil)
		if err != nil {
			logger.Warn("Failed to extract PDF page", "path", path, "page", i, "error", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		meta := copyMetadata(base)
		meta[models.MetaPage] = strconv.Itoa(i)
		docs = append(docs, models.Document{Content: text, Metadata: meta})
	}

	return docs, nil
}

func openPDF(path string) (*pdf.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat %s: %w", path, err)
	}
	reader, err := pdf.NewReader(f, fi.Size())
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to create PDF reader for %s: %w", path, err)
	}
	return reader, func() { f.Close() }, nil
}

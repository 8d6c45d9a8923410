package loader

import (
	"context"
	"fmt"
	"os"
	"strings"

	"rag-chatbot-backend/models"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// HTMLExtractor emits the visible body text of a saved page as one document.
type HTMLExtractor struct{}

func (HTMLExtractor) Extensions() []string { return []string{".html", ".htm"} }

func (HTMLExtractor) Extract(_ context.Context, path string) ([]models.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	// honours <meta charset> and BOMs, falls back to windows-1252
	r, err := charset.NewReader(f, "text/html")
	if err != nil {
		return nil, fmt.Errorf("detect charset %s: %w", path, err)
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	doc.Find("script, style, noscript").Remove()

	text := collapseBlankLines(doc.Find("body").Text())
	if text == "" {
		return nil, nil
	}

	meta := baseMetadata(path)
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		meta[models.MetaTitle] = title
	}

	return []models.Document{{Content: text, Metadata: meta}}, nil
}

// collapseBlankLines trims every line and keeps at most one empty line between
// paragraphs so the splitter sees "\n\n" boundaries.
func collapseBlankLines(s string) string {
	var out []string
	blank := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

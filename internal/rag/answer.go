package rag

import (
	"path/filepath"
	"regexp"
	"strings"

	"rag-chatbot-backend/internal/vectorindex"
	"rag-chatbot-backend/models"
)

var answerMarker = regexp.MustCompile(`(?s)Answer:\s*(.*)`)

// ExtractAnswer returns the text after the first "Answer:" marker, or the
// whole reply when there is none. Either way the result is trimmed.
func ExtractAnswer(raw string) string {
	if m := answerMarker.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(raw)
}

// SourcesFromHits maps hits to sources in rank order. Duplicates are kept. A
// limit of zero or less returns every hit's source.
func SourcesFromHits(hits []vectorindex.Hit, limit int) []models.Source {
	if limit <= 0 || limit > len(hits) {
		limit = len(hits)
	}
	sources := make([]models.Source, 0, limit)
	for _, h := range hits[:limit] {
		src := h.Chunk.Source()
		sources = append(sources, models.Source{URL: src, Title: sourceTitle(h.Chunk)})
	}
	return sources
}

// sourceTitle prefers the title the loader recorded and falls back to the
// source's base name without its extension.
func sourceTitle(c models.Chunk) string {
	if title := strings.TrimSpace(c.Metadata[models.MetaTitle]); title != "" {
		return title
	}
	base := filepath.Base(c.Source())
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func chunksOf(hits []vectorindex.Hit) []models.Chunk {
	chunks := make([]models.Chunk, len(hits))
	for i, h := range hits {
		chunks[i] = h.Chunk
	}
	return chunks
}

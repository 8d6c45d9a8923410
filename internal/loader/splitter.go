package loader

import (
	"fmt"
	"unicode/utf8"

	"rag-chatbot-backend/models"

	"github.com/tmc/langchaingo/textsplitter"
)

// DefaultSeparators are tried in order; the empty separator guarantees every
// chunk fits the size limit.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts documents into overlapping chunks measured in runes.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	inner        textsplitter.RecursiveCharacter
}

func NewSplitter(chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", chunkSize, chunkOverlap)
	}

	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		inner: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(DefaultSeparators),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
	}, nil
}

// SplitText returns the chunks of text in order.
func (s *Splitter) SplitText(text string) ([]string, error) {
	return s.inner.SplitText(text)
}

// SplitDocuments splits each document separately. Chunks keep a copy of their
// parent's metadata and come out in document order.
func (s *Splitter) SplitDocuments(docs []models.Document) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for _, doc := range docs {
		parts, err := s.SplitText(doc.Content)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", doc.Source(), err)
		}
		for _, part := range parts {
			chunks = append(chunks, models.Chunk{Content: part, Metadata: copyMetadata(doc.Metadata)})
		}
	}
	return chunks, nil
}

func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

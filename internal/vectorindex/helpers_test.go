package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"rag-chatbot-backend/models"
)

// fakeEmbedder maps known texts to fixed vectors. Unknown texts get a vector
// derived from their length so every input embeds.
type fakeEmbedder struct {
	mu      sync.Mutex
	model   string
	vectors map[string][]float32
	// failOn makes any batch containing this substring fail
	failOn string
	calls  int
}

func newFakeEmbedder(vectors map[string][]float32) *fakeEmbedder {
	return &fakeEmbedder{model: "fake-embed", vectors: vectors}
}

func (f *fakeEmbedder) ModelName() string { return f.model }

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		if f.failOn != "" && strings.Contains(t, f.failOn) {
			return nil, errors.New("embedding service unavailable")
		}
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return f.vector(text), nil
}

func (f *fakeEmbedder) vector(text string) []float32 {
	if v, ok := f.vectors[text]; ok {
		return v
	}
	return []float32{float32(len(text)), 1}
}

func chunk(source, content string) models.Chunk {
	return models.Chunk{
		Content:  content,
		Metadata: map[string]string{models.MetaSource: source, models.MetaTitle: source},
	}
}

func contents(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Chunk.Content
	}
	return out
}

// threeRecords is the fixture used across backends: alpha and gamma tie for a
// query along the first axis.
func threeRecords() (*fakeEmbedder, []models.Chunk) {
	emb := newFakeEmbedder(map[string][]float32{
		"alpha": {1, 0},
		"beta":  {0, 1},
		"gamma": {1, 0},
	})
	return emb, []models.Chunk{
		chunk("/data/a.pdf", "alpha"),
		chunk("/data/b.pdf", "beta"),
		chunk("/data/c.pdf", "gamma"),
	}
}

func numbered(n int) []models.Chunk {
	out := make([]models.Chunk, n)
	for i := range out {
		out[i] = chunk("/data/n.pdf", fmt.Sprintf("text number %d", i))
	}
	return out
}

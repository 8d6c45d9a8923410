package rag

import (
	"context"
	"strings"
	"sync"
	"testing"

	"rag-chatbot-backend/internal/ai"
	"rag-chatbot-backend/internal/vectorindex"
	"rag-chatbot-backend/models"

	"github.com/stretchr/testify/require"
)

var vocabulary = []string{"paris", "france", "tokyo", "japan", "capital", "seine"}

// bagOfWords embeds text as word counts over a tiny vocabulary.
type bagOfWords struct {
	dims int
}

func (b bagOfWords) ModelName() string { return "bag-of-words" }

func (b bagOfWords) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := b.EmbedQuery(ctx, t)
		out[i] = v
	}
	return out, nil
}

func (b bagOfWords) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	dims := b.dims
	if dims == 0 {
		dims = len(vocabulary)
	}
	v := make([]float32, dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r < 'a' || r > 'z'
	})
	for _, w := range words {
		for i, term := range vocabulary {
			if i < dims && w == term {
				v[i]++
			}
		}
	}
	return v, nil
}

type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []ai.Prompt
	models  []string
}

func (f *fakeCompleter) Complete(_ context.Context, model string, prompt ai.Prompt, _ ai.CompletionOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.models = append(f.models, model)
	return f.reply, f.err
}

func (f *fakeCompleter) lastMessages() []ai.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[len(f.prompts)-1].Messages()
}

type fakeRecorder struct {
	mu          sync.Mutex
	transcripts []models.Transcript
}

func (f *fakeRecorder) Record(_ context.Context, t *models.Transcript) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, *t)
	return nil
}

func capitalsIndex(t *testing.T) (*vectorindex.FlatIndex, bagOfWords) {
	t.Helper()
	emb := bagOfWords{}
	idx := vectorindex.NewFlatIndex(vectorindex.Options{Embedder: emb})
	require.NoError(t, idx.Build(context.Background(), []models.Chunk{
		{Content: "Paris is the capital of France.", Metadata: map[string]string{models.MetaSource: "/data/A.pdf"}},
		{Content: "Tokyo is the capital of Japan.", Metadata: map[string]string{models.MetaSource: "/data/B.pdf"}},
	}))
	return idx, emb
}

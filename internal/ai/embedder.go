package ai

import "context"

// Embedder turns text into dense vectors. Documents and queries may use
// different task hints but must land in the same vector space.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

// Completer sends a prompt to a chat model and returns the raw reply text.
type Completer interface {
	Complete(ctx context.Context, model string, prompt Prompt, opts CompletionOptions) (string, error)
}

// CompletionOptions are the sampling parameters sent with a request. Nil
// pointers leave the provider default in place.
type CompletionOptions struct {
	MaxTokens   int
	Temperature *float64
	TopP        *float64
	Stop        []string
}

// Float returns a pointer to v, for CompletionOptions fields.
func Float(v float64) *float64 { return &v }

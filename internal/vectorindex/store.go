// Package vectorindex embeds chunks and answers nearest neighbour queries over
// them. Two backends exist: an exact in-memory index persisted as a vector file
// plus a metadata file, and a chromem-go collection.
package vectorindex

import (
	"context"
	"fmt"
	"math"

	"rag-chatbot-backend/internal/ai"
	"rag-chatbot-backend/internal/telemetry"
	"rag-chatbot-backend/models"
)

const (
	BackendFlat    = "flat"
	BackendChromem = "chromem"

	DefaultBatchSize = 64
)

// Hit is one search result. Score is the cosine similarity to the query.
type Hit struct {
	Chunk     models.Chunk
	Score     float32
	Embedding []float32
}

// Store is a vector index. Writers (Build, Add, Persist, Load, Refresh) are
// serialized; Search may run concurrently with them.
type Store interface {
	Build(ctx context.Context, chunks []models.Chunk) error
	Persist(ctx context.Context) error
	Load(ctx context.Context) error
	// Refresh reloads the persisted index if another process rewrote it.
	Refresh(ctx context.Context) (bool, error)
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Add(ctx context.Context, chunks []models.Chunk) (int, error)
	Len() int
	Dimensions() int
	HasSource(source string) bool
}

type Options struct {
	// Dir and Name locate the persisted artifacts. An empty Dir keeps the
	// index in memory only.
	Dir       string
	Name      string
	Embedder  ai.Embedder
	BatchSize int
	Compress  bool
	Metrics   *telemetry.Metrics
}

// New returns the backend selected by VECTOR_BACKEND.
func New(backend string, opts Options) (Store, error) {
	if opts.Embedder == nil {
		return nil, fmt.Errorf("vector index needs an embedder")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	switch backend {
	case BackendFlat, "":
		return NewFlatIndex(opts), nil
	case BackendChromem:
		return NewChromemStore(opts), nil
	default:
		return nil, fmt.Errorf("unknown vector backend: %s", backend)
	}
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero
// vector. Both must have the same length.
func Cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

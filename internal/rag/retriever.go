package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rag-chatbot-backend/internal/ai"
	"rag-chatbot-backend/internal/telemetry"
	"rag-chatbot-backend/internal/vectorindex"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	SearchSimilarity = "similarity"
	SearchMMR        = "mmr"

	DefaultK         = 10
	DefaultMMRLambda = 0.5
	minMMRFetch      = 20
)

// Retriever finds the chunks most relevant to a question.
type Retriever struct {
	store      vectorindex.Store
	embedder   ai.Embedder
	k          int
	searchType string
	lambda     float64
	metrics    *telemetry.Metrics
}

type RetrieverOption func(*Retriever)

func WithK(k int) RetrieverOption {
	return func(r *Retriever) { r.k = k }
}

func WithSearchType(searchType string) RetrieverOption {
	return func(r *Retriever) { r.searchType = searchType }
}

func WithMMRLambda(lambda float64) RetrieverOption {
	return func(r *Retriever) { r.lambda = lambda }
}

func WithRetrieverMetrics(m *telemetry.Metrics) RetrieverOption {
	return func(r *Retriever) { r.metrics = m }
}

func NewRetriever(store vectorindex.Store, embedder ai.Embedder, opts ...RetrieverOption) (*Retriever, error) {
	r := &Retriever{
		store:      store,
		embedder:   embedder,
		k:          DefaultK,
		searchType: SearchSimilarity,
		lambda:     DefaultMMRLambda,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.embedder == nil {
		return nil, errors.New("retriever needs an embedder")
	}
	if r.k < 1 {
		return nil, fmt.Errorf("k must be at least 1, got %d", r.k)
	}
	switch r.searchType {
	case SearchSimilarity, SearchMMR:
	default:
		return nil, fmt.Errorf("unknown search type: %s", r.searchType)
	}
	return r, nil
}

// Ready reports whether the underlying index holds any record.
func (r *Retriever) Ready() bool {
	return r != nil && r.store != nil && r.store.Len() > 0
}

func (r *Retriever) Store() vectorindex.Store { return r.store }

// Retrieve returns up to k chunks for query, best first.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]vectorindex.Hit, error) {
	if !r.Ready() {
		return nil, ErrRetrieverNotReady
	}

	tracer := otel.Tracer("rag")
	ctx, span := tracer.Start(ctx, "rag.retrieve")
	defer span.End()
	span.SetAttributes(
		attribute.String("rag.search_type", r.searchType),
		attribute.Int("rag.k", r.k),
	)

	start := time.Now()
	defer func() {
		r.metrics.RecordRetrieval(ctx, r.searchType, time.Since(start).Seconds())
	}()

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if dims := r.store.Dimensions(); len(vector) != dims {
		return nil, &EmbeddingMismatchError{QueryDims: len(vector), IndexDims: dims}
	}

	var hits []vectorindex.Hit
	switch r.searchType {
	case SearchMMR:
		candidates, err := r.store.Search(ctx, vector, max(minMMRFetch, 2*r.k))
		if err != nil {
			return nil, r.searchError(err, len(vector))
		}
		hits = vectorindex.MaxMarginalRelevance(vector, candidates, r.k, r.lambda)
	default:
		hits, err = r.store.Search(ctx, vector, r.k)
		if err != nil {
			return nil, r.searchError(err, len(vector))
		}
	}

	span.SetAttributes(attribute.Int("rag.hits", len(hits)))
	return hits, nil
}

func (r *Retriever) searchError(err error, queryDims int) error {
	if errors.Is(err, vectorindex.ErrDimensionMismatch) {
		return &EmbeddingMismatchError{QueryDims: queryDims, IndexDims: r.store.Dimensions()}
	}
	return fmt.Errorf("search index: %w", err)
}

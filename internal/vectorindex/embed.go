package vectorindex

import (
	"context"
	"fmt"

	"rag-chatbot-backend/internal/ai"
	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/models"
	"rag-chatbot-backend/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type record struct {
	key       string
	chunk     models.Chunk
	embedding []float32
	norm      float64
}

func newRecord(chunk models.Chunk, embedding []float32) record {
	var norm float64
	for _, v := range embedding {
		norm += float64(v) * float64(v)
	}
	return record{
		key:       utils.RecordKey(chunk.Source(), chunk.Content),
		chunk:     chunk,
		embedding: embedding,
		norm:      norm,
	}
}

// embedChunks embeds chunks batch by batch. A failed batch is logged and its
// chunks dropped; the error is returned only when nothing could be embedded.
// Every returned vector has the same length.
func embedChunks(ctx context.Context, embedder ai.Embedder, chunks []models.Chunk, batchSize int) ([]record, error) {
	tracer := otel.Tracer("vector-index")
	ctx, span := tracer.Start(ctx, "index.embed")
	defer span.End()
	span.SetAttributes(
		attribute.Int("index.chunks", len(chunks)),
		attribute.Int("index.batch_size", batchSize),
	)

	records := make([]record, 0, len(chunks))
	dims := 0
	failed := 0
	var lastErr error

	for start := 0; start < len(chunks); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+batchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := embedder.EmbedDocuments(ctx, texts)
		if err == nil && len(vectors) != len(batch) {
			err = fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
		}
		if err != nil {
			failed += len(batch)
			lastErr = err
			logger.Warn("Embedding batch failed, skipping chunks",
				"batch_start", start,
				"batch_size", len(batch),
				"error", err,
			)
			continue
		}

		for i, v := range vectors {
			if dims == 0 {
				dims = len(v)
			}
			if len(v) == 0 || len(v) != dims {
				return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dims)
			}
			records = append(records, newRecord(batch[i], v))
		}
	}

	span.SetAttributes(attribute.Int("index.failed", failed))
	if len(records) == 0 && lastErr != nil {
		return nil, fmt.Errorf("%w: every embedding batch failed: %w", ErrIndexBuild, lastErr)
	}
	return records, nil
}

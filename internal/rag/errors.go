package rag

import (
	"errors"
	"fmt"

	"rag-chatbot-backend/internal/vectorindex"
)

// UnavailableMessage is the only text end users see when an answer could not
// be produced.
const UnavailableMessage = "⚠️ Bot is currently unavailable. Please try again later."

// ErrRetrieverNotReady is returned before an index has been built or loaded.
var ErrRetrieverNotReady = errors.New("retriever not ready: index not built or loaded")

// EmbeddingMismatchError means the query was embedded into a different space
// than the index, which is a configuration error.
type EmbeddingMismatchError struct {
	QueryDims int
	IndexDims int
}

func (e *EmbeddingMismatchError) Error() string {
	return fmt.Sprintf("embedding mismatch: query has %d dimensions, index has %d", e.QueryDims, e.IndexDims)
}

func (e *EmbeddingMismatchError) Unwrap() error { return vectorindex.ErrDimensionMismatch }

// GenerationUnavailableError wraps any failure of an answer attempt. Its
// message is safe to show; the cause is for logs.
type GenerationUnavailableError struct {
	Cause error
}

func (e *GenerationUnavailableError) Error() string { return UnavailableMessage }

func (e *GenerationUnavailableError) Unwrap() error { return e.Cause }

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rag-chatbot-backend/internal/ai"
	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/internal/loader"
	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/internal/telemetry"
	"rag-chatbot-backend/internal/vectorindex"
)

// NewLoader builds the document loader configured by DATA_TYPE and the
// chunking settings.
func NewLoader(cfg *config.Config) (*loader.Loader, error) {
	return loader.New(cfg.DataType,
		loader.WithWorkers(cfg.LoaderWorkers),
		loader.WithChunkSize(cfg.ChunkSize),
		loader.WithOverlap(cfg.ChunkOverlap),
	)
}

// NewStore opens the configured vector backend without loading it.
func NewStore(cfg *config.Config, embedder ai.Embedder, metrics *telemetry.Metrics) (vectorindex.Store, error) {
	return vectorindex.New(cfg.VectorBackend, vectorindex.Options{
		Dir:       cfg.DataPath,
		Name:      cfg.DataName,
		Embedder:  embedder,
		BatchSize: cfg.EmbedBatchSize,
		Compress:  cfg.ChromemCompress,
		Metrics:   metrics,
	})
}

// LoadOrBuild loads the persisted index. When none exists, or it was built
// with another embedding model, the data directory is loaded, embedded and
// persisted. A failed build is returned to the caller, which must not serve.
func LoadOrBuild(ctx context.Context, store vectorindex.Store, ld *loader.Loader, dataDir string) error {
	err := store.Load(ctx)
	if err == nil {
		logger.Info("Vector index loaded", "size", store.Len(), "dimensions", store.Dimensions())
		return nil
	}
	if !errors.Is(err, vectorindex.ErrIndexAbsent) {
		return fmt.Errorf("load vector index: %w", err)
	}

	logger.Info("No usable vector index, building from data directory", "dir", dataDir, "reason", err)
	return Rebuild(ctx, store, ld, dataDir)
}

// Rebuild replaces the index with the current contents of dataDir.
func Rebuild(ctx context.Context, store vectorindex.Store, ld *loader.Loader, dataDir string) error {
	start := time.Now()

	chunks, err := ld.Load(ctx, dataDir)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	if err := store.Build(ctx, chunks); err != nil {
		return fmt.Errorf("build vector index: %w", err)
	}
	if err := store.Persist(ctx); err != nil {
		return fmt.Errorf("persist vector index: %w", err)
	}

	logger.Info("Vector index built",
		"chunks", len(chunks),
		"size", store.Len(),
		"duration", time.Since(start),
	)
	return nil
}

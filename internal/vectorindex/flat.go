package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"rag-chatbot-backend/internal/ai"
	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/internal/telemetry"
	"rag-chatbot-backend/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// FlatIndex is an exact cosine index held in memory.
type FlatIndex struct {
	writeMu sync.Mutex

	mu         sync.RWMutex
	records    []record
	keys       map[string]struct{}
	sources    map[string]int
	dims       int
	generation string

	dir       string
	name      string
	embedder  ai.Embedder
	batchSize int
	metrics   *telemetry.Metrics
}

func NewFlatIndex(opts Options) *FlatIndex {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &FlatIndex{
		keys:      make(map[string]struct{}),
		sources:   make(map[string]int),
		dir:       opts.Dir,
		name:      opts.Name,
		embedder:  opts.Embedder,
		batchSize: batch,
		metrics:   opts.Metrics,
	}
}

// Build embeds chunks and replaces the index content. Duplicate chunks keep
// their first occurrence.
func (f *FlatIndex) Build(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("%w: no chunks to index", ErrIndexBuild)
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	ctx, span := otel.Tracer("vector-index").Start(ctx, "index.build")
	defer span.End()
	span.SetAttributes(attribute.String("index.backend", BackendFlat))

	start := time.Now()
	records, err := embedChunks(ctx, f.embedder, chunks, f.batchSize)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("%w: no chunk could be embedded", ErrIndexBuild)
	}

	keys := make(map[string]struct{}, len(records))
	sources := make(map[string]int)
	kept := records[:0]
	for _, r := range records {
		if _, dup := keys[r.key]; dup {
			continue
		}
		keys[r.key] = struct{}{}
		sources[r.chunk.Source()]++
		kept = append(kept, r)
	}

	f.mu.Lock()
	f.records = kept
	f.keys = keys
	f.sources = sources
	f.dims = len(kept[0].embedding)
	f.generation = ""
	f.mu.Unlock()

	f.metrics.RecordChunksIndexed(ctx, BackendFlat, len(kept))
	logger.Info("Vector index built",
		"backend", BackendFlat,
		"records", len(kept),
		"skipped", len(chunks)-len(kept),
		"dimensions", f.dims,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Add embeds chunks that are not indexed yet and appends them. When the index
// is bound to a directory it is persisted again.
func (f *FlatIndex) Add(ctx context.Context, chunks []models.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	f.mu.RLock()
	fresh := make([]models.Chunk, 0, len(chunks))
	pending := make(map[string]struct{})
	for _, c := range chunks {
		r := newRecord(c, nil)
		if _, ok := f.keys[r.key]; ok {
			continue
		}
		if _, ok := pending[r.key]; ok {
			continue
		}
		pending[r.key] = struct{}{}
		fresh = append(fresh, c)
	}
	dims := f.dims
	f.mu.RUnlock()

	if len(fresh) == 0 {
		return 0, nil
	}

	records, err := embedChunks(ctx, f.embedder, fresh, f.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	if dims != 0 && len(records[0].embedding) != dims {
		return 0, fmt.Errorf("%w: new records have %d dimensions, index has %d", ErrDimensionMismatch, len(records[0].embedding), dims)
	}

	f.mu.Lock()
	for _, r := range records {
		f.records = append(f.records, r)
		f.keys[r.key] = struct{}{}
		f.sources[r.chunk.Source()]++
	}
	if f.dims == 0 {
		f.dims = len(records[0].embedding)
	}
	f.mu.Unlock()

	f.metrics.RecordChunksIndexed(ctx, BackendFlat, len(records))
	logger.Info("Records added to vector index", "added", len(records), "requested", len(chunks))

	if f.dir != "" {
		if err := f.persistLocked(); err != nil {
			return len(records), err
		}
	}
	return len(records), nil
}

func (f *FlatIndex) Persist(ctx context.Context) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return f.persistLocked()
}

func (f *FlatIndex) persistLocked() error {
	if f.dir == "" {
		return errors.New("index is not bound to a directory")
	}

	f.mu.RLock()
	snapshot := f.records
	dims := f.dims
	f.mu.RUnlock()

	generation, err := writeFlat(f.dir, f.name, f.embedder.ModelName(), dims, snapshot)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.generation = generation
	f.mu.Unlock()

	logger.Info("Vector index persisted", "dir", f.dir, "name", f.name, "records", len(snapshot), "generation", generation)
	return nil
}

// Load replaces the in-memory content with the persisted artifacts. Any
// inconsistency is reported as ErrIndexAbsent.
func (f *FlatIndex) Load(ctx context.Context) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return f.loadLocked()
}

func (f *FlatIndex) loadLocked() error {
	if f.dir == "" {
		return fmt.Errorf("%w: index is not bound to a directory", ErrIndexAbsent)
	}

	loaded, err := readFlat(f.dir, f.name)
	if err != nil {
		return err
	}
	if model := f.embedder.ModelName(); loaded.model != model {
		return fmt.Errorf("%w: index built with %q, embedder is %q", ErrIndexAbsent, loaded.model, model)
	}

	keys := make(map[string]struct{}, len(loaded.records))
	sources := make(map[string]int)
	for _, r := range loaded.records {
		keys[r.key] = struct{}{}
		sources[r.chunk.Source()]++
	}

	f.mu.Lock()
	f.records = loaded.records
	f.keys = keys
	f.sources = sources
	f.dims = loaded.dims
	f.generation = loaded.generation
	f.mu.Unlock()

	logger.Info("Vector index loaded", "records", len(loaded.records), "dimensions", loaded.dims, "generation", loaded.generation)
	return nil
}

// Refresh reloads the artifacts when their generation differs from the one in
// memory.
func (f *FlatIndex) Refresh(ctx context.Context) (bool, error) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if f.dir == "" {
		return false, nil
	}
	generation, err := readFlatGeneration(f.dir, f.name)
	if err != nil {
		return false, err
	}
	if generation == f.Generation() {
		return false, nil
	}
	if err := f.loadLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// Search returns the k records most similar to query, best first. Equal
// scores keep insertion order.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be at least 1, got %d", k)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.records) == 0 {
		return nil, nil
	}
	if len(query) != f.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(query), f.dims)
	}

	var qnorm float64
	for _, v := range query {
		qnorm += float64(v) * float64(v)
	}

	type scored struct {
		idx   int
		score float32
	}
	scores := make([]scored, len(f.records))
	for i, r := range f.records {
		scores[i] = scored{idx: i, score: cosineWithNorms(query, r.embedding, qnorm, r.norm)}
	}
	sort.SliceStable(scores, func(a, b int) bool { return scores[a].score > scores[b].score })

	n := min(k, len(scores))
	hits := make([]Hit, n)
	for i := 0; i < n; i++ {
		r := f.records[scores[i].idx]
		hits[i] = Hit{Chunk: r.chunk, Score: scores[i].score, Embedding: r.embedding}
	}
	return hits, nil
}

func (f *FlatIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.records)
}

func (f *FlatIndex) Dimensions() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dims
}

func (f *FlatIndex) HasSource(source string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.sources[source] > 0
}

// Generation is the token of the last persisted or loaded artifacts, empty for
// an index that only lives in memory.
func (f *FlatIndex) Generation() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.generation
}

func cosineWithNorms(q, v []float32, qnorm, vnorm float64) float32 {
	if qnorm == 0 || vnorm == 0 {
		return 0
	}
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(v[i])
	}
	return float32(dot / (math.Sqrt(qnorm) * math.Sqrt(vnorm)))
}

package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"rag-chatbot-backend/internal/ai"
	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/internal/telemetry"
	"rag-chatbot-backend/models"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// seqKey orders chromem documents by insertion so ties can be broken the same
// way the flat index does.
const seqKey = "_seq"

type chromemManifest struct {
	Generation string         `json:"generation"`
	Model      string         `json:"model"`
	Dimensions int            `json:"dimensions"`
	Count      int            `json:"count"`
	NextSeq    int            `json:"next_seq"`
	Sources    map[string]int `json:"sources"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// ChromemStore keeps records in a chromem-go collection. Documents are
// persisted by chromem as they are inserted; the manifest written by Persist
// records what a complete index looks like.
type ChromemStore struct {
	writeMu sync.Mutex

	mu       sync.RWMutex
	db       *chromem.DB
	coll     *chromem.Collection
	manifest chromemManifest

	dir       string
	name      string
	compress  bool
	embedder  ai.Embedder
	batchSize int
	metrics   *telemetry.Metrics
}

func NewChromemStore(opts Options) *ChromemStore {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &ChromemStore{
		dir:       opts.Dir,
		name:      opts.Name,
		compress:  opts.Compress,
		embedder:  opts.Embedder,
		batchSize: batch,
		metrics:   opts.Metrics,
		manifest:  chromemManifest{Sources: map[string]int{}},
	}
}

func (s *ChromemStore) dbPath() string       { return filepath.Join(s.dir, s.name+".chromem") }
func (s *ChromemStore) manifestPath() string { return filepath.Join(s.dir, s.name+".chromem.json") }

// embedFunc is only consulted by chromem when a document arrives without a
// vector, which never happens here.
func (s *ChromemStore) embedFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

func (s *ChromemStore) openDB() (*chromem.DB, error) {
	if s.dir == "" {
		return chromem.NewDB(), nil
	}
	db, err := chromem.NewPersistentDB(s.dbPath(), s.compress)
	if err != nil {
		return nil, fmt.Errorf("open chromem db: %w", err)
	}
	return db, nil
}

func (s *ChromemStore) Build(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("%w: no chunks to index", ErrIndexBuild)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ctx, span := otel.Tracer("vector-index").Start(ctx, "index.build")
	defer span.End()
	span.SetAttributes(attribute.String("index.backend", BackendChromem))

	records, err := embedChunks(ctx, s.embedder, chunks, s.batchSize)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("%w: no chunk could be embedded", ErrIndexBuild)
	}

	db := s.db
	if db == nil {
		if db, err = s.openDB(); err != nil {
			return err
		}
	}
	if err := db.DeleteCollection(s.name); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	coll, err := db.CreateCollection(s.name, map[string]string{"model": s.embedder.ModelName()}, s.embedFunc())
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	manifest := chromemManifest{
		Model:      s.embedder.ModelName(),
		Dimensions: len(records[0].embedding),
		Sources:    map[string]int{},
	}
	added, err := addRecords(ctx, coll, records, &manifest, map[string]struct{}{})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.db = db
	s.coll = coll
	s.manifest = manifest
	s.mu.Unlock()

	s.metrics.RecordChunksIndexed(ctx, BackendChromem, added)
	logger.Info("Vector index built", "backend", BackendChromem, "records", added, "dimensions", manifest.Dimensions)
	return nil
}

// addRecords inserts records whose key is neither in the collection nor in
// seen, updating the manifest counters.
func addRecords(ctx context.Context, coll *chromem.Collection, records []record, manifest *chromemManifest, seen map[string]struct{}) (int, error) {
	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		if _, dup := seen[r.key]; dup {
			continue
		}
		if _, err := coll.GetByID(ctx, r.key); err == nil {
			continue
		}
		seen[r.key] = struct{}{}

		meta := make(map[string]string, len(r.chunk.Metadata)+1)
		for k, v := range r.chunk.Metadata {
			meta[k] = v
		}
		meta[seqKey] = strconv.Itoa(manifest.NextSeq)
		manifest.NextSeq++

		docs = append(docs, chromem.Document{
			ID:        r.key,
			Metadata:  meta,
			Embedding: r.embedding,
			Content:   r.chunk.Content,
		})
		manifest.Sources[r.chunk.Source()]++
	}
	if len(docs) == 0 {
		return 0, nil
	}

	if err := coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return 0, fmt.Errorf("add documents: %w", err)
	}
	manifest.Count = coll.Count()
	return len(docs), nil
}

func (s *ChromemStore) Add(ctx context.Context, chunks []models.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	coll := s.coll
	manifest := s.manifest
	s.mu.RUnlock()

	var err error
	if coll == nil {
		db := s.db
		if db == nil {
			if db, err = s.openDB(); err != nil {
				return 0, err
			}
		}
		if coll, err = db.GetOrCreateCollection(s.name, nil, s.embedFunc()); err != nil {
			return 0, fmt.Errorf("create collection: %w", err)
		}
		s.mu.Lock()
		s.db = db
		s.mu.Unlock()
	}

	// only chunks missing from the collection are sent to the embedder
	fresh := make([]models.Chunk, 0, len(chunks))
	pending := make(map[string]struct{})
	for _, c := range chunks {
		key := newRecord(c, nil).key
		if _, ok := pending[key]; ok {
			continue
		}
		if _, err := coll.GetByID(ctx, key); err == nil {
			continue
		}
		pending[key] = struct{}{}
		fresh = append(fresh, c)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	records, err := embedChunks(ctx, s.embedder, fresh, s.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	if manifest.Dimensions == 0 {
		manifest.Dimensions = len(records[0].embedding)
		manifest.Model = s.embedder.ModelName()
	} else if len(records[0].embedding) != manifest.Dimensions {
		return 0, fmt.Errorf("%w: new records have %d dimensions, index has %d", ErrDimensionMismatch, len(records[0].embedding), manifest.Dimensions)
	}

	sources := make(map[string]int, len(manifest.Sources))
	for k, v := range manifest.Sources {
		sources[k] = v
	}
	manifest.Sources = sources

	added, err := addRecords(ctx, coll, records, &manifest, map[string]struct{}{})
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.coll = coll
	s.manifest = manifest
	s.mu.Unlock()

	if added > 0 {
		s.metrics.RecordChunksIndexed(ctx, BackendChromem, added)
		logger.Info("Records added to vector index", "backend", BackendChromem, "added", added, "requested", len(chunks))
	}

	if s.dir != "" && added > 0 {
		if err := s.persistLocked(); err != nil {
			return added, err
		}
	}
	return added, nil
}

func (s *ChromemStore) Persist(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.persistLocked()
}

func (s *ChromemStore) persistLocked() error {
	if s.dir == "" {
		return errors.New("index is not bound to a directory")
	}

	s.mu.RLock()
	manifest := s.manifest
	s.mu.RUnlock()

	manifest.Generation = uuid.NewString()
	manifest.UpdatedAt = time.Now().UTC()

	err := writeAtomic(s.manifestPath(), func(w io.Writer) error {
		return json.NewEncoder(w).Encode(&manifest)
	})
	if err != nil {
		return fmt.Errorf("write chromem manifest: %w", err)
	}

	s.mu.Lock()
	s.manifest.Generation = manifest.Generation
	s.manifest.UpdatedAt = manifest.UpdatedAt
	s.mu.Unlock()
	return nil
}

func (s *ChromemStore) readManifest() (*chromemManifest, error) {
	data, err := os.ReadFile(s.manifestPath())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexAbsent, err)
	}
	var m chromemManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: decode manifest: %w", ErrIndexAbsent, err)
	}
	if m.Sources == nil {
		m.Sources = map[string]int{}
	}
	return &m, nil
}

func (s *ChromemStore) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.loadLocked()
}

func (s *ChromemStore) loadLocked() error {
	if s.dir == "" {
		return fmt.Errorf("%w: index is not bound to a directory", ErrIndexAbsent)
	}

	manifest, err := s.readManifest()
	if err != nil {
		return err
	}
	if model := s.embedder.ModelName(); manifest.Model != model {
		return fmt.Errorf("%w: index built with %q, embedder is %q", ErrIndexAbsent, manifest.Model, model)
	}
	if _, err := os.Stat(s.dbPath()); err != nil {
		return fmt.Errorf("%w: %w", ErrIndexAbsent, err)
	}

	db, err := s.openDB()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIndexAbsent, err)
	}
	coll := db.GetCollection(s.name, s.embedFunc())
	if coll == nil {
		return fmt.Errorf("%w: collection %s missing", ErrIndexAbsent, s.name)
	}
	if coll.Count() != manifest.Count {
		return fmt.Errorf("%w: collection holds %d documents, manifest %d", ErrIndexAbsent, coll.Count(), manifest.Count)
	}

	s.mu.Lock()
	s.db = db
	s.coll = coll
	s.manifest = *manifest
	s.mu.Unlock()

	logger.Info("Vector index loaded", "backend", BackendChromem, "records", manifest.Count, "generation", manifest.Generation)
	return nil
}

func (s *ChromemStore) Refresh(ctx context.Context) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.dir == "" {
		return false, nil
	}
	manifest, err := s.readManifest()
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	current := s.manifest.Generation
	s.mu.RUnlock()
	if manifest.Generation == current {
		return false, nil
	}
	if err := s.loadLocked(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *ChromemStore) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be at least 1, got %d", k)
	}

	s.mu.RLock()
	coll := s.coll
	dims := s.manifest.Dimensions
	s.mu.RUnlock()

	if coll == nil || coll.Count() == 0 {
		return nil, nil
	}
	if len(query) != dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(query), dims)
	}

	// chromem picks arbitrarily among equal scores at the cut, so rank every
	// document and apply the insertion-order tie-break before cutting to k.
	results, err := coll.QueryEmbedding(ctx, query, coll.Count(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	hits := make([]Hit, len(results))
	seqs := make([]int, len(results))
	for i, r := range results {
		meta := make(map[string]string, len(r.Metadata))
		for key, v := range r.Metadata {
			if key == seqKey {
				seqs[i], _ = strconv.Atoi(v)
				continue
			}
			meta[key] = v
		}
		hits[i] = Hit{
			Chunk:     models.Chunk{Content: r.Content, Metadata: meta},
			Score:     r.Similarity,
			Embedding: r.Embedding,
		}
	}

	order := make([]int, len(hits))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ha, hb := hits[order[a]], hits[order[b]]
		if ha.Score != hb.Score {
			return ha.Score > hb.Score
		}
		return seqs[order[a]] < seqs[order[b]]
	})
	sorted := make([]Hit, min(k, len(order)))
	for i := range sorted {
		sorted[i] = hits[order[i]]
	}
	return sorted, nil
}

func (s *ChromemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.coll == nil {
		return 0
	}
	return s.coll.Count()
}

func (s *ChromemStore) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manifest.Dimensions
}

func (s *ChromemStore) HasSource(source string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manifest.Sources[source] > 0
}

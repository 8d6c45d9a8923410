// Package loader turns a directory of source files into overlapping text
// chunks ready for embedding.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/models"
)

const (
	DefaultWorkers      = 8
	DefaultChunkSize    = 700
	DefaultChunkOverlap = 200
)

// Extractor reads one file into documents.
type Extractor interface {
	Extensions() []string
	Extract(ctx context.Context, path string) ([]models.Document, error)
}

// ExtractorFor returns the extractor registered for a DATA_TYPE value.
func ExtractorFor(fileType string) (Extractor, error) {
	switch strings.ToLower(strings.TrimPrefix(fileType, ".")) {
	case "pdf":
		return PDFExtractor{}, nil
	case "html", "htm":
		return HTMLExtractor{}, nil
	case "xlsx":
		return XLSXExtractor{}, nil
	default:
		return nil, fmt.Errorf("unsupported file type: %q", fileType)
	}
}

type Loader struct {
	extractor    Extractor
	workers      int
	chunkSize    int
	chunkOverlap int
	splitter     *Splitter
}

type Option func(*Loader)

func WithWorkers(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.workers = n
		}
	}
}

func WithChunkSize(n int) Option {
	return func(l *Loader) { l.chunkSize = n }
}

func WithOverlap(n int) Option {
	return func(l *Loader) { l.chunkOverlap = n }
}

// WithExtractor replaces the extractor picked from the file type.
func WithExtractor(e Extractor) Option {
	return func(l *Loader) { l.extractor = e }
}

func New(fileType string, opts ...Option) (*Loader, error) {
	l := &Loader{
		workers:      DefaultWorkers,
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.extractor == nil {
		ext, err := ExtractorFor(fileType)
		if err != nil {
			return nil, err
		}
		l.extractor = ext
	}

	splitter, err := NewSplitter(l.chunkSize, l.chunkOverlap)
	if err != nil {
		return nil, err
	}
	l.splitter = splitter

	return l, nil
}

// Load chunks every matching file directly inside dir. Subdirectories are not
// visited. Files that fail to parse are logged and skipped.
func (l *Loader) Load(ctx context.Context, dir string) ([]models.Chunk, error) {
	paths, err := l.Scan(dir)
	if err != nil {
		return nil, err
	}
	return l.LoadFiles(ctx, paths)
}

// Scan lists the files Load would read, as absolute paths in lexical order.
func (l *Loader) Scan(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !l.matches(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(abs, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadFiles chunks an explicit list of files. Output follows the order of
// paths, with the chunks of one file kept together.
func (l *Loader) LoadFiles(ctx context.Context, paths []string) ([]models.Chunk, error) {
	if len(paths) == 0 {
		return []models.Chunk{}, nil
	}

	results := make([][]models.Chunk, len(paths))
	jobs := make(chan int)

	var wg sync.WaitGroup
	workers := min(l.workers, len(paths))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = l.loadFile(ctx, paths[i])
			}
		}()
	}

feed:
	for i := range paths {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chunks := []models.Chunk{}
	for _, r := range results {
		chunks = append(chunks, r...)
	}

	logger.Info("Documents loaded", "files", len(paths), "chunks", len(chunks))
	return chunks, nil
}

func (l *Loader) loadFile(ctx context.Context, path string) []models.Chunk {
	docs, err := l.extractor.Extract(ctx, path)
	if err != nil {
		logger.Warn("Skipping unreadable file", "path", path, "error", err)
		return nil
	}

	chunks, err := l.splitter.SplitDocuments(docs)
	if err != nil {
		logger.Warn("Skipping file that failed to split", "path", path, "error", err)
		return nil
	}

	logger.Debug("File chunked", "path", path, "documents", len(docs), "chunks", len(chunks))
	return chunks
}

func (l *Loader) matches(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range l.extractor.Extensions() {
		if ext == want {
			return true
		}
	}
	return false
}

func baseMetadata(path string) map[string]string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	name := filepath.Base(abs)
	return map[string]string{
		models.MetaSource: abs,
		models.MetaTitle:  strings.TrimSuffix(name, filepath.Ext(name)),
	}
}

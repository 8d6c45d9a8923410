package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/internal/vectorindex"
	"rag-chatbot-backend/models"
	"rag-chatbot-backend/utils"

	"github.com/hibiken/asynq"
)

const (
	TypeIngest = "index:ingest"

	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// ErrIngestPending means an identical ingestion task is already queued.
var ErrIngestPending = errors.New("ingestion already pending for these files")

type IngestPayload struct {
	Paths []string `json:"paths"`
}

// NewIngestTask builds a task that indexes paths. Tasks for the same set of
// files share an id, so asynq refuses duplicates while one is queued.
func NewIngestTask(paths []string) (*asynq.Task, error) {
	if len(paths) == 0 {
		return nil, errors.New("ingest task needs at least one path")
	}
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	payload, err := json.Marshal(IngestPayload{Paths: sorted})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TypeIngest,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Minute),
		asynq.Queue(QueueDefault),
		asynq.TaskID("ingest-"+utils.SourceKey(strings.Join(sorted, "\n"))),
	), nil
}

// Enqueuer is the part of *asynq.Client used here.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueueIngest queues an ingestion task for paths.
func EnqueueIngest(ctx context.Context, client Enqueuer, paths []string) (*asynq.TaskInfo, error) {
	task, err := NewIngestTask(paths)
	if err != nil {
		return nil, err
	}
	info, err := client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil, ErrIngestPending
	}
	if err != nil {
		return nil, fmt.Errorf("enqueue ingest task: %w", err)
	}
	return info, nil
}

// ChunkLoader is the part of *loader.Loader used by the processor.
type ChunkLoader interface {
	LoadFiles(ctx context.Context, paths []string) ([]models.Chunk, error)
}

// TaskProcessor runs ingestion tasks against one vector index.
type TaskProcessor struct {
	loader ChunkLoader
	store  vectorindex.Store
}

func NewTaskProcessor(loader ChunkLoader, store vectorindex.Store) *TaskProcessor {
	return &TaskProcessor{loader: loader, store: store}
}

// HandleIngest loads the files that are not indexed yet and adds their chunks.
func (p *TaskProcessor) HandleIngest(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}
	if len(payload.Paths) == 0 {
		return fmt.Errorf("empty ingest payload: %w", asynq.SkipRetry)
	}

	taskID, _ := asynq.GetTaskID(ctx)
	log := logger.With("task_id", taskID, "task_type", t.Type())

	var fresh []string
	for _, path := range payload.Paths {
		if p.store.HasSource(path) {
			continue
		}
		fresh = append(fresh, path)
	}
	if len(fresh) == 0 {
		log.Info("Ingest task skipped, files already indexed", "files", len(payload.Paths))
		return nil
	}

	chunks, err := p.loader.LoadFiles(ctx, fresh)
	if err != nil {
		return fmt.Errorf("load files: %w", err)
	}
	if len(chunks) == 0 {
		log.Warn("Ingest task produced no chunks", "files", len(fresh))
		return nil
	}

	added, err := p.store.Add(ctx, chunks)
	if err != nil {
		return fmt.Errorf("add to index: %w", err)
	}

	log.Info("Ingest task completed",
		"files", len(fresh),
		"chunks", len(chunks),
		"added", added,
		"index_size", p.store.Len(),
	)
	return nil
}

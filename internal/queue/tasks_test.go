package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"rag-chatbot-backend/internal/vectorindex"
	"rag-chatbot-backend/models"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticEmbedder struct{}

func (staticEmbedder) ModelName() string { return "static" }

func (staticEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (staticEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, nil
}

type fakeLoader struct {
	calls [][]string
	err   error
}

func (f *fakeLoader) LoadFiles(_ context.Context, paths []string) ([]models.Chunk, error) {
	f.calls = append(f.calls, paths)
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Chunk
	for _, p := range paths {
		out = append(out, models.Chunk{
			Content:  "content of " + p,
			Metadata: map[string]string{models.MetaSource: p},
		})
	}
	return out, nil
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type(), Queue: QueueDefault}, nil
}

func TestNewIngestTaskSortsPaths(t *testing.T) {
	task, err := NewIngestTask([]string{"/data/b.pdf", "/data/a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, TypeIngest, task.Type())

	var payload IngestPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, []string{"/data/a.pdf", "/data/b.pdf"}, payload.Paths)

	_, err = NewIngestTask(nil)
	assert.Error(t, err)
}

func TestEnqueueIngestConflict(t *testing.T) {
	info, err := EnqueueIngest(context.Background(), &fakeEnqueuer{}, []string{"/data/a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "task-1", info.ID)

	_, err = EnqueueIngest(context.Background(), &fakeEnqueuer{err: asynq.ErrTaskIDConflict}, []string{"/data/a.pdf"})
	assert.ErrorIs(t, err, ErrIngestPending)
}

func TestHandleIngestAddsNewFiles(t *testing.T) {
	store := vectorindex.NewFlatIndex(vectorindex.Options{Embedder: staticEmbedder{}})
	ld := &fakeLoader{}
	p := NewTaskProcessor(ld, store)

	task, err := NewIngestTask([]string{"/data/a.pdf", "/data/b.pdf"})
	require.NoError(t, err)
	require.NoError(t, p.HandleIngest(context.Background(), task))
	assert.Equal(t, 2, store.Len())
	assert.True(t, store.HasSource("/data/a.pdf"))

	// indexed files are not loaded again
	task, err = NewIngestTask([]string{"/data/a.pdf", "/data/c.pdf"})
	require.NoError(t, err)
	require.NoError(t, p.HandleIngest(context.Background(), task))
	assert.Equal(t, []string{"/data/c.pdf"}, ld.calls[1])
	assert.Equal(t, 3, store.Len())
}

func TestHandleIngestBadPayloadSkipsRetry(t *testing.T) {
	p := NewTaskProcessor(&fakeLoader{}, vectorindex.NewFlatIndex(vectorindex.Options{Embedder: staticEmbedder{}}))

	err := p.HandleIngest(context.Background(), asynq.NewTask(TypeIngest, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = p.HandleIngest(context.Background(), asynq.NewTask(TypeIngest, []byte(`{"paths":[]}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleIngestLoaderErrorRetries(t *testing.T) {
	ld := &fakeLoader{err: errors.New("disk gone")}
	p := NewTaskProcessor(ld, vectorindex.NewFlatIndex(vectorindex.Options{Embedder: staticEmbedder{}}))

	task, err := NewIngestTask([]string{"/data/a.pdf"})
	require.NoError(t, err)
	err = p.HandleIngest(context.Background(), task)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

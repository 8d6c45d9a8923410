package services

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"rag-chatbot-backend/internal/loader"
	"rag-chatbot-backend/internal/queue"
	"rag-chatbot-backend/internal/session"
	"rag-chatbot-backend/internal/vectorindex"
	"rag-chatbot-backend/models"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type lengthEmbedder struct{ model string }

func (e lengthEmbedder) ModelName() string { return e.model }

func (e lengthEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (e lengthEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, nil
}

type textExtractor struct{}

func (textExtractor) Extensions() []string { return []string{".txt"} }

func (textExtractor) Extract(_ context.Context, path string) ([]models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []models.Document{{
		Content:  string(data),
		Metadata: map[string]string{models.MetaSource: path},
	}}, nil
}

type recordingEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type()}, nil
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func newTextLoader(t *testing.T) *loader.Loader {
	t.Helper()
	ld, err := loader.New("", loader.WithExtractor(textExtractor{}), loader.WithChunkSize(100), loader.WithOverlap(10))
	require.NoError(t, err)
	return ld
}

func TestLoadOrBuildBuildsThenLoads(t *testing.T) {
	dataDir := t.TempDir()
	indexDir := t.TempDir()
	writeFiles(t, dataDir, map[string]string{
		"a.txt": "Paris is the capital of France.",
		"b.txt": "Tokyo is the capital of Japan.",
	})
	ld := newTextLoader(t)

	opts := vectorindex.Options{Dir: indexDir, Name: "db_index", Embedder: lengthEmbedder{model: "m1"}}
	store, err := vectorindex.New(vectorindex.BackendFlat, opts)
	require.NoError(t, err)
	require.NoError(t, LoadOrBuild(context.Background(), store, ld, dataDir))
	assert.Equal(t, 2, store.Len())
	assert.True(t, vectorindex.Exists(indexDir, "db_index"))

	// second start reads the persisted index even with the data gone
	require.NoError(t, os.Remove(filepath.Join(dataDir, "a.txt")))
	reopened, err := vectorindex.New(vectorindex.BackendFlat, opts)
	require.NoError(t, err)
	require.NoError(t, LoadOrBuild(context.Background(), reopened, ld, dataDir))
	assert.Equal(t, 2, reopened.Len())
}

func TestLoadOrBuildRebuildsOnModelChange(t *testing.T) {
	dataDir := t.TempDir()
	indexDir := t.TempDir()
	writeFiles(t, dataDir, map[string]string{"a.txt": "Paris is the capital of France."})
	ld := newTextLoader(t)

	first, err := vectorindex.New(vectorindex.BackendFlat, vectorindex.Options{Dir: indexDir, Name: "idx", Embedder: lengthEmbedder{model: "m1"}})
	require.NoError(t, err)
	require.NoError(t, LoadOrBuild(context.Background(), first, ld, dataDir))

	writeFiles(t, dataDir, map[string]string{"b.txt": "Tokyo is the capital of Japan."})
	second, err := vectorindex.New(vectorindex.BackendFlat, vectorindex.Options{Dir: indexDir, Name: "idx", Embedder: lengthEmbedder{model: "m2"}})
	require.NoError(t, err)
	require.NoError(t, LoadOrBuild(context.Background(), second, ld, dataDir))
	assert.Equal(t, 2, second.Len())
}

func TestLoadOrBuildEmptyDataDirFails(t *testing.T) {
	store, err := vectorindex.New(vectorindex.BackendFlat, vectorindex.Options{Dir: t.TempDir(), Name: "idx", Embedder: lengthEmbedder{model: "m1"}})
	require.NoError(t, err)

	err = LoadOrBuild(context.Background(), store, newTextLoader(t), t.TempDir())
	assert.ErrorIs(t, err, vectorindex.ErrIndexBuild)
}

func TestEnqueueNewFilesSkipsIndexed(t *testing.T) {
	dataDir := t.TempDir()
	writeFiles(t, dataDir, map[string]string{
		"a.txt": "Paris is the capital of France.",
		"b.txt": "Tokyo is the capital of Japan.",
	})
	ld := newTextLoader(t)
	store := vectorindex.NewFlatIndex(vectorindex.Options{Embedder: lengthEmbedder{model: "m1"}})

	aPath := filepath.Join(dataDir, "a.txt")
	chunks, err := ld.LoadFiles(context.Background(), []string{aPath})
	require.NoError(t, err)
	require.NoError(t, store.Build(context.Background(), chunks))

	client := &recordingEnqueuer{}
	info, queued, err := EnqueueNewFiles(context.Background(), ld, store, client, dataDir)
	require.NoError(t, err)
	assert.Equal(t, "t1", info.ID)
	require.Len(t, queued, 1)
	assert.True(t, strings.HasSuffix(queued[0], "b.txt"))
	require.Len(t, client.tasks, 1)
	assert.Equal(t, queue.TypeIngest, client.tasks[0].Type())

	_, _, err = EnqueueNewFiles(context.Background(), ld, store, &recordingEnqueuer{err: asynq.ErrTaskIDConflict}, dataDir)
	assert.ErrorIs(t, err, queue.ErrIngestPending)

	// the scheduled job treats a pending duplicate as done
	job := IngestScanJob(ld, store, &recordingEnqueuer{err: asynq.ErrTaskIDConflict}, dataDir)
	assert.NoError(t, job(context.Background()))
}

func TestEvictSessionsJob(t *testing.T) {
	m := session.NewManager(session.NewMemoryStore(), 4, time.Nanosecond)
	_, err := m.Get(context.Background(), "s1")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	require.NoError(t, EvictSessionsJob(m)(context.Background()))
	assert.Equal(t, 0, m.Len())
}

func TestSchedulerRunsJobs(t *testing.T) {
	s := NewScheduler()
	var runs atomic.Int32
	require.NoError(t, s.ScheduleInterval("tick", 20*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	}))
	assert.Error(t, s.ScheduleInterval("tick", 20*time.Millisecond, func(context.Context) error { return nil }))
	assert.Error(t, s.ScheduleInterval("zero", 0, func(context.Context) error { return nil }))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, s.RemoveJob("tick"))
	assert.Empty(t, s.Jobs())
}

func TestExportTranscriptsXLSX(t *testing.T) {
	var buf bytes.Buffer
	err := ExportTranscriptsXLSX(&buf, []models.Transcript{
		{
			SessionID: "s1",
			Model:     "m1",
			Question:  "Capital of France?",
			Reply:     "Paris.",
			Sources:   []models.Source{{URL: "/data/A.pdf"}, {URL: "/data/B.pdf"}},
			LatencyMS: 120,
			CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Transcripts"}, f.GetSheetList())
	rows, err := f.GetRows("Transcripts")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Question", rows[0][3])
	assert.Equal(t, []string{"2026-01-02 03:04:05", "s1", "m1", "Capital of France?", "Paris.", "/data/A.pdf\n/data/B.pdf", "FALSE", "120"}, rows[1])
}
